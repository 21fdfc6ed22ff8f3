package service

import (
	"context"
	"log/slog"

	"github.com/glebk/relay-bot/internal/domain"
	"github.com/glebk/relay-bot/internal/metrics"
)

// ActivityRecorder keeps per-user counters current for every inbound update
type ActivityRecorder struct {
	users   domain.UserRepository
	logs    domain.MessageLogRepository
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewActivityRecorder creates a new ActivityRecorder
func NewActivityRecorder(users domain.UserRepository, logs domain.MessageLogRepository, m *metrics.Metrics, logger *slog.Logger) *ActivityRecorder {
	return &ActivityRecorder{
		users:   users,
		logs:    logs,
		metrics: m,
		logger:  logger,
	}
}

// Record upserts the user and bumps the message counter. Storage errors are
// logged and reported as false; the caller keeps processing the message.
func (r *ActivityRecorder) Record(ctx context.Context, identity domain.Identity) bool {
	if err := r.users.RecordActivity(ctx, identity); err != nil {
		r.metrics.IncActivityFailure()
		r.logger.Error("Failed to record user activity", "user_id", identity.ID, "error", err)
		return false
	}
	return true
}

// LogMessage appends to the interaction log. Failures are only logged.
func (r *ActivityRecorder) LogMessage(ctx context.Context, userID int64, messageType domain.MessageType, content string) {
	if err := r.logs.Log(ctx, userID, messageType, content); err != nil {
		r.logger.Warn("Failed to log message", "user_id", userID, "type", messageType, "error", err)
	}
}
