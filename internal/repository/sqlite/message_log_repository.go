package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/glebk/relay-bot/internal/domain"
)

// streakLookback bounds how many distinct days ActiveDayStreak inspects
const streakLookback = 60

// MessageLogRepository implements domain.MessageLogRepository using SQLite
type MessageLogRepository struct {
	db *Database
}

// NewMessageLogRepository creates a new MessageLogRepository
func NewMessageLogRepository(db *Database) *MessageLogRepository {
	return &MessageLogRepository{db: db}
}

// Log appends an interaction to the log
func (r *MessageLogRepository) Log(ctx context.Context, userID int64, messageType domain.MessageType, content string) error {
	var c sql.NullString
	if content != "" {
		c = sql.NullString{String: content, Valid: true}
	}

	_, err := r.db.GetDB().ExecContext(ctx,
		`INSERT INTO message_logs (user_id, message_type, content) VALUES (?, ?, ?)`,
		userID, string(messageType), c,
	)
	if err != nil {
		return fmt.Errorf("failed to log message: %w", err)
	}

	return nil
}

// ActiveDayStreak counts consecutive active days ending today or yesterday (UTC)
func (r *MessageLogRepository) ActiveDayStreak(ctx context.Context, userID int64, now time.Time) (int, error) {
	rows, err := r.db.GetDB().QueryContext(ctx, `
		SELECT DISTINCT date(timestamp) AS day
		FROM message_logs
		WHERE user_id = ?
		ORDER BY day DESC
		LIMIT ?
	`, userID, streakLookback)
	if err != nil {
		return 0, fmt.Errorf("failed to get active days: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return 0, fmt.Errorf("failed to scan active day: %w", err)
		}
		day, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			return 0, fmt.Errorf("invalid active day %q: %w", raw, err)
		}
		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate active days: %w", err)
	}

	return streak(days, now), nil
}

// streak expects days sorted newest first
func streak(days []time.Time, now time.Time) int {
	if len(days) == 0 {
		return 0
	}

	today := now.UTC().Truncate(24 * time.Hour)
	expected := today
	if days[0].Before(today) {
		expected = today.AddDate(0, 0, -1)
	}

	count := 0
	for _, day := range days {
		if !day.Equal(expected) {
			break
		}
		count++
		expected = expected.AddDate(0, 0, -1)
	}

	return count
}
