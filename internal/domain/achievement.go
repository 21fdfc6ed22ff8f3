package domain

import (
	"context"
	"time"
)

// Achievement is a badge earned by a user
type Achievement struct {
	ID         int64
	UserID     int64
	Name       string
	EarnedDate time.Time
}

// MessageType classifies a logged interaction
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeCommand  MessageType = "command"
	MessageTypeCallback MessageType = "callback"
)

// AchievementRepository defines the interface for achievement storage
type AchievementRepository interface {
	// Add stores the achievement. It reports false if the user already has it.
	Add(ctx context.Context, userID int64, name string) (bool, error)
	ListByUser(ctx context.Context, userID int64) ([]*Achievement, error)
}

// MessageLogRepository stores the interaction log
type MessageLogRepository interface {
	Log(ctx context.Context, userID int64, messageType MessageType, content string) error
	// ActiveDayStreak returns the number of consecutive days, ending today
	// or yesterday, on which the user sent anything.
	ActiveDayStreak(ctx context.Context, userID int64, now time.Time) (int, error)
}
