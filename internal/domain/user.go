package domain

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrUserNotFound is returned when no row exists for the requested user
var ErrUserNotFound = errors.New("user not found")

// User represents a bot user
type User struct {
	ID           int64
	Username     string
	FirstName    string
	LastName     string
	MessageCount int64
	Points       int64
	JoinDate     time.Time
	LastActive   *time.Time
	LastDaily    *time.Time
}

// DisplayName returns the username, the full name or a generic label
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	if name := fullName(u.FirstName, u.LastName); name != "" {
		return name
	}
	return "User " + strconv.FormatInt(u.ID, 10)
}

// Identity is what the transport tells us about the sender.
// Nil fields mean "unknown" and never overwrite stored values.
type Identity struct {
	ID        int64
	Username  *string
	FirstName *string
	LastName  *string
}

// UserStats aggregates activity counters for the admin panel
type UserStats struct {
	Total       int64
	ActiveWeek  int64
	ActiveToday int64
}

// UserRepository defines the interface for user storage
type UserRepository interface {
	// RecordActivity creates the user if absent, then increments the
	// message counter and refreshes last_active in one transaction.
	RecordActivity(ctx context.Context, identity Identity) error
	GetByID(ctx context.Context, id int64) (*User, error)
	List(ctx context.Context) ([]*User, error)
	AddPoints(ctx context.Context, userID int64, points int64) error
	// ClaimDaily adds points and stamps last_daily if the previous claim
	// is older than interval. It reports whether the claim happened.
	ClaimDaily(ctx context.Context, userID int64, points int64, interval time.Duration) (bool, error)
	Leaderboard(ctx context.Context, limit int) ([]*User, error)
	Stats(ctx context.Context) (*UserStats, error)
}

func fullName(first, last string) string {
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	default:
		return last
	}
}
