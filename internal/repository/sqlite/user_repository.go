package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glebk/relay-bot/internal/domain"
)

// UserRepository implements domain.UserRepository using SQLite
type UserRepository struct {
	db *Database
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *Database) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `user_id, username, first_name, last_name, message_count, points, join_date, last_active, last_daily`

// RecordActivity inserts the user if absent, then bumps the counter and
// refreshes profile fields that are known.
func (r *UserRepository) RecordActivity(ctx context.Context, identity domain.Identity) error {
	tx, err := r.db.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	username := nullString(identity.Username)
	firstName := nullString(identity.FirstName)
	lastName := nullString(identity.LastName)

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO users (user_id, username, first_name, last_name, join_date, last_active)
		VALUES (?, ?, ?, ?, datetime('now'), datetime('now'))
	`, identity.ID, username, firstName, lastName)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users SET
			message_count = message_count + 1,
			last_active = datetime('now'),
			username = COALESCE(?, username),
			first_name = COALESCE(?, first_name),
			last_name = COALESCE(?, last_name)
		WHERE user_id = ?
	`, username, firstName, lastName, identity.ID)
	if err != nil {
		return fmt.Errorf("failed to update user activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user activity: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = ?`

	user, err := scanUser(r.db.GetDB().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// List retrieves all users, most recently active first
func (r *UserRepository) List(ctx context.Context) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY last_active DESC, user_id`

	return r.queryUsers(ctx, query)
}

// AddPoints adds points to a user
func (r *UserRepository) AddPoints(ctx context.Context, userID int64, points int64) error {
	res, err := r.db.GetDB().ExecContext(ctx, `UPDATE users SET points = points + ? WHERE user_id = ?`, points, userID)
	if err != nil {
		return fmt.Errorf("failed to add points: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to add points: %w", err)
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

// ClaimDaily awards points when the last claim is older than interval.
// The check and the update are one statement, so two concurrent claims
// cannot both succeed.
func (r *UserRepository) ClaimDaily(ctx context.Context, userID int64, points int64, interval time.Duration) (bool, error) {
	modifier := fmt.Sprintf("-%d seconds", int64(interval.Seconds()))

	res, err := r.db.GetDB().ExecContext(ctx, `
		UPDATE users SET points = points + ?, last_daily = datetime('now')
		WHERE user_id = ? AND (last_daily IS NULL OR last_daily <= datetime('now', ?))
	`, points, userID, modifier)
	if err != nil {
		return false, fmt.Errorf("failed to claim daily reward: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim daily reward: %w", err)
	}

	return n > 0, nil
}

// Leaderboard returns the top users by points
func (r *UserRepository) Leaderboard(ctx context.Context, limit int) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY points DESC, message_count DESC, user_id LIMIT ?`

	return r.queryUsers(ctx, query, limit)
}

// Stats counts total, weekly and daily active users
func (r *UserRepository) Stats(ctx context.Context) (*domain.UserStats, error) {
	stats := &domain.UserStats{}

	err := r.db.GetDB().QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN last_active > datetime('now', '-7 days') THEN 1 END),
			COUNT(CASE WHEN last_active > datetime('now', '-1 day') THEN 1 END)
		FROM users
	`).Scan(&stats.Total, &stats.ActiveWeek, &stats.ActiveToday)
	if err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}

	return stats, nil
}

func (r *UserRepository) queryUsers(ctx context.Context, query string, args ...any) ([]*domain.User, error) {
	rows, err := r.db.GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{}
	var username, firstName, lastName sql.NullString
	var joinDate string
	var lastActive, lastDaily sql.NullString

	err := row.Scan(
		&user.ID,
		&username,
		&firstName,
		&lastName,
		&user.MessageCount,
		&user.Points,
		&joinDate,
		&lastActive,
		&lastDaily,
	)
	if err != nil {
		return nil, err
	}

	user.Username = username.String
	user.FirstName = firstName.String
	user.LastName = lastName.String

	if user.JoinDate, err = parseTime(joinDate); err != nil {
		return nil, fmt.Errorf("invalid join_date %q: %w", joinDate, err)
	}
	if user.LastActive, err = parseNullTime(lastActive); err != nil {
		return nil, fmt.Errorf("invalid last_active: %w", err)
	}
	if user.LastDaily, err = parseNullTime(lastDaily); err != nil {
		return nil, fmt.Errorf("invalid last_daily: %w", err)
	}

	return user, nil
}
