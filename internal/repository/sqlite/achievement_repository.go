package sqlite

import (
	"context"
	"fmt"

	"github.com/glebk/relay-bot/internal/domain"
)

// AchievementRepository implements domain.AchievementRepository using SQLite
type AchievementRepository struct {
	db *Database
}

// NewAchievementRepository creates a new AchievementRepository
func NewAchievementRepository(db *Database) *AchievementRepository {
	return &AchievementRepository{db: db}
}

// Add stores an achievement unless the user already holds it
func (r *AchievementRepository) Add(ctx context.Context, userID int64, name string) (bool, error) {
	res, err := r.db.GetDB().ExecContext(ctx,
		`INSERT OR IGNORE INTO achievements (user_id, name) VALUES (?, ?)`,
		userID, name,
	)
	if err != nil {
		return false, fmt.Errorf("failed to add achievement: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to add achievement: %w", err)
	}

	return n > 0, nil
}

// ListByUser returns a user's achievements, newest first
func (r *AchievementRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Achievement, error) {
	rows, err := r.db.GetDB().QueryContext(ctx, `
		SELECT id, user_id, name, earned_date
		FROM achievements
		WHERE user_id = ?
		ORDER BY earned_date DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get achievements: %w", err)
	}
	defer rows.Close()

	var achievements []*domain.Achievement
	for rows.Next() {
		a := &domain.Achievement{}
		var earned string
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &earned); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		if a.EarnedDate, err = parseTime(earned); err != nil {
			return nil, fmt.Errorf("invalid earned_date %q: %w", earned, err)
		}
		achievements = append(achievements, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate achievements: %w", err)
	}

	return achievements, nil
}
