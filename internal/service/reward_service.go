package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebk/relay-bot/internal/domain"
)

// DailyInterval is the minimum time between two daily rewards
const DailyInterval = 24 * time.Hour

// ErrDailyAlreadyClaimed is returned when the daily reward is not yet available
var ErrDailyAlreadyClaimed = errors.New("daily reward already claimed")

// Profile is a user's gamification summary
type Profile struct {
	User         *domain.User
	Achievements int
}

// DailyResult describes a daily claim attempt
type DailyResult struct {
	Points int64
	// Remaining is set when the claim was refused
	Remaining time.Duration
	// Achievement is the first badge earned as a result of the claim, if any
	Achievement *AchievementRule
}

// RewardService handles points, daily rewards, achievements and the leaderboard
type RewardService struct {
	users           domain.UserRepository
	achievements    domain.AchievementRepository
	logs            domain.MessageLogRepository
	dailyPoints     int64
	leaderboardSize int
	now             func() time.Time
}

// NewRewardService creates a new RewardService
func NewRewardService(
	users domain.UserRepository,
	achievements domain.AchievementRepository,
	logs domain.MessageLogRepository,
	dailyPoints int64,
	leaderboardSize int,
) *RewardService {
	return &RewardService{
		users:           users,
		achievements:    achievements,
		logs:            logs,
		dailyPoints:     dailyPoints,
		leaderboardSize: leaderboardSize,
		now:             time.Now,
	}
}

// DailyPoints returns the reward granted by ClaimDaily
func (s *RewardService) DailyPoints() int64 {
	return s.dailyPoints
}

// Profile returns the user with their achievement count
func (s *RewardService) Profile(ctx context.Context, userID int64) (*Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	achievements, err := s.achievements.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get achievements: %w", err)
	}

	return &Profile{User: user, Achievements: len(achievements)}, nil
}

// ClaimDaily grants the daily reward at most once per DailyInterval.
// A refused claim returns ErrDailyAlreadyClaimed with Remaining set.
func (s *RewardService) ClaimDaily(ctx context.Context, userID int64) (*DailyResult, error) {
	claimed, err := s.users.ClaimDaily(ctx, userID, s.dailyPoints, DailyInterval)
	if err != nil {
		return nil, err
	}

	if !claimed {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		result := &DailyResult{Remaining: DailyInterval}
		if user.LastDaily != nil {
			result.Remaining = user.LastDaily.Add(DailyInterval).Sub(s.now())
		}
		return result, ErrDailyAlreadyClaimed
	}

	achievement, err := s.CheckAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &DailyResult{Points: s.dailyPoints, Achievement: achievement}, nil
}

// CheckAchievements awards the first catalog entry the user has earned but
// does not hold yet. It returns nil when nothing new was earned.
func (s *RewardService) CheckAchievements(ctx context.Context, userID int64) (*AchievementRule, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	existing, err := s.achievements.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get achievements: %w", err)
	}
	held := make(map[string]bool, len(existing))
	for _, a := range existing {
		held[a.Name] = true
	}

	progress := Progress{MessageCount: user.MessageCount}
	if !held["Daily User"] {
		if progress.ActiveDays, err = s.logs.ActiveDayStreak(ctx, userID, s.now()); err != nil {
			return nil, fmt.Errorf("failed to get active days: %w", err)
		}
	}

	for i := range Achievements {
		rule := &Achievements[i]
		if held[rule.Name] || !rule.Earned(progress) {
			continue
		}
		added, err := s.achievements.Add(ctx, userID, rule.Name)
		if err != nil {
			return nil, err
		}
		if added {
			return rule, nil
		}
	}

	return nil, nil
}

// Achievements lists the user's badges, newest first
func (s *RewardService) Achievements(ctx context.Context, userID int64) ([]*domain.Achievement, error) {
	return s.achievements.ListByUser(ctx, userID)
}

// Leaderboard returns the top users by points
func (s *RewardService) Leaderboard(ctx context.Context) ([]*domain.User, error) {
	return s.users.Leaderboard(ctx, s.leaderboardSize)
}
