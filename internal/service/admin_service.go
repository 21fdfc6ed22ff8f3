package service

import (
	"context"

	"github.com/glebk/relay-bot/internal/domain"
)

// UserListLimit caps the /users listing
const UserListLimit = 30

// AdminService backs the admin commands
type AdminService struct {
	users domain.UserRepository
}

// NewAdminService creates a new AdminService
func NewAdminService(users domain.UserRepository) *AdminService {
	return &AdminService{users: users}
}

// Stats returns total, weekly and daily active user counts
func (s *AdminService) Stats(ctx context.Context) (*domain.UserStats, error) {
	return s.users.Stats(ctx)
}

// ListUsers returns up to UserListLimit users, most recently active first
func (s *AdminService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(users) > UserListLimit {
		users = users[:UserListLimit]
	}
	return users, nil
}

// Recipients returns the ids of every known user
func (s *AdminService) Recipients(ctx context.Context) ([]int64, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}
