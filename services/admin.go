package services

import (
	"context"

	"moments/models"
)

const (
	DefaultAdminPage = 20
	MaxAdminPage     = 100
)

// AdminService serves the dashboard.
type AdminService struct {
	posts PostStore
	users UserStore
}

func NewAdminService(posts PostStore, users UserStore) *AdminService {
	return &AdminService{posts: posts, users: users}
}

func clampAdminLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultAdminPage
	case limit > MaxAdminPage:
		return MaxAdminPage
	}
	return limit
}

func (s *AdminService) Stats(ctx context.Context) (models.Stats, error) {
	stats, err := s.posts.Totals(ctx)
	if err != nil {
		return models.Stats{}, err
	}
	users, err := s.users.Count(ctx)
	if err != nil {
		return models.Stats{}, err
	}
	stats.Users = users
	return stats, nil
}

// Users lists accounts, newest first, without password hashes.
func (s *AdminService) Users(ctx context.Context, limit int) ([]models.User, error) {
	return s.users.List(ctx, clampAdminLimit(limit))
}

// RecentComments lists the latest comments across all posts.
func (s *AdminService) RecentComments(ctx context.Context, limit int) ([]models.CommentActivity, error) {
	return s.posts.RecentComments(ctx, clampAdminLimit(limit))
}
