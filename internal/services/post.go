package services

import (
	"context"

	"github.com/gallery-app/apiserver/types"
	"go.uber.org/zap"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	List(ctx context.Context, offset, limit int) ([]types.Post, int, error)
	ListByUser(ctx context.Context, userID, offset, limit int) ([]types.Post, int, error)
	Get(ctx context.Context, id int) (types.Post, error)
	Create(ctx context.Context, post types.Post) (types.Post, error)
	Delete(ctx context.Context, id int) error
	IncrementViews(ctx context.Context, id int) (int, error)
	IncrementDownloads(ctx context.Context, id int) (int, error)
}

// PostService answers feed and profile queries and manages post lifecycle.
type PostService struct {
	posts   PostRepository
	users   UserRepository
	cleaner ImageCleaner
	logger  *zap.Logger
}

func NewPostService(posts PostRepository, users UserRepository, cleaner ImageCleaner, logger *zap.Logger) *PostService {
	return &PostService{posts: posts, users: users, cleaner: cleaner, logger: logger}
}

// Feed returns all posts, most recent first.
func (s *PostService) Feed(ctx context.Context, offset, limit int) ([]types.Post, int, error) {
	return s.posts.List(ctx, offset, clampLimit(limit))
}

func (s *PostService) Get(ctx context.Context, id int) (types.Post, error) {
	return s.posts.Get(ctx, id)
}

// ListByUser returns a user's posts, most recent first.
func (s *PostService) ListByUser(ctx context.Context, userID, offset, limit int) ([]types.Post, int, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, 0, err
	}
	return s.posts.ListByUser(ctx, userID, offset, clampLimit(limit))
}

// RecordView increments the view counter. Repeated calls always increment.
func (s *PostService) RecordView(ctx context.Context, id int) (int, error) {
	return s.posts.IncrementViews(ctx, id)
}

// RecordDownload increments the download counter. Repeated calls always increment.
func (s *PostService) RecordDownload(ctx context.Context, id int) (int, error) {
	return s.posts.IncrementDownloads(ctx, id)
}

// Delete removes a post owned by userID and schedules removal of its image.
// A cleanup failure is logged and does not fail the delete.
func (s *PostService) Delete(ctx context.Context, userID, postID int) error {
	post, err := s.posts.Get(ctx, postID)
	if err != nil {
		return err
	}
	if post.UserID != userID {
		s.logger.Warn("delete rejected: not owner", zap.Int("post_id", postID), zap.Int("user_id", userID))
		return newError(ErrForbidden, "not authorized to delete this post")
	}

	if err := s.posts.Delete(ctx, postID); err != nil {
		return err
	}
	s.logger.Info("post deleted", zap.Int("post_id", postID), zap.Int("user_id", userID))

	if s.cleaner != nil {
		if err := s.cleaner.Cleanup(ctx, post); err != nil {
			s.logger.Warn("image cleanup failed", zap.Int("post_id", postID), zap.String("image_url", post.ImageURL), zap.Error(err))
		}
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}
