package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gallery-app/apiserver/internal/storage"
	"github.com/gallery-app/apiserver/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	uploadKeyPrefix       = "posts/"
	defaultUploadExpiry   = time.Hour
	imageContentTypeStart = "image/"
)

var allowedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Presigner issues direct-to-storage upload authorizations.
type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	PublicURL(key string) string
	KeyFromURL(raw string) (string, error)
}

// UserKeyPrefix is the key prefix under which userID's uploads are stored.
// A post may only reference bucket objects under its owner's prefix.
func UserKeyPrefix(userID int) string {
	return uploadKeyPrefix + strconv.Itoa(userID) + "/"
}

// ownsKey reports whether key is a clean object key under userID's prefix.
func ownsKey(userID int, key string) bool {
	return path.Clean(key) == key && strings.HasPrefix(key, UserKeyPrefix(userID))
}

// UploadService coordinates the two-phase upload: a slot is requested, the
// client writes the bytes straight to storage, then confirms to create the post.
// The backend never sees or verifies the stored bytes.
type UploadService struct {
	presigner Presigner
	posts     PostRepository
	expiry    time.Duration
	maxBytes  int64
	now       func() time.Time
	logger    *zap.Logger
}

func NewUploadService(presigner Presigner, posts PostRepository, expiry time.Duration, maxBytes int64, logger *zap.Logger) *UploadService {
	if expiry <= 0 {
		expiry = defaultUploadExpiry
	}
	return &UploadService{
		presigner: presigner,
		posts:     posts,
		expiry:    expiry,
		maxBytes:  maxBytes,
		now:       time.Now,
		logger:    logger,
	}
}

// RequestSlot validates the declared file and returns a fresh upload slot.
// Every call yields a new key, so repeated requests for the same filename
// produce independent slots.
func (s *UploadService) RequestSlot(ctx context.Context, userID int, req types.UploadRequest) (types.UploadSlot, error) {
	filename := strings.TrimSpace(req.Filename)
	contentType := strings.ToLower(strings.TrimSpace(req.ContentType))
	if filename == "" {
		return types.UploadSlot{}, validationError("filename is required")
	}
	if contentType == "" {
		return types.UploadSlot{}, validationError("content_type is required")
	}

	ext := strings.ToLower(path.Ext(filename))
	if !strings.HasPrefix(contentType, imageContentTypeStart) || !allowedImageTypes[contentType] || !allowedImageExtensions[ext] {
		s.logger.Warn("upload slot rejected: file type", zap.Int("user_id", userID), zap.String("filename", filename), zap.String("content_type", contentType))
		return types.UploadSlot{}, validationError("file type not allowed; allowed types: .jpg, .jpeg, .png, .gif, .webp")
	}
	if req.Size < 0 {
		return types.UploadSlot{}, validationError("invalid size")
	}
	if s.maxBytes > 0 && req.Size > s.maxBytes {
		return types.UploadSlot{}, validationError(fmt.Sprintf("file size must be at most %d bytes", s.maxBytes))
	}

	key := UserKeyPrefix(userID) + uuid.NewString() + ext
	expiresAt := s.now().Add(s.expiry)
	uploadURL, err := s.presigner.PresignPut(ctx, key, contentType, s.expiry)
	if err != nil {
		s.logger.Error("presign failed", zap.String("key", key), zap.Error(err))
		return types.UploadSlot{}, newError(ErrUpstreamStorage, "failed to generate upload url")
	}

	s.logger.Info("upload slot issued", zap.Int("user_id", userID), zap.String("key", key))
	return types.UploadSlot{
		UploadURL:   uploadURL,
		Key:         key,
		PublicURL:   s.presigner.PublicURL(key),
		ContentType: contentType,
		ExpiresAt:   expiresAt,
	}, nil
}

// Confirm records the post for an upload the client reports as stored.
// Storage-side existence of the object is not checked, but a bucket URL must
// name a key under the caller's prefix. Tags are stored as submitted and
// normalized when read.
func (s *UploadService) Confirm(ctx context.Context, userID int, draft types.PostDraft) (types.Post, error) {
	imageURL := strings.TrimSpace(draft.ImageURL)
	if imageURL == "" {
		return types.Post{}, validationError("image_url is required")
	}

	key, err := s.presigner.KeyFromURL(imageURL)
	switch {
	case err == nil:
		if !ownsKey(userID, key) {
			s.logger.Warn("confirm rejected: image owned by another user", zap.Int("user_id", userID), zap.String("key", key))
			return types.Post{}, newError(ErrForbidden, "image_url does not refer to your upload")
		}
	case errors.Is(err, storage.ErrForeignURL):
		// Externally hosted images are recorded as is and never cleaned up.
	default:
		return types.Post{}, validationError("invalid image_url")
	}

	created, err := s.posts.Create(ctx, types.Post{
		UserID:   userID,
		ImageURL: imageURL,
		Title:    strings.TrimSpace(draft.Title),
		Caption:  strings.TrimSpace(draft.Caption),
		RawTags:  draft.Tags,
	})
	if err != nil {
		s.logger.Error("failed to create post", zap.Int("user_id", userID), zap.Error(err))
		return types.Post{}, err
	}

	s.logger.Info("post created", zap.Int("post_id", created.ID), zap.Int("user_id", userID))

	post, err := s.posts.Get(ctx, created.ID)
	if err != nil {
		return created, nil
	}
	return post, nil
}
