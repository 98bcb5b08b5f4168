package services

import (
	"context"
	"errors"
	"strings"

	"github.com/gallery-app/apiserver/internal/mq"
	"github.com/gallery-app/apiserver/internal/storage"
	"github.com/gallery-app/apiserver/types"
	"go.uber.org/zap"
)

// ImageCleaner removes the stored image of a deleted post.
type ImageCleaner interface {
	Cleanup(ctx context.Context, post types.Post) error
}

// ObjectDeleter resolves and deletes stored objects.
type ObjectDeleter interface {
	KeyFromURL(raw string) (string, error)
	Delete(ctx context.Context, key string) error
}

// CleanupEvent asks a worker to delete one stored object.
type CleanupEvent struct {
	Key    string `json:"key"`
	PostID int    `json:"post_id"`
}

// DirectCleaner deletes images synchronously.
type DirectCleaner struct {
	objects ObjectDeleter
	logger  *zap.Logger
}

func NewDirectCleaner(objects ObjectDeleter, logger *zap.Logger) *DirectCleaner {
	return &DirectCleaner{objects: objects, logger: logger}
}

func (c *DirectCleaner) Cleanup(ctx context.Context, post types.Post) error {
	key, ok := resolveKey(c.objects, post, c.logger)
	if !ok {
		return nil
	}
	if err := c.objects.Delete(ctx, key); err != nil {
		return err
	}
	c.logger.Info("image deleted", zap.Int("post_id", post.ID), zap.String("key", key))
	return nil
}

// Publisher sends JSON events to a channel.
type Publisher interface {
	PublishJSON(ctx context.Context, channel string, v any) (string, error)
}

// QueuedCleaner hands image deletion to CleanupWorker through the message queue.
type QueuedCleaner struct {
	objects ObjectDeleter
	queue   Publisher
	channel string
	logger  *zap.Logger
}

func NewQueuedCleaner(objects ObjectDeleter, queue Publisher, channel string, logger *zap.Logger) *QueuedCleaner {
	return &QueuedCleaner{objects: objects, queue: queue, channel: channel, logger: logger}
}

func (c *QueuedCleaner) Cleanup(ctx context.Context, post types.Post) error {
	key, ok := resolveKey(c.objects, post, c.logger)
	if !ok {
		return nil
	}
	id, err := c.queue.PublishJSON(ctx, c.channel, CleanupEvent{Key: key, PostID: post.ID})
	if err != nil {
		return err
	}
	c.logger.Info("image cleanup queued", zap.Int("post_id", post.ID), zap.String("key", key), zap.String("message_id", id))
	return nil
}

// Subscriber consumes messages from a channel until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// CleanupWorker deletes the objects named by queued cleanup events.
type CleanupWorker struct {
	queue   Subscriber
	objects ObjectDeleter
	channel string
	logger  *zap.Logger
}

func NewCleanupWorker(queue Subscriber, objects ObjectDeleter, channel string, logger *zap.Logger) *CleanupWorker {
	return &CleanupWorker{queue: queue, objects: objects, channel: channel, logger: logger}
}

// Run blocks consuming events. A failed delete is returned to the handler so
// the broker redelivers the event; malformed events are dropped.
func (w *CleanupWorker) Run(ctx context.Context) error {
	w.logger.Info("cleanup worker started", zap.String("channel", w.channel))
	err := w.queue.Subscribe(ctx, w.channel, w.Handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle processes one cleanup event.
func (w *CleanupWorker) Handle(ctx context.Context, msg mq.Message) error {
	var event CleanupEvent
	if err := msg.Decode(&event); err != nil || strings.TrimSpace(event.Key) == "" {
		w.logger.Warn("dropping malformed cleanup event", zap.String("message_id", msg.ID))
		return nil
	}
	if err := w.objects.Delete(ctx, event.Key); err != nil {
		w.logger.Error("image delete failed", zap.String("key", event.Key), zap.Error(err))
		return err
	}
	w.logger.Info("image deleted", zap.Int("post_id", event.PostID), zap.String("key", event.Key))
	return nil
}

func resolveKey(objects ObjectDeleter, post types.Post, logger *zap.Logger) (string, bool) {
	if strings.TrimSpace(post.ImageURL) == "" {
		return "", false
	}
	key, err := objects.KeyFromURL(post.ImageURL)
	if err != nil {
		if errors.Is(err, storage.ErrForeignURL) {
			logger.Warn("image is not in the configured bucket; skipping cleanup", zap.Int("post_id", post.ID), zap.String("image_url", post.ImageURL))
			return "", false
		}
		logger.Warn("could not resolve image key", zap.Int("post_id", post.ID), zap.Error(err))
		return "", false
	}
	if !ownsKey(post.UserID, key) {
		logger.Warn("image key outside owner prefix; skipping cleanup", zap.Int("post_id", post.ID), zap.Int("user_id", post.UserID), zap.String("key", key))
		return "", false
	}
	return key, true
}
