package services

import (
	"context"
	"errors"

	"github.com/gallery-app/apiserver/internal/mq"
	"github.com/gallery-app/apiserver/types"
)

var errBoom = errors.New("boom")

type recordingCleaner struct {
	posts []types.Post
	err   error
}

func (r *recordingCleaner) Cleanup(_ context.Context, post types.Post) error {
	r.posts = append(r.posts, post)
	return r.err
}

type fakeQueue struct {
	channel  string
	events   []any
	err      error
	messages []mq.Message
	results  []error
}

func (q *fakeQueue) PublishJSON(_ context.Context, channel string, v any) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.channel = channel
	q.events = append(q.events, v)
	return "msg-1", nil
}

func (q *fakeQueue) Subscribe(ctx context.Context, channel string, handler mq.Handler) error {
	q.channel = channel
	for _, msg := range q.messages {
		q.results = append(q.results, handler(ctx, msg))
	}
	return context.Canceled
}
