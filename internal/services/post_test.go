package services

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/gallery-app/apiserver/internal/mq"
	"github.com/gallery-app/apiserver/internal/services/servicestest"
	"github.com/gallery-app/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type postFixture struct {
	users   *servicestest.Users
	posts   *servicestest.Posts
	cleaner *recordingCleaner
	service *PostService
	uploads *UploadService
	owner   types.User
}

func newPostFixture(t *testing.T) postFixture {
	t.Helper()
	users := servicestest.NewUsers()
	posts := servicestest.NewPosts(users)
	cleaner := &recordingCleaner{}
	owner, err := users.Create(context.Background(), types.User{Username: "owner", Email: "owner@example.com", FullName: "Owner O", PasswordHash: "x"})
	require.NoError(t, err)
	return postFixture{
		users:   users,
		posts:   posts,
		cleaner: cleaner,
		service: NewPostService(posts, users, cleaner, zap.NewNop()),
		uploads: NewUploadService(&servicestest.Presigner{}, posts, time.Hour, 5<<20, zap.NewNop()),
		owner:   owner,
	}
}

func TestUploadService_RequestSlot(t *testing.T) {
	presigner := &servicestest.Presigner{}
	uploads := NewUploadService(presigner, servicestest.NewPosts(nil), time.Hour, 5<<20, zap.NewNop())
	ctx := context.Background()

	req := types.UploadRequest{Filename: "cat.PNG", ContentType: "image/png", Size: 1024}
	first, err := uploads.RequestSlot(ctx, 1, req)
	require.NoError(t, err)
	second, err := uploads.RequestSlot(ctx, 1, req)
	require.NoError(t, err)

	assert.NotEqual(t, first.Key, second.Key)
	assert.Regexp(t, `^posts/1/[0-9a-f-]{36}\.png$`, first.Key)
	assert.Equal(t, servicestest.PublicBase+first.Key, first.PublicURL)
	assert.Contains(t, first.UploadURL, first.Key)
	assert.Equal(t, "image/png", first.ContentType)
	assert.WithinDuration(t, time.Now().Add(time.Hour), first.ExpiresAt, time.Minute)
}

func TestUploadService_RequestSlotRejects(t *testing.T) {
	uploads := NewUploadService(&servicestest.Presigner{}, servicestest.NewPosts(nil), time.Hour, 5<<20, zap.NewNop())
	ctx := context.Background()

	cases := map[string]types.UploadRequest{
		"missing filename": {ContentType: "image/png"},
		"missing type":     {Filename: "a.png"},
		"not an image":     {Filename: "a.pdf", ContentType: "application/pdf"},
		"bad extension":    {Filename: "a.exe", ContentType: "image/png"},
		"too large":        {Filename: "a.png", ContentType: "image/png", Size: 5<<20 + 1},
		"negative size":    {Filename: "a.png", ContentType: "image/png", Size: -1},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := uploads.RequestSlot(ctx, 1, req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestUploadService_RequestSlotStorageFailure(t *testing.T) {
	uploads := NewUploadService(&servicestest.Presigner{Err: errBoom}, servicestest.NewPosts(nil), time.Hour, 0, zap.NewNop())
	_, err := uploads.RequestSlot(context.Background(), 1, types.UploadRequest{Filename: "a.jpg", ContentType: "image/jpeg"})
	assert.ErrorIs(t, err, ErrUpstreamStorage)
}

func TestUploadService_ConfirmCreatesPost(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	post, err := f.uploads.Confirm(ctx, f.owner.ID, types.PostDraft{
		ImageURL: servicestest.PublicBase + UserKeyPrefix(f.owner.ID) + "never-uploaded.png",
		Title:    " Sunset ",
		Caption:  "at the beach",
		Tags:     " sea, ,sun ,",
	})
	require.NoError(t, err)
	assert.Equal(t, f.owner.ID, post.UserID)
	assert.Equal(t, "Sunset", post.Title)
	assert.Equal(t, []string{"sea", "sun"}, post.Tags)
	assert.Equal(t, "owner", post.Username)
	assert.Equal(t, "Owner O", post.UserFullName)
	assert.Zero(t, post.Views)
	assert.Zero(t, post.Downloads)

	_, err = f.uploads.Confirm(ctx, f.owner.ID, types.PostDraft{})
	assert.ErrorIs(t, err, ErrValidation)

	external, err := f.uploads.Confirm(ctx, f.owner.ID, types.PostDraft{ImageURL: "https://images.example.com/a.png"})
	require.NoError(t, err)
	assert.Equal(t, "https://images.example.com/a.png", external.ImageURL)
}

func TestUploadService_ConfirmRejectsOtherUsersImage(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	victim, err := f.users.Create(ctx, types.User{Username: "victim", Email: "victim@example.com", PasswordHash: "x"})
	require.NoError(t, err)

	slot, err := f.uploads.RequestSlot(ctx, victim.ID, types.UploadRequest{Filename: "v.png", ContentType: "image/png"})
	require.NoError(t, err)
	_, err = f.uploads.Confirm(ctx, victim.ID, types.PostDraft{ImageURL: slot.PublicURL})
	require.NoError(t, err)

	_, err = f.uploads.Confirm(ctx, f.owner.ID, types.PostDraft{ImageURL: slot.PublicURL})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.uploads.Confirm(ctx, f.owner.ID, types.PostDraft{ImageURL: servicestest.PublicBase + "posts/unscoped.png"})
	assert.ErrorIs(t, err, ErrForbidden)

	traversal := servicestest.PublicBase + UserKeyPrefix(f.owner.ID) + "../" + strconv.Itoa(victim.ID) + "/v.png"
	_, err = f.uploads.Confirm(ctx, f.owner.ID, types.PostDraft{ImageURL: traversal})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDeleteKeepsImagesOutsideOwnerPrefix(t *testing.T) {
	users := servicestest.NewUsers()
	posts := servicestest.NewPosts(users)
	objects := &servicestest.Objects{}
	service := NewPostService(posts, users, NewDirectCleaner(objects, zap.NewNop()), zap.NewNop())
	ctx := context.Background()

	victim, err := users.Create(ctx, types.User{Username: "victim", Email: "victim@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	attacker, err := users.Create(ctx, types.User{Username: "attacker", Email: "attacker@example.com", PasswordHash: "x"})
	require.NoError(t, err)

	shared := servicestest.PublicBase + UserKeyPrefix(victim.ID) + "v.png"
	original := posts.Seed(types.Post{UserID: victim.ID, ImageURL: shared})
	copied := posts.Seed(types.Post{UserID: attacker.ID, ImageURL: shared})

	require.NoError(t, service.Delete(ctx, attacker.ID, copied.ID))
	assert.Empty(t, objects.Deleted())

	kept, err := service.Get(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, shared, kept.ImageURL)

	require.NoError(t, service.Delete(ctx, victim.ID, original.ID))
	assert.Equal(t, []string{UserKeyPrefix(victim.ID) + "v.png"}, objects.Deleted())
}

func TestPostService_Counters(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	post := f.posts.Seed(types.Post{UserID: f.owner.ID, ImageURL: "u", Views: 5})

	views, err := f.service.RecordView(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, views)
	views, err = f.service.RecordView(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, views)

	downloads, err := f.service.RecordDownload(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, downloads)

	_, err = f.service.RecordView(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostService_FeedAndProfile(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	other, err := f.users.Create(ctx, types.User{Username: "other", Email: "other@example.com", PasswordHash: "x"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.posts.Create(ctx, types.Post{UserID: f.owner.ID, ImageURL: "u"})
		require.NoError(t, err)
	}
	_, err = f.posts.Create(ctx, types.Post{UserID: other.ID, ImageURL: "u"})
	require.NoError(t, err)

	feed, total, err := f.service.Feed(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, feed, 4)
	assert.Equal(t, 4, feed[0].ID)

	mine, total, err := f.service.ListByUser(ctx, f.owner.ID, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, mine, 2)

	empty, total, err := f.service.ListByUser(ctx, other.ID, 10, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Empty(t, empty)

	_, _, err = f.service.ListByUser(ctx, 999, 0, 20)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostService_Delete(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	intruder, err := f.users.Create(ctx, types.User{Username: "intruder", Email: "i@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	post, err := f.posts.Create(ctx, types.Post{UserID: f.owner.ID, ImageURL: servicestest.PublicBase + "posts/a.png"})
	require.NoError(t, err)

	err = f.service.Delete(ctx, intruder.ID, post.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, f.cleaner.posts)

	f.cleaner.err = errBoom
	require.NoError(t, f.service.Delete(ctx, f.owner.ID, post.ID))
	require.Len(t, f.cleaner.posts, 1)
	assert.Equal(t, post.ID, f.cleaner.posts[0].ID)

	_, err = f.service.Get(ctx, post.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.service.Delete(ctx, f.owner.ID, post.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultPageLimit, clampLimit(0))
	assert.Equal(t, 7, clampLimit(7))
	assert.Equal(t, maxPageLimit, clampLimit(1000))
}

func TestDirectCleaner(t *testing.T) {
	objects := &servicestest.Objects{}
	cleaner := NewDirectCleaner(objects, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, cleaner.Cleanup(ctx, types.Post{ID: 1, UserID: 5, ImageURL: servicestest.PublicBase + "posts/5/a.png"}))
	require.NoError(t, cleaner.Cleanup(ctx, types.Post{ID: 2, UserID: 5, ImageURL: "https://elsewhere.test/a.png"}))
	require.NoError(t, cleaner.Cleanup(ctx, types.Post{ID: 3, UserID: 5}))
	require.NoError(t, cleaner.Cleanup(ctx, types.Post{ID: 4, UserID: 6, ImageURL: servicestest.PublicBase + "posts/5/a.png"}))
	assert.Equal(t, []string{"posts/5/a.png"}, objects.Deleted())

	objects.Err = errBoom
	assert.ErrorIs(t, cleaner.Cleanup(ctx, types.Post{ID: 5, UserID: 5, ImageURL: servicestest.PublicBase + "posts/5/b.png"}), errBoom)
}

func TestQueuedCleaner(t *testing.T) {
	queue := &fakeQueue{}
	cleaner := NewQueuedCleaner(&servicestest.Objects{}, queue, "cleanup", zap.NewNop())
	ctx := context.Background()

	require.NoError(t, cleaner.Cleanup(ctx, types.Post{ID: 9, UserID: 2, ImageURL: servicestest.PublicBase + "posts/2/c.png"}))
	require.NoError(t, cleaner.Cleanup(ctx, types.Post{ID: 10, UserID: 2, ImageURL: "https://elsewhere.test/c.png"}))
	assert.Equal(t, "cleanup", queue.channel)
	assert.Equal(t, []any{CleanupEvent{Key: "posts/2/c.png", PostID: 9}}, queue.events)

	queue.err = errBoom
	assert.ErrorIs(t, cleaner.Cleanup(ctx, types.Post{ID: 11, UserID: 2, ImageURL: servicestest.PublicBase + "posts/2/d.png"}), errBoom)
}

func TestCleanupWorker(t *testing.T) {
	objects := &servicestest.Objects{}
	queue := &fakeQueue{messages: []mq.Message{
		{ID: "1", Data: []byte(`{"key":"posts/a.png","post_id":1}`)},
		{ID: "2", Data: []byte(`not json`)},
		{ID: "3", Data: []byte(`{"post_id":3}`)},
	}}
	worker := NewCleanupWorker(queue, objects, "cleanup", zap.NewNop())

	require.NoError(t, worker.Run(context.Background()))
	assert.Equal(t, "cleanup", queue.channel)
	assert.Equal(t, []error{nil, nil, nil}, queue.results)
	assert.Equal(t, []string{"posts/a.png"}, objects.Deleted())

	objects.Err = errBoom
	err := worker.Handle(context.Background(), mq.Message{ID: "4", Data: []byte(`{"key":"posts/b.png"}`)})
	assert.ErrorIs(t, err, errBoom)
}
