// Package servicestest provides in-memory repositories and storage doubles
// for exercising the services without Postgres or an object store.
package servicestest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gallery-app/apiserver/internal/store"
	"github.com/gallery-app/apiserver/types"
)

// Users is an in-memory UserRepository. Username, email (case-insensitive)
// and google id are unique.
type Users struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func NewUsers() *Users {
	return &Users{users: map[int]types.User{}}
}

func (m *Users) find(match func(types.User) bool) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *Users) GetByID(_ context.Context, id int) (types.User, error) {
	return m.find(func(u types.User) bool { return u.ID == id })
}

func (m *Users) GetByUsername(_ context.Context, username string) (types.User, error) {
	return m.find(func(u types.User) bool { return u.Username == username })
}

func (m *Users) GetByEmail(_ context.Context, email string) (types.User, error) {
	return m.find(func(u types.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *Users) GetByGoogleID(_ context.Context, googleID string) (types.User, error) {
	return m.find(func(u types.User) bool { return u.GoogleID != "" && u.GoogleID == googleID })
}

func (m *Users) conflicts(user types.User) bool {
	for _, u := range m.users {
		if u.ID == user.ID {
			continue
		}
		if u.Username == user.Username || strings.EqualFold(u.Email, user.Email) {
			return true
		}
		if user.GoogleID != "" && u.GoogleID == user.GoogleID {
			return true
		}
	}
	return false
}

func (m *Users) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts(user) {
		return types.User{}, store.ErrConflict
	}
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return user, nil
}

func (m *Users) Update(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	if m.conflicts(user) {
		return types.User{}, store.ErrConflict
	}
	user.UpdatedAt = time.Now()
	m.users[user.ID] = user
	return user, nil
}

// Posts is an in-memory PostRepository. Reads join the owner's username and
// full name from Users when one is attached.
type Posts struct {
	mu     sync.Mutex
	nextID int
	posts  map[int]types.Post
	users  *Users
}

func NewPosts(users *Users) *Posts {
	return &Posts{posts: map[int]types.Post{}, users: users}
}

func (m *Posts) withAuthor(post types.Post) types.Post {
	post.Tags = types.NormalizeTags(post.RawTags)
	if m.users != nil {
		if u, err := m.users.GetByID(context.Background(), post.UserID); err == nil {
			post.Username = u.Username
			post.UserFullName = u.FullName
		}
	}
	return post
}

func (m *Posts) page(match func(types.Post) bool, offset, limit int) ([]types.Post, int) {
	m.mu.Lock()
	var matched []types.Post
	for _, p := range m.posts {
		if match(p) {
			matched = append(matched, p)
		}
	}
	m.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	out := []types.Post{}
	if offset >= total {
		return out, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	for _, p := range matched[offset:end] {
		out = append(out, m.withAuthor(p))
	}
	return out, total
}

func (m *Posts) List(_ context.Context, offset, limit int) ([]types.Post, int, error) {
	posts, total := m.page(func(types.Post) bool { return true }, offset, limit)
	return posts, total, nil
}

func (m *Posts) ListByUser(_ context.Context, userID, offset, limit int) ([]types.Post, int, error) {
	posts, total := m.page(func(p types.Post) bool { return p.UserID == userID }, offset, limit)
	return posts, total, nil
}

func (m *Posts) Get(_ context.Context, id int) (types.Post, error) {
	m.mu.Lock()
	post, ok := m.posts[id]
	m.mu.Unlock()
	if !ok {
		return types.Post{}, store.ErrNotFound
	}
	return m.withAuthor(post), nil
}

// Create stores post with fresh counters.
func (m *Posts) Create(ctx context.Context, post types.Post) (types.Post, error) {
	post.Views = 0
	post.Downloads = 0
	return m.Seed(post), nil
}

// Seed stores post as given, counters included, and assigns its id.
func (m *Posts) Seed(post types.Post) types.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	post.ID = m.nextID
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	post.UpdatedAt = post.CreatedAt
	post.Tags = types.NormalizeTags(post.RawTags)
	m.posts[post.ID] = post
	return post
}

func (m *Posts) Delete(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.posts, id)
	return nil
}

func (m *Posts) bump(id int, apply func(*types.Post) int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	n := apply(&post)
	m.posts[id] = post
	return n, nil
}

func (m *Posts) IncrementViews(_ context.Context, id int) (int, error) {
	return m.bump(id, func(p *types.Post) int { p.Views++; return p.Views })
}

func (m *Posts) IncrementDownloads(_ context.Context, id int) (int, error) {
	return m.bump(id, func(p *types.Post) int { p.Downloads++; return p.Downloads })
}
