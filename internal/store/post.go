package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/gallery-app/apiserver/types"
)

const postSelect = `
	SELECT p.id, p.user_id, p.image_url, p.title, p.caption, p.tags, p.views, p.downloads,
	       p.created_at, p.updated_at, COALESCE(u.username, ''), COALESCE(u.full_name, '')
	FROM posts p
	LEFT JOIN users u ON u.id = p.user_id`

// PostRepository handles persistence for posts.
type PostRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) *PostRepository {
	return &PostRepository{db: db}
}

func (r *PostRepository) List(ctx context.Context, offset, limit int) ([]types.Post, int, error) {
	offset, limit = clampPage(offset, limit)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM posts`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := postSelect + `
		ORDER BY p.created_at DESC, p.id DESC
		OFFSET $1 LIMIT $2`
	posts, err := r.queryPosts(ctx, limit, query, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (r *PostRepository) ListByUser(ctx context.Context, userID, offset, limit int) ([]types.Post, int, error) {
	offset, limit = clampPage(offset, limit)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM posts WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := postSelect + `
		WHERE p.user_id = $1
		ORDER BY p.created_at DESC, p.id DESC
		OFFSET $2 LIMIT $3`
	posts, err := r.queryPosts(ctx, limit, query, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (r *PostRepository) Get(ctx context.Context, id int) (types.Post, error) {
	row := r.db.QueryRowContext(ctx, postSelect+` WHERE p.id = $1`, id)
	post, err := scanPost(row)
	if err != nil {
		return types.Post{}, translateError(err)
	}
	return post, nil
}

func (r *PostRepository) Create(ctx context.Context, post types.Post) (types.Post, error) {
	now := time.Now()
	post.CreatedAt = now
	post.UpdatedAt = now

	const query = `
		INSERT INTO posts (user_id, image_url, title, caption, tags, views, downloads, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		post.UserID,
		post.ImageURL,
		nullString(post.Title),
		nullString(post.Caption),
		nullString(post.RawTags),
		post.CreatedAt,
		post.UpdatedAt,
	).Scan(&post.ID); err != nil {
		return types.Post{}, translateError(err)
	}

	post.Views = 0
	post.Downloads = 0
	post.Tags = types.NormalizeTags(post.RawTags)
	return post, nil
}

func (r *PostRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM posts WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementViews atomically bumps the view counter and returns the new value.
func (r *PostRepository) IncrementViews(ctx context.Context, id int) (int, error) {
	const query = `UPDATE posts SET views = views + 1 WHERE id = $1 RETURNING views`
	var views int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&views); err != nil {
		return 0, translateError(err)
	}
	return views, nil
}

// IncrementDownloads atomically bumps the download counter and returns the new value.
func (r *PostRepository) IncrementDownloads(ctx context.Context, id int) (int, error) {
	const query = `UPDATE posts SET downloads = downloads + 1 WHERE id = $1 RETURNING downloads`
	var downloads int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&downloads); err != nil {
		return 0, translateError(err)
	}
	return downloads, nil
}

func (r *PostRepository) queryPosts(ctx context.Context, capacity int, query string, args ...any) ([]types.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := make([]types.Post, 0, capacity)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (types.Post, error) {
	var post types.Post
	var title, caption, tags sql.NullString
	if err := row.Scan(
		&post.ID,
		&post.UserID,
		&post.ImageURL,
		&title,
		&caption,
		&tags,
		&post.Views,
		&post.Downloads,
		&post.CreatedAt,
		&post.UpdatedAt,
		&post.Username,
		&post.UserFullName,
	); err != nil {
		return types.Post{}, err
	}
	post.Title = title.String
	post.Caption = caption.String
	post.RawTags = tags.String
	post.Tags = types.NormalizeTags(post.RawTags)
	return post, nil
}

func clampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}
	return offset, limit
}
