package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkearny/contrabot/internal/contracts"
)

// PostRepository persists fetched posts and their filter verdicts.
type PostRepository struct {
	pool *pgxpool.Pool
}

// NewPostRepository creates a post repository.
func NewPostRepository(pool *pgxpool.Pool) *PostRepository {
	return &PostRepository{pool: pool}
}

// SavePost records a post with its filter verdict. Re-saving the same post
// id is a no-op so re-polled listings never duplicate work.
func (r *PostRepository) SavePost(ctx context.Context, post *contracts.Post, passed bool, reason string) error {
	query := `
		INSERT INTO posts (
			id, subreddit, title, body, url, author, author_karma,
			upvotes, is_self, filter_pass, filter_reason, posted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		post.ID, post.Subreddit, post.Title, post.Body, post.URL, post.Author,
		post.AuthorKarma, post.Upvotes, post.IsSelf, passed, reason, post.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save post: %w", err)
	}

	return nil
}

// Seen reports whether a post id has already been processed.
func (r *PostRepository) Seen(ctx context.Context, postID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)`, postID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check post: %w", err)
	}
	return exists, nil
}
