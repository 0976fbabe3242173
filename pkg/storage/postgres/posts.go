package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/postbox-io/postbox/pkg/content"
)

// PostRepository performs post CRUD and filtered listing against the
// transaction (or pool) it is bound to.
type PostRepository struct {
	q querier
}

var postSortColumns = map[string]string{
	content.SortFieldCreatedAt: "created_at",
	content.SortFieldUpdatedAt: "updated_at",
}

// Create inserts the post and returns its id.
func (r *PostRepository) Create(ctx context.Context, post *content.Post) (uuid.UUID, error) {
	query := `
		INSERT INTO posts (id, text_content, owner_id, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var id uuid.UUID
	err := r.q.QueryRowContext(ctx, query,
		post.ID,
		post.TextContent,
		post.OwnerID,
		post.CreatedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert post: %w", err)
	}
	return id, nil
}

// GetByID fetches one post, or nil when absent.
func (r *PostRepository) GetByID(ctx context.Context, id uuid.UUID) (*content.Post, error) {
	query := `
		SELECT id, text_content, owner_id, created_at, updated_at
		FROM posts
		WHERE id = $1
	`

	var post content.Post
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&post.ID,
		&post.TextContent,
		&post.OwnerID,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select post: %w", err)
	}
	return &post, nil
}

// GetMulti lists posts matching the filter. The returned count is non-nil
// only when the filter enabled counting.
func (r *PostRepository) GetMulti(ctx context.Context, filter content.PostFilter) ([]*content.Post, *int64, error) {
	filter.Normalize()

	var (
		conditions []string
		args       []interface{}
	)
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if from, to, ok := filter.DateRange(); ok {
		args = append(args, from)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
		args = append(args, to)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total *int64
	if filter.EnableCount {
		var count int64
		countQuery := "SELECT COUNT(id) FROM posts" + where
		if err := r.q.QueryRowContext(ctx, countQuery, args...).Scan(&count); err != nil {
			return nil, nil, fmt.Errorf("count posts: %w", err)
		}
		total = &count
	}

	// Sort column and order come from the normalized whitelist, never from
	// raw input.
	query := fmt.Sprintf(
		"SELECT id, text_content, owner_id, created_at, updated_at FROM posts%s ORDER BY %s %s",
		where,
		postSortColumns[filter.SortField],
		filter.SortOrder,
	)
	if !filter.Unpaginated {
		query += fmt.Sprintf(" OFFSET $%d LIMIT $%d", len(args)+1, len(args)+2)
		args = append(args, filter.Offset, filter.Limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("select posts: %w", err)
	}
	defer rows.Close()

	var posts []*content.Post
	for rows.Next() {
		var post content.Post
		if err := rows.Scan(
			&post.ID,
			&post.TextContent,
			&post.OwnerID,
			&post.CreatedAt,
			&post.UpdatedAt,
		); err != nil {
			return nil, nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, &post)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, total, nil
}

// Update overwrites the post's text content and updated_at.
func (r *PostRepository) Update(ctx context.Context, post *content.Post) error {
	query := `
		UPDATE posts
		SET text_content = $2, updated_at = $3
		WHERE id = $1
	`

	if _, err := r.q.ExecContext(ctx, query,
		post.ID,
		post.TextContent,
		post.UpdatedAt,
	); err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return nil
}

// Delete removes the post row.
func (r *PostRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}
