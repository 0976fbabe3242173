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

// CommentRepository performs comment CRUD and filtered listing against the
// transaction (or pool) it is bound to.
type CommentRepository struct {
	q querier
}

var commentSortColumns = map[string]string{
	content.SortFieldCreatedAt: "created_at",
	content.SortFieldUpdatedAt: "updated_at",
}

// Create inserts the comment and returns its id.
func (r *CommentRepository) Create(ctx context.Context, comment *content.Comment) (uuid.UUID, error) {
	query := `
		INSERT INTO comments (id, text_content, post_id, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id uuid.UUID
	err := r.q.QueryRowContext(ctx, query,
		comment.ID,
		comment.TextContent,
		comment.PostID,
		comment.OwnerID,
		comment.CreatedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert comment: %w", err)
	}
	return id, nil
}

// GetByID fetches one comment, or nil when absent.
func (r *CommentRepository) GetByID(ctx context.Context, id uuid.UUID) (*content.Comment, error) {
	query := `
		SELECT id, text_content, post_id, owner_id, created_at, updated_at
		FROM comments
		WHERE id = $1
	`

	var comment content.Comment
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&comment.ID,
		&comment.TextContent,
		&comment.PostID,
		&comment.OwnerID,
		&comment.CreatedAt,
		&comment.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select comment: %w", err)
	}
	return &comment, nil
}

// GetMulti lists comments matching the filter. The returned count is non-nil
// only when the filter enabled counting.
func (r *CommentRepository) GetMulti(ctx context.Context, filter content.CommentFilter) ([]*content.Comment, *int64, error) {
	filter.Normalize()

	var (
		conditions []string
		args       []interface{}
	)
	if filter.PostID != "" {
		args = append(args, filter.PostID)
		conditions = append(conditions, fmt.Sprintf("post_id = $%d", len(args)))
	}
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
		countQuery := "SELECT COUNT(id) FROM comments" + where
		if err := r.q.QueryRowContext(ctx, countQuery, args...).Scan(&count); err != nil {
			return nil, nil, fmt.Errorf("count comments: %w", err)
		}
		total = &count
	}

	query := fmt.Sprintf(
		"SELECT id, text_content, post_id, owner_id, created_at, updated_at FROM comments%s ORDER BY %s %s",
		where,
		commentSortColumns[filter.SortField],
		filter.SortOrder,
	)
	if !filter.Unpaginated {
		query += fmt.Sprintf(" OFFSET $%d LIMIT $%d", len(args)+1, len(args)+2)
		args = append(args, filter.Offset, filter.Limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("select comments: %w", err)
	}
	defer rows.Close()

	var comments []*content.Comment
	for rows.Next() {
		var comment content.Comment
		if err := rows.Scan(
			&comment.ID,
			&comment.TextContent,
			&comment.PostID,
			&comment.OwnerID,
			&comment.CreatedAt,
			&comment.UpdatedAt,
		); err != nil {
			return nil, nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, &comment)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, total, nil
}

// Update overwrites the comment's text content and updated_at.
func (r *CommentRepository) Update(ctx context.Context, comment *content.Comment) error {
	query := `
		UPDATE comments
		SET text_content = $2, updated_at = $3
		WHERE id = $1
	`

	if _, err := r.q.ExecContext(ctx, query,
		comment.ID,
		comment.TextContent,
		comment.UpdatedAt,
	); err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	return nil
}

// Delete removes the comment row.
func (r *CommentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}
