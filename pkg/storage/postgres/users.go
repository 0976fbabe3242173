package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/postbox-io/postbox/pkg/content"
)

// UserRepository performs user CRUD against the transaction (or pool) it is
// bound to. A get miss returns nil, not an error; update/delete write
// unconditionally; existence checks are the orchestration layer's job.
type UserRepository struct {
	q querier
}

// Create inserts the user and returns its id.
func (r *UserRepository) Create(ctx context.Context, user *content.User) (uuid.UUID, error) {
	metadata, err := marshalMetadata(user.Metadata)
	if err != nil {
		return uuid.Nil, err
	}

	query := `
		INSERT INTO users (id, username, metadata, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id uuid.UUID
	err = r.q.QueryRowContext(ctx, query,
		user.ID,
		user.Username,
		metadata,
		user.IsActive,
		user.CreatedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

// GetByID fetches one user, or nil when absent.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*content.User, error) {
	query := `
		SELECT id, username, metadata, is_active, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var (
		user     content.User
		metadata []byte
	)
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&metadata,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &user.Metadata); err != nil {
			return nil, fmt.Errorf("decode user metadata: %w", err)
		}
	}
	return &user, nil
}

// Update overwrites the mutable columns of the user row.
func (r *UserRepository) Update(ctx context.Context, user *content.User) error {
	metadata, err := marshalMetadata(user.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE users
		SET username = $2, metadata = $3, is_active = $4, updated_at = $5
		WHERE id = $1
	`

	if _, err := r.q.ExecContext(ctx, query,
		user.ID,
		user.Username,
		metadata,
		user.IsActive,
		user.UpdatedAt,
	); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// Delete removes the user row.
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func marshalMetadata(metadata map[string]interface{}) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode user metadata: %w", err)
	}
	return data, nil
}
