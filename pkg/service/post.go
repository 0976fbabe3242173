package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/postbox-io/postbox/pkg/authz"
	"github.com/postbox-io/postbox/pkg/content"
	"github.com/postbox-io/postbox/pkg/observability"
	"github.com/postbox-io/postbox/pkg/storage/postgres"
)

// PostService orchestrates post mutations: permission checks against the
// authorization engine, existence re-checks, a single transaction per call,
// and ownership-tuple maintenance.
type PostService struct {
	deps
}

// NewPostService wires a post service.
func NewPostService(db postgres.TxRunner, gateway authz.Gateway, logger *observability.Logger, metrics *observability.Metrics) *PostService {
	return &PostService{deps{db: db, gateway: gateway, logger: logger, metrics: metrics}}
}

// Create inserts a new post and writes the creator's is_owner tuple. A tuple
// write failure rolls the row insert back.
func (s *PostService) Create(ctx context.Context, payload content.CreatePostPayload) (*content.Post, error) {
	start := time.Now()
	post, err := s.create(ctx, payload)
	s.observe("post", "create", start, err)
	if err != nil {
		s.log(ctx).WithError(err).Error("create post failed")
		return nil, content.NewOpError("create", "post", err)
	}
	return post, nil
}

func (s *PostService) create(ctx context.Context, payload content.CreatePostPayload) (*content.Post, error) {
	if payload.OwnerID == "" {
		return nil, content.NewValidationError("owner_id", "is required")
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	post := &content.Post{
		ID:          uuid.New(),
		TextContent: payload.TextContent,
		OwnerID:     payload.OwnerID,
		CreatedAt:   time.Now().UTC(),
	}

	err := s.db.WithinTx(ctx, func(uow *postgres.UnitOfWork) error {
		if err := requireActor(ctx, uow, payload.OwnerID); err != nil {
			return err
		}
		if _, err := uow.Posts.Create(ctx, post); err != nil {
			return err
		}
		return s.gateway.CreatePerms(ctx, []authz.Tuple{
			authz.OwnerTuple(payload.OwnerID, authz.ObjectPost, post.ID.String()),
		})
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// GetByID returns the post, or a not-found error.
func (s *PostService) GetByID(ctx context.Context, id uuid.UUID) (*content.Post, error) {
	var post *content.Post
	err := s.db.WithinTx(ctx, func(uow *postgres.UnitOfWork) error {
		var err error
		post, err = uow.Posts.GetByID(ctx, id)
		return err
	})
	if err != nil {
		s.log(ctx).WithError(err).Error("get post failed")
		return nil, content.NewOpError("get", "post", err)
	}
	if post == nil {
		return nil, content.NewOpError("get", "post", fmt.Errorf("post %s: %w", id, content.ErrNotFound))
	}
	return post, nil
}

// GetMulti lists posts. No per-row permission filtering happens here; the
// caller supplies the owner scope.
func (s *PostService) GetMulti(ctx context.Context, filter content.PostFilter) ([]*content.Post, *int64, error) {
	var (
		posts []*content.Post
		total *int64
	)
	err := s.db.WithinTx(ctx, func(uow *postgres.UnitOfWork) error {
		var err error
		posts, total, err = uow.Posts.GetMulti(ctx, filter)
		return err
	})
	if err != nil {
		s.log(ctx).WithError(err).Error("list posts failed")
		return nil, nil, content.NewOpError("list", "post", err)
	}
	return posts, total, nil
}

// Update overwrites the post's text after a can_update check. Ownership is
// sufficient but not necessary; an explicit granted tuple also passes.
func (s *PostService) Update(ctx context.Context, payload content.UpdatePostPayload) error {
	start := time.Now()
	err := s.update(ctx, payload)
	s.observe("post", "update", start, err)
	if err != nil {
		s.log(ctx).WithError(err).Error("update post failed")
		return content.NewOpError("update", "post", err)
	}
	return nil
}

func (s *PostService) update(ctx context.Context, payload content.UpdatePostPayload) error {
	if payload.OwnerID == "" {
		return content.NewValidationError("owner_id", "is required")
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	if err := authorize(ctx, s.gateway, payload.OwnerID, authz.RelationCanUpdate, authz.ObjectPost, payload.ID); err != nil {
		return err
	}

	now := time.Now().UTC()
	return s.db.WithinTx(ctx, func(uow *postgres.UnitOfWork) error {
		if err := requireActor(ctx, uow, payload.OwnerID); err != nil {
			return err
		}
		return uow.Posts.Update(ctx, &content.Post{
			ID:          uuid.MustParse(payload.ID),
			TextContent: payload.TextContent,
			UpdatedAt:   &now,
		})
	})
}

// Delete removes the post after a can_delete check, cascading over its
// comments first and cleaning up every ownership tuple involved.
func (s *PostService) Delete(ctx context.Context, payload content.DeletePostPayload) error {
	start := time.Now()
	err := s.delete(ctx, payload)
	s.observe("post", "delete", start, err)
	if err != nil {
		s.log(ctx).WithError(err).Error("delete post failed")
		return content.NewOpError("delete", "post", err)
	}
	return nil
}

func (s *PostService) delete(ctx context.Context, payload content.DeletePostPayload) error {
	if payload.OwnerID == "" {
		return content.NewValidationError("owner_id", "is required")
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	if err := authorize(ctx, s.gateway, payload.OwnerID, authz.RelationCanDelete, authz.ObjectPost, payload.ID); err != nil {
		return err
	}

	return s.db.WithinTx(ctx, func(uow *postgres.UnitOfWork) error {
		if err := requireActor(ctx, uow, payload.OwnerID); err != nil {
			return err
		}
		post, err := uow.Posts.GetByID(ctx, uuid.MustParse(payload.ID))
		if err != nil {
			return err
		}
		if post == nil {
			return fmt.Errorf("post %s: %w", payload.ID, content.ErrNotFound)
		}
		return deletePostTx(ctx, uow, s.gateway, s.deps, payload.OwnerID, post)
	})
}
