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

// CommentService orchestrates comment mutations with the same skeleton as
// posts, plus a parent-post existence check on create.
type CommentService struct {
	deps
}

// NewCommentService wires a comment service.
func NewCommentService(db postgres.TxRunner, gateway authz.Gateway, logger *observability.Logger, metrics *observability.Metrics) *CommentService {
	return &CommentService{deps{db: db, gateway: gateway, logger: logger, metrics: metrics}}
}

// Create inserts a comment under an existing post and writes the creator's
// is_owner tuple.
func (s *CommentService) Create(ctx context.Context, payload content.CreateCommentPayload) (*content.Comment, error) {
	start := time.Now()
	comment, err := s.create(ctx, payload)
	s.observe("comment", "create", start, err)
	if err != nil {
		s.log(ctx).WithError(err).Error("create comment failed")
		return nil, content.NewOpError("create", "comment", err)
	}
	return comment, nil
}

func (s *CommentService) create(ctx context.Context, payload content.CreateCommentPayload) (*content.Comment, error) {
	if payload.OwnerID == "" {
		return nil, content.NewValidationError("owner_id", "is required")
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	comment := &content.Comment{
		ID:          uuid.New(),
		TextContent: payload.TextContent,
		PostID:      payload.PostID,
		OwnerID:     payload.OwnerID,
		CreatedAt:   time.Now().UTC(),
	}

	err := s.db.WithinTx(ctx, func(uow *postgres.UnitOfWork) error {
		if err := requireActor(ctx, uow, payload.OwnerID); err != nil {
			return err
		}
		post, err := uow.Posts.GetByID(ctx, uuid.MustParse(payload.PostID))
		if err != nil {
			return err
		}
		if post == nil {
			return fmt.Errorf("post %s: %w", payload.PostID, content.ErrNotFound)
		}
		if _, err := uow.Comments.Create(ctx, comment); err != nil {
			return err
		}
		return s.gateway.CreatePerms(ctx, []authz.Tuple{
			authz.OwnerTuple(payload.OwnerID, authz.ObjectComment, comment.ID.String()),
		})
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// GetByID returns the comment, or a not-found error.
func (s *CommentService) GetByID(ctx context.Context, id uuid.UUID) (*content.Comment, error) {
	var comment *content.Comment
	err := s.db.WithinTx(ctx, func(uow *postgres.UnitOfWork) error {
		var err error
		comment, err = uow.Comments.GetByID(ctx, id)
		return err
	})
	if err != nil {
		s.log(ctx).WithError(err).Error("get comment failed")
		return nil, content.NewOpError("get", "comment", err)
	}
	if comment == nil {
		return nil, content.NewOpError("get", "comment", fmt.Errorf("comment %s: %w", id, content.ErrNotFound))
	}
	return comment, nil
}

// GetMulti lists comments scoped by post and/or owner.
func (s *CommentService) GetMulti(ctx context.Context, filter content.CommentFilter) ([]*content.Comment, *int64, error) {
	var (
		comments []*content.Comment
		total    *int64
	)
	err := s.db.WithinTx(ctx, func(uow *postgres.UnitOfWork) error {
		var err error
		comments, total, err = uow.Comments.GetMulti(ctx, filter)
		return err
	})
	if err != nil {
		s.log(ctx).WithError(err).Error("list comments failed")
		return nil, nil, content.NewOpError("list", "comment", err)
	}
	return comments, total, nil
}

// Update overwrites the comment's text after a can_update check.
func (s *CommentService) Update(ctx context.Context, payload content.UpdateCommentPayload) error {
	start := time.Now()
	err := s.update(ctx, payload)
	s.observe("comment", "update", start, err)
	if err != nil {
		s.log(ctx).WithError(err).Error("update comment failed")
		return content.NewOpError("update", "comment", err)
	}
	return nil
}

func (s *CommentService) update(ctx context.Context, payload content.UpdateCommentPayload) error {
	if payload.OwnerID == "" {
		return content.NewValidationError("owner_id", "is required")
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	if err := authorize(ctx, s.gateway, payload.OwnerID, authz.RelationCanUpdate, authz.ObjectComment, payload.ID); err != nil {
		return err
	}

	now := time.Now().UTC()
	return s.db.WithinTx(ctx, func(uow *postgres.UnitOfWork) error {
		if err := requireActor(ctx, uow, payload.OwnerID); err != nil {
			return err
		}
		return uow.Comments.Update(ctx, &content.Comment{
			ID:          uuid.MustParse(payload.ID),
			TextContent: payload.TextContent,
			UpdatedAt:   &now,
		})
	})
}

// Delete removes one comment after a can_delete check and cleans up its
// ownership tuple.
func (s *CommentService) Delete(ctx context.Context, payload content.DeleteCommentPayload) error {
	start := time.Now()
	err := s.delete(ctx, payload)
	s.observe("comment", "delete", start, err)
	if err != nil {
		s.log(ctx).WithError(err).Error("delete comment failed")
		return content.NewOpError("delete", "comment", err)
	}
	return nil
}

func (s *CommentService) delete(ctx context.Context, payload content.DeleteCommentPayload) error {
	if payload.OwnerID == "" {
		return content.NewValidationError("owner_id", "is required")
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	if err := authorize(ctx, s.gateway, payload.OwnerID, authz.RelationCanDelete, authz.ObjectComment, payload.ID); err != nil {
		return err
	}

	return s.db.WithinTx(ctx, func(uow *postgres.UnitOfWork) error {
		if err := requireActor(ctx, uow, payload.OwnerID); err != nil {
			return err
		}
		comment, err := uow.Comments.GetByID(ctx, uuid.MustParse(payload.ID))
		if err != nil {
			return err
		}
		if comment == nil {
			return fmt.Errorf("comment %s: %w", payload.ID, content.ErrNotFound)
		}
		if err := uow.Comments.Delete(ctx, comment.ID); err != nil {
			return err
		}
		return s.gateway.DeletePerms(ctx, []authz.Tuple{
			authz.OwnerTuple(comment.OwnerID, authz.ObjectComment, comment.ID.String()),
		})
	})
}
