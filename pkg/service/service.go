// Package service implements the orchestration layer: permission-gated
// mutations over the content entities, cascade deletes, and the identity
// webhook sync pipeline. Every mutating call follows the same skeleton:
// validate payload, authorize, open one unit of work, re-check the acting
// user exists, mutate, maintain permission tuples.
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

// deps are the collaborators every orchestration service shares.
type deps struct {
	db      postgres.TxRunner
	gateway authz.Gateway
	logger  *observability.Logger
	metrics *observability.Metrics
}

// log returns the service logger annotated with the request-scoped ids.
func (d deps) log(ctx context.Context) *observability.Logger {
	logger := d.logger
	if logger == nil {
		return observability.FromContext(ctx)
	}
	if requestID := observability.GetRequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}
	if subjectID := observability.GetSubjectID(ctx); subjectID != "" {
		logger = logger.WithField("subject_id", subjectID)
	}
	return logger
}

func (d deps) observe(entity, operation string, start time.Time, err error) {
	if d.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	d.metrics.ServiceOperationsTotal.WithLabelValues(entity, operation, status).Inc()
	d.metrics.ServiceOperationDuration.WithLabelValues(entity, operation).Observe(time.Since(start).Seconds())
}

// requireActor re-checks inside the transaction that the acting subject still
// exists as a local user. Stale or forged ids fail here, before any mutation.
func requireActor(ctx context.Context, uow *postgres.UnitOfWork, actorID string) error {
	id, err := uuid.Parse(actorID)
	if err != nil {
		return &content.ValidationError{Field: "owner_id", Reason: "must be a UUID"}
	}
	actor, err := uow.Users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if actor == nil {
		return fmt.Errorf("user %s: %w", actorID, content.ErrNotFound)
	}
	return nil
}

// authorize runs one pre-transaction permission check. A denied check maps to
// ErrUnauthorized; an engine failure keeps its typed gateway error so the
// caller can tell "not permitted" apart from "engine unavailable".
func authorize(ctx context.Context, gateway authz.Gateway, subjectID string, relation authz.Relation, typ authz.ObjectType, objectID string) error {
	allowed, err := gateway.CheckSinglePerm(ctx, authz.Tuple{
		Subject:  authz.ObjectRef(authz.ObjectUser, subjectID),
		Relation: relation,
		Object:   authz.ObjectRef(typ, objectID),
	})
	if err != nil {
		return err
	}
	if !allowed {
		return content.ErrUnauthorized
	}
	return nil
}

// deleteCommentTx removes one comment row plus its ownership tuple. When
// actorID is non-empty the delete re-validates can_delete first, exactly as a
// standalone comment delete would; provider-driven cascades pass an empty
// actor and skip the gate.
func deleteCommentTx(ctx context.Context, uow *postgres.UnitOfWork, gateway authz.Gateway, actorID string, comment *content.Comment) error {
	if actorID != "" {
		if err := authorize(ctx, gateway, actorID, authz.RelationCanDelete, authz.ObjectComment, comment.ID.String()); err != nil {
			return err
		}
	}
	if err := uow.Comments.Delete(ctx, comment.ID); err != nil {
		return err
	}
	return gateway.DeletePerms(ctx, []authz.Tuple{
		authz.OwnerTuple(comment.OwnerID, authz.ObjectComment, comment.ID.String()),
	})
}

// deletePostTx removes a post, its comments first, and every ownership tuple
// involved. Any single failure aborts the whole cascade.
func deletePostTx(ctx context.Context, uow *postgres.UnitOfWork, gateway authz.Gateway, d deps, actorID string, post *content.Post) error {
	comments, _, err := uow.Comments.GetMulti(ctx, content.CommentFilter{
		ListFilter: content.ListFilter{Unpaginated: true},
		PostID:     post.ID.String(),
	})
	if err != nil {
		return err
	}
	for _, comment := range comments {
		if err := deleteCommentTx(ctx, uow, gateway, actorID, comment); err != nil {
			return err
		}
	}
	if d.metrics != nil && len(comments) > 0 {
		d.metrics.CascadeDeletedRows.WithLabelValues("comment").Add(float64(len(comments)))
	}

	if err := uow.Posts.Delete(ctx, post.ID); err != nil {
		return err
	}
	return gateway.DeletePerms(ctx, []authz.Tuple{
		authz.OwnerTuple(post.OwnerID, authz.ObjectPost, post.ID.String()),
	})
}

// deleteUserTx removes a user and everything they own: their comments, then
// each owned post with its remaining comments, then the user row and the
// user's self-ownership tuple.
func deleteUserTx(ctx context.Context, uow *postgres.UnitOfWork, gateway authz.Gateway, d deps, actorID string, userID uuid.UUID) error {
	ownerID := userID.String()

	comments, _, err := uow.Comments.GetMulti(ctx, content.CommentFilter{
		ListFilter: content.ListFilter{Unpaginated: true},
		OwnerID:    ownerID,
	})
	if err != nil {
		return err
	}
	for _, comment := range comments {
		if err := deleteCommentTx(ctx, uow, gateway, actorID, comment); err != nil {
			return err
		}
	}
	if d.metrics != nil && len(comments) > 0 {
		d.metrics.CascadeDeletedRows.WithLabelValues("comment").Add(float64(len(comments)))
	}

	posts, _, err := uow.Posts.GetMulti(ctx, content.PostFilter{
		ListFilter: content.ListFilter{Unpaginated: true},
		OwnerID:    ownerID,
	})
	if err != nil {
		return err
	}
	for _, post := range posts {
		if actorID != "" {
			if err := authorize(ctx, gateway, actorID, authz.RelationCanDelete, authz.ObjectPost, post.ID.String()); err != nil {
				return err
			}
		}
		if err := deletePostTx(ctx, uow, gateway, d, actorID, post); err != nil {
			return err
		}
	}
	if d.metrics != nil && len(posts) > 0 {
		d.metrics.CascadeDeletedRows.WithLabelValues("post").Add(float64(len(posts)))
	}

	if err := uow.Users.Delete(ctx, userID); err != nil {
		return err
	}
	return gateway.DeletePerms(ctx, []authz.Tuple{
		authz.OwnerTuple(ownerID, authz.ObjectUser, ownerID),
	})
}
