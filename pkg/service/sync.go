package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/postbox-io/postbox/pkg/authz"
	"github.com/postbox-io/postbox/pkg/content"
	"github.com/postbox-io/postbox/pkg/identity"
	"github.com/postbox-io/postbox/pkg/observability"
	"github.com/postbox-io/postbox/pkg/storage/postgres"
)

// ErrWebhookUnauthorized means the delivery's signature header was missing or
// did not match the body. Nothing past the signature gate ran.
var ErrWebhookUnauthorized = errors.New("unauthorized webhook")

// SyncService applies identity-provider webhook events to the local user
// projection. A delivery moves through authenticate (HMAC), parse, dedup,
// apply; it stops at the first failed gate.
type SyncService struct {
	deps
	secretFn func() []byte
	dedup    *EventDeduplicator
}

// NewSyncService wires the webhook sync pipeline. dedup may be nil, in which
// case redelivered events are re-applied.
func NewSyncService(db postgres.TxRunner, gateway authz.Gateway, secret []byte, dedup *EventDeduplicator, logger *observability.Logger, metrics *observability.Metrics) *SyncService {
	return &SyncService{
		deps:     deps{db: db, gateway: gateway, logger: logger, metrics: metrics},
		secretFn: func() []byte { return secret },
		dedup:    dedup,
	}
}

// UseSecretSource makes signature verification read the secret per delivery,
// so rotations picked up by the secrets watcher apply without a restart.
func (s *SyncService) UseSecretSource(fn func() []byte) {
	if fn != nil {
		s.secretFn = fn
	}
}

func (s *SyncService) observeWebhook(operation, result string) {
	if s.metrics != nil {
		s.metrics.WebhookEventsTotal.WithLabelValues(operation, result).Inc()
	}
}

// HandleDelivery processes one raw webhook delivery. The returned error is
// either ErrWebhookUnauthorized or an *OpError whose internal cause is logged
// here and never shown to the sender.
func (s *SyncService) HandleDelivery(ctx context.Context, body []byte, signature string) error {
	if !identity.VerifySignature(s.secretFn(), body, signature) {
		s.observeWebhook("unknown", "rejected")
		s.log(ctx).Warn("webhook delivery rejected: bad signature")
		return ErrWebhookUnauthorized
	}

	event, err := identity.ParseEvent(body)
	if err != nil {
		s.observeWebhook("unknown", "failed")
		s.log(ctx).WithError(err).Error("webhook event parse failed")
		return content.NewOpError("sync", "webhook", err)
	}
	if event == nil {
		// Unsupported operation type: acknowledged and dropped.
		s.observeWebhook("unknown", "ignored")
		return nil
	}

	operation := string(event.Operation)
	if s.dedup != nil {
		seen, err := s.dedup.Seen(ctx, body)
		if err != nil {
			s.observeWebhook(operation, "failed")
			s.log(ctx).WithError(err).Error("webhook dedup check failed")
			return content.NewOpError("sync", "webhook", err)
		}
		if seen {
			s.observeWebhook(operation, "duplicate")
			s.log(ctx).WithField("operation", operation).Info("webhook event already applied, skipping")
			return nil
		}
	}

	switch event.Operation {
	case identity.OperationCreate:
		err = s.applyCreate(ctx, event)
	case identity.OperationUpdate:
		err = s.applyUpdate(ctx, event)
	case identity.OperationDelete:
		err = s.applyDelete(ctx, event)
	}
	if err != nil {
		if s.dedup != nil {
			// Give the claim back so the provider's redelivery is applied
			// rather than skipped as a duplicate.
			if relErr := s.dedup.Release(ctx, body); relErr != nil {
				s.log(ctx).WithError(relErr).Error("webhook dedup release failed")
			}
		}
		s.observeWebhook(operation, "failed")
		s.log(ctx).WithError(err).WithFields(map[string]interface{}{
			"operation": operation,
			"realm":     event.RealmName,
		}).Error("webhook event apply failed")
		return content.NewOpError("sync", "webhook", err)
	}

	s.observeWebhook(operation, "applied")
	return nil
}

func (s *SyncService) applyCreate(ctx context.Context, event *identity.Event) error {
	if event.Resource.ID == "" {
		return fmt.Errorf("event has no user id")
	}
	if event.Resource.Username == "" {
		return fmt.Errorf("event has no username")
	}
	id, err := uuid.Parse(event.Resource.ID)
	if err != nil {
		return fmt.Errorf("event user id is not a UUID: %w", err)
	}

	createdAt := event.ActionAt
	if event.Resource.CreatedAt != nil {
		createdAt = *event.Resource.CreatedAt
	}
	isActive := true
	if event.Resource.Enabled != nil {
		isActive = *event.Resource.Enabled
	}

	user := &content.User{
		ID:       id,
		Username: event.Resource.Username,
		Metadata: map[string]interface{}{
			content.MetadataFullnameKey: event.Resource.FullName(),
		},
		IsActive:  isActive,
		CreatedAt: createdAt,
	}

	return s.db.WithinTx(ctx, func(uow *postgres.UnitOfWork) error {
		if _, err := uow.Users.Create(ctx, user); err != nil {
			return err
		}
		return s.gateway.CreatePerms(ctx, []authz.Tuple{
			authz.OwnerTuple(id.String(), authz.ObjectUser, id.String()),
		})
	})
}

func (s *SyncService) applyUpdate(ctx context.Context, event *identity.Event) error {
	if event.Resource.ID == "" {
		return fmt.Errorf("event has no user id")
	}
	id, err := uuid.Parse(event.Resource.ID)
	if err != nil {
		return fmt.Errorf("event user id is not a UUID: %w", err)
	}

	updatedAt := event.ActionAt
	return s.db.WithinTx(ctx, func(uow *postgres.UnitOfWork) error {
		user, err := uow.Users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user %s: %w", id, content.ErrNotFound)
		}
		if user.Metadata == nil {
			user.Metadata = map[string]interface{}{}
		}
		user.Metadata[content.MetadataFullnameKey] = event.Resource.FullName()
		if event.Resource.Username != "" {
			user.Username = event.Resource.Username
		}
		if event.Resource.Enabled != nil {
			user.IsActive = *event.Resource.Enabled
		}
		user.UpdatedAt = &updatedAt
		return uow.Users.Update(ctx, user)
	})
}

// applyDelete cascades exactly like an explicit user delete, minus the
// permission gate: the provider already decided the user is gone.
func (s *SyncService) applyDelete(ctx context.Context, event *identity.Event) error {
	if event.Resource.ID == "" {
		return fmt.Errorf("event has no user id")
	}
	id, err := uuid.Parse(event.Resource.ID)
	if err != nil {
		return fmt.Errorf("event user id is not a UUID: %w", err)
	}

	return s.db.WithinTx(ctx, func(uow *postgres.UnitOfWork) error {
		user, err := uow.Users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if user == nil {
			// Already gone locally; deletes are idempotent from the
			// provider's point of view.
			return nil
		}
		return deleteUserTx(ctx, uow, s.gateway, s.deps, "", id)
	})
}
