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

// UserService orchestrates the local user projection: provisioning, gated
// reads, metadata updates, and full deletes that cascade across everything
// the user owns.
type UserService struct {
	deps
}

// NewUserService wires a user service.
func NewUserService(db postgres.TxRunner, gateway authz.Gateway, logger *observability.Logger, metrics *observability.Metrics) *UserService {
	return &UserService{deps{db: db, gateway: gateway, logger: logger, metrics: metrics}}
}

// Create provisions a user and writes their self-ownership tuple. The
// identity sync path supplies the provider's subject id; direct provisioning
// generates one.
func (s *UserService) Create(ctx context.Context, payload content.CreateUserPayload) (*content.User, error) {
	start := time.Now()
	user, err := s.create(ctx, payload)
	s.observe("user", "create", start, err)
	if err != nil {
		s.log(ctx).WithError(err).Error("create user failed")
		return nil, content.NewOpError("create", "user", err)
	}
	return user, nil
}

func (s *UserService) create(ctx context.Context, payload content.CreateUserPayload) (*content.User, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	if payload.ID != "" {
		id = uuid.MustParse(payload.ID)
	}
	createdAt := time.Now().UTC()
	if payload.CreatedAt != nil {
		createdAt = payload.CreatedAt.UTC()
	}

	user := &content.User{
		ID:        id,
		Username:  payload.Username,
		Metadata:  payload.Metadata,
		IsActive:  true,
		CreatedAt: createdAt,
	}

	err := s.db.WithinTx(ctx, func(uow *postgres.UnitOfWork) error {
		if _, err := uow.Users.Create(ctx, user); err != nil {
			return err
		}
		return s.gateway.CreatePerms(ctx, []authz.Tuple{
			authz.OwnerTuple(user.ID.String(), authz.ObjectUser, user.ID.String()),
		})
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByID returns the user after a can_get_detail check on the requested id.
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*content.User, error) {
	user, err := s.getByID(ctx, id)
	if err != nil {
		s.log(ctx).WithError(err).Error("get user failed")
		return nil, content.NewOpError("get", "user", err)
	}
	return user, nil
}

func (s *UserService) getByID(ctx context.Context, id uuid.UUID) (*content.User, error) {
	if err := authorize(ctx, s.gateway, id.String(), authz.RelationCanGetDetail, authz.ObjectUser, id.String()); err != nil {
		return nil, err
	}

	var user *content.User
	err := s.db.WithinTx(ctx, func(uow *postgres.UnitOfWork) error {
		var err error
		user, err = uow.Users.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", id, content.ErrNotFound)
	}
	return user, nil
}

// Update overwrites the user's metadata after a can_update check. Username
// and activation state belong to the identity provider; the sync pipeline is
// the only writer for those.
func (s *UserService) Update(ctx context.Context, payload content.UpdateUserPayload) error {
	start := time.Now()
	err := s.update(ctx, payload)
	s.observe("user", "update", start, err)
	if err != nil {
		s.log(ctx).WithError(err).Error("update user failed")
		return content.NewOpError("update", "user", err)
	}
	return nil
}

func (s *UserService) update(ctx context.Context, payload content.UpdateUserPayload) error {
	if err := payload.Validate(); err != nil {
		return err
	}

	if err := authorize(ctx, s.gateway, payload.ID, authz.RelationCanUpdate, authz.ObjectUser, payload.ID); err != nil {
		return err
	}

	updatedAt := time.Now().UTC()
	if payload.UpdatedAt != nil {
		updatedAt = payload.UpdatedAt.UTC()
	}

	return s.db.WithinTx(ctx, func(uow *postgres.UnitOfWork) error {
		user, err := uow.Users.GetByID(ctx, uuid.MustParse(payload.ID))
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user %s: %w", payload.ID, content.ErrNotFound)
		}
		user.Metadata = payload.Metadata
		user.UpdatedAt = &updatedAt
		return uow.Users.Update(ctx, user)
	})
}

// Delete removes the user and cascades across their comments and posts
// (including comments by other users on those posts), cleaning up every
// ownership tuple. All-or-nothing: one transaction for the whole cascade.
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	err := s.delete(ctx, id)
	s.observe("user", "delete", start, err)
	if err != nil {
		s.log(ctx).WithError(err).Error("delete user failed")
		return content.NewOpError("delete", "user", err)
	}
	return nil
}

func (s *UserService) delete(ctx context.Context, id uuid.UUID) error {
	if err := authorize(ctx, s.gateway, id.String(), authz.RelationCanDelete, authz.ObjectUser, id.String()); err != nil {
		return err
	}

	return s.db.WithinTx(ctx, func(uow *postgres.UnitOfWork) error {
		user, err := uow.Users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user %s: %w", id, content.ErrNotFound)
		}
		return deleteUserTx(ctx, uow, s.gateway, s.deps, id.String(), id)
	})
}
