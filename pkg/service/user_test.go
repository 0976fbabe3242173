package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postbox-io/postbox/pkg/authz"
	"github.com/postbox-io/postbox/pkg/content"
)

func TestUserServiceCreateWritesSelfOwnership(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()
	gateway := newFakeGateway()
	svc := NewUserService(store, gateway, testLogger(), nil)

	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO users").
		WithArgs(id, "alice", sqlmock.AnyArg(), true, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id))
	mock.ExpectCommit()

	user, err := svc.Create(context.Background(), content.CreateUserPayload{
		ID:       id.String(),
		Username: "alice",
		Metadata: map[string]interface{}{content.MetadataFullnameKey: "Alice Doe"},
	})
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.True(t, user.IsActive)

	require.Len(t, gateway.created, 1)
	assert.Equal(t, authz.OwnerTuple(id.String(), authz.ObjectUser, id.String()), gateway.created[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserServiceGetByIDDenied(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()
	gateway := newFakeGateway()
	svc := NewUserService(store, gateway, testLogger(), nil)

	id := uuid.New()
	gateway.deny(authz.Tuple{
		Subject:  authz.ObjectRef(authz.ObjectUser, id.String()),
		Relation: authz.RelationCanGetDetail,
		Object:   authz.ObjectRef(authz.ObjectUser, id.String()),
	})

	_, err := svc.GetByID(context.Background(), id)
	require.Error(t, err)
	assert.True(t, content.IsUnauthorized(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Scenario: deleting a user who owns two posts, one with a comment by
// another user, removes all four rows and all four ownership tuples in one
// transaction.
func TestUserServiceDeleteFullCascade(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()
	gateway := newFakeGateway()
	svc := NewUserService(store, gateway, testLogger(), nil)

	userID := uuid.New()
	postA := uuid.New()
	postB := uuid.New()
	commentID := uuid.New()
	commentOwner := uuid.New().String()
	now := time.Now().UTC()

	mock.ExpectBegin()
	expectActorLookup(mock, userID.String(), true)

	// The user authored no comments of their own.
	mock.ExpectQuery("FROM comments WHERE owner_id").
		WithArgs(userID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text_content", "post_id", "owner_id", "created_at", "updated_at"}))

	// Two owned posts.
	mock.ExpectQuery("FROM posts WHERE owner_id").
		WithArgs(userID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text_content", "owner_id", "created_at", "updated_at"}).
			AddRow(postA, "first", userID.String(), now, nil).
			AddRow(postB, "second", userID.String(), now, nil))

	// Post A carries a comment by someone else.
	mock.ExpectQuery("FROM comments WHERE post_id").
		WithArgs(postA.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text_content", "post_id", "owner_id", "created_at", "updated_at"}).
			AddRow(commentID, "nice", postA.String(), commentOwner, now, nil))
	mock.ExpectExec("DELETE FROM comments").
		WithArgs(commentID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM posts").
		WithArgs(postA).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Post B has no comments.
	mock.ExpectQuery("FROM comments WHERE post_id").
		WithArgs(postB.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text_content", "post_id", "owner_id", "created_at", "updated_at"}))
	mock.ExpectExec("DELETE FROM posts").
		WithArgs(postB).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec("DELETE FROM users").
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, svc.Delete(context.Background(), userID))

	require.Len(t, gateway.deleted, 4)
	assert.Equal(t, authz.OwnerTuple(commentOwner, authz.ObjectComment, commentID.String()), gateway.deleted[0])
	assert.Equal(t, authz.OwnerTuple(userID.String(), authz.ObjectPost, postA.String()), gateway.deleted[1])
	assert.Equal(t, authz.OwnerTuple(userID.String(), authz.ObjectPost, postB.String()), gateway.deleted[2])
	assert.Equal(t, authz.OwnerTuple(userID.String(), authz.ObjectUser, userID.String()), gateway.deleted[3])
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A failure halfway through the cascade rolls back every row already deleted.
func TestUserServiceDeleteFailureRollsBackWholeCascade(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()
	gateway := newFakeGateway()
	svc := NewUserService(store, gateway, testLogger(), nil)

	userID := uuid.New()
	postA := uuid.New()
	postB := uuid.New()
	now := time.Now().UTC()

	mock.ExpectBegin()
	expectActorLookup(mock, userID.String(), true)
	mock.ExpectQuery("FROM comments WHERE owner_id").
		WithArgs(userID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text_content", "post_id", "owner_id", "created_at", "updated_at"}))
	mock.ExpectQuery("FROM posts WHERE owner_id").
		WithArgs(userID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text_content", "owner_id", "created_at", "updated_at"}).
			AddRow(postA, "first", userID.String(), now, nil).
			AddRow(postB, "second", userID.String(), now, nil))
	mock.ExpectQuery("FROM comments WHERE post_id").
		WithArgs(postA.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text_content", "post_id", "owner_id", "created_at", "updated_at"}))
	mock.ExpectExec("DELETE FROM posts").
		WithArgs(postA).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM comments WHERE post_id").
		WithArgs(postB.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text_content", "post_id", "owner_id", "created_at", "updated_at"}))
	mock.ExpectExec("DELETE FROM posts").
		WithArgs(postB).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := svc.Delete(context.Background(), userID)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
