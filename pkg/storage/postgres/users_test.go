package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postbox-io/postbox/pkg/content"
)

func newUserRepo(t *testing.T) (*UserRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return &UserRepository{q: db}, mock, func() { db.Close() }
}

func TestUserCreateEncodesMetadata(t *testing.T) {
	repo, mock, done := newUserRepo(t)
	defer done()

	id := uuid.New()
	mock.ExpectQuery("INSERT INTO users").
		WithArgs(id, "alice", []byte(`{"fullname":"Alice Doe"}`), true, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id))

	got, err := repo.Create(context.Background(), &content.User{
		ID:        id,
		Username:  "alice",
		Metadata:  map[string]interface{}{"fullname": "Alice Doe"},
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreateNilMetadata(t *testing.T) {
	repo, mock, done := newUserRepo(t)
	defer done()

	id := uuid.New()
	mock.ExpectQuery("INSERT INTO users").
		WithArgs(id, "bob", nil, true, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id))

	_, err := repo.Create(context.Background(), &content.User{
		ID:        id,
		Username:  "bob",
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserGetByIDDecodesMetadata(t *testing.T) {
	repo, mock, done := newUserRepo(t)
	defer done()

	id := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, username, metadata, is_active, created_at, updated_at").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "metadata", "is_active", "created_at", "updated_at"}).
			AddRow(id, "alice", []byte(`{"fullname":"Alice Doe"}`), true, now, nil))

	user, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "Alice Doe", user.Metadata[content.MetadataFullnameKey])
	assert.True(t, user.IsActive)
	assert.Nil(t, user.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserGetByIDMiss(t *testing.T) {
	repo, mock, done := newUserRepo(t)
	defer done()

	id := uuid.New()
	mock.ExpectQuery("SELECT id, username, metadata, is_active, created_at, updated_at").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "metadata", "is_active", "created_at", "updated_at"}))

	user, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserUpdateAndDelete(t *testing.T) {
	repo, mock, done := newUserRepo(t)
	defer done()

	id := uuid.New()
	now := time.Now().UTC()
	mock.ExpectExec("UPDATE users").
		WithArgs(id, "alice", []byte(`{"fullname":"Alice Smith"}`), false, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM users").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), &content.User{
		ID:        id,
		Username:  "alice",
		Metadata:  map[string]interface{}{"fullname": "Alice Smith"},
		IsActive:  false,
		UpdatedAt: &now,
	})
	require.NoError(t, err)
	require.NoError(t, repo.Delete(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}
