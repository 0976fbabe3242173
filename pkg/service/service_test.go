package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/postbox-io/postbox/pkg/authz"
	"github.com/postbox-io/postbox/pkg/observability"
	"github.com/postbox-io/postbox/pkg/storage/postgres"
)

// fakeGateway is an in-memory authz.Gateway. Checks default to allowed;
// individual tuples can be denied, and each call kind can be forced to fail.
type fakeGateway struct {
	mu sync.Mutex

	denied    map[string]bool
	checkErr  error
	createErr error
	deleteErr error

	checked []authz.Tuple
	created []authz.Tuple
	deleted []authz.Tuple
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{denied: map[string]bool{}}
}

func (g *fakeGateway) deny(t authz.Tuple) {
	g.denied[t.String()] = true
}

func (g *fakeGateway) CreatePerms(ctx context.Context, tuples []authz.Tuple) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return g.createErr
	}
	g.created = append(g.created, tuples...)
	return nil
}

func (g *fakeGateway) CheckSinglePerm(ctx context.Context, tuple authz.Tuple) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checked = append(g.checked, tuple)
	if g.checkErr != nil {
		return false, g.checkErr
	}
	return !g.denied[tuple.String()], nil
}

func (g *fakeGateway) CheckPerms(ctx context.Context, tuples []authz.Tuple) (bool, error) {
	for _, tuple := range tuples {
		allowed, err := g.CheckSinglePerm(ctx, tuple)
		if err != nil || !allowed {
			return false, err
		}
	}
	return true, nil
}

func (g *fakeGateway) DeletePerms(ctx context.Context, tuples []authz.Tuple) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleteErr != nil {
		return g.deleteErr
	}
	g.deleted = append(g.deleted, tuples...)
	return nil
}

var _ authz.Gateway = (*fakeGateway)(nil)

func newTestStore(t *testing.T) (*postgres.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return postgres.NewDB(db), mock, func() { db.Close() }
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

// expectActorLookup queues the in-transaction existence re-check for the
// acting user.
func expectActorLookup(mock sqlmock.Sqlmock, actorID string, found bool) {
	rows := sqlmock.NewRows([]string{"id", "username", "metadata", "is_active", "created_at", "updated_at"})
	if found {
		rows.AddRow(actorID, "actor", nil, true, time.Now().UTC(), nil)
	}
	mock.ExpectQuery("SELECT id, username, metadata, is_active, created_at, updated_at").
		WithArgs(actorID).
		WillReturnRows(rows)
}
