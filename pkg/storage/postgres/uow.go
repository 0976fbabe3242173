package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/postbox-io/postbox/pkg/authz"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// repositories can be bound to either.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// UnitOfWork exposes repositories bound to one open transaction. It is
// handed to the function passed to WithinTx and must not escape it.
type UnitOfWork struct {
	Users    *UserRepository
	Posts    *PostRepository
	Comments *CommentRepository
}

func newUnitOfWork(q querier) *UnitOfWork {
	return &UnitOfWork{
		Users:    &UserRepository{q: q},
		Posts:    &PostRepository{q: q},
		Comments: &CommentRepository{q: q},
	}
}

// TxRunner is the unit-of-work factory orchestration services depend on.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(uow *UnitOfWork) error) error
}

// WithinTx opens one serializable transaction, runs fn with repositories
// bound to it, and commits when fn returns nil. Any error, and any panic,
// rolls the transaction back; the connection is released on every exit path.
// Nesting is not supported: one orchestration call owns one transaction.
func (d *DB) WithinTx(ctx context.Context, fn func(uow *UnitOfWork) error) (err error) {
	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(newUnitOfWork(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Exists reports whether the row behind an object reference is present.
// Reads outside any transaction; used by the tuple reconciler.
func (d *DB) Exists(ctx context.Context, typ authz.ObjectType, id string) (bool, error) {
	var table string
	switch typ {
	case authz.ObjectUser:
		table = "users"
	case authz.ObjectPost:
		table = "posts"
	case authz.ObjectComment:
		table = "comments"
	default:
		return false, fmt.Errorf("unknown object type %q", typ)
	}

	var exists bool
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", table)
	if err := d.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check existence in %s: %w", table, err)
	}
	return exists, nil
}
