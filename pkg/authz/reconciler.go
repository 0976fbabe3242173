package authz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/postbox-io/postbox/pkg/observability"
)

// TupleStore is the slice of the engine API the reconciler needs.
type TupleStore interface {
	ReadTuples(ctx context.Context, object string, relation Relation) ([]Tuple, error)
	DeletePerms(ctx context.Context, tuples []Tuple) error
}

// ExistenceChecker answers whether the row behind an object reference still
// exists. Implemented by the relational store.
type ExistenceChecker interface {
	Exists(ctx context.Context, typ ObjectType, id string) (bool, error)
}

// Reconciler sweeps is_owner tuples whose rows are gone. A tuple write and
// the relational transaction it accompanies are not atomic with each other,
// so a rollback after a successful write leaves the tuple orphaned; the
// sweep is the compensating action for that window.
type Reconciler struct {
	store    TupleStore
	existing ExistenceChecker
	logger   *observability.Logger
	cron     *cron.Cron
	timeout  time.Duration
}

// NewReconciler creates a reconciler over the given tuple store.
func NewReconciler(store TupleStore, existing ExistenceChecker, logger *observability.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		existing: existing,
		logger:   logger.WithField("component", "authz-reconciler"),
		timeout:  5 * time.Minute,
	}
}

// Start schedules sweeps with the given cron expression and returns after
// registering the job.
func (r *Reconciler) Start(schedule string) error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		removed, err := r.Sweep(ctx)
		if err != nil {
			r.logger.WithError(err).Error("tuple sweep failed")
			return
		}
		if removed > 0 {
			r.logger.WithField("removed", removed).Info("removed orphaned tuples")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reconciler: %w", err)
	}
	r.cron.Start()
	return nil
}

// Stop cancels the schedule. Running sweeps finish on their own timeout.
func (r *Reconciler) Stop() {
	if r.cron != nil {
		r.cron.Stop()
	}
}

// Sweep runs one pass over posts, comments, and users and deletes is_owner
// tuples whose object rows no longer exist. Returns the number removed.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	removed := 0
	for _, typ := range []ObjectType{ObjectPost, ObjectComment, ObjectUser} {
		n, err := r.sweepType(ctx, typ)
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (r *Reconciler) sweepType(ctx context.Context, typ ObjectType) (int, error) {
	tuples, err := r.store.ReadTuples(ctx, string(typ)+":", RelationIsOwner)
	if err != nil {
		return 0, fmt.Errorf("read %s tuples: %w", typ, err)
	}

	var orphaned []Tuple
	for _, tuple := range tuples {
		id, ok := strings.CutPrefix(tuple.Object, string(typ)+":")
		if !ok {
			continue
		}
		exists, err := r.existing.Exists(ctx, typ, id)
		if err != nil {
			return 0, fmt.Errorf("check %s existence: %w", tuple.Object, err)
		}
		if !exists {
			orphaned = append(orphaned, tuple)
		}
	}

	if len(orphaned) == 0 {
		return 0, nil
	}
	if err := r.store.DeletePerms(ctx, orphaned); err != nil {
		return 0, err
	}
	return len(orphaned), nil
}
