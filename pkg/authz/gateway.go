package authz

import "context"

// Gateway wraps the external ReBAC engine. All four operations are remote
// calls; none touch local storage.
type Gateway interface {
	// CreatePerms writes tuples as a single batch. A rejection of any tuple
	// fails the whole call with a *CreatePermError.
	CreatePerms(ctx context.Context, tuples []Tuple) error

	// CheckSinglePerm evaluates one triple. A false result is a legitimate
	// denial; engine failures surface as *CheckPermError.
	CheckSinglePerm(ctx context.Context, tuple Tuple) (bool, error)

	// CheckPerms batch-evaluates triples with AND semantics, short-circuiting
	// to false on the first denial.
	CheckPerms(ctx context.Context, tuples []Tuple) (bool, error)

	// DeletePerms removes tuples; used during cascading deletes so no
	// permission state outlives its row.
	DeletePerms(ctx context.Context, tuples []Tuple) error
}
