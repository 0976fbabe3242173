package authz

import "fmt"

// Gateway calls fail with one of three typed errors so callers can tell a
// backend failure apart from a legitimate "not permitted" result, which is a
// plain false.

// CreatePermError reports a failed tuple write.
type CreatePermError struct {
	Err error
}

func (e *CreatePermError) Error() string {
	return fmt.Sprintf("create permission tuples: %v", e.Err)
}

func (e *CreatePermError) Unwrap() error { return e.Err }

// CheckPermError reports a failed permission evaluation. It is never returned
// for an evaluation that completed with allowed=false.
type CheckPermError struct {
	Err error
}

func (e *CheckPermError) Error() string {
	return fmt.Sprintf("check permission: %v", e.Err)
}

func (e *CheckPermError) Unwrap() error { return e.Err }

// DeletePermError reports a failed tuple removal.
type DeletePermError struct {
	Err error
}

func (e *DeletePermError) Error() string {
	return fmt.Sprintf("delete permission tuples: %v", e.Err)
}

func (e *DeletePermError) Unwrap() error { return e.Err }
