package content

import "time"

// Sort fields and orders accepted by list filters. Anything else falls back
// to the defaults during Normalize.
const (
	SortFieldCreatedAt = "created_at"
	SortFieldUpdatedAt = "updated_at"

	SortOrderAsc  = "ASC"
	SortOrderDesc = "DESC"

	DefaultListLimit = 20
	MaxListLimit     = 200
)

// ListFilter is the common shape of post/comment listing filters.
//
// FromDate/ToDate form an inclusive range on created_at and only apply when
// both are present; a single bound is ignored. EnableCount additionally
// computes the total matching count. Unpaginated turns pagination off
// entirely; cascade deletes need the full dependent set, not a page.
type ListFilter struct {
	SortField   string
	SortOrder   string
	Offset      int
	Limit       int
	FromDate    *time.Time
	ToDate      *time.Time
	EnableCount bool
	Unpaginated bool
}

// Normalize applies the defaulting rules: unrecognized sort_field becomes
// created_at, unrecognized sort_order becomes DESC, and the limit is clamped
// to [1, MaxListLimit].
func (f *ListFilter) Normalize() {
	switch f.SortField {
	case SortFieldCreatedAt, SortFieldUpdatedAt:
	default:
		f.SortField = SortFieldCreatedAt
	}
	switch f.SortOrder {
	case SortOrderAsc, SortOrderDesc:
	default:
		f.SortOrder = SortOrderDesc
	}
	if f.Limit <= 0 || f.Limit > MaxListLimit {
		f.Limit = DefaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// DateRange returns the inclusive created_at bounds, or ok=false when the
// both-or-neither rule leaves date filtering off.
func (f *ListFilter) DateRange() (from, to time.Time, ok bool) {
	if f.FromDate == nil || f.ToDate == nil {
		return time.Time{}, time.Time{}, false
	}
	return *f.FromDate, *f.ToDate, true
}

// PostFilter scopes a post listing to an owner.
type PostFilter struct {
	ListFilter
	OwnerID string
}

// CommentFilter scopes a comment listing to a post and/or an owner.
type CommentFilter struct {
	ListFilter
	PostID  string
	OwnerID string
}
