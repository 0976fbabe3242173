package content

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFilterNormalizeDefaults(t *testing.T) {
	f := &ListFilter{SortField: "text_content", SortOrder: "sideways", Limit: 0, Offset: -3}
	f.Normalize()

	assert.Equal(t, SortFieldCreatedAt, f.SortField)
	assert.Equal(t, SortOrderDesc, f.SortOrder)
	assert.Equal(t, DefaultListLimit, f.Limit)
	assert.Equal(t, 0, f.Offset)
}

func TestListFilterNormalizeKeepsValidValues(t *testing.T) {
	f := &ListFilter{SortField: SortFieldUpdatedAt, SortOrder: SortOrderAsc, Limit: 50, Offset: 10}
	f.Normalize()

	assert.Equal(t, SortFieldUpdatedAt, f.SortField)
	assert.Equal(t, SortOrderAsc, f.SortOrder)
	assert.Equal(t, 50, f.Limit)
	assert.Equal(t, 10, f.Offset)
}

func TestListFilterDateRangeBothOrNeither(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	f := &ListFilter{FromDate: &from}
	_, _, ok := f.DateRange()
	assert.False(t, ok, "single bound must not apply date filtering")

	f.ToDate = &to
	gotFrom, gotTo, ok := f.DateRange()
	require.True(t, ok)
	assert.Equal(t, from, gotFrom)
	assert.Equal(t, to, gotTo)
}

func TestPayloadValidation(t *testing.T) {
	valid := "11111111-1111-1111-1111-111111111111"

	tests := []struct {
		name    string
		payload interface{ Validate() error }
		wantErr bool
	}{
		{"create post ok", &CreatePostPayload{TextContent: "hello", OwnerID: valid}, false},
		{"create post bad owner", &CreatePostPayload{OwnerID: "nope"}, true},
		{"create post empty owner passes validation", &CreatePostPayload{}, false},
		{"update post bad id", &UpdatePostPayload{ID: "x", OwnerID: valid}, true},
		{"delete post ok", &DeletePostPayload{ID: valid, OwnerID: valid}, false},
		{"create comment bad post id", &CreateCommentPayload{PostID: "x", OwnerID: valid}, true},
		{"update comment ok", &UpdateCommentPayload{ID: valid, OwnerID: valid}, false},
		{"delete comment bad id", &DeleteCommentPayload{ID: ""}, true},
		{"create user missing username", &CreateUserPayload{}, true},
		{"create user ok", &CreateUserPayload{ID: valid, Username: "alice"}, false},
		{"update user bad id", &UpdateUserPayload{ID: "nope"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOpErrorWrapping(t *testing.T) {
	cause := errors.New("engine down")
	err := NewOpError("delete", "post", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "delete post")

	denied := NewOpError("update", "comment", ErrUnauthorized)
	assert.True(t, IsUnauthorized(denied))
	assert.False(t, IsUnauthorized(err))

	missing := NewOpError("get", "user", ErrNotFound)
	assert.True(t, IsNotFound(missing))
}
