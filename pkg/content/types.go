package content

import (
	"time"

	"github.com/google/uuid"
)

// MetadataFullnameKey is the metadata entry populated from the identity
// provider's first/last name fields.
const MetadataFullnameKey = "fullname"

// User is the local projection of an identity-provider user. The id doubles
// as the external subject id, so tuples written for this user reference the
// same value the token carries.
type User struct {
	ID        uuid.UUID              `json:"id"`
	Username  string                 `json:"username"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	IsActive  bool                   `json:"is_active"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt *time.Time             `json:"updated_at,omitempty"`
}

// Post is a user-owned piece of content. Ownership is fixed at creation and
// never transferred. Owner references are kept as strings: they flow straight
// between token subjects, permission tuples, and rows.
type Post struct {
	ID          uuid.UUID  `json:"id"`
	TextContent string     `json:"text_content"`
	OwnerID     string     `json:"owner_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Comment is a user-owned reply attached to a post.
type Comment struct {
	ID          uuid.UUID  `json:"id"`
	TextContent string     `json:"text_content"`
	PostID      string     `json:"post_id"`
	OwnerID     string     `json:"owner_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}
