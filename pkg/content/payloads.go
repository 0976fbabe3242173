package content

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreatePostPayload carries a post creation request. OwnerID is the acting
// subject and becomes the post's owner.
type CreatePostPayload struct {
	TextContent string `json:"text_content"`
	OwnerID     string `json:"owner_id"`
}

// Validate rejects malformed identifiers before any service work starts.
func (p *CreatePostPayload) Validate() error {
	if p.OwnerID != "" {
		if _, err := uuid.Parse(p.OwnerID); err != nil {
			return NewValidationError("owner_id", "must be a UUID")
		}
	}
	return nil
}

// UpdatePostPayload carries a post update. OwnerID is the acting subject,
// which is not necessarily the owner when an explicit can_update tuple was
// granted.
type UpdatePostPayload struct {
	ID          string `json:"id"`
	TextContent string `json:"text_content"`
	OwnerID     string `json:"owner_id"`
}

func (p *UpdatePostPayload) Validate() error {
	if _, err := uuid.Parse(p.ID); err != nil {
		return NewValidationError("id", "must be a UUID")
	}
	if p.OwnerID != "" {
		if _, err := uuid.Parse(p.OwnerID); err != nil {
			return NewValidationError("owner_id", "must be a UUID")
		}
	}
	return nil
}

// DeletePostPayload carries a post deletion.
type DeletePostPayload struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
}

func (p *DeletePostPayload) Validate() error {
	if _, err := uuid.Parse(p.ID); err != nil {
		return NewValidationError("id", "must be a UUID")
	}
	if p.OwnerID != "" {
		if _, err := uuid.Parse(p.OwnerID); err != nil {
			return NewValidationError("owner_id", "must be a UUID")
		}
	}
	return nil
}

// CreateCommentPayload carries a comment creation request.
type CreateCommentPayload struct {
	TextContent string `json:"text_content"`
	PostID      string `json:"post_id"`
	OwnerID     string `json:"owner_id"`
}

func (p *CreateCommentPayload) Validate() error {
	if _, err := uuid.Parse(p.PostID); err != nil {
		return NewValidationError("post_id", "must be a UUID")
	}
	if p.OwnerID != "" {
		if _, err := uuid.Parse(p.OwnerID); err != nil {
			return NewValidationError("owner_id", "must be a UUID")
		}
	}
	return nil
}

// UpdateCommentPayload carries a comment update.
type UpdateCommentPayload struct {
	ID          string `json:"id"`
	TextContent string `json:"text_content"`
	OwnerID     string `json:"owner_id"`
}

func (p *UpdateCommentPayload) Validate() error {
	if _, err := uuid.Parse(p.ID); err != nil {
		return NewValidationError("id", "must be a UUID")
	}
	if p.OwnerID != "" {
		if _, err := uuid.Parse(p.OwnerID); err != nil {
			return NewValidationError("owner_id", "must be a UUID")
		}
	}
	return nil
}

// DeleteCommentPayload carries a comment deletion.
type DeleteCommentPayload struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
}

func (p *DeleteCommentPayload) Validate() error {
	if _, err := uuid.Parse(p.ID); err != nil {
		return NewValidationError("id", "must be a UUID")
	}
	if p.OwnerID != "" {
		if _, err := uuid.Parse(p.OwnerID); err != nil {
			return NewValidationError("owner_id", "must be a UUID")
		}
	}
	return nil
}

// CreateUserPayload provisions a user record. ID is optional: the identity
// sync path supplies the provider's subject id, direct provisioning lets the
// repository generate one.
type CreateUserPayload struct {
	ID        string                 `json:"id,omitempty"`
	Username  string                 `json:"username"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt *time.Time             `json:"created_at,omitempty"`
}

func (p *CreateUserPayload) Validate() error {
	if strings.TrimSpace(p.Username) == "" {
		return NewValidationError("username", "must not be empty")
	}
	if p.ID != "" {
		if _, err := uuid.Parse(p.ID); err != nil {
			return NewValidationError("id", "must be a UUID")
		}
	}
	return nil
}

// UpdateUserPayload carries a user metadata update. Username and activation
// state are owned by the identity provider and not updatable here.
type UpdateUserPayload struct {
	ID        string                 `json:"id"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	UpdatedAt *time.Time             `json:"updated_at,omitempty"`
}

func (p *UpdateUserPayload) Validate() error {
	if _, err := uuid.Parse(p.ID); err != nil {
		return NewValidationError("id", "must be a UUID")
	}
	return nil
}
