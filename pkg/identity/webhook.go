package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Keycloak-Signature"

// EventOperation is the mutation kind carried by a provider webhook event.
type EventOperation string

const (
	OperationCreate EventOperation = "CREATE"
	OperationUpdate EventOperation = "UPDATE"
	OperationDelete EventOperation = "DELETE"
)

// ResourceUser is the only resourceType the sync pipeline consumes.
const ResourceUser = "USER"

// Actor identifies who performed the change on the provider side.
type Actor struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	RealmID   string `json:"realmId"`
	ClientID  string `json:"clientId"`
	IPAddress string `json:"ipAddress"`
}

// UserResource is the normalized user snapshot extracted from the event's
// representation, with the details map as fallback for id and username.
type UserResource struct {
	ID        string
	Username  string
	FirstName string
	LastName  string
	Email     string
	CreatedAt *time.Time
	Enabled   *bool
}

// FullName joins first and last name, substituting empty strings for
// whichever is absent.
func (r UserResource) FullName() string {
	return r.FirstName + " " + r.LastName
}

// Event is a parsed, validated webhook delivery.
type Event struct {
	RealmName string
	Operation EventOperation
	ActionAt  time.Time
	Actor     Actor
	Resource  UserResource
}

// rawEvent mirrors the provider's wire shape. representation is a
// JSON-encoded string, not an object.
type rawEvent struct {
	RealmName      string            `json:"realmName"`
	OperationType  string            `json:"operationType"`
	Time           int64             `json:"time"`
	AuthDetails    *Actor            `json:"authDetails"`
	ResourceType   string            `json:"resourceType"`
	Representation string            `json:"representation"`
	Details        map[string]string `json:"details"`
}

type rawRepresentation struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Email            string `json:"email"`
	CreatedTimestamp int64  `json:"createdTimestamp"`
	Enabled          *bool  `json:"enabled"`
}

// ParseEvent decodes and validates a webhook body. An unsupported
// operationType is not an error: it returns (nil, nil) and the caller drops
// the delivery. Every other missing required field is a parse failure.
func ParseEvent(body []byte) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	if raw.RealmName == "" {
		return nil, fmt.Errorf("missing realmName")
	}
	if raw.OperationType == "" {
		return nil, fmt.Errorf("missing operationType")
	}

	var operation EventOperation
	switch raw.OperationType {
	case "CREATE":
		operation = OperationCreate
	case "UPDATE":
		operation = OperationUpdate
	case "DELETE":
		operation = OperationDelete
	default:
		return nil, nil
	}

	actionAt := time.Now().UTC()
	if raw.Time != 0 {
		actionAt = time.UnixMilli(raw.Time).UTC()
	}

	if raw.AuthDetails == nil {
		return nil, fmt.Errorf("missing authDetails")
	}
	actor := *raw.AuthDetails
	if actor.UserID == "" {
		return nil, fmt.Errorf("missing authDetails.userId")
	}
	if actor.Username == "" {
		return nil, fmt.Errorf("missing authDetails.username")
	}
	if actor.RealmID == "" {
		return nil, fmt.Errorf("missing authDetails.realmId")
	}
	if actor.ClientID == "" {
		return nil, fmt.Errorf("missing authDetails.clientId")
	}

	if raw.ResourceType == "" {
		return nil, fmt.Errorf("missing resourceType")
	}
	if raw.ResourceType != ResourceUser {
		return nil, fmt.Errorf("unsupported resourceType: %s", raw.ResourceType)
	}

	var rep rawRepresentation
	if raw.Representation != "" {
		if err := json.Unmarshal([]byte(raw.Representation), &rep); err != nil {
			return nil, fmt.Errorf("decode representation: %w", err)
		}
	}

	resource := UserResource{
		ID:        rep.ID,
		Username:  rep.Username,
		FirstName: rep.FirstName,
		LastName:  rep.LastName,
		Email:     rep.Email,
		Enabled:   rep.Enabled,
	}
	if resource.ID == "" {
		resource.ID = raw.Details["userId"]
	}
	if resource.Username == "" {
		resource.Username = raw.Details["username"]
	}
	if rep.CreatedTimestamp != 0 {
		createdAt := time.UnixMilli(rep.CreatedTimestamp).UTC()
		resource.CreatedAt = &createdAt
	}

	return &Event{
		RealmName: raw.RealmName,
		Operation: operation,
		ActionAt:  actionAt,
		Actor:     actor,
		Resource:  resource,
	}, nil
}

// Sign computes the hex HMAC-SHA256 of body under secret. Exposed so tests
// and fixtures produce the same header the provider would.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the signature header against the raw body. The
// comparison runs over the raw MAC bytes so it is constant time and
// case-insensitive on the hex encoding.
func VerifySignature(secret, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}
