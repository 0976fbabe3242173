package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// DefaultTimeout bounds every call to the engine. Timeouts surface as the
// same typed errors as any other engine failure.
const DefaultTimeout = 3000 * time.Millisecond

// ClientConfig holds the OpenFGA connection settings.
type ClientConfig struct {
	// APIURL is the engine base URL, e.g. "http://localhost:8080".
	APIURL string
	// StoreID identifies the tuple store.
	StoreID string
	// AuthorizationModelID pins checks and writes to one model version.
	AuthorizationModelID string
	// APIToken is sent as a bearer token. Optional.
	APIToken string
	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration
}

// Client is a Gateway backed by the OpenFGA HTTP API.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates an OpenFGA-backed gateway.
func NewClient(config ClientConfig) (*Client, error) {
	if config.APIURL == "" {
		return nil, fmt.Errorf("authz: API URL is required")
	}
	if config.StoreID == "" {
		return nil, fmt.Errorf("authz: store ID is required")
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type tupleKey struct {
	User     string `json:"user"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

func toTupleKey(t Tuple) tupleKey {
	return tupleKey{User: t.Subject, Relation: string(t.Relation), Object: t.Object}
}

type tupleKeys struct {
	TupleKeys []tupleKey `json:"tuple_keys"`
}

type writeRequest struct {
	Writes               *tupleKeys `json:"writes,omitempty"`
	Deletes              *tupleKeys `json:"deletes,omitempty"`
	AuthorizationModelID string     `json:"authorization_model_id,omitempty"`
}

type checkRequest struct {
	TupleKey             tupleKey `json:"tuple_key"`
	AuthorizationModelID string   `json:"authorization_model_id,omitempty"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

type batchCheckItem struct {
	TupleKey      tupleKey `json:"tuple_key"`
	CorrelationID string   `json:"correlation_id"`
}

type batchCheckRequest struct {
	Checks               []batchCheckItem `json:"checks"`
	AuthorizationModelID string           `json:"authorization_model_id,omitempty"`
}

type batchCheckResponse struct {
	Result map[string]struct {
		Allowed bool `json:"allowed"`
	} `json:"result"`
}

type readRequest struct {
	TupleKey          *tupleKey `json:"tuple_key,omitempty"`
	PageSize          int       `json:"page_size,omitempty"`
	ContinuationToken string    `json:"continuation_token,omitempty"`
}

type readResponse struct {
	Tuples []struct {
		Key tupleKey `json:"key"`
	} `json:"tuples"`
	ContinuationToken string `json:"continuation_token"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreatePerms writes tuples as one batch; the engine applies the batch
// atomically, so a single rejected tuple fails the whole write.
func (c *Client) CreatePerms(ctx context.Context, tuples []Tuple) error {
	if len(tuples) == 0 {
		return nil
	}

	keys := make([]tupleKey, 0, len(tuples))
	for _, t := range tuples {
		keys = append(keys, toTupleKey(t))
	}

	req := writeRequest{
		Writes:               &tupleKeys{TupleKeys: keys},
		AuthorizationModelID: c.config.AuthorizationModelID,
	}
	if err := c.post(ctx, "/write", req, nil); err != nil {
		return &CreatePermError{Err: err}
	}
	return nil
}

// CheckSinglePerm evaluates exactly one triple.
func (c *Client) CheckSinglePerm(ctx context.Context, tuple Tuple) (bool, error) {
	req := checkRequest{
		TupleKey:             toTupleKey(tuple),
		AuthorizationModelID: c.config.AuthorizationModelID,
	}

	var resp checkResponse
	if err := c.post(ctx, "/check", req, &resp); err != nil {
		return false, &CheckPermError{Err: err}
	}
	return resp.Allowed, nil
}

// CheckPerms batch-evaluates triples; the aggregate is true only when every
// triple is allowed.
func (c *Client) CheckPerms(ctx context.Context, tuples []Tuple) (bool, error) {
	if len(tuples) == 0 {
		return true, nil
	}

	checks := make([]batchCheckItem, 0, len(tuples))
	for i, t := range tuples {
		checks = append(checks, batchCheckItem{
			TupleKey:      toTupleKey(t),
			CorrelationID: strconv.Itoa(i),
		})
	}

	req := batchCheckRequest{
		Checks:               checks,
		AuthorizationModelID: c.config.AuthorizationModelID,
	}

	var resp batchCheckResponse
	if err := c.post(ctx, "/batch-check", req, &resp); err != nil {
		return false, &CheckPermError{Err: err}
	}

	for i := range checks {
		result, ok := resp.Result[strconv.Itoa(i)]
		if !ok {
			return false, &CheckPermError{Err: fmt.Errorf("missing batch result for check %d", i)}
		}
		if !result.Allowed {
			return false, nil
		}
	}
	return true, nil
}

// DeletePerms removes tuples as one batch.
func (c *Client) DeletePerms(ctx context.Context, tuples []Tuple) error {
	if len(tuples) == 0 {
		return nil
	}

	keys := make([]tupleKey, 0, len(tuples))
	for _, t := range tuples {
		keys = append(keys, toTupleKey(t))
	}

	req := writeRequest{
		Deletes:              &tupleKeys{TupleKeys: keys},
		AuthorizationModelID: c.config.AuthorizationModelID,
	}
	if err := c.post(ctx, "/write", req, nil); err != nil {
		return &DeletePermError{Err: err}
	}
	return nil
}

// ReadTuples pages through all stored tuples matching the partial filter.
// An empty relation or object matches everything; object may be a bare type
// prefix like "post:". Used by the reconciler, not by request paths.
func (c *Client) ReadTuples(ctx context.Context, object string, relation Relation) ([]Tuple, error) {
	var (
		tuples []Tuple
		token  string
	)

	for {
		req := readRequest{PageSize: 100, ContinuationToken: token}
		if object != "" || relation != "" {
			req.TupleKey = &tupleKey{Object: object, Relation: string(relation)}
		}

		var resp readResponse
		if err := c.post(ctx, "/read", req, &resp); err != nil {
			return nil, err
		}

		for _, t := range resp.Tuples {
			tuples = append(tuples, Tuple{
				Subject:  t.Key.User,
				Relation: Relation(t.Key.Relation),
				Object:   t.Key.Object,
			})
		}

		if resp.ContinuationToken == "" {
			return tuples, nil
		}
		token = resp.ContinuationToken
	}
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/stores/%s%s", c.config.APIURL, c.config.StoreID, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s returned %d: %s (%s)", path, resp.StatusCode, apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}
