package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrTokenExpired marks a structurally valid bearer token past its expiry.
// Callers map it to a distinct response code.
var ErrTokenExpired = errors.New("token expired")

// Config locates the identity provider realm this service trusts.
type Config struct {
	ServerURL     string
	Realm         string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
}

// IssuerURL is the realm's OIDC issuer, the discovery root.
func (c Config) IssuerURL() string {
	return strings.TrimRight(c.ServerURL, "/") + "/realms/" + c.Realm
}

// Validate checks that every required field is present.
func (c Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("identity server URL is required")
	}
	if c.Realm == "" {
		return fmt.Errorf("identity realm is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("identity client id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("identity client secret is required")
	}
	if c.WebhookSecret == "" {
		return fmt.Errorf("identity webhook secret is required")
	}
	return nil
}

// Principal is the authenticated caller extracted from a verified token.
type Principal struct {
	SubjectID string
	Username  string
	Email     string
}

// TokenVerifier authenticates bearer tokens into principals.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, rawToken string) (*Principal, error)
}

// Client talks to a Keycloak-compatible provider: OIDC discovery, token
// verification against the realm's JWKS, the realm cert bundle, and a
// client-credentials token source for provider admin calls.
type Client struct {
	cfg        Config
	provider   *oidc.Provider
	verifier   *oidc.IDTokenVerifier
	adminToken oauth2.TokenSource
	httpClient *http.Client

	mu    sync.Mutex
	certs json.RawMessage
}

// NewClient runs OIDC discovery against the realm issuer and prepares the
// verifier and admin token source.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL())
	if err != nil {
		return nil, fmt.Errorf("discover identity provider: %w", err)
	}

	// Bearer tokens are realm access tokens whose audience varies by
	// client, so the audience check stays off; signature and expiry are
	// still enforced.
	verifier := provider.Verifier(&oidc.Config{SkipClientIDCheck: true})

	adminCreds := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     provider.Endpoint().TokenURL,
	}

	return &Client{
		cfg:        cfg,
		provider:   provider,
		verifier:   verifier,
		adminToken: adminCreds.TokenSource(ctx),
		httpClient: http.DefaultClient,
	}, nil
}

// VerifyToken validates the raw bearer token and extracts the principal.
// An expired token surfaces as ErrTokenExpired.
func (c *Client) VerifyToken(ctx context.Context, rawToken string) (*Principal, error) {
	token, err := c.verifier.Verify(ctx, rawToken)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("verify token: %w", err)
	}

	var claims struct {
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
	}
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decode token claims: %w", err)
	}
	if token.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	return &Principal{
		SubjectID: token.Subject,
		Username:  claims.PreferredUsername,
		Email:     claims.Email,
	}, nil
}

// Certs returns the realm's JWKS document, fetched once and cached for the
// client's lifetime, matching the provider's own cert rotation cadence.
func (c *Client) Certs(ctx context.Context) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.certs != nil {
		return c.certs, nil
	}

	var discovery struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := c.provider.Claims(&discovery); err != nil {
		return nil, fmt.Errorf("read discovery document: %w", err)
	}
	if discovery.JWKSURI == "" {
		return nil, fmt.Errorf("discovery document has no jwks_uri")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discovery.JWKSURI, nil)
	if err != nil {
		return nil, fmt.Errorf("build certs request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch certs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch certs: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read certs response: %w", err)
	}

	c.certs = json.RawMessage(body)
	return c.certs, nil
}

// AdminHTTPClient returns an http client that injects service-account
// bearer tokens, for calls against the provider admin API.
func (c *Client) AdminHTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, c.adminToken)
}

// WebhookSecret exposes the shared secret for webhook signature checks.
func (c *Client) WebhookSecret() []byte {
	return []byte(c.cfg.WebhookSecret)
}
