package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/postbox-io/postbox/pkg/httputil"
	"github.com/postbox-io/postbox/pkg/identity"
	"github.com/postbox-io/postbox/pkg/observability"
)

// Paths reachable without a bearer token. The webhook authenticates with its
// own HMAC signature, the rest are operational endpoints.
var publicPaths = map[string]bool{
	"/v1/authentication/webhook/events-synchronization": true,
	"/v1/authentication/certs":                          true,
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// AuthMiddleware verifies the Authorization bearer token and stores the
// authenticated subject in the request context. Requests without a valid
// token are rejected with the envelope the rest of the API uses.
func AuthMiddleware(verifier identity.TokenVerifier, logger *observability.Logger) httputil.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			rawToken, ok := bearerToken(r)
			if !ok {
				writeMessage(w, msgMissingToken)
				return
			}

			principal, err := verifier.VerifyToken(r.Context(), rawToken)
			if err != nil {
				if errors.Is(err, identity.ErrTokenExpired) {
					writeMessage(w, msgTokenExpired)
					return
				}
				logger.WithError(err).Debug("token verification failed")
				writeMessage(w, msgInvalidToken)
				return
			}

			ctx := observability.WithSubjectID(r.Context(), principal.SubjectID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}
