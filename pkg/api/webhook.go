package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/postbox-io/postbox/pkg/identity"
	"github.com/postbox-io/postbox/pkg/service"
)

// handleSyncWebhook receives identity provider events. The raw body is what
// the signature covers, so it is read before any decoding happens.
func (s *Server) handleSyncWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeMessage(w, msgValidationError)
		return
	}

	err = s.sync.HandleDelivery(r.Context(), body, r.Header.Get(identity.SignatureHeader))
	if err != nil {
		if errors.Is(err, service.ErrWebhookUnauthorized) {
			writeMessage(w, msgInvalidWebhookAuth)
			return
		}
		writeMessage(w, msgSyncWebhookFail)
		return
	}
	writeMessage(w, msgSyncWebhookOK)
}

// handleCerts proxies the identity provider's JWKS document so clients can
// verify tokens without talking to the provider directly.
func (s *Server) handleCerts(w http.ResponseWriter, r *http.Request) {
	certs, err := s.certs.Certs(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("fetch identity certs")
		writeMessage(w, msgInternalError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(certs)
}
