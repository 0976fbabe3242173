package api

import (
	"net/http"

	"github.com/postbox-io/postbox/pkg/content"
	"github.com/postbox-io/postbox/pkg/httputil"
)

// writeMessage writes an envelope with no payload. Data is always a list so
// clients never branch on the shape.
func writeMessage(w http.ResponseWriter, msg Message) {
	writeData(w, msg, []interface{}{}, nil)
}

// writeData writes the full envelope. The HTTP status mirrors the message's
// status code.
func writeData(w http.ResponseWriter, msg Message, data interface{}, count *int64) {
	if data == nil {
		data = []interface{}{}
	}
	_ = httputil.WriteJSON(w, msg.StatusCode, Envelope{
		Data:    data,
		Count:   count,
		Message: msg,
	})
}

// writeError maps a service error to the envelope. Validation, authorization
// and not-found failures get their shared codes; anything else is reported
// with the operation's failure message and no internal detail.
func writeError(w http.ResponseWriter, err error, fallback Message) {
	switch {
	case content.IsValidation(err):
		writeMessage(w, msgValidationError)
	case content.IsUnauthorized(err):
		writeMessage(w, msgUnauthorized)
	case content.IsNotFound(err):
		writeMessage(w, msgNotFound)
	default:
		writeMessage(w, fallback)
	}
}
