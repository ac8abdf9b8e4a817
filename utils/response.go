package utils

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"

	"recipebox/apperr"
)

// M is a shorthand for ad-hoc JSON objects.
type M map[string]any

// RespondWithJSON writes data as the JSON body with the given status.
func RespondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Default().WithPrefix("http").Error("failed to encode response", "err", err)
	}
}

// SendResponse wraps payload in the {message, status} envelope.
func SendResponse(w http.ResponseWriter, status int, payload any) {
	RespondWithJSON(w, status, M{"message": payload, "status": status})
}

// RespondWithError maps err onto its status code and client-safe message.
// Causes of internal errors are logged, never sent.
func RespondWithError(w http.ResponseWriter, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		log.Default().WithPrefix("http").Error("request failed", "err", err)
	}
	SendResponse(w, status, apperr.Message(err))
}
