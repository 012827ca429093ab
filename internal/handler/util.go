// Package handler implements the HTTP endpoints of the legal assistant API.
package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/lexgraph/legal-assistant-api/internal/apierr"
	"github.com/lexgraph/legal-assistant-api/pkg/logger"
)

// errorBody is the wire format of every error response.
type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, log *logger.Logger, err error) {
	apiErr := apierr.From(err)
	if apiErr.Status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("code", apiErr.Code), zap.Error(err))
	}
	writeJSON(w, apiErr.Status, errorBody{
		Error:   apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierr.Validation("invalid request body")
	}
	return nil
}
