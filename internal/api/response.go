package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/LeadRelay/internal/apperrors"
	"github.com/BTreeMap/LeadRelay/internal/models"
)

// errorResponse is the body of every JSON error.
type errorResponse struct {
	Error string `json:"error"`
}

// initialResponse answers a single-lead initiation.
type initialResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	LeadID   string `json:"lead_id"`
	ThreadID string `json:"thread_id,omitempty"`
}

// sweepResponse answers a batch sweep.
type sweepResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	*models.SweepResult
}

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

// init validates that our fallback responses can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(errorResponse{Error: "Internal server error"})
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so encoding errors are caught before headers are written
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// writeError maps err to a status code and a client-safe message. Details
// of server-side failures stay in the process log.
func writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = "Internal server error"
		if apperrors.IsNotConfigured(err) {
			msg = "Service not configured"
		}
	}
	writeJSONResponse(w, status, errorResponse{Error: msg})
}
