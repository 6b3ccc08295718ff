package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"invoice-agent/internal/ai"
	"invoice-agent/internal/app"
	"invoice-agent/internal/core"
	"invoice-agent/internal/quickbooks"

	"go.uber.org/zap"
)

type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

type dataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes v as the response body with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeData wraps data in the success envelope.
func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataResponse{Success: true, Data: data})
}

// writeResult writes a QuickBooks Result. Vendor faults are 200s; a missing
// connection is a 401 so clients know to authorize again.
func writeResult[T any](w http.ResponseWriter, r *http.Request, res quickbooks.Result[T]) {
	if res.Code == quickbooks.CodeNotConnected {
		writeError(w, r, quickbooks.ErrNotConnected.Error(), "NOT_CONNECTED", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeServiceError maps application errors to HTTP responses. Unknown errors are
// logged and reported as a generic 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *core.ValidationError
		fe *app.ForbiddenError
	)
	switch {
	case errors.As(err, &ve):
		writeError(w, r, ve.Error(), "VALIDATION_ERROR", http.StatusBadRequest)
	case errors.As(err, &fe):
		writeError(w, r, "Forbidden: "+fe.Error(), "FORBIDDEN", http.StatusForbidden)
	case errors.Is(err, app.ErrNotMember):
		writeError(w, r, "Forbidden: not a member of this team", "FORBIDDEN", http.StatusForbidden)
	case errors.Is(err, core.ErrNotFound):
		writeError(w, r, "not found", "NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, core.ErrLastAdmin):
		writeError(w, r, "Team must keep at least one admin", "LAST_ADMIN", http.StatusBadRequest)
	case errors.Is(err, core.ErrSelfRemoval):
		writeError(w, r, "Cannot remove yourself from the team", "SELF_REMOVAL", http.StatusBadRequest)
	case errors.Is(err, core.ErrAlreadyMember),
		errors.Is(err, core.ErrInvitationExpired),
		errors.Is(err, core.ErrInvalidRole):
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
	case errors.Is(err, quickbooks.ErrNotConnected):
		writeError(w, r, quickbooks.ErrNotConnected.Error(), "NOT_CONNECTED", http.StatusUnauthorized)
	case errors.Is(err, app.ErrQuickBooksUnavailable):
		writeError(w, r, err.Error(), "QUICKBOOKS_UNAVAILABLE", http.StatusServiceUnavailable)
	case errors.Is(err, app.ErrAssistantUnavailable), errors.Is(err, ai.ErrTooManyToolRounds):
		writeError(w, r, err.Error(), "AI_ERROR", http.StatusInternalServerError)
	default:
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.Error(err))
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}
