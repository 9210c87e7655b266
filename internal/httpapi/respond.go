package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/roach88/formforge/internal/builder"
	"github.com/roach88/formforge/internal/reconcile"
	"github.com/roach88/formforge/internal/schema"
	"github.com/roach88/formforge/internal/session"
	"github.com/roach88/formforge/internal/store"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest    = "BAD_REQUEST"
	CodeNotFound      = "NOT_FOUND"
	CodeConflict      = "TABLE_COLLISION"
	CodeInternalError = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: CodeBadRequest, Message: msg})
}

// writeError maps domain errors to status codes. Unexpected errors are
// logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rerr *reconcile.Error
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, builder.ErrSessionNotFound),
		errors.Is(err, session.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Code: CodeNotFound, Message: err.Error()})
	case errors.As(err, &rerr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Code: string(rerr.Code), Message: rerr.Error()})
	case errors.Is(err, schema.ErrTableCollision), errors.Is(err, session.ErrConflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{Code: CodeConflict, Message: err.Error()})
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Code: CodeInternalError, Message: "internal server error"})
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}
