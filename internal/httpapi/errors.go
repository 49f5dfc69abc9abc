package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"learnhub.org/internal/apperr"
	"learnhub.org/internal/obs"
)

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id,omitempty"`
}

// handleError maps err to its kind and writes the uniform error body.
// Internal errors are logged and their message replaced.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	msg := err.Error()
	if kind == apperr.KindInternal {
		obs.Logger().Error("request failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal error"
	}
	writeError(w, r, kind, msg)
}

func writeError(w http.ResponseWriter, r *http.Request, kind apperr.Kind, msg string) {
	writeErrorStatus(w, r, apperr.HTTPStatus(kind), string(kind), msg)
}

func writeErrorStatus(w http.ResponseWriter, r *http.Request, code int, kind, msg string) {
	writeJSON(w, code, errorResponse{
		Error:     msg,
		Kind:      kind,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeErrorStatus(w, r, http.StatusMethodNotAllowed, string(apperr.KindInvalidInput), "method not allowed")
}
