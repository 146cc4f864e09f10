package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/Caldeiraaf/ipywidgets/internal/classload"
	"github.com/Caldeiraaf/ipywidgets/internal/widgets"
	"github.com/Caldeiraaf/ipywidgets/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusForError maps well-known manager errors to HTTP status codes. The
// predicates see through wrapped and joined errors, so a multi-entry state
// load surfaces the most specific failure it contains.
func statusForError(err error) int {
	switch {
	case widgets.IsModelNotFound(err), classload.IsClassNotFound(err):
		return http.StatusNotFound
	case widgets.IsKernelWaitTimeout(err), widgets.IsStateRequestTimeout(err):
		return http.StatusGatewayTimeout
	case widgets.IsInvalidSpec(err):
		return http.StatusUnprocessableEntity
	case widgets.IsClosed(err):
		return http.StatusServiceUnavailable
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeServiceError maps err and writes it.
func writeServiceError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusForError(err), err.Error())
}
