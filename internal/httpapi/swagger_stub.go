//go:build !swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
)

// MountSwagger is compiled out by default; the swagger build tag swaps in
// the variant that serves the generated docs.
func MountSwagger(r chi.Router) {}
