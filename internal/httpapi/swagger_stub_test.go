//go:build !swagger

package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Without the swagger build tag MountSwagger must leave the router alone.
func TestMountSwaggerStubAddsNoRoutes(t *testing.T) {
	r := chi.NewRouter()
	MountSwagger(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("stub should leave /swagger unrouted, got %d", rec.Code)
	}
}
