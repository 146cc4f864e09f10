// Package httpapi exposes the widget daemon over HTTP: state snapshots and
// loads, manual saves, model listings, health and metrics. Handlers stay
// thin; everything stateful lives behind the Service interface.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Caldeiraaf/ipywidgets/pkg/types"
)

// Service is what the daemon exposes to the HTTP surface.
type Service interface {
	ListModels() []types.ModelSummary
	Status() types.StatusResponse
	GetState(ctx context.Context, opts types.GetStateOptions) (types.StateMap, error)
	SetState(ctx context.Context, state types.StateMap) error
	Save(ctx context.Context) (types.SaveResponse, error)
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Request ids, client addresses, panic recovery
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// State dumps compress well
	r.Use(middleware.Compress(5))
	if corsCfg.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsCfg.Origins,
			AllowedMethods: orDefault(corsCfg.Methods, []string{"GET", "PUT", "POST", "OPTIONS"}),
			AllowedHeaders: orDefault(corsCfg.Headers, []string{"Content-Type", "X-Log-Level"}),
		}))
	}
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: svc.ListModels()})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		opts := types.GetStateOptions{}
		if raw := r.URL.Query().Get("drop_defaults"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				incrementReject("bad_query")
				writeJSONError(w, http.StatusBadRequest, "drop_defaults must be a boolean")
				return
			}
			opts.DropDefaults = v
		}
		ctx, cancel := handlerContext(r)
		defer cancel()
		state, err := svc.GetState(ctx, opts)
		if err != nil {
			writeServiceError(w, err)
			logRequest(r, statusForError(err), start, "get state", err)
			return
		}
		writeJSON(w, http.StatusOK, types.StateFile{
			VersionMajor: types.StateVersionMajor,
			VersionMinor: types.StateVersionMinor,
			State:        state,
		})
		logRequest(r, http.StatusOK, start, "get state", nil)
	})

	r.Put("/state", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			incrementReject("content_type")
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var file types.StateFile
		if err := json.NewDecoder(r.Body).Decode(&file); err != nil {
			incrementReject("bad_json")
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if file.VersionMajor != 0 && file.VersionMajor != types.StateVersionMajor {
			incrementReject("state_version")
			writeJSONError(w, http.StatusUnprocessableEntity, "unsupported state format version")
			return
		}
		ctx, cancel := handlerContext(r)
		defer cancel()
		if err := svc.SetState(ctx, file.State); err != nil {
			// Client disconnects and shutdowns are not service failures.
			if r.Context().Err() != nil || daemonCtx.Err() != nil {
				return
			}
			writeServiceError(w, err)
			logRequest(r, statusForError(err), start, "set state", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"loaded": len(file.State)})
		logRequest(r, http.StatusOK, start, "set state", nil)
	})

	r.Post("/save", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, cancel := handlerContext(r)
		defer cancel()
		resp, err := svc.Save(ctx)
		if err != nil {
			if r.Context().Err() != nil || daemonCtx.Err() != nil {
				return
			}
			writeServiceError(w, err)
			logRequest(r, statusForError(err), start, "save", err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		logRequest(r, http.StatusOK, start, "save", nil)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("waiting"))
	})

	// Prometheus scrape endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// writeJSON encodes v with the canonical headers. Encoding errors at this
// point mean the response is already half-written; nothing useful remains
// to tell the client.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func orDefault(vals, fallback []string) []string {
	if len(vals) == 0 {
		return fallback
	}
	return vals
}
