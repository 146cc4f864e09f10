package httpapi

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, request logging is off.
var zlog *zerolog.Logger

// SetLogger installs the logger that request lines are written to.
func SetLogger(l zerolog.Logger) { zlog = &l }

// defaultVerbosity is read once at startup; individual requests may
// override it.
var defaultVerbosity = parseVerbosity(os.Getenv("WIDGETD_HTTP_LOG_LEVEL"))

// parseVerbosity maps a config string onto zerolog's levels. Empty and
// "off" disable request logging; unknown values land on info.
func parseVerbosity(s string) zerolog.Level {
	switch s {
	case "", "off":
		return zerolog.Disabled
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// verbosity resolves the level for one request. The ?log= query parameter
// wins over the X-Log-Level header, which wins over the daemon default.
// log=1 is shorthand for debug.
func verbosity(r *http.Request) zerolog.Level {
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return zerolog.DebugLevel
		}
		return parseVerbosity(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseVerbosity(v)
	}
	return defaultVerbosity
}

// logRequest emits one structured line per handled request when the
// resolved verbosity admits info, tagging the chi request id when present.
func logRequest(r *http.Request, status int, start time.Time, what string, err error) {
	if zlog == nil || verbosity(r) > zerolog.InfoLevel {
		return
	}
	ev := zlog.Info().Str("path", r.URL.Path).Int("status", status).Dur("dur", time.Since(start))
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg(what)
}
