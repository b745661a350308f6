package mockserver

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"inferclient/internal/logging"
)

// requestLogLevel applies per-request overrides: query ?log=<level> (or
// ?log=1 for debug) and header X-Log-Level.
func requestLogLevel(r *http.Request, def logging.Level) logging.Level {
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return logging.LevelDebug
		}
		return logging.ParseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return logging.ParseLevel(v)
	}
	return def
}

// event returns a log event at info (or debug) when the request level
// allows it, nil otherwise. zerolog treats nil events as no-ops.
func (s *server) event(r *http.Request, lvl logging.Level, debug bool) *zerolog.Event {
	var ev *zerolog.Event
	switch {
	case debug && lvl >= logging.LevelDebug:
		ev = s.log.Debug()
	case !debug && lvl >= logging.LevelInfo:
		ev = s.log.Info()
	default:
		return nil
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	return ev.Str("path", r.URL.Path)
}
