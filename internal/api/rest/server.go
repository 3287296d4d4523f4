// Package rest provides the JSON control surface under /api.
package rest

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/openfm/internal/app/playback"
	"github.com/osa030/openfm/internal/app/state"
	"github.com/osa030/openfm/internal/infra/content"
)

// ControlTokenHeader carries the control token on mutating requests.
const ControlTokenHeader = "X-Control-Token"

// maxBodyBytes bounds request bodies; every body here is a small JSON object.
const maxBodyBytes = 64 << 10

// Server serves the REST API.
type Server struct {
	ctl     *playback.Controller
	store   *state.Store
	content content.Resolver
	token   string
	origins []string
}

// Option configures a Server.
type Option func(*Server)

// WithControlToken requires token on every mutating request.
func WithControlToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithAllowedOrigins enables CORS for the given origins ("*" allows any).
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithContent sets the resolver behind /api/audio.
func WithContent(r content.Resolver) Option {
	return func(s *Server) { s.content = r }
}

// New creates a REST server over the controller.
func New(ctl *playback.Controller, opts ...Option) *Server {
	s := &Server{ctl: ctl, store: ctl.Store()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes registers the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.cors())
		r.Get("/audio/{trackID}", s.handleAudio)

		r.Group(func(r chi.Router) {
			r.Use(middleware.NoCache)
			r.Get("/state", s.handleState)
			r.Get("/settings", s.handleSettings)
			r.Get("/library", s.handleLibrary)
			r.Get("/tokens", s.handleTokens)
			r.Get("/preferences", s.handlePreferences)
			r.Get("/obs/active", s.handleObsActive)

			r.Group(func(r chi.Router) {
				r.Use(s.requireToken)
				r.Post("/settings", s.handleUpdateSettings)
				r.Post("/library/scan", s.handleScan)
				r.Post("/preferences", s.handleApplyPreferences)
				r.Post("/playback/{action}", s.handlePlayback)
				r.Post("/obs/active", s.handleSetObsActive)
			})
		})
	})
}

// requireToken rejects requests without the control token when one is set.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got := r.Header.Get(ControlTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// cors returns the CORS middleware for the allowed origins. With none
// configured the API stays same-origin and no CORS headers are sent.
func (s *Server) cors() func(http.Handler) http.Handler {
	if len(s.origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Range", ControlTokenHeader},
		ExposedHeaders: []string{"Content-Length", "Content-Range"},
		MaxAge:         600,
	})
	c.Log = corsLogger{}
	return c.Handler
}

// corsLogger sends the middleware's decisions to the debug log.
type corsLogger struct{}

func (corsLogger) Printf(format string, v ...any) {
	zlog.Debug().Msgf("rest: cors: "+format, v...)
}

func originListed(allowed []string, origin string) bool {
	return slices.ContainsFunc(allowed, func(o string) bool {
		return o == "*" || strings.EqualFold(o, origin)
	})
}

// OriginAllowed reports whether a browser origin may use the API. The
// WebSocket upgrader shares this check.
func OriginAllowed(allowed []string, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if originListed(allowed, origin) {
		return true
	}
	// Same-origin pages are always allowed.
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// writeDispatchError maps a controller error to a status code.
func writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		zlog.Error().Msgf("rest: request failed: method=%s path=%s err=%v", r.Method, r.URL.Path, err)
	}
	writeError(w, status, err.Error())
}

// StatusFor returns the HTTP status for a controller error.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, playback.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, playback.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, playback.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errors.Mark(errors.Wrap(err, "invalid request body"), playback.ErrValidation)
	}
	return nil
}
