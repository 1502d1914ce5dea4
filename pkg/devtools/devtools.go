package devtools

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/statecell/internal/errors"
	"github.com/vango-dev/statecell/pkg/store"
	"github.com/vango-dev/statecell/pkg/stream"
)

// maxPatchBytes bounds the body of a patch request.
const maxPatchBytes = 1 << 20

// Option configures a Server.
type Option func(*options)

type options struct {
	allowPatch bool
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
}

// AllowPatch enables POST /patch.
func AllowPatch(allow bool) Option {
	return func(o *options) { o.allowPatch = allow }
}

// WithGatherer sets the registry served on /metrics. Defaults to
// prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *options) { o.gatherer = g }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Server inspects a single store.
type Server[S any] struct {
	store  *store.Store[S]
	opts   options
	logger *slog.Logger
	hub    *hub
	sub    *stream.Subscription
	router chi.Router
}

// StateResponse is the body of GET /state and of successful patches.
type StateResponse[S any] struct {
	Store     string `json:"store"`
	ID        string `json:"id"`
	Destroyed bool   `json:"destroyed"`
	State     S      `json:"state"`
}

// New creates a server over s and starts forwarding its snapshots to
// WebSocket clients. Call Close to stop.
func New[S any](s *store.Store[S], opts ...Option) *Server[S] {
	o := options{gatherer: prometheus.DefaultGatherer, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	srv := &Server[S]{
		store:  s,
		opts:   o,
		logger: o.logger.With("component", "devtools", "store", s.Name()),
	}
	srv.hub = newHub(srv.logger)
	srv.router = srv.routes()

	srv.sub = s.Changes().Subscribe(stream.Observer[S]{
		Next: func(state S) {
			srv.hub.broadcast(MessageState, state)
		},
		Complete: func() {
			srv.hub.broadcast(MessageDestroyed, nil)
		},
	})
	return srv
}

func (srv *Server[S]) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/state", srv.handleState)
	r.Post("/patch", srv.handlePatch)
	r.Get("/ws", srv.handleWebSocket)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(srv.opts.gatherer, promhttp.HandlerOpts{}))
	return r
}

// Handler returns the HTTP handler.
func (srv *Server[S]) Handler() http.Handler {
	return srv.router
}

// Clients returns the number of connected WebSocket clients.
func (srv *Server[S]) Clients() int {
	return srv.hub.count()
}

// Close stops forwarding snapshots and disconnects every client.
func (srv *Server[S]) Close() {
	srv.sub.Unsubscribe()
	srv.hub.close()
}

func (srv *Server[S]) snapshot() StateResponse[S] {
	return StateResponse[S]{
		Store:     srv.store.Name(),
		ID:        srv.store.ID(),
		Destroyed: srv.store.Destroyed(),
		State:     srv.store.Get(),
	}
}

func (srv *Server[S]) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, srv.snapshot())
}

func (srv *Server[S]) handlePatch(w http.ResponseWriter, r *http.Request) {
	if !srv.opts.allowPatch {
		http.Error(w, "patching is disabled", http.StatusForbidden)
		return
	}
	if srv.store.Destroyed() {
		http.Error(w, "store is destroyed", http.StatusGone)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPatchBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	if err := srv.store.PatchJSON(string(body)); err != nil {
		srv.logger.Info("devtools patch rejected", "error", err)
		var se *errors.StoreError
		if stderrors.As(err, &se) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, se.FormatJSON())
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// Each request is a microtask boundary for debounced selectors.
	srv.store.Flush()
	writeJSON(w, http.StatusOK, srv.snapshot())
}

func (srv *Server[S]) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	c, err := srv.hub.upgrade(w, r)
	if err != nil {
		return
	}
	srv.hub.sendTo(c, MessageState, srv.store.Get())
	srv.hub.serve(c)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
