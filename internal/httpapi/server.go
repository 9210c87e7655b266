// Package httpapi exposes the form builder over HTTP.
//
// Routes:
//
//	GET    /healthz
//	GET    /metrics
//	GET    /types
//	GET    /forms
//	POST   /forms                       create (optionally from a session)
//	POST   /forms/delete                delete several forms
//	GET    /forms/{id}
//	PUT    /forms/{id}                  save from a snapshot or session
//	DELETE /forms/{id}
//	GET    /forms/{id}/columns
//	GET    /forms/{id}/html             cached presentation
//	POST   /forms/{id}/rebuild
//	POST   /forms/{id}/session          start editing an existing form
//	GET    /sessions/{sid}
//	PUT    /sessions/{sid}
//	DELETE /sessions/{sid}
//	POST   /sessions/{sid}/fields       add a field under a minted key
//	PUT    /sessions/{sid}/fields/{key}
//	DELETE /sessions/{sid}/fields/{key} mark deleted
//	(the same three for /actions)
package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/formforge/internal/form"
	"github.com/roach88/formforge/internal/registry"
	"github.com/roach88/formforge/internal/schema"
	"github.com/roach88/formforge/internal/session"
)

// FormService is the builder behavior the handlers depend on.
type FormService interface {
	Save(ctx context.Context, f *form.Form, snap *session.Snapshot) (*form.Form, error)
	SaveWithSession(ctx context.Context, f *form.Form, sessionID string) (*form.Form, error)
	EditSession(ctx context.Context, id int64) (string, *session.Snapshot, error)
	Load(ctx context.Context, id int64) (*form.Form, error)
	List(ctx context.Context) ([]*form.Form, error)
	Columns(ctx context.Context, id int64) ([]schema.ColumnSpec, error)
	Rebuild(ctx context.Context, id int64) (*schema.Result, error)
	Delete(ctx context.Context, id int64) (bool, error)
	DeleteMany(ctx context.Context, ids []int64) ([]int64, error)
	Sessions() session.Store
	Registry() *registry.Registry
}

// Server routes HTTP requests to a FormService.
type Server struct {
	forms   FormService
	minter  session.KeyMinter
	metrics http.Handler
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMinter sets the generator for new session keys. Default: UUIDs.
func WithMinter(m session.KeyMinter) Option {
	return func(s *Server) { s.minter = m }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New returns a Server for forms.
func New(forms FormService, opts ...Option) *Server {
	s := &Server{
		forms:  forms,
		minter: session.UUIDMinter{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	r.Get("/types", s.listTypes)

	r.Route("/forms", func(r chi.Router) {
		r.Get("/", s.listForms)
		r.Post("/", s.createForm)
		r.Post("/delete", s.deleteForms)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getForm)
			r.Put("/", s.saveForm)
			r.Delete("/", s.deleteForm)
			r.Get("/columns", s.columns)
			r.Get("/html", s.cachedHTML)
			r.Post("/rebuild", s.rebuild)
			r.Post("/session", s.editSession)
		})
	})

	r.Route("/sessions/{sid}", func(r chi.Router) {
		r.Get("/", s.getSession)
		r.Put("/", s.putSession)
		r.Delete("/", s.clearSession)

		r.Post("/fields", s.addEntry(fieldsSection))
		r.Put("/fields/{key}", s.putEntry(fieldsSection))
		r.Delete("/fields/{key}", s.deleteEntry(fieldsSection))
		r.Post("/actions", s.addEntry(actionsSection))
		r.Put("/actions/{key}", s.putEntry(actionsSection))
		r.Delete("/actions/{key}", s.deleteEntry(actionsSection))
	})
	return r
}
