// Package server exposes the metadata providers over HTTP.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/metagate/pkg/errors"
	"github.com/matzehuels/metagate/pkg/filter"
	"github.com/matzehuels/metagate/pkg/metadata"
)

const shutdownTimeout = 5 * time.Second

// Options configures a [Server].
type Options struct {
	Listen       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Resolvers are consulted in order; the first that recognizes a key
	// serves it.
	Resolvers []metadata.Resolver

	// Filters post-process responses. Nil runs none.
	Filters *filter.Registry

	Logger *log.Logger
}

// Server is the gateway's HTTP surface.
type Server struct {
	opts      Options
	logger    *log.Logger
	filters   *filter.Registry
	resolvers []metadata.Resolver
	router    chi.Router
}

// New validates opts and builds the router.
func New(opts Options) (*Server, error) {
	if len(opts.Resolvers) == 0 {
		return nil, errors.New(errors.ErrCodeNotConfigured, "no metadata sources configured")
	}
	seen := make(map[string]bool, len(opts.Resolvers))
	for _, r := range opts.Resolvers {
		if seen[r.Slug()] {
			return nil, errors.New(errors.ErrCodeInvalidInput, "duplicate source %q", r.Slug())
		}
		seen[r.Slug()] = true
	}
	s := &Server{
		opts:      opts,
		logger:    opts.Logger,
		filters:   opts.Filters,
		resolvers: opts.Resolvers,
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.filters == nil {
		s.filters = filter.NewBuilder(Points()...).Build()
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get(metadata.MetadataPath+"*", s.handleMetadata)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, errors.New(errors.ErrCodeNotFound, "no route for %s", r.URL.Path))
	})
	s.router = r
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is done, then shuts down gracefully. Provider caches
// are swept in the background while the server runs.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "listen on %s", s.opts.Listen)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	for _, r := range s.resolvers {
		r.StartAutoClean()
	}
	defer func() {
		for _, r := range s.resolvers {
			r.Close()
		}
	}()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("listening", "addr", ln.Addr().String(), "sources", len(s.resolvers))

	select {
	case err := <-errc:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
