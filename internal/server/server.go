// Package server exposes the federated nodes over a read-only HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/nicholasyager/dbt-loom/internal/dag"
	"github.com/nicholasyager/dbt-loom/internal/policy"
	"github.com/nicholasyager/dbt-loom/pkg/core"
)

// maxBodySize bounds POST bodies.
const maxBodySize = 1 << 20

// Source is the read side of a federation.
type Source interface {
	Nodes() map[string]core.Node
	Node(id string) (core.Node, bool)
	Projects() []string
}

// Config holds configuration for the API server.
type Config struct {
	Addr   string
	Source Source
	Logger *slog.Logger
}

// Server serves the node API.
type Server struct {
	addr   string
	source Source
	guard  *policy.Guard
	logger *slog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		addr:   cfg.Addr,
		source: cfg.Source,
		guard:  policy.NewGuard(cfg.Source),
		logger: logger,
	}
}

// Handler returns the router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Compress(5),
		s.requestLogger,
	)

	r.Get("/nodes", s.listNodes)
	r.Get("/nodes/{id}", s.getNode)
	r.Get("/nodes/{id}/lineage", s.getLineage)
	r.Get("/graph", s.getGraph)
	r.Get("/projects", s.listProjects)
	r.Post("/check", s.check)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

// Serve starts the server and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting API server", "addr", ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down API server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// listNodes returns nodes sorted by unique id. The package and
// resource_type query parameters filter the result.
func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) {
	pkg := r.URL.Query().Get("package")
	rt := r.URL.Query().Get("resource_type")

	nodes := s.source.Nodes()
	out := make([]core.Node, 0, len(nodes))
	for _, id := range slices.Sorted(maps.Keys(nodes)) {
		n := nodes[id]
		if pkg != "" && n.PackageName != pkg {
			continue
		}
		if rt != "" && string(n.ResourceType) != rt {
			continue
		}
		out = append(out, n)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, ok := s.source.Node(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("node %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) getLineage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	l, ok := dag.Build(s.source.Nodes()).Lineage(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("node %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// getGraph summarizes the dependency graph of every node.
func (s *Server) getGraph(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, dag.Build(s.source.Nodes()).Summary())
}

func (s *Server) listProjects(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.source.Projects())
}

// CheckRequest asks whether referencer may reference target. The referencer
// is given inline when it is a node of the host project, or by id when it is
// federated.
type CheckRequest struct {
	Referencer   *core.Node          `json:"referencer,omitempty"`
	ReferencerID string              `json:"referencer_id,omitempty"`
	Target       string              `json:"target"`
	Dependencies policy.Dependencies `json:"dependencies,omitempty"`
}

func (s *Server) check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	var referencer core.Node
	switch {
	case req.Referencer != nil:
		referencer = *req.Referencer
	case req.ReferencerID != "":
		n, ok := s.source.Node(req.ReferencerID)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("node %q not found", req.ReferencerID))
			return
		}
		referencer = n
	default:
		writeError(w, http.StatusBadRequest, "referencer or referencer_id is required")
		return
	}

	target, ok := s.source.Node(req.Target)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("node %q not found", req.Target))
		return
	}

	writeJSON(w, http.StatusOK, s.guard.Check(referencer, target, req.Dependencies))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
