// Package server is the development server: it serves the engine's rendered
// pages straight from memory with live reload over a websocket, so failed
// units keep serving their last good output while the error overlay points at
// what broke.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/EldroidTech/eldroid-ssg/internal/content"
	"github.com/EldroidTech/eldroid-ssg/internal/engine"
	"github.com/EldroidTech/eldroid-ssg/internal/logging"
	"github.com/EldroidTech/eldroid-ssg/internal/version"
)

// Options configures the dev server.
type Options struct {
	Host string
	Port int

	// StaticDir is served for requests that match no rendered page, so
	// stylesheets and images living next to the content sources still resolve.
	StaticDir string

	Logger logging.Logger
}

// Server serves rendered pages with live reload capability.
type Server struct {
	engine *engine.Engine
	opts   Options
	logger logging.Logger

	httpServer  *http.Server
	serverMutex sync.RWMutex

	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn

	shutdownOnce sync.Once
}

// New creates a dev server over an engine. The engine is shared with whatever
// drives builds; the server only reads from it.
func New(eng *engine.Engine, opts Options) *Server {
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if opts.Port == 0 {
		opts.Port = 8080
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger(logging.DefaultConfig()).WithComponent("server")
	}

	return &Server{
		engine:     eng,
		opts:       opts,
		logger:     logger,
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
	}
}

// Addr returns the host:port the server binds to.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
}

// Start runs the HTTP server until it is shut down or fails. The context
// bounds the websocket hub, not the listener; call Shutdown to stop serving.
func (s *Server) Start(ctx context.Context) error {
	go s.runHub(ctx)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:    s.Addr(),
		Handler: s.Handler(),
	}
	srv := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "dev server listening", "addr", srv.Addr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dev server: %w", err)
	}
	return nil
}

// Handler builds the route tree. Exposed so tests can drive the server
// through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/diagnostics", s.handleDiagnostics)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/affected", s.handleAffected)
	mux.HandleFunc("/preview/", s.handlePreview)
	mux.HandleFunc("/", s.handlePage)
	return s.withRequestLog(mux)
}

// Shutdown stops the HTTP listener and closes every websocket client.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.clientsMutex.Lock()
		for conn, client := range s.clients {
			close(client.send)
			_ = conn.Close(websocket.StatusNormalClosure, "server shutting down")
		}
		s.clients = make(map[*websocket.Conn]*Client)
		s.clientsMutex.Unlock()

		s.serverMutex.RLock()
		srv := s.httpServer
		s.serverMutex.RUnlock()

		if srv != nil {
			shutdownErr = srv.Shutdown(ctx)
		}
	})

	return shutdownErr
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start).String(),
		)
	})
}

// handlePage serves rendered pages from the engine's output store. HTML
// responses get the reload script and, when the last build produced
// diagnostics, the error overlay.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, ok := pageIDForPath(r.URL.Path)
	if ok {
		if out, found := s.engine.Page(id); found {
			page := injectLiveReload(out.HTML)
			if overlay := s.engine.Collector().Overlay(); overlay != "" {
				page = injectBeforeBodyClose(page, overlay)
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(page))
			return
		}
	}

	if s.serveStatic(w, r) {
		return
	}

	if id == "index" {
		s.serveSiteIndex(w)
		return
	}

	http.NotFound(w, r)
}

// serveSiteIndex lists every rendered page. Served at the root when the site
// has no index page of its own.
func (s *Server) serveSiteIndex(w http.ResponseWriter) {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head><title>Eldroid Dev Server</title></head>\n<body>\n<h1>Rendered pages</h1>\n<ul>\n")
	for _, page := range s.engine.Pages() {
		url := content.RouteURL(page.ID)
		fmt.Fprintf(&b, "<li><a href=%q>%s</a></li>\n", url, page.ID)
	}
	b.WriteString("</ul>\n</body>\n</html>\n")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(injectLiveReload(b.String())))
}

// serveStatic serves a non-page asset from StaticDir. Returns false when the
// request cannot be satisfied from disk.
func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) bool {
	if s.opts.StaticDir == "" {
		return false
	}

	rel := strings.TrimPrefix(r.URL.Path, "/")
	if rel == "" || strings.Contains(rel, "..") {
		return false
	}

	path := filepath.Join(s.opts.StaticDir, filepath.FromSlash(rel))
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	http.ServeFile(w, r, path)
	return true
}

// handlePreview renders a single component in isolation, bypassing the render
// cache so edits show immediately.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/preview/")
	if id == "" {
		http.Error(w, "component id required", http.StatusBadRequest)
		return
	}

	result, err := s.engine.RenderPreview(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	page := fmt.Sprintf(previewShell, id, result.HTML)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(injectLiveReload(page)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	metrics := s.engine.Metrics()
	health := map[string]any{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"version":    version.GetShortVersion(),
		"build_info": version.GetBuildInfo(),
		"checks": map[string]any{
			"registry": map[string]any{"status": "healthy", "components": len(s.engine.Registry().AllIDs())},
			"engine":   map[string]any{"status": "healthy", "generation": metrics.LastGeneration},
		},
	}

	s.writeJSON(w, health)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	diags := s.engine.Collector().All()
	entries := make([]map[string]any, 0, len(diags))
	for _, d := range diags {
		entries = append(entries, map[string]any{
			"kind":     d.Kind,
			"severity": d.Severity.String(),
			"unit":     d.UnitID,
			"file":     d.File,
			"line":     d.Line,
			"message":  d.Message,
		})
	}

	s.writeJSON(w, map[string]any{
		"diagnostics": entries,
		"count":       len(entries),
		"timestamp":   time.Now().Unix(),
	})
}

// handleAffected answers which page routes a set of component changes would
// invalidate, e.g. /api/affected?ids=ui/button,footer. Tooling uses it to
// refresh only the routes a pending edit touches.
func (s *Server) handleAffected(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw := r.URL.Query().Get("ids")
	if raw == "" {
		http.Error(w, "ids query parameter required", http.StatusBadRequest)
		return
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	pages := s.engine.AffectedPages(ids)
	routes := make([]string, 0, len(pages))
	for _, id := range pages {
		routes = append(routes, content.RouteURL(id))
	}

	s.writeJSON(w, map[string]any{
		"changed": ids,
		"pages":   pages,
		"routes":  routes,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m := s.engine.Metrics()
	s.writeJSON(w, map[string]any{
		"total_builds":     m.TotalBuilds,
		"total_rendered":   m.TotalRendered,
		"total_cache_hits": m.TotalCacheHits,
		"total_failures":   m.TotalFailures,
		"average_duration": m.AverageDuration.String(),
		"last_generation":  m.LastGeneration,
		"last_summary":     m.LastSummary,
		"timestamp":        time.Now().Unix(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn(context.Background(), err, "failed to encode response")
	}
}

// pageIDForPath maps a request path to a page identifier, inverting
// content.RouteURL. Paths with a trailing slash resolve to the directory's
// index page.
func pageIDForPath(path string) (string, bool) {
	path = strings.TrimPrefix(path, "/")
	if strings.Contains(path, "..") {
		return "", false
	}
	if path == "" || strings.HasSuffix(path, "/") {
		path += "index"
	}
	path = strings.TrimSuffix(path, ".html")
	if path == "" {
		return "", false
	}
	return path, true
}
