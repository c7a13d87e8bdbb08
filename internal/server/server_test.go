package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EldroidTech/eldroid-ssg/internal/engine"
	"github.com/EldroidTech/eldroid-ssg/internal/logging"
	"github.com/EldroidTech/eldroid-ssg/internal/registry"
	"github.com/EldroidTech/eldroid-ssg/internal/types"
)

func quietLogger() logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LevelError,
		Format: "text",
		Output: io.Discard,
	})
}

func newTestServer(t *testing.T, opts Options) (*Server, *engine.Engine) {
	t.Helper()
	eng, err := engine.New(registry.NewComponentRegistry(), engine.Options{Logger: quietLogger()})
	require.NoError(t, err)
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	return New(eng, opts), eng
}

func applyChanges(t *testing.T, eng *engine.Engine, changes ...types.SourceChange) *engine.BuildSummary {
	t.Helper()
	summary, err := eng.ApplyChanges(context.Background(), changes)
	require.NoError(t, err)
	return summary
}

func pageChange(path, text string) types.SourceChange {
	return types.SourceChange{Path: path, Kind: types.KindContent, Change: types.ChangeAdded, Text: text}
}

func componentChange(path, text string) types.SourceChange {
	return types.SourceChange{Path: path, Kind: types.KindComponent, Change: types.ChangeAdded, Text: text}
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServeRenderedPageWithReloadScript(t *testing.T) {
	s, eng := newTestServer(t, Options{})
	applyChanges(t, eng,
		componentChange("footer.html", `<footer>fin</footer>`),
		pageChange("index.html", `<h1>Home</h1><c-footer/>`),
	)

	handler := s.Handler()

	for _, path := range []string{"/", "/index.html"} {
		rec := get(t, handler, path)
		require.Equal(t, http.StatusOK, rec.Code, "path %s", path)
		body := rec.Body.String()
		assert.Contains(t, body, "<h1>Home</h1><footer>fin</footer>")
		assert.Contains(t, body, `new WebSocket(proto + location.host + "/ws")`)
	}
}

func TestServeInjectsOverlayWhenDiagnosticsPresent(t *testing.T) {
	s, eng := newTestServer(t, Options{})
	applyChanges(t, eng, pageChange("index.html", `<c-ghost/>`))

	rec := get(t, s.Handler(), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "eldroid-unknown-component")
	assert.Contains(t, body, "eldroid-error-overlay")

	// Registering the missing component re-renders the page; the overlay
	// stops being injected once nothing is wrong anymore.
	applyChanges(t, eng, componentChange("ghost.html", `<span>boo</span>`))

	rec = get(t, s.Handler(), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body = rec.Body.String()
	assert.Contains(t, body, "<span>boo</span>")
	assert.NotContains(t, body, "eldroid-error-overlay")
}

func TestStaticFallback(t *testing.T) {
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "style.css"), []byte("body{margin:0}"), 0o644))

	s, eng := newTestServer(t, Options{StaticDir: static})
	applyChanges(t, eng, pageChange("index.html", `<h1>hi</h1>`))

	handler := s.Handler()

	rec := get(t, handler, "/style.css")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body{margin:0}", rec.Body.String())

	rec = get(t, handler, "/missing.css")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSiteIndexListsPagesWhenNoIndexPage(t *testing.T) {
	s, eng := newTestServer(t, Options{})
	applyChanges(t, eng,
		pageChange("about.html", `<p>about</p>`),
		pageChange("blog/post.md", "# Post\n"),
	)

	rec := get(t, s.Handler(), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<a href="/about.html">about</a>`)
	assert.Contains(t, body, `<a href="/blog/post.html">blog/post</a>`)
}

func TestPreviewRendersComponentInIsolation(t *testing.T) {
	s, eng := newTestServer(t, Options{})
	applyChanges(t, eng, componentChange("button.html", `<button>@{default("label", "Go")}@{label}</button>`))

	handler := s.Handler()

	rec := get(t, handler, "/preview/button")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<button>Go</button>")
	assert.Contains(t, body, "Preview: button")

	rec = get(t, handler, "/preview/missing")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	s, eng := newTestServer(t, Options{})
	applyChanges(t, eng, pageChange("index.html", `<h1>hi</h1>`))

	handler := s.Handler()

	rec := get(t, handler, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = get(t, handler, "/api/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_builds":1`)

	rec = get(t, handler, "/api/diagnostics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)
}

func TestAffectedEndpoint(t *testing.T) {
	s, eng := newTestServer(t, Options{})
	applyChanges(t, eng,
		componentChange("footer.html", `<footer>fin</footer>`),
		componentChange("layouts/base.html", `<main>@{yield}</main><c-footer/>`),
		pageChange("index.html", "---\nlayout: layouts/base\n---\n<h1>hi</h1>"),
		pageChange("about.html", `<p>standalone</p>`),
	)

	handler := s.Handler()

	rec := get(t, handler, "/api/affected?ids=footer")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"pages":["index"]`)
	assert.Contains(t, body, `"routes":["/"]`)
	assert.NotContains(t, body, "about")

	rec = get(t, handler, "/api/affected")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPageIDForPath(t *testing.T) {
	tests := []struct {
		path   string
		wantID string
		wantOK bool
	}{
		{"/", "index", true},
		{"/index.html", "index", true},
		{"/docs", "docs", true},
		{"/blog/post.html", "blog/post", true},
		{"/blog/", "blog/index", true},
		{"/../etc/passwd", "", false},
	}

	for _, tt := range tests {
		id, ok := pageIDForPath(tt.path)
		assert.Equal(t, tt.wantOK, ok, "path %s", tt.path)
		if tt.wantOK {
			assert.Equal(t, tt.wantID, id, "path %s", tt.path)
		}
	}
}

func TestInjectBeforeBodyClose(t *testing.T) {
	assert.Equal(t, "<body>x<!--f--></body>", injectBeforeBodyClose("<body>x</body>", "<!--f-->"))
	assert.Equal(t, "<body>x<!--f--></BODY>", injectBeforeBodyClose("<body>x</BODY>", "<!--f-->"))
	assert.Equal(t, "bare<!--f-->", injectBeforeBodyClose("bare", "<!--f-->"))
}

func TestCheckOrigin(t *testing.T) {
	s, _ := newTestServer(t, Options{Host: "localhost", Port: 9090})

	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"same host", "http://example.test:7777", "example.test:7777", true},
		{"configured addr", "http://localhost:9090", "other:1", true},
		{"loopback spelling", "http://127.0.0.1:9090", "other:1", true},
		{"foreign origin", "http://evil.example", "localhost:9090", false},
		{"missing origin", "", "localhost:9090", false},
		{"bad scheme", "file://localhost:9090", "localhost:9090", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, s.checkOrigin(req))
		})
	}
}
