package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azazel75/clapshot/internal/config"
	"github.com/azazel75/clapshot/internal/database"
	"github.com/azazel75/clapshot/internal/pipeline/metadata"
	"github.com/azazel75/clapshot/internal/sessions"
)

func newTestServer(t *testing.T, queueSize int) (*Server, *config.Config, chan metadata.IncomingFile) {
	t.Helper()

	db, err := database.Connect(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{
		Port:             "0",
		URLBase:          "http://localhost:8095",
		DataDir:          t.TempDir(),
		UploadRatePerSec: 100,
		UploadBurst:      100,
		MaxUploadMB:      4,
	}
	require.NoError(t, cfg.EnsureDirs())

	var terminate atomic.Bool
	registry := sessions.NewRegistry(db, cfg.VideosDir(), cfg.UploadDir(), cfg.URLBase, &terminate)

	ingestQ := make(chan metadata.IncomingFile, queueSize)
	wsHandler := func(c echo.Context) error { return c.NoContent(http.StatusNotImplemented) }

	srv := NewServer(cfg, registry, wsHandler, ingestQ)
	return srv, cfg, ingestQ
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, 4)

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, 4)

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	return multipartUploadField(t, "fileupload", filename, content)
}

func multipartUploadField(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUploadStagesFileAndQueuesIt(t *testing.T) {
	srv, cfg, ingestQ := newTestServer(t, 4)

	body, contentType := multipartUpload(t, "clip.mp4", []byte("fake video content"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set("X-Remote-User-Id", "alice")

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Upload OK", rec.Body.String())

	incoming := <-ingestQ
	assert.Equal(t, "alice", incoming.UserID)
	assert.Equal(t, "clip.mp4", filepath.Base(incoming.Path))
	assert.True(t, pathWithin(cfg.UploadDir(), incoming.Path), "staged outside upload dir: %s", incoming.Path)

	content, err := os.ReadFile(incoming.Path)
	require.NoError(t, err)
	assert.Equal(t, "fake video content", string(content))
}

func TestUploadWithoutFileField(t *testing.T) {
	srv, _, _ := newTestServer(t, 4)

	body, contentType := multipartUploadField(t, "wrongfield", "clip.mp4", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRejectedWhenQueueFull(t *testing.T) {
	srv, cfg, ingestQ := newTestServer(t, 1)
	ingestQ <- metadata.IncomingFile{Path: "occupied"}

	body, contentType := multipartUpload(t, "clip.mp4", []byte("fake video content"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// The staged copy must not linger when the handoff fails.
	entries, err := os.ReadDir(cfg.UploadDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadBodyLimit(t *testing.T) {
	srv, _, _ := newTestServer(t, 4)

	big := make([]byte, 5<<20) // over the 4M test limit
	body, contentType := multipartUpload(t, "huge.mp4", big)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func pathWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !filepath.IsAbs(rel) && !startsWithDotDot(rel)
}

func startsWithDotDot(rel string) bool {
	return len(rel) >= 2 && rel[:2] == ".."
}
