package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, artifactsDir string) *Server {
	t.Helper()
	cfg := DefaultServerConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ArtifactsDir = artifactsDir

	s, err := NewServer(cfg, prometheus.NewRegistry(), zerolog.Nop())
	require.NoError(t, err)
	return s
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, t.TempDir())

	rec := doRequest(s, "GET", "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestArtifactIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "analysis_output.json"), []byte(`{"meta":{}}`), 0o644))
	s := newTestServer(t, dir)

	rec := doRequest(s, "GET", "/artifacts")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Artifacts []map[string]any `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Artifacts, 3)

	assert.Equal(t, "analysis", body.Artifacts[0]["name"])
	assert.Equal(t, true, body.Artifacts[0]["available"])
	assert.Equal(t, "payload", body.Artifacts[1]["name"])
	assert.Equal(t, false, body.Artifacts[1]["available"])
	assert.Equal(t, "briefing", body.Artifacts[2]["name"])
	assert.Equal(t, false, body.Artifacts[2]["available"])
}

func TestGetArtifact(t *testing.T) {
	dir := t.TempDir()
	doc := `{"schema_version":"1.0"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent_payload.json"), []byte(doc), 0o644))
	s := newTestServer(t, dir)

	rec := doRequest(s, "GET", "/artifacts/payload")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, doc, rec.Body.String())
}

func TestGetArtifact_NotGenerated(t *testing.T) {
	s := newTestServer(t, t.TempDir())

	rec := doRequest(s, "GET", "/artifacts/analysis")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not generated yet")
}

func TestGetArtifact_UnknownName(t *testing.T) {
	s := newTestServer(t, t.TempDir())

	rec := doRequest(s, "GET", "/artifacts/secrets")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown artifact")
}

func TestUnknownRouteReturnsJSONError(t *testing.T) {
	s := newTestServer(t, t.TempDir())

	rec := doRequest(s, "GET", "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, t.TempDir())

	rec := doRequest(s, "POST", "/artifacts/analysis")
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter_total"})
	require.NoError(t, reg.Register(c))
	c.Inc()

	cfg := DefaultServerConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ArtifactsDir = t.TempDir()
	s, err := NewServer(cfg, reg, zerolog.Nop())
	require.NoError(t, err)

	rec := doRequest(s, "GET", "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_counter_total 1")
}
