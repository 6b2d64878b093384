package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hudlink/internal/config"
	"hudlink/internal/operations"
	"hudlink/internal/services"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.Server.RateLimit.Enabled = false
	cfg.Pipeline.States = []string{"FL"}
	cfg.Pipeline.Years = []int{2023}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func serve(a *Application, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)
	return rec
}

func TestNew_CreatesOutputDirAndServer(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	info, err := os.Stat(cfg.Paths.OutputDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NotNil(t, a.Server)
	assert.Equal(t, ":8080", a.Server.Addr)
	assert.Equal(t, cfg.Server.ReadTimeout, a.Server.ReadTimeout)
	assert.NotNil(t, a.Manager)
	assert.NotNil(t, a.RunService)
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	assert.Equal(t, http.StatusOK, serve(a, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, serve(a, http.MethodGet, "/readyz", "").Code)
	assert.Equal(t, http.StatusOK, serve(a, http.MethodGet, "/api/v1/version", "").Code)

	rec := serve(a, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRouter_UnknownRoutes(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	rec := serve(a, http.MethodGet, "/api/v1/nothing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "json")

	rec = serve(a, http.MethodPut, "/api/v1/runs", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_RunWithMissingInputsFailsUnit(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	rec := serve(a, http.MethodPost, "/api/v1/runs", `{"states":["FL"],"years":[2023]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var started services.RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	final, err := a.RunService.Wait(ctx, started.ID)
	require.NoError(t, err)

	assert.Equal(t, operations.OperationStatusFailed, final.Status)
	require.Len(t, final.Units, 1)
	assert.NotEmpty(t, final.Units[0].Error)

	// nothing is committed for a failed unit
	_, err = os.Stat(filepath.Join(cfg.Paths.OutputDir, "FL", "FL_2023"))
	assert.True(t, os.IsNotExist(err))
}

func TestStop_RejectsNewRuns(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	require.NoError(t, a.Stop(context.Background()))

	_, err := a.RunService.Start(context.Background(), services.RunRequest{States: []string{"FL"}, Years: []int{2023}})
	assert.ErrorIs(t, err, services.ErrServiceStopping)
}
