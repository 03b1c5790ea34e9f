package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rizal/tether/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/rs/zerolog"
)

func newTestStatusServer(t *testing.T) *StatusServer {
	t.Helper()
	d := newTestDaemon(t, testConfig(t))

	return NewStatusServer(StatusServerConfig{
		Host:    "127.0.0.1",
		Port:    0,
		Daemon:  d,
		Metrics: metrics.New(),
		Logger:  zerolog.Nop(),
	})
}

func TestStatusServerHealthz(t *testing.T) {
	s := newTestStatusServer(t)

	rec := httptest.NewRecorder()
	s.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestStatusServerStatus(t *testing.T) {
	s := newTestStatusServer(t)

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Running)
	assert.Equal(t, "idle", resp.Connection)
}

func TestStatusServerStartStop(t *testing.T) {
	s := newTestStatusServer(t)

	require.NoError(t, s.Start())
	assert.NoError(t, s.Stop())
}
