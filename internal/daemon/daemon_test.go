package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rizal/tether/internal/config"
	"github.com/rizal/tether/internal/logger"
	"github.com/rizal/tether/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Logging.File = filepath.Join(cfg.DataDir, "tether.log")
	cfg.Status.Enabled = false
	return cfg
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Console: false})
	require.NoError(t, err)
	return log
}

func newTestDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()
	configPath := filepath.Join(cfg.DataDir, "tether.json")
	require.NoError(t, config.NewLoader(configPath).Save(cfg))

	d, err := New(cfg, testLogger(t), configPath)
	require.NoError(t, err)
	return d
}

func TestNewDaemon(t *testing.T) {
	d := newTestDaemon(t, testConfig(t))

	assert.NotNil(t, d.GetSession())
	assert.NotNil(t, d.GetBridge())
	assert.NotNil(t, d.GetConfig())
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testConfig(t)
	d := newTestDaemon(t, cfg)

	require.NoError(t, d.Start())

	// PID file exists while running
	pidFile := filepath.Join(cfg.DataDir, "tether.pid")
	_, err := os.Stat(pidFile)
	assert.NoError(t, err)

	// Double start is rejected
	assert.Error(t, d.Start())

	status := d.Status()
	assert.True(t, status.Running)

	require.NoError(t, d.Stop())

	// PID file is removed on stop
	_, err = os.Stat(pidFile)
	assert.True(t, os.IsNotExist(err))

	// Double stop is rejected
	assert.Error(t, d.Stop())
}

func TestDaemonStaysOfflineWithoutToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.Proxy.AuthToken = ""

	d := newTestDaemon(t, cfg)
	require.NoError(t, d.Start())
	defer d.Stop()

	status := d.Status()
	assert.Equal(t, session.StatusIdle.String(), status.Connection)
}

func TestDaemonReloadAddsTokenWhileOffline(t *testing.T) {
	cfg := testConfig(t)
	cfg.Proxy.AuthToken = ""

	d := newTestDaemon(t, cfg)
	t.Cleanup(d.GetSession().Close)

	st, _ := d.GetSession().Status()
	require.Equal(t, session.StatusIdle, st)

	updated := *cfg
	updated.Proxy.URL = "wss://127.0.0.1:1/ws"
	updated.Proxy.AuthToken = "fresh-token"

	d.handleConfigReload(&updated)

	// The dial target is dead; any of Connecting/Error/Reconnecting proves
	// the connection attempt started.
	assert.Eventually(t, func() bool {
		st, _ := d.GetSession().Status()
		return st != session.StatusIdle
	}, 2*time.Second, 5*time.Millisecond, "reload that adds a token must start a connection attempt")

	assert.Equal(t, "fresh-token", d.GetConfig().Proxy.AuthToken)
}

func TestDaemonStatusSnapshot(t *testing.T) {
	d := newTestDaemon(t, testConfig(t))

	status := d.Status()
	assert.False(t, status.Running)
	assert.Zero(t, status.Uptime)
	assert.Equal(t, session.StatusIdle.String(), status.Connection)
}
