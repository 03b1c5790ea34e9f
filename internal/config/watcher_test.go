package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, path, proxyURL string) {
	t.Helper()
	content := `{"proxy": {"url": "` + proxyURL + `", "auth_token": "tok-test"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestWatcherReloadsOnChange(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tether.json")
	writeConfigFile(t, configPath, "wss://proxy-a.example.com/ws")

	var mu sync.Mutex
	var got *Config

	w, err := NewWatcher(WatcherConfig{
		Loader:             NewLoader(configPath),
		StabilityThreshold: 20 * time.Millisecond,
		OnReload: func(cfg *Config) {
			mu.Lock()
			got = cfg
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	writeConfigFile(t, configPath, "wss://proxy-b.example.com/ws")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil && got.Proxy.URL == "wss://proxy-b.example.com/ws"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherKeepsPreviousConfigOnInvalidChange(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tether.json")
	writeConfigFile(t, configPath, "wss://proxy-a.example.com/ws")

	var mu sync.Mutex
	reloads := 0

	w, err := NewWatcher(WatcherConfig{
		Loader:             NewLoader(configPath),
		StabilityThreshold: 20 * time.Millisecond,
		OnReload: func(cfg *Config) {
			mu.Lock()
			reloads++
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	// Invalid scheme fails validation so the callback never fires
	writeConfigFile(t, configPath, "https://proxy-b.example.com/ws")

	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, reloads)
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tether.json")
	writeConfigFile(t, configPath, "wss://proxy.example.com/ws")

	w, err := NewWatcher(WatcherConfig{
		Loader: NewLoader(configPath),
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
