package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rizal/tether/internal/config"
	"github.com/rizal/tether/internal/logger"
	"github.com/rizal/tether/internal/metrics"
	"github.com/rizal/tether/pkg/bridge"
	"github.com/rizal/tether/pkg/protocol"
	"github.com/rizal/tether/pkg/session"
	"github.com/rizal/tether/pkg/transport"
)

// Daemon represents the Tether agent service
type Daemon struct {
	config     *config.Config
	configPath string
	logger     *logger.Logger

	// Core modules
	metrics *metrics.Metrics
	session *session.Session
	bridge  *bridge.Bridge

	// Services
	statusServer  *StatusServer
	configWatcher *config.Watcher

	// Internal
	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	// Set while waiting for an in-flight disconnect to settle before
	// reconnecting with fresh settings.
	pendingToken string
}

// New creates a new daemon instance. configPath is the file the daemon
// watches for hot reload; empty means the default location.
func New(cfg *config.Config, log *logger.Logger, configPath string) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config:     cfg,
		logger:     log,
		configPath: configPath,
		ctx:        ctx,
		cancel:     cancel,
	}

	if err := d.initializeCoreModules(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// initializeCoreModules initializes the session and the execution bridge
func (d *Daemon) initializeCoreModules() error {
	d.metrics = metrics.New()
	d.logger.Info().Msg("Metrics registry initialized")

	var client *http.Client
	if d.config.Bridge.TimeoutSeconds > 0 {
		client = &http.Client{Timeout: time.Duration(d.config.Bridge.TimeoutSeconds) * time.Second}
	}

	d.bridge = bridge.New(bridge.Config{
		Client:              client,
		SensitivePathSuffix: d.config.Bridge.SensitivePathSuffix,
		CredentialParam:     d.config.Bridge.CredentialParam,
		Logger:              d.logger.GetZerolog(),
		Metrics:             d.metrics,
	})
	d.logger.Info().Msg("Execution bridge initialized")

	d.session = session.New(session.Config{
		ProxyURL:          d.config.Proxy.URL,
		Dialer:            transport.NewDialer(),
		OnCommand:         d.handleCommand,
		KeepAliveInterval: time.Duration(d.config.KeepAlive.IntervalSeconds) * time.Second,
		BackoffFloor:      time.Duration(d.config.Reconnect.FloorSeconds) * time.Second,
		BackoffCeiling:    time.Duration(d.config.Reconnect.CeilingSeconds) * time.Second,
		BackoffJitter:     time.Duration(d.config.Reconnect.JitterMs) * time.Millisecond,
		Logger:            d.logger.GetZerolog(),
		Metrics:           d.metrics,
	})
	d.session.RegisterStatusObserver(d.handleStatusChange)
	d.logger.Info().Msg("Proxy session initialized")

	return nil
}

// initializeServices initializes the status server and the config watcher
func (d *Daemon) initializeServices() error {
	if d.config.Status.Enabled {
		d.statusServer = NewStatusServer(StatusServerConfig{
			Host:    d.config.Status.Host,
			Port:    d.config.Status.Port,
			Daemon:  d,
			Metrics: d.metrics,
			Logger:  d.logger.GetZerolog(),
		})
		d.logger.Info().Int("port", d.config.Status.Port).Msg("Status server initialized")
	}

	watcher, err := config.NewWatcher(config.WatcherConfig{
		Loader:   config.NewLoader(d.configPath),
		OnReload: d.handleConfigReload,
	})
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	d.configWatcher = watcher

	return nil
}

// handleCommand executes one inbound HTTP command through the bridge
func (d *Daemon) handleCommand(ctx context.Context, id string, req *protocol.HTTPRequestPayload) {
	d.bridge.Execute(ctx, id, req, d.session)
}

// handleStatusChange reacts to connection state transitions
func (d *Daemon) handleStatusChange(status session.Status, detail string) {
	d.logger.Info().
		Str("status", status.String()).
		Str("detail", detail).
		Msg("Connection status changed")

	if status != session.StatusIdle {
		return
	}

	// A pending reconfigure waits for the old connection to settle at Idle,
	// then connects with the new token.
	d.mu.Lock()
	token := d.pendingToken
	d.pendingToken = ""
	d.mu.Unlock()

	if token != "" {
		d.logger.Info().Msg("Reconnecting with updated settings")
		d.session.Connect(token)
	}
}

// handleConfigReload applies a changed config file to the running daemon
func (d *Daemon) handleConfigReload(cfg *config.Config) {
	d.mu.Lock()
	oldProxy := d.config.Proxy
	oldLevel := d.config.Logging.Level
	d.config = cfg
	d.mu.Unlock()

	if cfg.Logging.Level != oldLevel {
		if err := d.logger.SetLevel(cfg.Logging.Level); err != nil {
			d.logger.Warn().Err(err).Str("level", cfg.Logging.Level).Msg("Ignoring invalid log level")
		} else {
			d.logger.Info().Str("level", cfg.Logging.Level).Msg("Log level updated")
		}
	}

	if cfg.Proxy == oldProxy {
		return
	}

	d.logger.Info().Msg("Proxy settings changed, cycling connection")

	d.session.SetProxyURL(cfg.Proxy.URL)

	d.mu.Lock()
	d.pendingToken = cfg.Proxy.AuthToken
	d.mu.Unlock()

	d.session.Disconnect()

	// Disconnect on an already-idle session emits no transition, so the
	// observer never runs; connect here instead. Both paths consume
	// pendingToken under the mutex, so at most one Connect fires.
	if status, _ := d.session.Status(); status == session.StatusIdle {
		d.mu.Lock()
		token := d.pendingToken
		d.pendingToken = ""
		d.mu.Unlock()

		if token != "" {
			d.logger.Info().Msg("Reconnecting with updated settings")
			d.session.Connect(token)
		}
	}
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info().Msg("Starting Tether daemon")

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if d.statusServer != nil {
		if err := d.statusServer.Start(); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
		d.logger.Info().Msg("Status server started")
	}

	if err := d.configWatcher.Start(); err != nil {
		d.logger.Warn().Err(err).Msg("Config watcher unavailable, hot reload disabled")
	}

	if d.config.Proxy.AuthToken != "" {
		d.session.Connect(d.config.Proxy.AuthToken)
	} else {
		d.logger.Warn().Msg("No auth token configured, staying offline until one is provided")
	}

	d.logger.Info().Msg("Daemon started successfully")

	return nil
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping Tether daemon")

	if d.configWatcher != nil {
		if err := d.configWatcher.Stop(); err != nil {
			d.logger.Error().Err(err).Msg("Failed to stop config watcher")
		}
	}

	d.session.Close()
	d.logger.Info().Msg("Proxy session closed")

	if d.statusServer != nil {
		if err := d.statusServer.Stop(); err != nil {
			d.logger.Error().Err(err).Msg("Failed to stop status server")
		}
	}

	// Cancel context
	d.cancel()

	// Wait for goroutines to finish (with timeout)
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info().Msg("All goroutines stopped")
	case <-time.After(5 * time.Second):
		d.logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.lifecycle.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.logger.Info().Msg("Daemon stopped successfully")

	return nil
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	if d.session != nil {
		connStatus, detail := d.session.Status()
		status.Connection = connStatus.String()
		status.ConnectionDetail = detail
	}

	return status
}

// Wait waits for the daemon to stop
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetSession returns the proxy session
func (d *Daemon) GetSession() *session.Session {
	return d.session
}

// GetBridge returns the execution bridge
func (d *Daemon) GetBridge() *bridge.Bridge {
	return d.bridge
}

// Status represents daemon status
type Status struct {
	Running          bool
	Uptime           time.Duration
	StartTime        time.Time
	Connection       string
	ConnectionDetail string
}
