package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rizal/tether/internal/metrics"
	"github.com/rs/zerolog"
)

// StatusServer exposes local observability endpoints: liveness, a JSON
// status snapshot, and Prometheus metrics. It binds to loopback by default
// and carries no authentication.
type StatusServer struct {
	server  *http.Server
	daemon  *Daemon
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// StatusServerConfig holds status server configuration
type StatusServerConfig struct {
	Host    string
	Port    int
	Daemon  *Daemon
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// NewStatusServer creates a new status server
func NewStatusServer(cfg StatusServerConfig) *StatusServer {
	s := &StatusServer{
		daemon:  cfg.Daemon,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.With().Str("component", "status_server").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", cfg.Metrics.Handler())

	s.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Start starts the status server
func (s *StatusServer) Start() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind status server: %w", err)
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Status server failed")
		}
	}()

	s.logger.Info().Str("addr", s.server.Addr).Msg("Status server listening")
	return nil
}

// Stop stops the status server gracefully
func (s *StatusServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *StatusServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// statusResponse is the JSON body served on /status
type statusResponse struct {
	Running          bool   `json:"running"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	StartTime        string `json:"start_time,omitempty"`
	Connection       string `json:"connection"`
	ConnectionDetail string `json:"connection_detail,omitempty"`
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status()

	resp := statusResponse{
		Running:          status.Running,
		UptimeSeconds:    int64(status.Uptime.Seconds()),
		Connection:       status.Connection,
		ConnectionDetail: status.ConnectionDetail,
	}
	if !status.StartTime.IsZero() {
		resp.StartTime = status.StartTime.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode status response")
	}
}
