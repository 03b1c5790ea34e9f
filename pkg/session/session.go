// Package session owns the connection lifecycle to the relay proxy: the
// reconnecting state machine, the keep-alive loop, and dispatch of inbound
// commands. A Session holds at most one live transport handle, at most one
// pending reconnect timer, and runs the keep-alive loop exactly while
// connected.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rizal/tether/internal/metrics"
	"github.com/rizal/tether/internal/tracing"
	"github.com/rizal/tether/pkg/protocol"
	"github.com/rizal/tether/pkg/transport"
	"github.com/rs/zerolog"
)

// DefaultKeepAliveInterval is the period of the liveness probe.
const DefaultKeepAliveInterval = 25 * time.Second

// ErrNotConnected is returned by Send when no socket is open. The frame is
// dropped, never queued.
var ErrNotConnected = errors.New("socket is not open")

// CommandFunc handles one inbound HTTP command. The session invokes it in its
// own goroutine; there is no queueing or concurrency cap.
type CommandFunc func(ctx context.Context, id string, req *protocol.HTTPRequestPayload)

// Config holds session configuration
type Config struct {
	// ProxyURL is the relay endpoint (ws:// or wss://). The auth token is
	// appended as a query parameter at connect time.
	ProxyURL string

	// Dialer opens sockets. Defaults to the gorilla-based dialer.
	Dialer transport.Dialer

	// OnCommand receives inbound http_request commands. Optional.
	OnCommand CommandFunc

	// KeepAliveInterval is the ping period while connected.
	// Defaults to DefaultKeepAliveInterval.
	KeepAliveInterval time.Duration

	// Backoff policy for reconnect delays. Zero values use the defaults.
	BackoffFloor   time.Duration
	BackoffCeiling time.Duration
	BackoffJitter  time.Duration

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Session is the single connection-management unit. All socket, timer and
// status mutations happen under mu; inbound command execution and the
// keep-alive loop run in their own goroutines.
type Session struct {
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu             sync.Mutex
	status         Status
	detail         string
	token          string
	explicitClose  bool
	conn           transport.Conn
	connID         string
	gen            uint64
	reconnectTimer *time.Timer
	backoff        *Backoff
	keepAliveStop  chan struct{}

	obsMu    sync.Mutex
	observer StatusObserver

	notifyCh chan statusUpdate
	done     chan struct{}
	doneOnce sync.Once
}

type statusUpdate struct {
	status Status
	detail string
}

// New creates a session in the Idle state. No connection is attempted until
// Connect is called.
func New(cfg Config) *Session {
	if cfg.Dialer == nil {
		cfg.Dialer = transport.NewDialer()
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = DefaultKeepAliveInterval
	}

	s := &Session{
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "session").Logger(),
		metrics:  cfg.Metrics,
		status:   StatusIdle,
		backoff:  NewBackoff(cfg.BackoffFloor, cfg.BackoffCeiling, cfg.BackoffJitter),
		notifyCh: make(chan statusUpdate, 64),
		done:     make(chan struct{}),
	}

	go s.notifyLoop()

	return s
}

// Connect attempts to open the socket with the given token. An empty token is
// a configuration error: no transport is opened and the session moves to
// Error. Connect is a no-op while a connection cycle is already active.
func (s *Session) Connect(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token == "" {
		s.setStatusLocked(StatusError, "token required")
		return
	}

	switch s.status {
	case StatusIdle, StatusError, StatusDisconnected:
	default:
		s.logger.Warn().Str("status", s.status.String()).Msg("Connect ignored: session already active")
		return
	}

	s.token = token
	s.explicitClose = false
	s.cancelReconnectLocked()
	s.openLocked()
}

// SetProxyURL replaces the relay endpoint used by subsequent dial attempts.
// The current connection, if any, is unaffected.
func (s *Session) SetProxyURL(url string) {
	s.mu.Lock()
	s.cfg.ProxyURL = url
	s.mu.Unlock()
}

// Disconnect closes the current connection cycle. The close is marked as
// operator-initiated so no reconnect is scheduled. Safe to call in any state.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelReconnectLocked()
	s.stopKeepAliveLocked()

	switch {
	case s.conn != nil:
		// The resulting close event yields Idle.
		s.explicitClose = true
		_ = s.conn.Close(transport.CloseNormalClosure, "client disconnect")

	case s.status == StatusConnecting:
		// Abandon the in-flight dial; its result will be discarded.
		s.gen++
		s.explicitClose = false
		s.setStatusLocked(StatusIdle, "")

	default:
		s.explicitClose = false
		if s.status != StatusIdle {
			s.setStatusLocked(StatusIdle, "")
		}
	}
}

// RegisterStatusObserver registers the single status observer, replacing any
// previous one; nil clears it. A newly registered observer immediately
// receives the current status.
func (s *Session) RegisterStatusObserver(fn StatusObserver) {
	s.obsMu.Lock()
	s.observer = fn
	s.obsMu.Unlock()

	if fn != nil {
		status, detail := s.Status()
		fn(status, detail)
	}
}

// Status returns the current status and its detail string.
func (s *Session) Status() (Status, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.detail
}

// Send writes one outbound frame. If no socket is open the frame is dropped
// and ErrNotConnected is returned; frames are never queued.
func (s *Session) Send(v interface{}) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		s.logger.Debug().Msg("Dropping outbound frame: socket not open")
		return ErrNotConnected
	}

	return conn.WriteJSON(v)
}

// Close releases the session's background resources. It disconnects first.
func (s *Session) Close() {
	s.Disconnect()
	s.doneOnce.Do(func() { close(s.done) })
}

// openLocked starts a dial attempt for a new socket generation.
func (s *Session) openLocked() {
	s.gen++
	gen := s.gen

	s.setStatusLocked(StatusConnecting, "")

	url, err := transport.AuthURL(s.cfg.ProxyURL, s.token)
	if err != nil {
		s.handleDialErrorLocked(gen, err)
		return
	}

	go func() {
		conn, err := s.cfg.Dialer.Dial(context.Background(), url)
		if err != nil {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.handleDialErrorLocked(gen, err)
			return
		}
		s.handleOpened(gen, conn)
	}()
}

func (s *Session) handleOpened(gen uint64, conn transport.Conn) {
	s.mu.Lock()

	if gen != s.gen {
		// A disconnect or newer attempt superseded this dial.
		s.mu.Unlock()
		_ = conn.Close(transport.CloseNormalClosure, "superseded")
		return
	}

	s.conn = conn
	s.connID, _ = gonanoid.New()
	s.backoff.Reset()
	s.cancelReconnectLocked()

	if s.metrics != nil {
		s.metrics.ConnectsTotal.Inc()
	}

	s.logger.Info().Str("conn_id", s.connID).Msg("Connected to proxy")
	s.setStatusLocked(StatusConnected, "")
	s.startKeepAliveLocked()
	s.mu.Unlock()

	go s.readLoop(gen, conn)
}

func (s *Session) handleDialErrorLocked(gen uint64, err error) {
	if gen != s.gen {
		return
	}

	s.logger.Error().Err(err).Msg("Failed to open socket")
	s.setStatusLocked(StatusError, err.Error())
	s.scheduleReconnectLocked()
}

// readLoop reads frames until the socket errors out, then reports the close.
func (s *Session) readLoop(gen uint64, conn transport.Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.handleClosed(gen, err)
			return
		}
		s.dispatch(data)
	}
}

func (s *Session) handleClosed(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		// Close event from a superseded socket; already handled.
		return
	}

	s.conn = nil
	s.stopKeepAliveLocked()

	if s.explicitClose {
		s.explicitClose = false
		s.logger.Info().Str("conn_id", s.connID).Msg("Disconnected")
		s.setStatusLocked(StatusIdle, "")
		return
	}

	detail := "connection closed"
	if code, reason, ok := transport.CloseStatus(err); ok {
		detail = fmt.Sprintf("closed with code %d", code)
		if reason != "" {
			detail += ": " + reason
		}
	} else if err != nil {
		detail = err.Error()
	}

	s.logger.Warn().Str("conn_id", s.connID).Str("reason", detail).Msg("Connection lost")
	s.setStatusLocked(StatusDisconnected, detail)
	s.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the reconnect timer with the next backoff
// delay. A close event while a timer is already pending is a duplicate and is
// ignored.
func (s *Session) scheduleReconnectLocked() {
	if s.reconnectTimer != nil {
		return
	}
	if s.explicitClose || s.token == "" {
		s.explicitClose = false
		s.setStatusLocked(StatusIdle, "")
		return
	}

	delay := s.backoff.Next()

	if s.metrics != nil {
		s.metrics.ReconnectsTotal.Inc()
		s.metrics.ReconnectDelaySeconds.Set(delay.Seconds())
	}

	s.reconnectTimer = time.AfterFunc(delay, s.onReconnectTimer)
	s.setStatusLocked(StatusReconnecting, fmt.Sprintf("retrying in %s", delay.Round(time.Millisecond)))
}

func (s *Session) onReconnectTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reconnectTimer = nil

	if s.token == "" {
		s.setStatusLocked(StatusIdle, "token unavailable")
		return
	}
	if s.explicitClose {
		s.explicitClose = false
		s.setStatusLocked(StatusIdle, "")
		return
	}

	s.openLocked()
}

func (s *Session) cancelReconnectLocked() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

// dispatch routes one inbound frame. Malformed frames and unknown types are
// logged and dropped without affecting connection state.
func (s *Session) dispatch(data []byte) {
	in, err := protocol.Decode(data)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, protocol.ErrUnknownType) {
			reason = "unknown_type"
		}
		if s.metrics != nil {
			s.metrics.FramesDroppedTotal.WithLabelValues(reason).Inc()
		}
		s.logger.Warn().Err(err).Msg("Dropping inbound frame")
		return
	}

	switch in.Type {
	case protocol.TypePong:
		// Liveness reply; parsed and discarded. There is no missed-pong
		// timeout.
		s.logger.Debug().Msg("Received pong")

	case protocol.TypeHTTPRequest:
		if s.cfg.OnCommand == nil {
			return
		}

		s.mu.Lock()
		connID := s.connID
		s.mu.Unlock()

		ctx := tracing.WithTraceID(context.Background(), tracing.NewTraceID())
		ctx = tracing.WithConnID(ctx, connID)
		ctx = tracing.WithCommandID(ctx, in.ID)

		// One independent task per command, no cap.
		go s.cfg.OnCommand(ctx, in.ID, in.Request)
	}
}

func (s *Session) setStatusLocked(status Status, detail string) {
	s.status = status
	s.detail = detail

	if s.metrics != nil {
		s.metrics.ConnectionStatus.Set(float64(status))
	}

	select {
	case s.notifyCh <- statusUpdate{status: status, detail: detail}:
	default:
		s.logger.Warn().Str("status", status.String()).Msg("Status notification dropped: observer too slow")
	}
}

// notifyLoop delivers status updates to the registered observer in order.
func (s *Session) notifyLoop() {
	for {
		select {
		case <-s.done:
			return
		case u := <-s.notifyCh:
			s.obsMu.Lock()
			obs := s.observer
			s.obsMu.Unlock()
			if obs != nil {
				obs(u.status, u.detail)
			}
		}
	}
}
