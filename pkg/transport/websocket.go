// Package transport provides the WebSocket connection to the relay proxy.
// It covers dialing, serialized writes, and graceful closure; connection
// lifecycle policy lives in pkg/session.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Default connection constants.
const (
	DefaultDialTimeout    = 10 * time.Second
	DefaultWriteWait      = 10 * time.Second
	DefaultMaxMessageSize = 16 * 1024 * 1024 // 16MB
	DefaultCloseGrace     = 5 * time.Second
)

// CloseNormalClosure is the close code for operator-initiated shutdown.
const CloseNormalClosure = websocket.CloseNormalClosure

// CloseStatus extracts the close code and reason from a read error, when the
// peer sent a close frame.
func CloseStatus(err error) (code int, reason string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

// Conn is a single established socket. Writes are safe for concurrent use;
// ReadMessage must be called from one goroutine.
type Conn interface {
	// ReadMessage blocks until the next data frame arrives.
	ReadMessage() ([]byte, error)
	// WriteJSON encodes v and writes it as a single text frame.
	WriteJSON(v interface{}) error
	// Close writes a close frame with the given code and tears the socket down.
	Close(code int, reason string) error
}

// Dialer opens connections to the proxy.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	DialTimeout    time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	CloseGrace     time.Duration
}

// NewDialer creates a dialer with default timeouts.
func NewDialer() *WebsocketDialer {
	return &WebsocketDialer{
		DialTimeout:    DefaultDialTimeout,
		WriteWait:      DefaultWriteWait,
		MaxMessageSize: DefaultMaxMessageSize,
		CloseGrace:     DefaultCloseGrace,
	}
}

// Dial opens a WebSocket connection to rawURL.
func (d *WebsocketDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.DialTimeout,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
	}

	conn, resp, err := dialer.DialContext(ctx, rawURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	conn.SetReadLimit(d.MaxMessageSize)

	return &wsConn{
		conn:       conn,
		writeWait:  d.WriteWait,
		closeGrace: d.CloseGrace,
	}, nil
}

type wsConn struct {
	conn       *websocket.Conn
	writeMu    sync.Mutex // serializes writes (gorilla/websocket requirement)
	writeWait  time.Duration
	closeGrace time.Duration
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType == websocket.TextMessage || msgType == websocket.BinaryMessage {
			return data, nil
		}
		// Control frames are handled by gorilla; skip anything else.
	}
}

func (c *wsConn) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close(code int, reason string) error {
	c.writeMu.Lock()
	closeMsg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.closeGrace))
	_ = c.conn.WriteMessage(websocket.CloseMessage, closeMsg)
	c.writeMu.Unlock()

	return c.conn.Close()
}

// AuthURL appends the credential as the auth_token query parameter on the
// connection URL, preserving any query parameters already configured.
func AuthURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid proxy URL: %w", err)
	}

	q := u.Query()
	q.Set("auth_token", token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
