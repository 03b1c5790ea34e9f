// Package bridge executes inbound HTTP commands and translates each outcome
// into exactly one outbound result sequence: a single buffered response, a
// stream_start/stream_chunk*/stream_end sequence, or an error report.
package bridge

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rizal/tether/internal/metrics"
	"github.com/rizal/tether/internal/tracing"
	"github.com/rizal/tether/pkg/protocol"
	"github.com/rs/zerolog"
)

// Defaults for the credential-stripping rule: GET calls to a models-listing
// endpoint must not forward the inbound key query parameter upstream.
const (
	DefaultSensitivePathSuffix = "/models"
	DefaultCredentialParam     = "key"
)

const readBufferSize = 32 * 1024

// maxErrorBodyBytes caps how much of a non-2xx upstream body is attached to
// the error frame; an unbounded error stream must not pin the command.
const maxErrorBodyBytes = 256 * 1024

// Sender delivers outbound frames. The session satisfies this; sends on a
// closed socket are dropped there, not here.
type Sender interface {
	Send(v interface{}) error
}

// Config holds bridge configuration
type Config struct {
	// Client performs the upstream calls. Defaults to a client without
	// timeout: an in-flight execution runs to completion and is never
	// cancelled by the connection layer.
	Client *http.Client

	// SensitivePathSuffix and CredentialParam tune the pre-processing rule.
	// Empty values use the defaults.
	SensitivePathSuffix string
	CredentialParam     string

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Bridge executes HTTP commands. Stateless apart from configuration; any
// number of commands may execute concurrently.
type Bridge struct {
	client          *http.Client
	sensitiveSuffix string
	credentialParam string
	logger          zerolog.Logger
	metrics         *metrics.Metrics
}

// New creates a new bridge
func New(cfg Config) *Bridge {
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.SensitivePathSuffix == "" {
		cfg.SensitivePathSuffix = DefaultSensitivePathSuffix
	}
	if cfg.CredentialParam == "" {
		cfg.CredentialParam = DefaultCredentialParam
	}

	return &Bridge{
		client:          cfg.Client,
		sensitiveSuffix: cfg.SensitivePathSuffix,
		credentialParam: cfg.CredentialParam,
		logger:          cfg.Logger.With().Str("component", "bridge").Logger(),
		metrics:         cfg.Metrics,
	}
}

// Execute performs one inbound command exactly once and emits its result
// sequence on out. It never panics or returns an error upward; every failure
// resolves into an error frame scoped to the command's correlation id.
func (b *Bridge) Execute(ctx context.Context, id string, req *protocol.HTTPRequestPayload, out Sender) {
	logger := tracing.LoggerFromContext(ctx, b.logger)
	method := strings.ToUpper(req.Method)
	start := time.Now()

	outcome := b.execute(ctx, logger, id, method, req, out)

	if b.metrics != nil {
		b.metrics.CommandsTotal.WithLabelValues(method, outcome).Inc()
		b.metrics.CommandDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
}

func (b *Bridge) execute(ctx context.Context, logger zerolog.Logger, id, method string, req *protocol.HTTPRequestPayload, out Sender) string {
	target := b.sanitizeURL(method, req.URL)

	// GET and HEAD never carry a body, regardless of what was supplied.
	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead && req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		logger.Warn().Err(err).Msg("Invalid HTTP command")
		b.sendError(logger, out, id, protocol.CodeFetchError, "fetch error", nil)
		return "error"
	}

	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}

	logger.Info().Str("method", method).Str("url", target).Msg("Executing HTTP command")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		logger.Warn().Err(err).Msg("HTTP command failed")
		b.sendError(logger, out, id, protocol.CodeFetchError, "fetch error", nil)
		return "error"
	}
	defer resp.Body.Close()

	headers := flattenHeaders(resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Attach the upstream response where recoverable; a failed body read
		// still reports what was received.
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		b.sendError(logger, out, id, protocol.CodeHTTPError, resp.Status, &protocol.HTTPResponsePayload{
			Status:  resp.StatusCode,
			Headers: headers,
			Body:    string(respBody),
		})
		return "error"
	}

	if resp.ContentLength >= 0 {
		return b.buffered(logger, out, id, resp, headers)
	}
	return b.stream(logger, out, id, resp, headers)
}

// buffered relays a response whose full length is known as a single frame.
func (b *Bridge) buffered(logger zerolog.Logger, out Sender, id string, resp *http.Response, headers map[string]string) string {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read response body")
		b.sendError(logger, out, id, protocol.CodeFetchError, "fetch error", nil)
		return "error"
	}

	b.send(logger, out, protocol.NewHTTPResponse(id, resp.StatusCode, headers, string(respBody)))
	return "response"
}

// stream relays a response of unknown length incrementally. Multi-byte
// characters split across chunk boundaries are carried over between reads and
// any residual partial character is flushed once the body completes.
func (b *Bridge) stream(logger zerolog.Logger, out Sender, id string, resp *http.Response, headers map[string]string) string {
	b.send(logger, out, protocol.NewStreamStart(id, resp.StatusCode, headers))

	var dec utf8Decoder
	buf := make([]byte, readBufferSize)

	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if chunk := dec.Decode(buf[:n]); chunk != "" {
				b.send(logger, out, protocol.NewStreamChunk(id, chunk))
				if b.metrics != nil {
					b.metrics.StreamChunksTotal.Inc()
				}
			}
		}
		if err != nil {
			if rest := dec.Flush(); rest != "" {
				b.send(logger, out, protocol.NewStreamChunk(id, rest))
				if b.metrics != nil {
					b.metrics.StreamChunksTotal.Inc()
				}
			}
			if err != io.EOF {
				logger.Warn().Err(err).Msg("Stream interrupted")
				b.sendError(logger, out, id, protocol.CodeFetchError, "fetch error", nil)
				return "error"
			}
			b.send(logger, out, protocol.NewStreamEnd(id))
			return "stream"
		}
	}
}

// sanitizeURL strips the credential query parameter from GET calls to the
// sensitive endpoint. The rewrite only affects the URL actually fetched; it
// is never reported back to the caller.
func (b *Bridge) sanitizeURL(method, raw string) string {
	if method != http.MethodGet {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if !strings.HasSuffix(u.Path, b.sensitiveSuffix) {
		return raw
	}

	q := u.Query()
	if _, ok := q[b.credentialParam]; !ok {
		return raw
	}

	q.Del(b.credentialParam)
	u.RawQuery = q.Encode()
	return u.String()
}

func (b *Bridge) send(logger zerolog.Logger, out Sender, frame protocol.Outbound) {
	if err := out.Send(frame); err != nil {
		// Connection dropped mid-execution. The frame is discarded and
		// execution continues to completion.
		logger.Debug().Err(err).Str("type", string(frame.Type)).Msg("Outbound frame dropped")
	}
}

func (b *Bridge) sendError(logger zerolog.Logger, out Sender, id, code, message string, resp *protocol.HTTPResponsePayload) {
	b.send(logger, out, protocol.NewError(id, code, message, resp))
}

func flattenHeaders(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for name, values := range h {
		headers[name] = strings.Join(values, ", ")
	}
	return headers
}
