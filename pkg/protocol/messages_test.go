package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHTTPRequest(t *testing.T) {
	raw := []byte(`{
		"type": "http_request",
		"id": "req-1",
		"payload": {
			"method": "POST",
			"url": "https://api.example.com/v1/chat",
			"headers": {"Content-Type": "application/json"},
			"body": "{\"q\":1}"
		}
	}`)

	in, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, TypeHTTPRequest, in.Type)
	assert.Equal(t, "req-1", in.ID)
	require.NotNil(t, in.Request)
	assert.Equal(t, "POST", in.Request.Method)
	assert.Equal(t, "https://api.example.com/v1/chat", in.Request.URL)
	assert.Equal(t, "application/json", in.Request.Headers["Content-Type"])
	assert.Equal(t, `{"q":1}`, in.Request.Body)
}

func TestDecodeHTTPRequestMinimal(t *testing.T) {
	raw := []byte(`{
		"type": "http_request",
		"id": "req-2",
		"payload": {"method": "GET", "url": "https://api.example.com/v1/models"}
	}`)

	in, err := Decode(raw)
	require.NoError(t, err)
	assert.Empty(t, in.Request.Headers)
	assert.Empty(t, in.Request.Body)
}

func TestDecodePong(t *testing.T) {
	in, err := Decode([]byte(`{"type": "pong"}`))
	require.NoError(t, err)
	assert.Equal(t, TypePong, in.Type)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"missing type", `{"id": "x"}`},
		{"http_request without id", `{"type": "http_request", "payload": {"method": "GET", "url": "https://a"}}`},
		{"http_request without url", `{"type": "http_request", "id": "x", "payload": {"method": "GET"}}`},
		{"http_request without method", `{"type": "http_request", "id": "x", "payload": {"url": "https://a"}}`},
		{"http_request empty method", `{"type": "http_request", "id": "x", "payload": {"method": "", "url": "https://a"}}`},
		{"http_request non-string header", `{"type": "http_request", "id": "x", "payload": {"method": "GET", "url": "https://a", "headers": {"X": 1}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type": "shutdown"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestOutboundEncoding(t *testing.T) {
	t.Run("ping has no id or payload", func(t *testing.T) {
		data, err := json.Marshal(NewPing())
		require.NoError(t, err)
		assert.JSONEq(t, `{"type": "ping"}`, string(data))
	})

	t.Run("http_response", func(t *testing.T) {
		frame := NewHTTPResponse("req-1", 200, map[string]string{"X-A": "b"}, "hello")
		data, err := json.Marshal(frame)
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"type": "http_response",
			"id": "req-1",
			"payload": {"status": 200, "headers": {"X-A": "b"}, "body": "hello"}
		}`, string(data))
	})

	t.Run("stream sequence", func(t *testing.T) {
		start, err := json.Marshal(NewStreamStart("req-1", 200, map[string]string{}))
		require.NoError(t, err)
		assert.JSONEq(t, `{"type": "stream_start", "id": "req-1", "payload": {"status": 200, "headers": {}}}`, string(start))

		chunk, err := json.Marshal(NewStreamChunk("req-1", "data"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"type": "stream_chunk", "id": "req-1", "payload": {"data": "data"}}`, string(chunk))

		end, err := json.Marshal(NewStreamEnd("req-1"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"type": "stream_end", "id": "req-1", "payload": {}}`, string(end))
	})

	t.Run("error without response", func(t *testing.T) {
		data, err := json.Marshal(NewError("req-1", CodeFetchError, "fetch error", nil))
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"type": "error",
			"id": "req-1",
			"payload": {"code": "fetch_error", "message": "fetch error"}
		}`, string(data))
	})

	t.Run("error with attached response", func(t *testing.T) {
		resp := &HTTPResponsePayload{Status: 404, Headers: map[string]string{}, Body: "not found"}
		data, err := json.Marshal(NewError("req-1", CodeHTTPError, "404 Not Found", resp))
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"type": "error",
			"id": "req-1",
			"payload": {
				"code": "http_error",
				"message": "404 Not Found",
				"http_response": {"status": 404, "headers": {}, "body": "not found"}
			}
		}`, string(data))
	})
}
