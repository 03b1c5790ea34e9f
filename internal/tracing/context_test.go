package tracing

import (
	"context"
	"testing"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}

	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestWithTraceID(t *testing.T) {
	ctx := context.Background()
	traceID := "test-trace-id"

	ctx = WithTraceID(ctx, traceID)

	retrieved := GetTraceID(ctx)
	if retrieved != traceID {
		t.Errorf("Expected trace ID %s, got %s", traceID, retrieved)
	}
}

func TestWithConnID(t *testing.T) {
	ctx := context.Background()
	connID := "conn-abc123"

	ctx = WithConnID(ctx, connID)

	retrieved := GetConnID(ctx)
	if retrieved != connID {
		t.Errorf("Expected conn ID %s, got %s", connID, retrieved)
	}
}

func TestWithCommandID(t *testing.T) {
	ctx := context.Background()
	commandID := "cmd-42"

	ctx = WithCommandID(ctx, commandID)

	retrieved := GetCommandID(ctx)
	if retrieved != commandID {
		t.Errorf("Expected command ID %s, got %s", commandID, retrieved)
	}
}

func TestGetFromEmptyContext(t *testing.T) {
	ctx := context.Background()

	if got := GetTraceID(ctx); got != "" {
		t.Errorf("Expected empty trace ID, got %s", got)
	}
	if got := GetConnID(ctx); got != "" {
		t.Errorf("Expected empty conn ID, got %s", got)
	}
	if got := GetCommandID(ctx); got != "" {
		t.Errorf("Expected empty command ID, got %s", got)
	}
}

func TestFromContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithConnID(ctx, "conn-1")
	ctx = WithCommandID(ctx, "cmd-1")

	tc := FromContext(ctx)

	if tc.TraceID != "trace-1" {
		t.Errorf("Expected trace ID trace-1, got %s", tc.TraceID)
	}
	if tc.ConnID != "conn-1" {
		t.Errorf("Expected conn ID conn-1, got %s", tc.ConnID)
	}
	if tc.CommandID != "cmd-1" {
		t.Errorf("Expected command ID cmd-1, got %s", tc.CommandID)
	}
}
