package audit

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"brandhub.dev/demodata/internal/obs"
)

func TestLogEvent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	obs.SetLogger(zap.New(core))
	defer obs.SetLogger(nil)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = WithOperator(ctx, "user-42")

	if err := LogEvent(ctx, "demo.seed.done", map[string]any{"staff": 4}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Message != "demo.seed.done" || entry.LoggerName != "audit" {
		t.Fatalf("unexpected entry: %s %s", entry.LoggerName, entry.Message)
	}
	ctxMap := entry.ContextMap()
	if ctxMap["type"] != "audit" {
		t.Fatalf("unexpected type: %v", ctxMap["type"])
	}
	if ctxMap["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", ctxMap["request_id"])
	}
	if ctxMap["operator_id"] != "user-42" {
		t.Fatalf("unexpected operator id: %v", ctxMap["operator_id"])
	}
	fields, ok := ctxMap["fields"].(map[string]any)
	if !ok || fields["staff"] != 4 {
		t.Fatalf("fields missing or incorrect: %v", ctxMap["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}
