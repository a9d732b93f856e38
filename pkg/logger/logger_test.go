package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func newBufferLogger(level LogLevel) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	log := NewLogger(&Config{
		Level:   level,
		Format:  JSONFormat,
		Output:  buf,
		Service: "metrics-engine",
	})
	return log, buf
}

func TestPromotedFields(t *testing.T) {
	log, buf := newBufferLogger(InfoLevel)

	log.WithFields(map[string]interface{}{
		"tenant_id": "t-1",
		"metric_id": "m-1",
		"sync_id":   "s-1",
		"records":   42,
	}).Info("sync completed")

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}

	if entry.TenantID != "t-1" || entry.MetricID != "m-1" || entry.SyncID != "s-1" {
		t.Errorf("identifiers not promoted: %+v", entry)
	}
	if entry.Fields["records"] != float64(42) {
		t.Errorf("plain fields not preserved: %+v", entry.Fields)
	}
	if entry.Level != "INFO" || entry.Message != "sync completed" {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestLevelFiltering(t *testing.T) {
	log, buf := newBufferLogger(WarnLevel)

	log.Debug("dropped")
	log.Info("dropped")
	log.Warn("kept")

	lines := strings.Count(buf.String(), "\n")
	if lines != 1 {
		t.Errorf("expected 1 line, got %d: %q", lines, buf.String())
	}
}

func TestWithContext(t *testing.T) {
	log, buf := newBufferLogger(InfoLevel)

	ctx := ContextWithRequestID(context.Background(), "req-9")
	ctx = ContextWithTenantID(ctx, "t-9")
	log.WithContext(ctx).Info("handled")

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry.RequestID != "req-9" || entry.TenantID != "t-9" {
		t.Errorf("context values not extracted: %+v", entry)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"Warning": WarnLevel,
		"error":   ErrorLevel,
		"fatal":   FatalLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
