package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentRecalculator, Output: &buf})
	l.InfoContext(context.Background(), "Day recalculated", FieldDate, "2025-01-01")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected json output, got %q: %v", buf.String(), err)
	}
	if rec[FieldComponent] != ComponentRecalculator || rec[FieldDate] != "2025-01-01" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestWithComponentReplacesComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Component: ComponentApp, Output: &buf})
	l.WithComponent(ComponentReconcile).Info("hello")

	out := buf.String()
	if strings.Count(out, "component=") != 1 || !strings.Contains(out, "component=reconcile") {
		t.Fatalf("expected a single reconcile component, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOperationLogsErrors(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Component: ComponentImport, Output: &buf})
	l.Operation(context.Background(), OpImport, errors.New("boom"))
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "boom") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestNilLoggerOrDiscard(t *testing.T) {
	var l *Logger
	l.OrDiscard().Info("dropped")
}
