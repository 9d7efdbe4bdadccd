package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithCorrelationID(ctx, "corr-123")
	ctx = log.WithActivityCode(ctx, "ACT001")

	log.Error(ctx, "boom", errors.New("boom"))

	if !bytes.Contains(buf.Bytes(), []byte(`"correlation_id"`)) {
		t.Fatalf("expected correlation_id to be preserved; entry=%s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"activity_code"`)) {
		t.Fatalf("expected activity_code to be preserved; entry=%s", buf.String())
	}
}

func TestCorrelationIDFrom(t *testing.T) {
	log := New(Options{ServiceName: "test", Output: &bytes.Buffer{}})

	ctx := log.WithCorrelationID(context.Background(), "corr-42")
	if got := CorrelationIDFrom(ctx); got != "corr-42" {
		t.Fatalf("expected corr-42, got %q", got)
	}
	if got := CorrelationIDFrom(context.Background()); got != "" {
		t.Fatalf("expected empty id on bare context, got %q", got)
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.InfoLevel {
		t.Fatalf("invalid level should fall back to info, got %v", lvl)
	}
	if lvl := ParseLevel("Debug"); lvl != zerolog.DebugLevel {
		t.Fatalf("expected case-insensitive parse, got %v", lvl)
	}
}
