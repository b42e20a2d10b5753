package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"storyart/internal/services"
)

func TestConsoleHandlerFormatsComponent(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl, false))

	logger.Info("generation complete", String(FieldComponent, "render"), Int("images", 3))

	line := buf.String()
	if !strings.Contains(line, "INFO render: generation complete") {
		t.Fatalf("unexpected line %q", line)
	}
	if !strings.Contains(line, "images=3") {
		t.Fatalf("expected attr in line %q", line)
	}
}

func TestConsoleHandlerQuotesValues(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl, false))

	logger.Info("saved", String("title", "The Long Night"))

	if !strings.Contains(buf.String(), `title="The Long Night"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl, false))

	ctx := services.WithBeatID(context.Background(), "beat-007")
	ctx = services.WithScene(ctx, 3)
	WithContext(ctx, logger).Info("resolving")

	line := buf.String()
	if !strings.Contains(line, "beat_id=beat-007") || !strings.Contains(line, "scene=3") {
		t.Fatalf("expected context fields in line %q", line)
	}
}

func TestWithContextNilLogger(t *testing.T) {
	logger := WithContext(context.Background(), nil)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	logger.Info("discarded")
}
