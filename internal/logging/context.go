package logging

import (
	"context"
	"log/slog"

	"storyart/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldSessionKey is the standardized structured logging key for session keys.
	FieldSessionKey = "session_key"
	// FieldBeatID is the standardized structured logging key for beat identifiers.
	FieldBeatID = "beat_id"
	// FieldScene is the standardized structured logging key for scene numbers.
	FieldScene = "scene"
	// FieldFormat is the standardized structured logging key for output format tags.
	FieldFormat = "format"
	// FieldAttempt is the standardized structured logging key for retry attempt indices.
	FieldAttempt = "attempt"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if key, ok := services.SessionKeyFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSessionKey, key))
	}
	if id, ok := services.BeatIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldBeatID, id))
	}
	if scene, ok := services.SceneFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldScene, scene))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
