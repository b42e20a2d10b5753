package services

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	sessionKeyKey contextKey = "session_key"
	beatIDKey     contextKey = "beat_id"
	sceneKey      contextKey = "scene"
	requestIDKey  contextKey = "request_id"
)

// WithSessionKey annotates context with the active session key.
func WithSessionKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKeyKey, key)
}

// SessionKeyFromContext extracts the session key if present.
func SessionKeyFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sessionKeyKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithBeatID annotates context with the beat being processed.
func WithBeatID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, beatIDKey, id)
}

// BeatIDFromContext extracts the beat identifier if present.
func BeatIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(beatIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithScene annotates context with the scene number.
func WithScene(ctx context.Context, scene int) context.Context {
	if scene <= 0 {
		return ctx
	}
	return context.WithValue(ctx, sceneKey, scene)
}

// SceneFromContext extracts the scene number if present.
func SceneFromContext(ctx context.Context) (int, bool) {
	switch v := ctx.Value(sceneKey).(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	default:
		return 0, false
	}
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// WithNewRequestID annotates context with a freshly generated correlation id.
func WithNewRequestID(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestIDKey, uuid.NewString())
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
