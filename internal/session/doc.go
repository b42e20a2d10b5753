// Package session defines the immutable work-session snapshot (beats,
// prompts, generation results) and its append-only, timestamp-keyed store.
// Sessions are never mutated in place: every save produces a new key.
package session
