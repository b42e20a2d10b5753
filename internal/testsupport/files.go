package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"storyart/internal/kv"
	"storyart/internal/session"
)

// WriteFile fills the target path with the given contents, creating parent
// directories as needed.
func WriteFile(t testing.TB, path string, contents []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// MustOpenKV opens a throwaway sqlite-backed kv store for the test.
func MustOpenKV(t testing.TB) *kv.Store {
	t.Helper()

	store, err := kv.Open(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("open kv store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// MustSaveSession stores the session and returns its key.
func MustSaveSession(t testing.TB, store *session.Store, sess *session.Session) string {
	t.Helper()

	key, err := store.Save(context.Background(), sess)
	if err != nil {
		t.Fatalf("save session: %v", err)
	}
	return key
}

// NewSessionStore builds a session store over a throwaway kv backend.
func NewSessionStore(t testing.TB) *session.Store {
	t.Helper()
	return session.NewStore(MustOpenKV(t), "storyart-test", time.Hour, nil)
}
