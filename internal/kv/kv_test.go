package kv

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSetGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "storyart:session:1", []byte(`{"a":1}`), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, err := store.Get(ctx, "storyart:session:1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(value) != `{"a":1}` {
		t.Fatalf("unexpected value %q", value)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := openTestStore(t)
	value, err := store.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if value != nil {
		t.Fatalf("expected nil for missing key, got %q", value)
	}
}

func TestTTLExpiry(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now()
	store.SetClock(func() time.Time { return base })
	if err := store.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	store.SetClock(func() time.Time { return base.Add(30 * time.Minute) })
	if value, _ := store.Get(ctx, "k"); value == nil {
		t.Fatal("expected live value before expiry")
	}

	store.SetClock(func() time.Time { return base.Add(2 * time.Hour) })
	if value, _ := store.Get(ctx, "k"); value != nil {
		t.Fatal("expected nil after expiry")
	}
}

func TestIndexRevOrdering(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, score := range []int64{100, 300, 200} {
		if err := store.IndexInsert(ctx, "idx", score, fmt.Sprintf("m%d", score)); err != nil {
			t.Fatalf("IndexInsert: %v", err)
		}
	}

	entries, err := store.IndexRev(ctx, "idx", 0)
	if err != nil {
		t.Fatalf("IndexRev: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Score != 300 || entries[2].Score != 100 {
		t.Fatalf("expected descending scores, got %+v", entries)
	}

	limited, err := store.IndexRev(ctx, "idx", 1)
	if err != nil {
		t.Fatalf("IndexRev limit: %v", err)
	}
	if len(limited) != 1 || limited[0].Score != 300 {
		t.Fatalf("expected single highest entry, got %+v", limited)
	}
}

func TestKeysByPrefixSkipsExpired(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now()
	store.SetClock(func() time.Time { return base })
	if err := store.Set(ctx, "ns:session:1", []byte("a"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, "ns:session:2", []byte("b"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, "other:session:3", []byte("c"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	store.SetClock(func() time.Time { return base.Add(time.Hour) })
	keys, err := store.KeysByPrefix(ctx, "ns:session:")
	if err != nil {
		t.Fatalf("KeysByPrefix: %v", err)
	}
	if len(keys) != 1 || keys[0] != "ns:session:2" {
		t.Fatalf("expected only live ns key, got %v", keys)
	}
}

func TestSweepRemovesExpiredAndOrphanedIndex(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now()
	store.SetClock(func() time.Time { return base })
	if err := store.Set(ctx, "ns:session:1", []byte("a"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.IndexInsert(ctx, "ns:sessions:index", 1, "ns:session:1"); err != nil {
		t.Fatalf("IndexInsert: %v", err)
	}

	store.SetClock(func() time.Time { return base.Add(time.Hour) })
	removed, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed entry, got %d", removed)
	}
	entries, err := store.IndexRev(ctx, "ns:sessions:index", 0)
	if err != nil {
		t.Fatalf("IndexRev: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected orphaned index member removed, got %+v", entries)
	}
}

func TestSchemaVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	store.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("expected schema mismatch error")
	}
}
