package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"storyart/internal/kv"
	"storyart/internal/logging"
)

func newTestStore(t *testing.T) (*Store, *kv.Store) {
	t.Helper()
	backend, err := kv.Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("kv.Open: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	return NewStore(backend, "storyart", 7*24*time.Hour, logging.NewNop()), backend
}

func sampleSession(episode int) *Session {
	return &Session{
		EpisodeNumber: episode,
		Title:         "The Long Night",
		Beats: []Beat{
			{ID: "beat-001", Scene: 1, Decision: DecisionNewImage, Prompts: map[string]Prompt{
				"cinematic": {Text: "wide shot", Width: 1920, Height: 1080},
			}},
			{ID: "beat-002", Scene: 1, Decision: DecisionReuseImage},
		},
	}
}

func TestSaveThenGetByKey(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	key, err := store.Save(ctx, sampleSession(3))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.GetByKey(ctx, key)
	if err != nil {
		t.Fatalf("GetByKey: %v", err)
	}
	if got == nil {
		t.Fatal("expected session, got nil")
	}
	if got.EpisodeNumber != 3 || got.Title != "The Long Night" {
		t.Fatalf("unexpected session %+v", got)
	}
	if len(got.Beats) != 2 {
		t.Fatalf("expected 2 beats, got %d", len(got.Beats))
	}
	if got.SavedAt.IsZero() {
		t.Fatal("expected SavedAt set on save")
	}
}

func TestGetLatestReturnsNewest(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	for i, episode := range []int{1, 2, 3} {
		offset := time.Duration(i) * time.Second
		store.SetClock(func() time.Time { return base.Add(offset) })
		if _, err := store.Save(ctx, sampleSession(episode)); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	sess, key, err := store.GetLatest(ctx)
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if sess == nil || key == "" {
		t.Fatal("expected latest session")
	}
	if sess.EpisodeNumber != 3 {
		t.Fatalf("expected episode 3 as latest, got %d", sess.EpisodeNumber)
	}
}

func TestGetLatestEmptyStore(t *testing.T) {
	store, _ := newTestStore(t)
	sess, key, err := store.GetLatest(context.Background())
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if sess != nil || key != "" {
		t.Fatalf("expected no session, got %v %q", sess, key)
	}
}

func TestGetLatestFallsToNextOnExpiredPayload(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	store.SetClock(func() time.Time { return base })
	backend.SetClock(func() time.Time { return base })
	keyOld, err := store.Save(ctx, sampleSession(1))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	store.SetClock(func() time.Time { return base.Add(time.Second) })
	keyNew, err := store.Save(ctx, sampleSession(2))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Simulate the newest payload expiring while its index entry survives.
	if err := backend.Delete(ctx, keyNew); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	sess, key, err := store.GetLatest(ctx)
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if key != keyOld {
		t.Fatalf("expected fallback to %s, got %s", keyOld, key)
	}
	if sess.EpisodeNumber != 1 {
		t.Fatalf("expected episode 1, got %d", sess.EpisodeNumber)
	}
}

func TestSaveSameMillisecondProducesDistinctKeys(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	frozen := time.Now()
	store.SetClock(func() time.Time { return frozen })

	key1, err := store.Save(ctx, sampleSession(1))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	key2, err := store.Save(ctx, sampleSession(2))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if key1 == key2 {
		t.Fatalf("expected distinct keys, both %s", key1)
	}
}

func TestListMergesUnindexedKeys(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	store.SetClock(func() time.Time { return base })
	if _, err := store.Save(ctx, sampleSession(1)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A payload written without its index entry (degraded save).
	store.SetClock(func() time.Time { return base.Add(time.Second) })
	orphanKey := store.Key(base.Add(time.Second).UnixMilli())
	payload := `{"episodeNumber":9,"title":"Orphan","beats":[],"savedAt":"` + base.Add(time.Second).UTC().Format(time.RFC3339Nano) + `"}`
	if err := backend.Set(ctx, orphanKey, []byte(payload), 0); err != nil {
		t.Fatalf("Set orphan: %v", err)
	}

	summaries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].EpisodeNumber != 9 {
		t.Fatalf("expected orphan (newest) first, got %+v", summaries[0])
	}
}

func TestEligibleBeats(t *testing.T) {
	sess := sampleSession(1)
	sess.Beats = append(sess.Beats, Beat{ID: "beat-003", Scene: 2, Decision: DecisionNewImage})

	eligible, skipped := sess.EligibleBeats()
	if len(eligible) != 1 || eligible[0].ID != "beat-001" {
		t.Fatalf("unexpected eligible beats %+v", eligible)
	}
	// REUSE_IMAGE and promptless NEW_IMAGE both skip.
	if len(skipped) != 2 {
		t.Fatalf("expected 2 skipped beats, got %d", len(skipped))
	}
}

func TestWithResultsLeavesOriginalUntouched(t *testing.T) {
	sess := sampleSession(1)
	clone := sess.WithResults([]GenerationResult{{BeatID: "beat-001", Success: true}})
	if len(sess.Results) != 0 {
		t.Fatal("original session mutated")
	}
	if len(clone.Results) != 1 {
		t.Fatalf("expected 1 result on clone, got %d", len(clone.Results))
	}
}
