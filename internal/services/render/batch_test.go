package render

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestGenerateBatchProgressAndCounts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 2 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(generateResponse("out.png"))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, WithSleeper(func(d time.Duration) {}))

	reqs := []Request{
		{Label: "a", Prompt: "p1"},
		{Label: "b", Prompt: "p2"},
		{Label: "c", Prompt: "p3"},
	}
	var progress []Progress
	batch, err := client.GenerateBatch(context.Background(), reqs, nil, func(p Progress) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}
	if batch.Succeeded != 2 || batch.Failed != 1 {
		t.Fatalf("expected 2/1, got %d/%d", batch.Succeeded, batch.Failed)
	}
	if batch.Cancelled {
		t.Fatal("unexpected cancellation")
	}
	if len(progress) != 3 {
		t.Fatalf("expected 3 progress events, got %d", len(progress))
	}
	if progress[2].Index != 3 || progress[2].Total != 3 || progress[2].Label != "c" {
		t.Fatalf("unexpected final progress %+v", progress[2])
	}
}

func TestGenerateBatchCancelSkipsRemaining(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(generateResponse("out.png"))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	cancel := NewCancelFlag()

	reqs := []Request{
		{Label: "a", Prompt: "p1"},
		{Label: "b", Prompt: "p2"},
		{Label: "c", Prompt: "p3"},
	}
	batch, err := client.GenerateBatch(context.Background(), reqs, cancel, func(p Progress) {
		if p.Index == 1 {
			cancel.Set()
		}
	})
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}
	if !batch.Cancelled {
		t.Fatal("expected cancelled batch")
	}
	if batch.Succeeded != 1 || len(batch.Items) != 1 {
		t.Fatalf("expected only first item processed, got %+v", batch)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 service call, got %d", calls.Load())
	}
}
