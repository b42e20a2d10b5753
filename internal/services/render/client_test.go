package render

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"storyart/internal/services"
)

func generateResponse(files ...string) map[string]any {
	return map[string]any{"files": files}
}

func TestGenerateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Prompt != "wide shot" || req.Width != 1920 {
			t.Fatalf("unexpected request %+v", req)
		}
		_ = json.NewEncoder(w).Encode(generateResponse("beat-001.png"))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	result, err := client.Generate(context.Background(), Request{Label: "beat-001/LongForm", Prompt: "wide shot", Width: 1920, Height: 1080})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Files) != 1 || result.Files[0] != "beat-001.png" {
		t.Fatalf("unexpected files %v", result.Files)
	}
	if result.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", result.Attempts)
	}
}

func TestGenerateRetriesOn503(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(generateResponse("beat-002.png"))
	}))
	defer server.Close()

	var delays []time.Duration
	client := NewClient(Config{BaseURL: server.URL},
		WithSleeper(func(d time.Duration) { delays = append(delays, d) }),
		WithRetryBackoff(100*time.Millisecond, time.Second),
	)

	result, err := client.Generate(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", result.Attempts)
	}
	if len(delays) != 2 {
		t.Fatalf("expected 2 retry delays, got %v", delays)
	}
	if delays[1] <= delays[0] {
		t.Fatalf("expected strictly increasing delays, got %v", delays)
	}
}

func TestGenerate4xxFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL},
		WithSleeper(func(time.Duration) {}),
	)
	_, err := client.Generate(context.Background(), Request{Prompt: "p"})
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected ErrPermanent, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly 1 attempt for 4xx, got %d", calls.Load())
	}
}

func TestGenerateExhaustionAggregatesAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL},
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(3),
	)
	_, err := client.Generate(context.Background(), Request{Prompt: "p"})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	for _, fragment := range []string{"attempt 1", "attempt 2", "attempt 3", "failed after 3"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in aggregate error %q", fragment, err.Error())
		}
	}
}

func TestGenerateTimeoutRetriedOnceWithExtendedDeadline(t *testing.T) {
	var calls atomic.Int32
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			<-block
			return
		}
		_ = json.NewEncoder(w).Encode(generateResponse("beat-003.png"))
	}))
	defer server.Close()
	defer close(block)

	client := NewClient(
		Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond, ExtendedTimeout: 5 * time.Second},
		WithSleeper(func(time.Duration) {}),
	)
	result, err := client.Generate(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Attempts != 2 {
		t.Fatalf("expected timeout then success, got %d attempts", result.Attempts)
	}
}

func TestGenerateDoubleTimeoutSurfaces(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	client := NewClient(
		Config{BaseURL: server.URL, Timeout: 30 * time.Millisecond, ExtendedTimeout: 60 * time.Millisecond},
		WithSleeper(func(time.Duration) {}),
	)
	_, err := client.Generate(context.Background(), Request{Prompt: "p"})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestGenerateEmptyPromptRejected(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := client.Generate(context.Background(), Request{})
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected ErrPermanent for empty prompt, got %v", err)
	}
}

func TestInitSessionUnavailable(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	err := client.InitSession(context.Background())
	if !errors.Is(err, services.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestInitSessionRefreshesStats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/session/init", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"avg_duration_ms": 4000, "queue_depth": 3})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	if err := client.InitSession(context.Background()); err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	// (2 pending + 3 queued) x 4s
	if got := client.EstimateRemaining(2); got != 20*time.Second {
		t.Fatalf("expected 20s estimate, got %v", got)
	}
}
