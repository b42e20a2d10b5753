package notifications

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storyart/internal/config"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T, sink *[]captured) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		*sink = append(*sink, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
	}))
}

func serviceFor(topic string) Service {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	cfg.Notifications.Completion = true
	cfg.Notifications.Errors = true
	return NewService(&cfg)
}

func TestNoopWhenTopicEmpty(t *testing.T) {
	cfg := config.Default()
	svc := NewService(&cfg)
	if _, ok := svc.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", svc)
	}
	if err := svc.NotifyRunStarted(context.Background(), "pilot", 3); err != nil {
		t.Fatalf("noop should never fail: %v", err)
	}
}

func TestNotifyRunCompleted(t *testing.T) {
	var sink []captured
	server := newCaptureServer(t, &sink)
	defer server.Close()

	svc := serviceFor(server.URL)
	if err := svc.NotifyRunCompleted(context.Background(), "The Lost City", 5, 1, 90*time.Second); err != nil {
		t.Fatalf("NotifyRunCompleted: %v", err)
	}
	if len(sink) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(sink))
	}
	got := sink[0]
	if !strings.Contains(got.title, "with errors") {
		t.Fatalf("expected error title, got %q", got.title)
	}
	if !strings.Contains(got.body, "5 succeeded, 1 failed") {
		t.Fatalf("unexpected body %q", got.body)
	}
	if got.priority != "high" {
		t.Fatalf("expected high priority, got %q", got.priority)
	}
}

func TestNotifyErrorRespectsGate(t *testing.T) {
	var sink []captured
	server := newCaptureServer(t, &sink)
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Errors = false
	svc := NewService(&cfg)

	if err := svc.NotifyError(context.Background(), io.ErrUnexpectedEOF, "generate"); err != nil {
		t.Fatalf("NotifyError: %v", err)
	}
	if len(sink) != 0 {
		t.Fatalf("expected suppressed notification, got %d", len(sink))
	}
}

func TestSendReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic not found", http.StatusNotFound)
	}))
	defer server.Close()

	svc := serviceFor(server.URL)
	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
}
