package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storyart/internal/config"
)

const userAgent = "StoryArt/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyRunStarted(ctx context.Context, episodeTitle string, beats int) error
	NotifyRunCompleted(ctx context.Context, episodeTitle string, succeeded, failed int, duration time.Duration) error
	NotifyOrganizeCompleted(ctx context.Context, episodeDir string, placed int) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		completion: cfg.Notifications.Completion,
		errors:     cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	completion bool
	errors     bool
}

func (n *ntfyService) NotifyRunStarted(ctx context.Context, episodeTitle string, beats int) error {
	if !n.completion {
		return nil
	}
	data := payload{
		title:   "StoryArt - Run Started",
		message: fmt.Sprintf("Started generating %d beats for %s", beats, strings.TrimSpace(episodeTitle)),
		tags:    []string{"storyart", "run", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, episodeTitle string, succeeded, failed int, duration time.Duration) error {
	if !n.completion {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	var title, message string
	if failed == 0 {
		title = "StoryArt - Run Complete"
		message = fmt.Sprintf("%s: %d images generated in %s", strings.TrimSpace(episodeTitle), succeeded, duration)
	} else {
		title = "StoryArt - Run Complete (with errors)"
		message = fmt.Sprintf("%s: %d succeeded, %d failed in %s", strings.TrimSpace(episodeTitle), succeeded, failed, duration)
	}
	data := payload{
		title:    title,
		message:  message,
		tags:     []string{"storyart", "run", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyOrganizeCompleted(ctx context.Context, episodeDir string, placed int) error {
	if !n.completion {
		return nil
	}
	data := payload{
		title:   "StoryArt - Assets Organized",
		message: fmt.Sprintf("Filed %d assets into %s", placed, strings.TrimSpace(episodeDir)),
		tags:    []string{"storyart", "organize", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	data := payload{
		title:    "StoryArt - Error",
		message:  builder.String(),
		tags:     []string{"storyart", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "StoryArt - Test",
		message:  "Notification system test",
		tags:     []string{"storyart", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunStarted(context.Context, string, int) error { return nil }
func (noopService) NotifyRunCompleted(context.Context, string, int, int, time.Duration) error {
	return nil
}
func (noopService) NotifyOrganizeCompleted(context.Context, string, int) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error           { return nil }
func (noopService) TestNotification(context.Context) error                     { return nil }
