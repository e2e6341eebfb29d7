package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"courtclip/internal/config"
)

const userAgent = "courtclip/0.1.0"

// RunSummary describes a finished batch.
type RunSummary struct {
	RunID    string
	OK       int
	Failed   int
	Skipped  int
	Duration time.Duration
}

// Service defines the notification surface used by the runner and the supervisor.
type Service interface {
	NotifyRunCompleted(ctx context.Context, summary RunSummary) error
	NotifyError(ctx context.Context, err error, context string) error
	NotifySupervisorStopped(ctx context.Context, reason string, triggers int, elapsed time.Duration) error
	TestNotification(ctx context.Context) error
}

// HTTPDoer is the subset of *http.Client used to deliver messages.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// NewService builds a notification service backed by ntfy when configured.
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
		runSummary: cfg.Notifications.RunSummary,
		errors:     cfg.Notifications.Errors,
	}
}

// NewNtfy returns an ntfy notifier with every event enabled, delivering
// through client.
func NewNtfy(endpoint string, client HTTPDoer) Service {
	return &ntfyService{endpoint: endpoint, client: client, runSummary: true, errors: true}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     HTTPDoer
	runSummary bool
	errors     bool
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, summary RunSummary) error {
	if !n.runSummary {
		return nil
	}
	if summary.OK+summary.Failed+summary.Skipped == 0 {
		return nil
	}
	duration := summary.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	title := "courtclip - Run Complete"
	message := fmt.Sprintf("Finished %d clips in %s", summary.OK, duration)
	priority := ""
	if summary.Failed > 0 {
		title = "courtclip - Run Complete (with errors)"
		message = fmt.Sprintf("%d finished, %d failed in %s", summary.OK, summary.Failed, duration)
		priority = "high"
	}
	if summary.Skipped > 0 {
		message = fmt.Sprintf("%s (%d skipped)", message, summary.Skipped)
	}
	if summary.RunID != "" {
		message = fmt.Sprintf("%s\nRun: %s", message, summary.RunID)
	}
	return n.send(ctx, payload{
		title:    title,
		message:  message,
		tags:     []string{"courtclip", "run", "completed"},
		priority: priority,
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" in ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	return n.send(ctx, payload{
		title:    "courtclip - Error",
		message:  builder.String(),
		tags:     []string{"courtclip", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) NotifySupervisorStopped(ctx context.Context, reason string, triggers int, elapsed time.Duration) error {
	if !n.runSummary {
		return nil
	}
	return n.send(ctx, payload{
		title:   "courtclip - Supervisor Stopped",
		message: fmt.Sprintf("Supervisor stopped (%s) after %s with %d triggered runs", reason, elapsed.Round(time.Second), triggers),
		tags:    []string{"courtclip", "supervisor", reason},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "courtclip - Test",
		message:  "Notification system test",
		tags:     []string{"courtclip", "test"},
		priority: "low",
	})
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

// NewNoop returns a service that drops every notification.
func NewNoop() Service { return noopService{} }

type noopService struct{}

func (noopService) NotifyRunCompleted(context.Context, RunSummary) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error     { return nil }
func (noopService) NotifySupervisorStopped(context.Context, string, int, time.Duration) error {
	return nil
}
func (noopService) TestNotification(context.Context) error { return nil }
