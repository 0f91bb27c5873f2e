package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"reclaim/internal/config"
)

const userAgent = "reclaim/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventRunStarted           Event = "run_started"
	EventRunCompleted         Event = "run_completed"
	EventRunFailed            Event = "run_failed"
	EventReconciliationNeeded Event = "reconciliation_needed"
	EventTest                 Event = "test"
)

// Payload carries event fields. Keys are documented per event in format.
type Payload map[string]any

// Service publishes run events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
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
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventRunStarted:
		mode := "apply"
		if asBool(payload["dryRun"]) {
			mode = "dry run"
		}
		return message{
			title: "reclaim - Run Started",
			body:  fmt.Sprintf("Converting %d assets (%s, %d workers)", asInt(payload["count"]), mode, asInt(payload["concurrency"])),
			tags:  []string{"reclaim", "run", "started"},
		}, true
	case EventRunCompleted:
		converted := asInt(payload["converted"])
		skipped := asInt(payload["skipped"])
		failed := asInt(payload["failed"])
		saved := asInt64(payload["savedBytes"])
		duration := asDuration(payload["duration"])
		title := "reclaim - Run Complete"
		priority := ""
		if failed > 0 {
			title = "reclaim - Run Complete (with errors)"
			priority = "high"
		}
		return message{
			title:    title,
			body:     fmt.Sprintf("%d converted, %d skipped, %d failed in %s; saved %s", converted, skipped, failed, duration, humanize.IBytes(uint64(max(saved, 0)))),
			tags:     []string{"reclaim", "run", "completed"},
			priority: priority,
		}, true
	case EventRunFailed:
		var b strings.Builder
		b.WriteString("❌ Run failed")
		if stage := strings.TrimSpace(asString(payload["context"])); stage != "" {
			b.WriteString(" during ")
			b.WriteString(stage)
		}
		b.WriteString(": ")
		if errText := strings.TrimSpace(asString(payload["error"])); errText != "" {
			b.WriteString(errText)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "reclaim - Error",
			body:     b.String(),
			tags:     []string{"reclaim", "error", "alert"},
			priority: "high",
		}, true
	case EventReconciliationNeeded:
		count := asInt(payload["count"])
		if count <= 0 {
			return message{}, false
		}
		return message{
			title:    "reclaim - Manual Check Needed",
			body:     fmt.Sprintf("%d assets need reconciliation; run reclaim reconcile list", count),
			tags:     []string{"reclaim", "reconcile", "review"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "reclaim - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"reclaim", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func asInt(v any) int {
	return int(asInt64(v))
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int64:
		return t
	case int32:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asDuration(v any) time.Duration {
	d, _ := v.(time.Duration)
	d = d.Round(time.Second)
	if d < 0 {
		return 0
	}
	return d
}
