package integration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zoobzio/emitz"
)

// Event keys for realworld patterns testing
const (
	webhookGithubPush emitz.Key = "webhook.github.push"
	cacheInvalidate   emitz.Key = "cache.invalidate"
	serverReady       emitz.Key = "server.ready"
)

// WebhookEvent represents an incoming webhook
type WebhookEvent struct {
	ID      string
	Source  string
	Type    string
	Payload map[string]string
}

// WebhookProcessor fans incoming webhooks out to subscribers and keeps an
// audit trail of every subscriber outcome through an after-hook.
type WebhookProcessor struct {
	events *emitz.Emitter

	mu    sync.Mutex
	audit []string

	delivered atomic.Int64
	failed    atomic.Int64
}

func NewWebhookProcessor() *WebhookProcessor {
	w := &WebhookProcessor{
		events: emitz.New(emitz.WithWorkers(8), emitz.WithLogger(zap.NewNop())),
	}
	w.events.After(w.record)
	return w
}

func (w *WebhookProcessor) record(ctx context.Context, o emitz.Outcome) error {
	event := o.Args[0].(WebhookEvent)

	w.mu.Lock()
	defer w.mu.Unlock()
	if o.Err != nil {
		w.failed.Add(1)
		w.audit = append(w.audit, fmt.Sprintf("%s %s failed: %v", o.Event, event.ID, o.Err))
		return nil
	}
	w.delivered.Add(1)
	w.audit = append(w.audit, fmt.Sprintf("%s %s -> %v", o.Event, event.ID, o.Result))
	return nil
}

func (w *WebhookProcessor) Events() *emitz.Emitter {
	return w.events
}

func (w *WebhookProcessor) Process(ctx context.Context, webhook WebhookEvent) {
	w.events.Emit(ctx, emitz.Key(fmt.Sprintf("webhook.%s.%s", webhook.Source, webhook.Type)), webhook)
}

func (w *WebhookProcessor) Shutdown(ctx context.Context) error {
	return w.events.Close(ctx)
}

func (w *WebhookProcessor) Audit() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.audit))
	copy(out, w.audit)
	return out
}

// TestWebhookIntegration simulates a webhook system with several subscribers
func TestWebhookIntegration(t *testing.T) {
	processor := NewWebhookProcessor()
	ctx := context.Background()

	var slackNotifications atomic.Int32
	var emailsSent atomic.Int32

	// Slack notification subscriber
	processor.Events().On(webhookGithubPush, emitz.NewListener(func(ctx context.Context, args ...any) (any, error) {
		time.Sleep(10 * time.Millisecond)
		slackNotifications.Add(1)
		return "slack", nil
	}))

	// Email subscriber, only for main
	processor.Events().On(webhookGithubPush, emitz.NewListener(func(ctx context.Context, args ...any) (any, error) {
		event := args[0].(WebhookEvent)
		if event.Payload["branch"] != "main" {
			return "email skipped", nil
		}
		emailsSent.Add(1)
		return "email", nil
	}))

	// Flaky analytics subscriber
	processor.Events().On(webhookGithubPush, emitz.NewListener(func(ctx context.Context, args ...any) (any, error) {
		event := args[0].(WebhookEvent)
		if event.ID == "push-2" {
			return nil, fmt.Errorf("analytics rejected %s", event.ID)
		}
		return "analytics", nil
	}))

	for i, branch := range []string{"main", "feature", "main"} {
		processor.Process(ctx, WebhookEvent{
			ID:      fmt.Sprintf("push-%d", i+1),
			Source:  "github",
			Type:    "push",
			Payload: map[string]string{"branch": branch},
		})
	}

	require.NoError(t, processor.Shutdown(ctx))

	assert.Equal(t, int32(3), slackNotifications.Load())
	assert.Equal(t, int32(2), emailsSent.Load())
	assert.Equal(t, int64(8), processor.delivered.Load())
	assert.Equal(t, int64(1), processor.failed.Load())
	assert.Len(t, processor.Audit(), 9, "Every subscriber outcome is audited")
	assert.Contains(t, processor.Audit(), "webhook.github.push push-2 failed: analytics rejected push-2")
}

// TestCacheInvalidationOnce verifies one-shot subscribers fire once under load
func TestCacheInvalidationOnce(t *testing.T) {
	events := emitz.New(emitz.WithLogger(zap.NewNop()))
	ctx := context.Background()

	var warmups atomic.Int32
	var invalidations atomic.Int32

	events.Once(cacheInvalidate, emitz.NewListener(func(ctx context.Context, args ...any) (any, error) {
		warmups.Add(1)
		return nil, nil
	}))
	events.On(cacheInvalidate, emitz.NewListener(func(ctx context.Context, args ...any) (any, error) {
		invalidations.Add(1)
		return nil, nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(key int) {
			defer wg.Done()
			events.Emit(ctx, cacheInvalidate, fmt.Sprintf("user:%d", key))
		}(i)
	}
	wg.Wait()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, events.Wait(waitCtx))

	assert.Equal(t, int32(1), warmups.Load())
	assert.Equal(t, int32(100), invalidations.Load())
}

// TestReadinessGate shows Once used as a startup latch
func TestReadinessGate(t *testing.T) {
	// A single worker keeps the two emissions in order
	events := emitz.New(emitz.WithWorkers(1), emitz.WithLogger(zap.NewNop()))
	ctx := context.Background()

	ready := make(chan string, 1)
	events.Once(serverReady, emitz.NewListener(func(ctx context.Context, args ...any) (any, error) {
		ready <- args[0].(string)
		return nil, nil
	}))

	events.Emit(ctx, serverReady, ":8080")
	events.Emit(ctx, serverReady, ":9090")

	select {
	case addr := <-ready:
		assert.Equal(t, ":8080", addr)
	case <-time.After(time.Second):
		t.Fatal("Readiness listener did not fire")
	}

	require.NoError(t, events.Close(ctx))
	assert.Len(t, ready, 0, "Readiness fires once")
}
