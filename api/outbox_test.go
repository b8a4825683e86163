package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"taskboard/domain"
)

// capturePublisher records published events; gate, when set, blocks every
// publish until released.
type capturePublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
	gate   chan struct{}
}

func (p *capturePublisher) Publish(ctx context.Context, ev domain.Event) error {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *capturePublisher) published() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

func TestOutboxDrainsOnClose(t *testing.T) {
	pub := &capturePublisher{}
	logger, _ := test.NewNullLogger()
	o := NewOutbox(pub, logger)

	for i := 0; i < 5; i++ {
		o.Emit(domain.Event{ID: "e", Type: domain.CardCreated, ProjectID: "p1"})
	}
	o.Close()

	if got := len(pub.published()); got != 5 {
		t.Fatalf("published %d events, want 5", got)
	}
}

func TestOutboxDropsWhenSaturated(t *testing.T) {
	t.Setenv("OUTBOX_BUFFER", "1")
	t.Setenv("OUTBOX_WORKERS", "1")
	gate := make(chan struct{})
	pub := &capturePublisher{gate: gate}
	logger, hook := test.NewNullLogger()
	o := NewOutbox(pub, logger)

	// With one blocked worker and a one-slot buffer, some of these emits
	// must be dropped. None may block the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			o.Emit(domain.Event{Type: domain.CardCreated, ProjectID: "p1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a saturated outbox")
	}

	close(gate)
	o.Close()

	if got := len(pub.published()); got >= 10 {
		t.Fatalf("expected drops, but %d events were published", got)
	}
	dropped := false
	for _, e := range hook.AllEntries() {
		if e.Message == "outbox saturated, dropping event" {
			dropped = true
			break
		}
	}
	if !dropped {
		t.Fatal("expected a saturation warning")
	}
}

func TestOutboxLogsPublishFailuresAndContinues(t *testing.T) {
	pub := &capturePublisher{err: errors.New("queue down")}
	logger, hook := test.NewNullLogger()
	o := NewOutbox(pub, logger)

	o.Emit(domain.Event{Type: domain.CardCreated, ProjectID: "p1"})
	o.Emit(domain.Event{Type: domain.CardDeleted, ProjectID: "p1"})
	o.Close()

	if got := len(pub.published()); got != 2 {
		t.Fatalf("expected both publishes attempted, got %d", got)
	}
	failures := 0
	for _, e := range hook.AllEntries() {
		if e.Level.String() == "error" {
			failures++
		}
	}
	if failures != 2 {
		t.Fatalf("expected 2 failure logs, got %d", failures)
	}
}

func TestOutboxCloseIsIdempotent(t *testing.T) {
	pub := &capturePublisher{}
	logger, _ := test.NewNullLogger()
	o := NewOutbox(pub, logger)
	o.Close()
	o.Close()
}

func TestNopSinkDiscards(t *testing.T) {
	NopSink().Emit(domain.Event{Type: domain.CardCreated})
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("OUTBOX_TEST_INT", "7")
	if got := envInt("OUTBOX_TEST_INT", 3); got != 7 {
		t.Fatalf("envInt = %d", got)
	}
	if got := envInt("OUTBOX_TEST_MISSING", 3); got != 3 {
		t.Fatalf("envInt default = %d", got)
	}
	t.Setenv("OUTBOX_TEST_INT", "junk")
	if got := envInt("OUTBOX_TEST_INT", 3); got != 3 {
		t.Fatalf("envInt junk = %d", got)
	}

	t.Setenv("OUTBOX_TEST_DUR", "250ms")
	if got := envDur("OUTBOX_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Fatalf("envDur = %v", got)
	}
	t.Setenv("OUTBOX_TEST_DUR", "-1s")
	if got := envDur("OUTBOX_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("envDur negative = %v", got)
	}
}
