package api

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// QueuePublisher delivers a single activity event to the backing queue.
type QueuePublisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Outbox buffers activity events behind the request path and drains them
/// to the queue from worker goroutines. Handlers emit and move on: a full
// buffer drops the event with a warning rather than slowing a response,
// and publish failures are logged, never surfaced to the caller.
type Outbox struct {
	publisher QueuePublisher
	logger    *log.Logger
	events    chan domain.Event
	timeout   time.Duration
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewOutbox starts the outbox workers. Buffer size, worker count and the
// per-publish timeout come from OUTBOX_BUFFER, OUTBOX_WORKERS and
// OUTBOX_TIMEOUT, with sensible defaults.
func NewOutbox(publisher QueuePublisher, logger *log.Logger) *Outbox {
	if publisher == nil {
		panic("api.NewOutbox: publisher is required")
	}
	if logger == nil {
		panic("api.NewOutbox: logger is required")
	}
	o := &Outbox{
		publisher: publisher,
		logger:    logger,
		events:    make(chan domain.Event, envInt("OUTBOX_BUFFER", 1024)),
		timeout:   envDur("OUTBOX_TIMEOUT", 30*time.Second),
	}
	workers := envInt("OUTBOX_WORKERS", 4)
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		o.wg.Add(1)
		go o.worker(i)
	}
	logger.Infof("event outbox started, workers: %d, buffer: %d, timeout: %v", workers, cap(o.events), o.timeout)
	return o
}

// Emit hands an event to the outbox without blocking. Saturation drops the
// event; activity events are best-effort by contract.
func (o *Outbox) Emit(ev domain.Event) {
	select {
	case o.events <- ev:
	default:
		o.logger.WithFields(log.Fields{"type": ev.Type, "project": ev.ProjectID}).Warn("outbox saturated, dropping event")
	}
}

// Close stops accepting events and waits for the workers to drain what was
// already buffered.
func (o *Outbox) Close() {
	o.closeOnce.Do(func() {
		close(o.events)
	})
	o.wg.Wait()
}

func (o *Outbox) worker(id int) {
	defer o.wg.Done()
	for ev := range o.events {
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		err := o.publisher.Publish(ctx, ev)
		cancel()
		if err != nil {
			o.logger.Errorf("event publish failed, err: %v, type: %s, project: %s, worker: %d", err, ev.Type, ev.ProjectID, id)
		}
	}
}

// nopSink discards events. Used when no queue is configured.
type nopSink struct{}

func (nopSink) Emit(domain.Event) {}

// NopSink returns an EventSink that drops everything.
func NopSink() EventSink { return nopSink{} }

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDur(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
