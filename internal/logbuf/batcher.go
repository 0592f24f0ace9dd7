package logbuf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrNoConsumer is returned (possibly wrapped) by a Sink that has nobody to
// deliver to yet. The batch is dropped without recording a fault.
var ErrNoConsumer = errors.New("no log consumer")

// Sink receives batches of log entries. DeliverLogs returning an error means
// the consumer was unreachable and the batch is lost for display purposes.
type Sink interface {
	DeliverLogs(entries []Entry) error
}

// FaultReporter records delivery failures somewhere durable.
type FaultReporter interface {
	Error(process, msg string)
}

// Batcher collects entries as the Buffer announces them and hands them to a
// Sink once per interval.
type Batcher struct {
	sink     Sink
	faults   FaultReporter
	interval time.Duration

	// flushMu keeps batches from overtaking each other at the sink.
	flushMu sync.Mutex

	mu      sync.Mutex
	pending []Entry
}

// NewBatcher subscribes a Batcher to buf. Nothing is delivered until Run or
// Flush is called. faults may be nil.
func NewBatcher(buf *Buffer, sink Sink, interval time.Duration, faults FaultReporter) *Batcher {
	b := &Batcher{
		sink:     sink,
		faults:   faults,
		interval: interval,
	}
	buf.Subscribe(b.observe)
	return b
}

func (b *Batcher) observe(e Entry) {
	b.mu.Lock()
	b.pending = append(b.pending, e)
	b.mu.Unlock()
}

// Pending returns the number of entries waiting for the next flush.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush delivers everything accumulated since the previous flush as one
// ordered batch. An empty batch is a no-op. A failing or panicking sink is
// reported and the batch is dropped; Flush itself never fails. A sink with no
// consumer only drops the batch.
func (b *Batcher) Flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	err := b.deliver(batch)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoConsumer):
		slog.Debug("no log consumer, batch dropped", "entries", len(batch))
	default:
		slog.Warn("log delivery failed, batch dropped", "entries", len(batch), "error", err)
		if b.faults != nil {
			b.faults.Error("", fmt.Sprintf("App Was Closed While Writing Logs: %v", err))
		}
	}
}

func (b *Batcher) deliver(batch []Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return b.sink.DeliverLogs(batch)
}

// Run flushes on every tick of the interval until ctx is cancelled.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}
