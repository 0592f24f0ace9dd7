package logbuf

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]Entry
	err     error
	panics  bool
}

func (s *recordingSink) DeliverLogs(entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panics {
		panic("window destroyed")
	}
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, append([]Entry(nil), entries...))
	return nil
}

func (s *recordingSink) snapshot() [][]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Entry(nil), s.batches...)
}

func (s *recordingSink) set(err error, panics bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	s.panics = panics
}

type faultLog struct {
	mu   sync.Mutex
	msgs []string
}

func (f *faultLog) Error(_, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *faultLog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func messages(batch []Entry) []string {
	out := make([]string, len(batch))
	for i, e := range batch {
		out[i] = e.Message
	}
	return out
}

func TestFlushBatchesByTickBoundary(t *testing.T) {
	buf := NewBuffer()
	sink := &recordingSink{}
	b := NewBatcher(buf, sink, time.Hour, nil)

	// t=0.5s and t=1.2s, then the t=2s tick.
	buf.Append("first")
	buf.Append("second")
	b.Flush()

	// t=2.1s, then the t=4s tick.
	buf.Append("third")
	b.Flush()

	got := sink.snapshot()
	if len(got) != 2 {
		t.Fatalf("got %d batches, want 2", len(got))
	}
	if m := messages(got[0]); len(m) != 2 || m[0] != "first" || m[1] != "second" {
		t.Errorf("first batch = %v", m)
	}
	if m := messages(got[1]); len(m) != 1 || m[0] != "third" {
		t.Errorf("second batch = %v", m)
	}
}

func TestFlushEmptyIsNoop(t *testing.T) {
	buf := NewBuffer()
	sink := &recordingSink{}
	b := NewBatcher(buf, sink, time.Hour, nil)

	b.Flush()
	b.Flush()

	if n := len(sink.snapshot()); n != 0 {
		t.Errorf("empty flushes delivered %d batches", n)
	}
}

func TestFlushDeliversEveryEntryOnceInOrder(t *testing.T) {
	buf := NewBuffer()
	sink := &recordingSink{}
	b := NewBatcher(buf, sink, time.Hour, nil)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				buf.Append("x")
				if i%37 == 0 {
					b.Flush()
				}
			}
		}()
	}
	wg.Wait()
	b.Flush()

	want := 0
	for _, batch := range sink.snapshot() {
		for _, e := range batch {
			if e.Seq != want {
				t.Fatalf("delivered Seq %d, want %d", e.Seq, want)
			}
			want++
		}
	}
	if want != buf.Len() {
		t.Errorf("delivered %d entries, buffer has %d", want, buf.Len())
	}
	if b.Pending() != 0 {
		t.Errorf("Pending() = %d after final flush", b.Pending())
	}
}

func TestFlushSwallowsSinkFailure(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		panics bool
	}{
		{"error", errors.New("no window"), false},
		{"panic", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := NewBuffer()
			sink := &recordingSink{}
			faults := &faultLog{}
			b := NewBatcher(buf, sink, time.Hour, faults)

			sink.set(tt.err, tt.panics)
			buf.Append("lost")
			b.Flush()

			if faults.count() != 1 {
				t.Errorf("fault reports = %d, want 1", faults.count())
			}

			sink.set(nil, false)
			buf.Append("later")
			b.Flush()

			got := sink.snapshot()
			if len(got) != 1 {
				t.Fatalf("got %d batches, want 1", len(got))
			}
			if m := messages(got[0]); len(m) != 1 || m[0] != "later" {
				t.Errorf("batch after recovery = %v", m)
			}
		})
	}
}

func TestFlushWithoutConsumerRecordsNoFault(t *testing.T) {
	buf := NewBuffer()
	sink := &recordingSink{}
	faults := &faultLog{}
	b := NewBatcher(buf, sink, time.Hour, faults)

	sink.set(fmt.Errorf("no viewer yet: %w", ErrNoConsumer), false)
	for i := 0; i < 100; i++ {
		buf.Append("chatter")
		b.Flush()
	}

	if n := faults.count(); n != 0 {
		t.Errorf("fault reports = %d, want 0 while nobody is listening", n)
	}
	if b.Pending() != 0 {
		t.Errorf("Pending() = %d, dropped batches should not accumulate", b.Pending())
	}

	sink.set(errors.New("window destroyed"), false)
	buf.Append("lost")
	b.Flush()
	if n := faults.count(); n != 1 {
		t.Errorf("fault reports after a real failure = %d, want 1", n)
	}
}

func TestRunKeepsTickingAfterSinkFailure(t *testing.T) {
	buf := NewBuffer()
	sink := &recordingSink{}
	faults := &faultLog{}
	b := NewBatcher(buf, sink, 10*time.Millisecond, faults)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	sink.set(nil, true)
	buf.Append("dropped")
	waitFor(t, func() bool { return faults.count() == 1 })

	sink.set(nil, false)
	buf.Append("delivered")
	waitFor(t, func() bool { return len(sink.snapshot()) == 1 })

	if m := messages(sink.snapshot()[0]); len(m) != 1 || m[0] != "delivered" {
		t.Errorf("batch = %v, want [delivered]", m)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
