// Package logbuf holds the session log stream: an append-only buffer shared
// by every supervised process, and a batcher that relays new entries to the
// presentation layer on a fixed interval.
package logbuf

import "sync"

// Entry is one log message together with its position in the buffer.
type Entry struct {
	Seq     int    `json:"seq" yaml:"seq"`
	Message string `json:"message" yaml:"message"`
}

// Listener is notified of every appended entry, in append order.
type Listener func(Entry)

// Buffer is the append-only, totally ordered log of a session. Append is the
// only mutation and is safe for concurrent use.
type Buffer struct {
	mu        sync.Mutex
	entries   []Entry
	listeners []Listener
}

// NewBuffer creates an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds msg at the next sequence position and notifies every listener
// before returning. Listeners run inside the critical section so they observe
// entries in exactly the order they were stored; they must not call Append.
func (b *Buffer) Append(msg string) Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := Entry{Seq: len(b.entries), Message: msg}
	b.entries = append(b.entries, e)
	for _, fn := range b.listeners {
		fn(e)
	}
	return e
}

// Subscribe registers fn for all future appends. There is no way to
// unsubscribe.
func (b *Buffer) Subscribe(fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Snapshot returns a copy of every entry appended so far.
func (b *Buffer) Snapshot() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of entries appended so far.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
