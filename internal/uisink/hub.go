// Package uisink relays the session log to the presentation layer over
// HTTP and WebSocket.
package uisink

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/setevik/procwarden/internal/logbuf"
)

// ErrNoViewer is returned by DeliverLogs when no client is ready to receive.
// It wraps logbuf.ErrNoConsumer, so the batcher drops the batch quietly.
var ErrNoViewer = fmt.Errorf("no log viewer connected: %w", logbuf.ErrNoConsumer)

// clientQueue bounds how many undelivered messages a slow client may hold
// before it is disconnected.
const clientQueue = 64

// Message is the frame exchanged with clients.
type Message struct {
	Type    string         `json:"type"`
	Entries []logbuf.Entry `json:"entries,omitempty"`
}

// Snapshotter provides the full session log.
type Snapshotter interface {
	Snapshot() []logbuf.Entry
}

type client struct {
	send  chan Message
	ready bool
	// next is the first Seq this client has not been sent yet.
	next int
}

// Hub tracks connected viewers and fans log batches out to them.
type Hub struct {
	logs Snapshotter

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates a Hub that serves snapshots from logs.
func NewHub(logs Snapshotter) *Hub {
	return &Hub{
		logs:    logs,
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) register() *client {
	c := &client{send: make(chan Message, clientQueue)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// markReady sends the full log to c, once. Batches that follow skip the
// entries the snapshot already covered.
func (h *Hub) markReady(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok || c.ready {
		return
	}
	snap := h.logs.Snapshot()
	c.ready = true
	if len(snap) > 0 {
		c.next = snap[len(snap)-1].Seq + 1
	}
	h.enqueue(c, Message{Type: "logs", Entries: snap})
}

// enqueue must be called with h.mu held.
func (h *Hub) enqueue(c *client, m Message) {
	select {
	case c.send <- m:
	default:
		slog.Warn("log viewer too slow, disconnecting")
		delete(h.clients, c)
		close(c.send)
	}
}

// DeliverLogs sends a batch to every ready client. It returns ErrNoViewer
// when nobody is listening so the caller can account for the lost batch.
func (h *Hub) DeliverLogs(entries []logbuf.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := false
	for c := range h.clients {
		if !c.ready {
			continue
		}
		fresh := entries
		for len(fresh) > 0 && fresh[0].Seq < c.next {
			fresh = fresh[1:]
		}
		delivered = true
		if len(fresh) == 0 {
			continue
		}
		c.next = fresh[len(fresh)-1].Seq + 1
		h.enqueue(c, Message{Type: "logs", Entries: fresh})
	}

	if !delivered {
		return ErrNoViewer
	}
	return nil
}

// Viewers returns the number of ready clients.
func (h *Hub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for c := range h.clients {
		if c.ready {
			n++
		}
	}
	return n
}
