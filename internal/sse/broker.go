// Package sse streams conversion progress and vault changes to browsers as
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types sent to clients.
const (
	TypeBatchStarted   = "batch.started"
	TypePageConverted  = "page.converted"
	TypePageSkipped    = "page.skipped"
	TypePageFailed     = "page.failed"
	TypeBatchCompleted = "batch.completed"
	TypePageCreated    = "page.created"
	TypePageUpdated    = "page.updated"
	TypePageDeleted    = "page.deleted"
	TypeIndexUpdated   = "index.updated"
)

const (
	clientBuffer  = 64
	commandBuffer = 256
	keepAliveTick = 30 * time.Second
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// IndexUpdated is the payload of index.updated. RunID is set when the
// event closes a batch run.
type IndexUpdated struct {
	RunID string `json:"run_id,omitempty"`
}

// changeType maps a watcher change kind to its event type.
func changeType(kind string) (string, bool) {
	switch kind {
	case "created":
		return TypePageCreated, true
	case "updated":
		return TypePageUpdated, true
	case "deleted":
		return TypePageDeleted, true
	}
	return "", false
}

// hub is the state owned by the broker loop. It is never touched from
// another goroutine.
type hub struct {
	clients   map[chan []byte]struct{}
	seq       uint64
	indexMin  time.Duration
	lastIndex time.Time

	// While a batch run is active, vault changes only mark the index stale;
	// one index.updated follows batch.completed.
	run     string
	running bool
	stale   bool
}

func (h *hub) send(ev Event) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return
	}
	h.seq++
	frame := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", h.seq, ev.Type, payload))
	for ch := range h.clients {
		select {
		case ch <- frame:
		default:
			// Slow client; drop rather than stall the loop.
		}
	}
}

func (h *hub) publish(ev Event) {
	h.send(ev)
	switch ev.Type {
	case TypeBatchStarted:
		h.run, h.running = runOf(ev.Data), true
	case TypeBatchCompleted:
		run, stale := h.run, h.stale
		h.run, h.running, h.stale = "", false, false
		if stale {
			h.lastIndex = time.Now()
			h.send(Event{Type: TypeIndexUpdated, Data: IndexUpdated{RunID: run}})
		}
	}
}

func (h *hub) change(kind, path string, now time.Time) {
	typ, ok := changeType(kind)
	if !ok {
		return
	}
	if h.running {
		h.stale = true
		return
	}
	h.send(Event{Type: typ, Data: map[string]string{"path": path}})
	if now.Sub(h.lastIndex) >= h.indexMin {
		h.lastIndex = now
		h.send(Event{Type: TypeIndexUpdated, Data: IndexUpdated{}})
	}
}

func (h *hub) closeAll() {
	for ch := range h.clients {
		close(ch)
	}
	h.clients = nil
}

// Broker fans events out to connected clients.
//
// Every public method is turned into a command run by a single loop
// goroutine, so commands apply in the order they were issued.
type Broker struct {
	cmds    chan func(*hub)
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. Vault changes outside a batch run trigger at
// most one index.updated event per indexThrottle.
func NewBroker(indexThrottle time.Duration) *Broker {
	if indexThrottle <= 0 {
		indexThrottle = 2 * time.Second
	}
	b := &Broker{
		cmds:    make(chan func(*hub), commandBuffer),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	h := &hub{clients: make(map[chan []byte]struct{}), indexMin: indexThrottle}
	go b.loop(h)
	return b
}

func (b *Broker) loop(h *hub) {
	defer close(b.stopped)
	for {
		select {
		case <-b.stopCh:
			h.closeAll()
			return
		case cmd := <-b.cmds:
			cmd(h)
		}
	}
}

// post queues cmd without waiting for it to run.
func (b *Broker) post(cmd func(*hub)) {
	if b.closed.Load() {
		return
	}
	select {
	case b.cmds <- cmd:
	case <-b.stopped:
	}
}

// call runs cmd on the loop and reports whether it ran.
func (b *Broker) call(cmd func(*hub)) bool {
	if b.closed.Load() {
		return false
	}
	done := make(chan struct{})
	select {
	case b.cmds <- func(h *hub) { cmd(h); close(done) }:
	case <-b.stopped:
		return false
	}
	select {
	case <-done:
		return true
	case <-b.stopped:
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel. After Close the
// channel comes back already closed.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if !b.call(func(h *hub) { h.clients[ch] = struct{}{} }) {
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.post(func(h *hub) {
		if _, ok := h.clients[ch]; ok {
			delete(h.clients, ch)
			close(ch)
		}
	})
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	n := 0
	b.call(func(h *hub) { n = len(h.clients) })
	return n
}

// Publish sends an event to all connected clients. batch.started and
// batch.completed also open and close the active run.
func (b *Broker) Publish(event Event) {
	b.post(func(h *hub) { h.publish(event) })
}

// PublishChange reports a vault page created, updated or deleted. Other
// kinds are ignored. Changes made during a batch run are folded into the
// index.updated that follows batch.completed.
func (b *Broker) PublishChange(kind, path string) {
	now := time.Now()
	b.post(func(h *hub) { h.change(kind, path, now) })
}

// ServeHTTP is the SSE endpoint handler (GET /events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(keepAliveTick)
	defer ping.Stop()

	write := func(p []byte) {
		_, _ = w.Write(p)
		flusher.Flush()
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			write([]byte(": ping\n\n"))
		case msg, ok := <-ch:
			if !ok {
				return
			}
			write(msg)
		}
	}
}
