// Package sse implements a Server-Sent Events broker that streams ingest
// lifecycle events to connected operators.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type fileEventReq struct {
	kind string
	path string
}

// knownKinds maps ingest event kinds to SSE event types.
var knownKinds = map[string]string{
	"queued":     "file.queued",
	"processing": "file.processing",
	"processed":  "file.processed",
	"failed":     "file.failed",
	"deleted":    "file.deleted",
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable
// state (clients + queue-update throttle timestamp). Public methods
// communicate with this loop through channels, so no mutexes are required.
type Broker struct {
	queueMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	fileEventCh   chan fileEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. queueThrottle bounds how often the
// aggregate queue.updated event is emitted.
func NewBroker(queueThrottle time.Duration) *Broker {
	if queueThrottle <= 0 {
		queueThrottle = 2 * time.Second
	}

	b := &Broker{
		queueMin:      queueThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		fileEventCh:   make(chan fileEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastQueue time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case req := <-b.fileEventCh:
			evType, ok := knownKinds[req.kind]
			if !ok {
				continue
			}
			broadcast(Event{Type: evType, Data: map[string]string{"path": req.path}})

			now := time.Now()
			if now.Sub(lastQueue) >= b.queueMin {
				lastQueue = now
				broadcast(Event{Type: "queue.updated", Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Subscribe registers a new client channel and returns it.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client channel; the broker closes it.
func (b *Broker) Unsubscribe(ch chan []byte) {
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// PublishFileEvent broadcasts an ingest lifecycle event. Safe to call
// after Close (no-op).
func (b *Broker) PublishFileEvent(kind, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.fileEventCh <- fileEventReq{kind: kind, path: path}:
	default:
		// Event buffer full; drop rather than stall the publisher.
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
		return <-resp
	case <-b.stopped:
		return 0
	}
}

// ServeHTTP subscribes the caller to the event stream until the request
// context ends.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if b.closed.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Initial comment so clients know the stream is live.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// Close gracefully stops the broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.Swap(true) {
		return
	}
	close(b.stopCh)
	<-b.stopped
}
