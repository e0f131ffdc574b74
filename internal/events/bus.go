// Package events carries lifecycle events from the note engine to UIs.
package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event is one lifecycle notification.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type fileEventReq struct {
	kind string
	path string
}

// Bus fans events out to in-process subscribers and SSE clients.
//
// A single internal goroutine owns the subscriber set and the search throttle
// timestamp. Public methods talk to it through channels.
type Bus struct {
	searchMin time.Duration

	subscribeCh   chan chan Event
	unsubscribeCh chan chan Event
	publishCh     chan Event
	fileEventCh   chan fileEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBus creates a bus. searchThrottle bounds how often search.updated is
// emitted for bursts of file events.
func NewBus(searchThrottle time.Duration) *Bus {
	if searchThrottle <= 0 {
		searchThrottle = 2 * time.Second
	}

	b := &Bus{
		searchMin:     searchThrottle,
		subscribeCh:   make(chan chan Event),
		unsubscribeCh: make(chan chan Event),
		publishCh:     make(chan Event, 256),
		fileEventCh:   make(chan fileEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Bus) run() {
	defer close(b.stopped)

	clients := make(map[chan Event]struct{})
	var lastSearch time.Time

	broadcast := func(event Event) {
		for ch := range clients {
			select {
			case ch <- event:
			default:
				// Subscriber buffer full; drop rather than stall the loop.
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

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.fileEventCh:
			data := PathPayload{Path: req.path}
			switch req.kind {
			case "created":
				broadcast(Event{Type: FileCreated, Data: data})
			case "updated":
				broadcast(Event{Type: FileUpdated, Data: data})
			case "deleted":
				broadcast(Event{Type: FileDeleted, Data: data})
			}

			now := time.Now()
			if now.Sub(lastSearch) >= b.searchMin {
				lastSearch = now
				broadcast(Event{Type: SearchUpdated, Data: struct{}{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes all subscriber channels.
func (b *Bus) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a subscriber and returns its channel.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// SubscriberCount returns the number of subscribers.
func (b *Bus) SubscriberCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all subscribers.
func (b *Bus) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishFileEvent publishes an external file change and a throttled
// search.updated event. kind is one of "created", "updated", "deleted".
func (b *Bus) PublishFileEvent(kind, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.fileEventCh <- fileEventReq{kind: kind, path: path}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Bus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev.Data)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}
