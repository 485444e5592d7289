// Package sse implements a Server-Sent Events broker that pushes history and
// settings changes to connected UIs.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/pinpress/internal/publish"
)

// Event kinds emitted by the broker besides the record events it relays.
const (
	EventHistoryUpdated  = "history.updated"
	EventSettingsUpdated = "settings.updated"
)

const (
	clientBuffer     = 64
	defaultKeepAlive = 25 * time.Second
	retryMillis      = 3000
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type recordEvent struct {
	kind string
	id   string
}

// Broker fans events out to SSE clients.
//
// One goroutine owns the client set, the event sequence and the history
// throttle. Public methods only talk to it over channels.
type Broker struct {
	historyEvery time.Duration
	keepAlive    time.Duration

	join    chan chan []byte
	leave   chan chan []byte
	events  chan Event
	records chan recordEvent
	count   chan chan int

	stop    chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithKeepAlive sets how often idle streams get a comment line. Zero or less
// disables keep-alives.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) { b.keepAlive = d }
}

// NewBroker creates a new SSE broker. history.updated is emitted at most once
// per historyThrottle, however many record events arrive. A change that lands
// inside a window gets a trailing history.updated when the window closes.
func NewBroker(historyThrottle time.Duration, opts ...Option) *Broker {
	if historyThrottle <= 0 {
		historyThrottle = 2 * time.Second
	}

	b := &Broker{
		historyEvery: historyThrottle,
		keepAlive:    defaultKeepAlive,
		join:         make(chan chan []byte),
		leave:        make(chan chan []byte),
		events:       make(chan Event, 256),
		records:      make(chan recordEvent, 256),
		count:        make(chan chan int),
		stop:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.loop()
	return b
}

// frame encodes one event in the text/event-stream format.
func frame(seq uint64, e Event) ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, e.Type, payload)), nil
}

func (b *Broker) loop() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var seq uint64
	var lastHistory time.Time
	var trailing *time.Timer
	var flush <-chan time.Time
	defer func() {
		if trailing != nil {
			trailing.Stop()
		}
	}()

	send := func(e Event) {
		seq++
		msg, err := frame(seq, e)
		if err != nil {
			return
		}
		for ch := range clients {
			select {
			case ch <- msg:
			default:
				// Slow client: drop rather than stall everyone else.
			}
		}
	}

	for {
		select {
		case <-b.stop:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.join:
			clients[ch] = struct{}{}

		case ch := <-b.leave:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case e := <-b.events:
			send(e)

		case r := <-b.records:
			switch r.kind {
			case publish.EventCreated, publish.EventUpdated, publish.EventDeleted:
				send(Event{Type: r.kind, Data: map[string]string{"id": r.id}})
			case publish.EventCleared:
				send(Event{Type: r.kind, Data: map[string]string{}})
			default:
				continue
			}
			now := time.Now()
			if since := now.Sub(lastHistory); since >= b.historyEvery {
				lastHistory = now
				send(Event{Type: EventHistoryUpdated, Data: map[string]string{}})
			} else if flush == nil {
				trailing = time.NewTimer(b.historyEvery - since)
				flush = trailing.C
			}

		case <-flush:
			flush = nil
			lastHistory = time.Now()
			send(Event{Type: EventHistoryUpdated, Data: map[string]string{}})

		case resp := <-b.count:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel. It is safe to call
// more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stop)
	}
	<-b.stopped
}

// Subscribe registers a client. The returned channel is closed on
// Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.join <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leave <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.count <- resp:
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

// Publish sends an event to all connected clients.
func (b *Broker) Publish(e Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.events <- e:
	case <-b.stopped:
	}
}

// PublishRecordEvent relays a history change and, throttled, a
// history.updated event. Unknown kinds are dropped.
func (b *Broker) PublishRecordEvent(kind, id string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.records <- recordEvent{kind: kind, id: id}:
	case <-b.stopped:
	}
}

// PublishSettingsChanged tells clients to re-read the endpoint settings.
func (b *Broker) PublishSettingsChanged(source string) {
	b.Publish(Event{Type: EventSettingsUpdated, Data: map[string]string{"source": source}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
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
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	var ping <-chan time.Time
	if b.keepAlive > 0 {
		t := time.NewTicker(b.keepAlive)
		defer t.Stop()
		ping = t.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
