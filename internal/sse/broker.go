// Package sse streams publish progress and archive changes to HTTP clients
// as Server-Sent Events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/monologue/internal/dispatch"
)

// replaySize is how many recent frames a reconnecting client can catch up on.
const replaySize = 128

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type frame struct {
	id  uint64
	raw []byte
}

type subscribeReq struct {
	ch     chan []byte
	replay bool
	after  uint64
}

type entryEventReq struct {
	kind string
	path string
}

// Broker fans publish and archive events out to SSE clients.
//
// A single loop owns the clients, the replay buffer and the index.changed
// throttle. Every frame carries an id so a client reconnecting with
// Last-Event-ID receives what it missed while the buffer still holds it.
type Broker struct {
	indexMin time.Duration

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	entryEventCh  chan entryEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits index.changed at most once per
// throttle. Changes inside the window are announced together when it ends.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}

	b := &Broker{
		indexMin:      throttle,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		entryEventCh:  make(chan entryEventReq, 256),
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
	var (
		seq     uint64
		history []frame

		lastIndex time.Time
		pending   = make(map[string]struct{})
		flush     *time.Timer
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		f := frame{id: seq, raw: []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))}
		history = append(history, f)
		if len(history) > replaySize {
			history = history[len(history)-replaySize:]
		}

		for ch := range clients {
			select {
			case ch <- f.raw:
			default:
				// slow client, drop
			}
		}
	}

	announceIndex := func(now time.Time) {
		lastIndex = now
		broadcast(Event{Type: EventIndexChanged, Data: IndexChange{Paths: pendingPaths(pending)}})
		clear(pending)
	}

	for {
		select {
		case <-b.stopCh:
			if flush != nil {
				flush.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case req := <-b.subscribeCh:
			if req.replay {
				for _, f := range history {
					if f.id <= req.after {
						continue
					}
					select {
					case req.ch <- f.raw:
					default:
					}
				}
			}
			clients[req.ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.entryEventCh:
			typ, ok := entryEventType(req.kind)
			if !ok {
				continue
			}
			broadcast(Event{Type: typ, Data: map[string]string{"path": req.path}})
			pending[req.path] = struct{}{}

			now := time.Now()
			if wait := b.indexMin - now.Sub(lastIndex); wait <= 0 {
				announceIndex(now)
			} else if flush == nil {
				flush = time.NewTimer(wait)
			}

		case now := <-timerC(flush):
			flush = nil
			if len(pending) > 0 {
				announceIndex(now)
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client that receives events from now on.
func (b *Broker) Subscribe() chan []byte {
	return b.subscribe(subscribeReq{})
}

// SubscribeAfter adds a client and first replays the buffered events with an
// id greater than lastID.
func (b *Broker) SubscribeAfter(lastID uint64) chan []byte {
	return b.subscribe(subscribeReq{replay: true, after: lastID})
}

func (b *Broker) subscribe(req subscribeReq) chan []byte {
	req.ch = make(chan []byte, 64)
	if b.closed.Load() {
		close(req.ch)
		return req.ch
	}

	select {
	case b.subscribeCh <- req:
	case <-b.stopped:
		close(req.ch)
	}

	return req.ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
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

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishEntryEvent broadcasts an archive file change and schedules an
// index.changed event. kind matches the index watcher callback.
func (b *Broker) PublishEntryEvent(kind, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.entryEventCh <- entryEventReq{kind: kind, path: path}:
	case <-b.stopped:
	}
}

// Observe turns dispatch progress into publish.target, entry.archived and
// publish.completed events, so Broker can be attached to a dispatcher.
func (b *Broker) Observe(_ context.Context, ev dispatch.Event) {
	if event, ok := fromDispatch(ev); ok {
		b.Publish(event)
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). A Last-Event-ID
// header replays buffered events the client missed.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var ch chan []byte
	if last, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		ch = b.SubscribeAfter(last)
	} else {
		ch = b.Subscribe()
	}
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
