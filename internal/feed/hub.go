// Package feed broadcasts alert events to remote subscribers over gRPC and
// websocket.
package feed

import (
	"sync"

	"github.com/etesami/roi-watcher/internal/alert"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const DefaultBuffer = 8

// Hub fans alert events out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]chan alert.Event
	buf    int
	closed bool
	log    *zap.Logger
}

func NewHub(buf int, log *zap.Logger) *Hub {
	if buf <= 0 {
		buf = DefaultBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		subs: make(map[string]chan alert.Event),
		buf:  buf,
		log:  log,
	}
}

// Subscribe registers a new subscriber. The channel is closed on Unsubscribe
// or when the hub is closed.
func (h *Hub) Subscribe() (string, <-chan alert.Event) {
	id := uuid.NewString()
	ch := make(chan alert.Event, h.buf)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subs[id] = ch
	h.log.Debug("feed subscriber added", zap.String("id", id), zap.Int("subscribers", len(h.subs)))
	return id, ch
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
		h.log.Debug("feed subscriber removed", zap.String("id", id), zap.Int("subscribers", len(h.subs)))
	}
}

// Publish returns the number of subscribers that received ev.
func (h *Hub) Publish(ev alert.Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for id, ch := range h.subs {
		select {
		case ch <- ev:
			n++
		default:
			h.log.Warn("feed subscriber is slow, event dropped", zap.String("id", id))
		}
	}
	return n
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber. Later subscriptions get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// Sink adapts a Hub to alert.Sink.
type Sink struct {
	hub *Hub
}

func NewSink(hub *Hub) *Sink {
	return &Sink{hub: hub}
}

func (s *Sink) Handle(ev alert.Event, _ gocv.Mat, _ *alert.Marks) error {
	s.hub.Publish(ev)
	return nil
}
