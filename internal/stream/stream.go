package stream

import (
	"context"
	"sync"
	"time"
)

// SyncEvent summarizes one sync call for console observers.
type SyncEvent struct {
	Kind      string         `json:"kind"`
	UserID    string         `json:"userId"`
	PartnerID string         `json:"partnerId,omitempty"`
	DeviceID  string         `json:"deviceId,omitempty"`
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Outcomes  map[string]int `json:"outcomes,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

const (
	KindBatch  = "bulk_sync"
	KindSubmit = "submit"
)

// Stream fan-outs sync events to all active subscribers (SSE clients).
type Stream struct {
	mu     sync.RWMutex
	subs   map[int]chan SyncEvent
	next   int
	buffer int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{
		subs:   make(map[int]chan SyncEvent),
		buffer: 16,
	}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan SyncEvent {
	ch := make(chan SyncEvent, s.buffer)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Subscribers reports the number of attached subscribers.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt SyncEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
