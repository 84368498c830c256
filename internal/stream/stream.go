package stream

import (
	"context"
	"sync"

	"advisory.org/internal/consult"
)

// Stream fan-outs timeline events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

type subscriber struct {
	ch             chan consult.TimelineEvent
	consultationID uint64
}

var _ consult.Publisher = (*Stream)(nil)

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. A non-zero consultationID limits delivery to that consultation.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context, consultationID uint64) <-chan consult.TimelineEvent {
	ch := make(chan consult.TimelineEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{ch: ch, consultationID: consultationID}
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

// Publish fan-outs the event to all matching subscribers.
func (s *Stream) Publish(ev consult.TimelineEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.consultationID != 0 && sub.consultationID != ev.ConsultationID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Subscribers reports the number of active subscriptions.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
