package stream

import (
	"context"
	"testing"
	"time"

	"advisory.org/internal/consult"
)

func receive(t *testing.T, ch <-chan consult.TimelineEvent) (consult.TimelineEvent, bool) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		return ev, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return consult.TimelineEvent{}, false
}

func TestPublishFansOut(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all := s.Subscribe(ctx, 0)
	only := s.Subscribe(ctx, 2)

	s.Publish(consult.TimelineEvent{EventID: 1, ConsultationID: 1, Description: "Consultation initiated"})
	s.Publish(consult.TimelineEvent{EventID: 2, ConsultationID: 2, Description: "Consultation initiated"})

	if ev, _ := receive(t, all); ev.EventID != 1 {
		t.Fatalf("unexpected first event %+v", ev)
	}
	if ev, _ := receive(t, all); ev.EventID != 2 {
		t.Fatalf("unexpected second event %+v", ev)
	}
	if ev, _ := receive(t, only); ev.EventID != 2 {
		t.Fatalf("filtered subscriber got %+v", ev)
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx, 0)
	if s.Subscribers() != 1 {
		t.Fatalf("expected one subscriber, got %d", s.Subscribers())
	}
	cancel()
	if _, ok := receive(t, ch); ok {
		t.Fatal("expected closed channel")
	}
	if s.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", s.Subscribers())
	}
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = s.Subscribe(ctx, 0)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Publish(consult.TimelineEvent{EventID: uint64(i + 1)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
}
