package consult

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CollectFeedback stores a remark about an existing consultation. Keys come
// from the event counter so rapid calls never collide.
func (s *Stable) CollectFeedback(ctx context.Context, consultationID uint64, text string) (f FeedbackRecord, err error) {
	defer observe("collect_feedback", time.Now(), &err)
	if err := validateFeedback(text); err != nil {
		return FeedbackRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.commit(&err)

	if !s.store.consultations.Contains(consultationID) {
		return FeedbackRecord{}, notFound(consultationEntity, consultationID)
	}
	f, err = mint(s.store.events, FeedbackCodec, func(id uint64) FeedbackRecord {
		return FeedbackRecord{
			Version:        recordVersion,
			ID:             id,
			ConsultationID: consultationID,
			Feedback:       strings.TrimSpace(text),
			Timestamp:      s.now(),
		}
	})
	if err != nil {
		return FeedbackRecord{}, err
	}
	id := f.ID
	if _, _, err := s.store.feedback.Insert(id, f); err != nil {
		return FeedbackRecord{}, fmt.Errorf("store feedback: %w", err)
	}
	s.appendTimeline(consultationID, "Feedback received")
	s.store.publishMetrics()
	emit(ctx, "feedback.collected", map[string]any{"consultation_id": consultationID, "feedback_id": id})
	return f, nil
}

// ListFeedback returns the feedback recorded for a consultation, oldest first.
// An unknown id yields an empty list.
func (s *Stable) ListFeedback(ctx context.Context, consultationID uint64) (out []FeedbackRecord, err error) {
	defer observe("list_feedback", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out = []FeedbackRecord{}
	for _, f := range s.store.feedback.All() {
		if f.ConsultationID == consultationID {
			out = append(out, f)
		}
	}
	return out, nil
}

// TrackConsultationTimeline returns the history of a consultation in event
// order. History outlives deletion; an id with no events is not found.
func (s *Stable) TrackConsultationTimeline(ctx context.Context, consultationID uint64) (out []TimelineEvent, err error) {
	defer observe("track_consultation_timeline", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.store.timeline.All() {
		if ev.ConsultationID == consultationID {
			out = append(out, ev)
		}
	}
	if len(out) == 0 {
		return nil, notFound("Timeline for consultation", consultationID)
	}
	return out, nil
}
