package consult

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const consultationEntity = "Legal consultation"

func (s *Stable) InitiateConsultation(ctx context.Context, p ConsultationPayload) (c Consultation, err error) {
	defer observe("initiate_consultation", time.Now(), &err)
	if err := validateConsultation(p); err != nil {
		return Consultation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.commit(&err)

	if _, err := s.requireOwner(ctx, p.AdvisorID); err != nil {
		return Consultation{}, err
	}
	c, err = mint(s.store.consultIDs, ConsultationCodec, func(id uint64) Consultation {
		return Consultation{
			Version:     recordVersion,
			ID:          id,
			ClientName:  strings.TrimSpace(p.ClientName),
			ClientEmail: strings.TrimSpace(p.ClientEmail),
			AdvisorID:   p.AdvisorID,
			UserID:      p.UserID,
			Details:     strings.TrimSpace(p.Details),
			CreatedAt:   s.now(),
		}
	})
	if err != nil {
		return Consultation{}, err
	}
	id := c.ID
	if _, _, err := s.store.consultations.Insert(id, c); err != nil {
		return Consultation{}, fmt.Errorf("store consultation: %w", err)
	}
	s.appendTimeline(id, "Consultation initiated")
	s.store.publishMetrics()
	emit(ctx, "consultation.initiated", map[string]any{"consultation_id": id, "advisor_id": p.AdvisorID})
	return c, nil
}

func (s *Stable) GetConsultation(ctx context.Context, id uint64) (c Consultation, err error) {
	defer observe("get_consultation", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.store.consultations.Get(id)
	if !ok {
		return Consultation{}, notFound(consultationEntity, id)
	}
	return c, nil
}

func (s *Stable) ListConsultations(ctx context.Context) (out []Consultation, err error) {
	defer observe("list_consultations", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.consultations.Values(), nil
}

// gated loads a consultation and checks the caller owns its current advisor.
func (s *Stable) gated(ctx context.Context, id uint64) (Consultation, error) {
	c, ok := s.store.consultations.Get(id)
	if !ok {
		return Consultation{}, notFound(consultationEntity, id)
	}
	if _, err := s.requireOwner(ctx, c.AdvisorID); err != nil {
		return Consultation{}, err
	}
	return c, nil
}

func (s *Stable) UpdateConsultation(ctx context.Context, id uint64, u ConsultationUpdate) (c Consultation, err error) {
	defer observe("update_consultation", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.commit(&err)

	c, ok := s.store.consultations.Get(id)
	if !ok {
		return Consultation{}, notFound(consultationEntity, id)
	}
	if err := validateConsultationUpdate(u); err != nil {
		return Consultation{}, err
	}
	if _, err := s.requireOwner(ctx, c.AdvisorID); err != nil {
		return Consultation{}, err
	}
	if u.Empty() {
		// nothing to change, nothing written
		return c, nil
	}
	if u.AdvisorID != nil && *u.AdvisorID != c.AdvisorID {
		// Moving a consultation needs ownership of both ends.
		if _, err := s.requireOwner(ctx, *u.AdvisorID); err != nil {
			return Consultation{}, err
		}
		c.AdvisorID = *u.AdvisorID
	}
	if u.UserID != nil {
		c.UserID = *u.UserID
	}
	if u.ClientName != nil {
		c.ClientName = strings.TrimSpace(*u.ClientName)
	}
	if u.ClientEmail != nil {
		c.ClientEmail = strings.TrimSpace(*u.ClientEmail)
	}
	if u.Details != nil {
		c.Details = strings.TrimSpace(*u.Details)
	}
	c.Version = recordVersion
	if _, _, err := s.store.consultations.Insert(id, c); err != nil {
		return Consultation{}, fmt.Errorf("store consultation: %w", err)
	}
	s.appendTimeline(id, "Consultation updated")
	emit(ctx, "consultation.updated", map[string]any{"consultation_id": id})
	return c, nil
}

// MarkConsultationCompleted is idempotent. Repeating it changes nothing.
func (s *Stable) MarkConsultationCompleted(ctx context.Context, id uint64) (c Consultation, err error) {
	defer observe("mark_consultation_completed", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.commit(&err)

	c, err = s.gated(ctx, id)
	if err != nil {
		return Consultation{}, err
	}
	if c.IsCompleted {
		return c, nil
	}
	c.IsCompleted = true
	c.Version = recordVersion
	if _, _, err := s.store.consultations.Insert(id, c); err != nil {
		return Consultation{}, fmt.Errorf("store consultation: %w", err)
	}
	s.appendTimeline(id, "Consultation completed")
	emit(ctx, "consultation.completed", map[string]any{"consultation_id": id})
	return c, nil
}

func (s *Stable) CloseConsultation(ctx context.Context, id uint64, closedAt uint64) (c Consultation, err error) {
	defer observe("close_consultation", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.commit(&err)

	c, err = s.gated(ctx, id)
	if err != nil {
		return Consultation{}, err
	}
	if s.closePolicy == CloseMonotonic && closedAt < c.CreatedAt {
		return Consultation{}, &ValidationError{Errors: []string{
			fmt.Sprintf("Closing time=%d precedes creation time=%d.", closedAt, c.CreatedAt),
		}}
	}
	c.ClosedAt = &closedAt
	c.Version = recordVersion
	if _, _, err := s.store.consultations.Insert(id, c); err != nil {
		return Consultation{}, fmt.Errorf("store consultation: %w", err)
	}
	s.appendTimeline(id, fmt.Sprintf("Consultation closed at %d", closedAt))
	emit(ctx, "consultation.closed", map[string]any{"consultation_id": id, "closed_at": closedAt})
	return c, nil
}

// DeleteConsultation removes the record. Its timeline and feedback stay.
func (s *Stable) DeleteConsultation(ctx context.Context, id uint64) (err error) {
	defer observe("delete_consultation", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.commit(&err)

	if _, err := s.gated(ctx, id); err != nil {
		return err
	}
	if _, _, err := s.store.consultations.Remove(id); err != nil {
		return fmt.Errorf("remove consultation: %w", err)
	}
	s.appendTimeline(id, "Consultation deleted")
	s.store.publishMetrics()
	emit(ctx, "consultation.deleted", map[string]any{"consultation_id": id})
	return nil
}

func (s *Stable) SearchConsultationsByUser(ctx context.Context, userID uint64) (out []Consultation, err error) {
	defer observe("search_consultations_by_user", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out = []Consultation{}
	for _, c := range s.store.consultations.All() {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}
