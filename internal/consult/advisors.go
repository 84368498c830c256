package consult

import (
	"context"
	"fmt"
	"strings"
	"time"

	"advisory.org/internal/auth"
)

func (s *Stable) AddAdvisor(ctx context.Context, p AdvisorPayload) (a Advisor, err error) {
	defer observe("add_advisor", time.Now(), &err)
	if err := validateAdvisor(p); err != nil {
		return Advisor{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.commit(&err)

	a, err = mint(s.store.ids, AdvisorCodec, func(id uint64) Advisor {
		return Advisor{
			Version:     recordVersion,
			ID:          id,
			Name:        strings.TrimSpace(p.Name),
			Credentials: strings.TrimSpace(p.Credentials),
			Rating:      p.Rating,
			Owner:       auth.CallerFromContext(ctx),
			IsAvailable: true,
		}
	})
	if err != nil {
		return Advisor{}, err
	}
	id := a.ID
	if _, _, err := s.store.advisors.Insert(id, a); err != nil {
		return Advisor{}, fmt.Errorf("store advisor: %w", err)
	}
	s.store.publishMetrics()
	emit(ctx, "advisor.created", map[string]any{"advisor_id": id})
	return a, nil
}

func (s *Stable) UpdateAdvisor(ctx context.Context, id uint64, p AdvisorPayload) (a Advisor, err error) {
	defer observe("update_advisor", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.commit(&err)

	a, err = s.requireOwner(ctx, id)
	if err != nil {
		return Advisor{}, err
	}
	if err := validateAdvisor(p); err != nil {
		return Advisor{}, err
	}
	a.Version = recordVersion
	a.Name = strings.TrimSpace(p.Name)
	a.Credentials = strings.TrimSpace(p.Credentials)
	a.Rating = p.Rating
	if _, _, err := s.store.advisors.Insert(id, a); err != nil {
		return Advisor{}, fmt.Errorf("store advisor: %w", err)
	}
	emit(ctx, "advisor.updated", map[string]any{"advisor_id": id})
	return a, nil
}

// UpdateAdvisorAvailability toggles the availability flag. Any caller may do so.
func (s *Stable) UpdateAdvisorAvailability(ctx context.Context, id uint64, available bool) (a Advisor, err error) {
	defer observe("update_advisor_availability", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.commit(&err)

	a, ok := s.store.advisors.Get(id)
	if !ok {
		return Advisor{}, notFound("Legal advisor", id)
	}
	a.Version = recordVersion
	a.IsAvailable = available
	if _, _, err := s.store.advisors.Insert(id, a); err != nil {
		return Advisor{}, fmt.Errorf("store advisor: %w", err)
	}
	emit(ctx, "advisor.availability", map[string]any{"advisor_id": id, "is_available": available})
	return a, nil
}

func (s *Stable) GetAdvisor(ctx context.Context, id uint64) (a Advisor, err error) {
	defer observe("get_advisor", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.store.advisors.Get(id)
	if !ok {
		return Advisor{}, notFound("Legal advisor", id)
	}
	return a, nil
}

func (s *Stable) ListAdvisors(ctx context.Context) (out []Advisor, err error) {
	defer observe("list_advisors", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.advisors.Values(), nil
}
