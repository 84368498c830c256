package consult

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"advisory.org/internal/audit"
	"advisory.org/internal/auth"
	"advisory.org/internal/obs"
	"advisory.org/internal/stablemem"
)

// Service defines advisor and consultation operations.
type Service interface {
	AddAdvisor(ctx context.Context, p AdvisorPayload) (Advisor, error)
	UpdateAdvisor(ctx context.Context, id uint64, p AdvisorPayload) (Advisor, error)
	UpdateAdvisorAvailability(ctx context.Context, id uint64, available bool) (Advisor, error)
	GetAdvisor(ctx context.Context, id uint64) (Advisor, error)
	ListAdvisors(ctx context.Context) ([]Advisor, error)

	InitiateConsultation(ctx context.Context, p ConsultationPayload) (Consultation, error)
	GetConsultation(ctx context.Context, id uint64) (Consultation, error)
	ListConsultations(ctx context.Context) ([]Consultation, error)
	UpdateConsultation(ctx context.Context, id uint64, u ConsultationUpdate) (Consultation, error)
	MarkConsultationCompleted(ctx context.Context, id uint64) (Consultation, error)
	CloseConsultation(ctx context.Context, id uint64, closedAt uint64) (Consultation, error)
	DeleteConsultation(ctx context.Context, id uint64) error
	SearchConsultationsByUser(ctx context.Context, userID uint64) ([]Consultation, error)
	GenerateConsultationReport(ctx context.Context, id uint64) (string, error)

	CollectFeedback(ctx context.Context, consultationID uint64, text string) (FeedbackRecord, error)
	ListFeedback(ctx context.Context, consultationID uint64) ([]FeedbackRecord, error)
	TrackConsultationTimeline(ctx context.Context, consultationID uint64) ([]TimelineEvent, error)
}

// Publisher receives timeline events after they are stored.
type Publisher interface {
	Publish(ev TimelineEvent)
}

// Clock returns the current time in nanoseconds. It must never go backwards.
type Clock func() uint64

// ClosePolicy decides which closing times CloseConsultation accepts.
type ClosePolicy int

const (
	// CloseUnchecked stores any caller supplied closing time.
	CloseUnchecked ClosePolicy = iota
	// CloseMonotonic rejects closing times earlier than the creation time.
	CloseMonotonic
)

// ParseClosePolicy maps a configuration value to a ClosePolicy.
func ParseClosePolicy(v string) (ClosePolicy, error) {
	switch v {
	case "", "unchecked":
		return CloseUnchecked, nil
	case "monotonic":
		return CloseMonotonic, nil
	}
	return CloseUnchecked, errors.New("close policy must be unchecked or monotonic")
}

func (p ClosePolicy) String() string {
	if p == CloseMonotonic {
		return "monotonic"
	}
	return "unchecked"
}

// Option configures a Stable service.
type Option func(*Stable)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Stable) {
		if c != nil {
			s.now = c
		}
	}
}

// WithAuthorization toggles the owner checks on advisor and consultation mutations.
func WithAuthorization(on bool) Option {
	return func(s *Stable) { s.authorize = on }
}

// WithClosePolicy sets the closing time policy.
func WithClosePolicy(p ClosePolicy) Option {
	return func(s *Stable) { s.closePolicy = p }
}

// WithCommitEachWrite makes every mutation flush the region before it
// returns (the default). When off, the owner must call Sync periodically and
// a crash loses what was written since the last flush.
func WithCommitEachWrite(on bool) Option {
	return func(s *Stable) { s.commitEach = on }
}

// WithPublisher registers a sink for new timeline events.
func WithPublisher(p Publisher) Option {
	return func(s *Stable) { s.pub = p }
}

// Stable implements Service over a Store. One mutation completes before the
// next begins.
type Stable struct {
	mu          sync.RWMutex
	store       *Store
	now         Clock
	authorize   bool
	closePolicy ClosePolicy
	commitEach  bool
	pub         Publisher
}

var _ Service = (*Stable)(nil)

// NewStable wraps store.
func NewStable(store *Store, opts ...Option) *Stable {
	s := &Stable{
		store:     store,
		now:        wallClock(),
		authorize:  true,
		commitEach: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.store.publishMetrics()
	return s
}

// NewInMemory builds a service over a fresh in-memory region.
func NewInMemory(opts ...Option) (*Stable, error) {
	store, err := NewMemoryStore(context.Background())
	if err != nil {
		return nil, err
	}
	return NewStable(store, opts...), nil
}

// Store exposes the underlying store for tooling and health checks.
func (s *Stable) Store() *Store { return s.store }

// Sync flushes the region between mutations so a flush never captures half
// of an update.
func (s *Stable) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Sync()
}

// commit flushes the writes of a successful mutation. It runs under the
// write lock, so the flushed region holds whole mutations only. A failed
// flush keeps the change in the region and it is retried by the next one.
func (s *Stable) commit(err *error) {
	if *err != nil || !s.commitEach {
		return
	}
	if serr := s.store.Sync(); serr != nil {
		obs.Error("region commit failed", map[string]any{"error": serr.Error()})
		*err = fmt.Errorf("%w: %w", ErrNotCommitted, serr)
	}
}

func wallClock() Clock {
	var mu sync.Mutex
	var last uint64
	return func() uint64 {
		mu.Lock()
		defer mu.Unlock()
		now := uint64(time.Now().UnixNano())
		if now < last {
			now = last
		}
		last = now
		return now
	}
}

func (s *Store) publishMetrics() {
	obs.SetCollectionRecords("advisors", s.advisors.Len())
	obs.SetCollectionRecords("consultations", s.consultations.Len())
	obs.SetCollectionRecords("feedback", s.feedback.Len())
	obs.SetCollectionRecords("timeline", s.timeline.Len())
	for id, name := range PartitionNames {
		obs.SetPartitionPages(name, s.mm.MustPartition(id).Pages())
	}
}

func observe(op string, start time.Time, err *error) {
	result := "ok"
	switch {
	case *err == nil:
	case errors.Is(*err, ErrNotFound):
		result = "not_found"
	case errors.Is(*err, ErrNotAuthorized):
		result = "not_authorized"
	case errors.Is(*err, ErrInvalidPayload):
		result = "invalid"
	default:
		result = "error"
	}
	obs.ObserveOperation(op, result, time.Since(start))
}

func emit(ctx context.Context, event string, fields map[string]any) {
	if err := audit.LogEvent(ctx, event, fields); err != nil {
		obs.Warn("audit log failed", map[string]any{"event": event, "error": err.Error()})
	}
}

// mint builds the record for the next value of c and reserves that value.
// The record is encoded first so an oversized payload consumes no id.
func mint[V any](c *stablemem.Counter, codec stablemem.Codec[V], build func(id uint64) V) (V, error) {
	v := build(c.Current() + 1)
	if _, err := codec.Encode(v); err != nil {
		var zero V
		return zero, err
	}
	if _, err := c.Next(); err != nil {
		var zero V
		return zero, fmt.Errorf("mint id: %w", err)
	}
	return v, nil
}

// requireOwner resolves the advisor and checks the caller owns it.
func (s *Stable) requireOwner(ctx context.Context, advisorID uint64) (Advisor, error) {
	a, ok := s.store.advisors.Get(advisorID)
	if !ok {
		return Advisor{}, notFound("Legal advisor", advisorID)
	}
	if s.authorize && a.Owner != auth.CallerFromContext(ctx) {
		return Advisor{}, notAuthorized(advisorID)
	}
	return a, nil
}

// appendTimeline records an event for a consultation. The primary write has
// already committed, so failures are logged instead of returned.
func (s *Stable) appendTimeline(consultationID uint64, description string) {
	id, err := s.store.events.Next()
	if err != nil {
		obs.Error("timeline id failed", map[string]any{"consultation_id": consultationID, "error": err.Error()})
		return
	}
	ev := TimelineEvent{
		Version:        recordVersion,
		EventID:        id,
		ConsultationID: consultationID,
		Description:    description,
		Timestamp:      s.now(),
	}
	if _, _, err := s.store.timeline.Insert(id, ev); err != nil {
		obs.Error("timeline append failed", map[string]any{"consultation_id": consultationID, "error": err.Error()})
		return
	}
	if s.pub != nil {
		s.pub.Publish(ev)
	}
}
