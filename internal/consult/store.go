package consult

import (
	"context"
	"fmt"

	"advisory.org/internal/stablemem"
)

// Partition layout. Ids are bound for the lifetime of a deployment and must
// only be repurposed by a schema migration.
const (
	PartitionAdvisorIDs    stablemem.PartitionID = 0
	PartitionConsultations stablemem.PartitionID = 1
	PartitionAdvisors      stablemem.PartitionID = 2
	PartitionFeedback      stablemem.PartitionID = 3
	PartitionTimeline      stablemem.PartitionID = 4
	PartitionEvents        stablemem.PartitionID = 5
	PartitionSchema        stablemem.PartitionID = 6
	PartitionConsultIDs    stablemem.PartitionID = 7
)

// PartitionNames maps each bound partition to a label used in metrics and tooling.
var PartitionNames = map[stablemem.PartitionID]string{
	PartitionAdvisorIDs:    "advisor_ids",
	PartitionConsultations: "consultations",
	PartitionAdvisors:      "advisors",
	PartitionFeedback:      "feedback",
	PartitionTimeline:      "timeline",
	PartitionEvents:        "events",
	PartitionSchema:        "schema",
	PartitionConsultIDs:    "consultation_ids",
}

// Store binds the domain collections to their partitions. It is built once at
// startup and shared by every request.
type Store struct {
	mm            *stablemem.MemoryManager
	ids           *stablemem.Counter
	consultIDs    *stablemem.Counter
	events        *stablemem.Counter
	consultations *stablemem.Map[Consultation]
	advisors      *stablemem.Map[Advisor]
	feedback      *stablemem.Map[FeedbackRecord]
	timeline      *stablemem.Map[TimelineEvent]
	schema        *stablemem.Cell[SchemaMeta]
}

// OpenStore opens every collection of the layout and brings the stored schema
// up to CurrentSchemaVersion.
func OpenStore(ctx context.Context, mm *stablemem.MemoryManager) (*Store, error) {
	part := func(id stablemem.PartitionID) (*stablemem.Partition, error) {
		p, err := mm.Partition(id)
		if err != nil {
			return nil, fmt.Errorf("partition %s: %w", PartitionNames[id], err)
		}
		return p, nil
	}
	s := &Store{mm: mm}

	p, err := part(PartitionAdvisorIDs)
	if err != nil {
		return nil, err
	}
	if s.ids, err = stablemem.InitCounter(p, 0); err != nil {
		return nil, fmt.Errorf("open advisor id counter: %w", err)
	}
	if p, err = part(PartitionConsultIDs); err != nil {
		return nil, err
	}
	// Older layouts minted consultation ids from the advisor counter, so a new
	// consultation counter starts past every id handed out so far.
	if s.consultIDs, err = stablemem.InitCounter(p, s.ids.Current()); err != nil {
		return nil, fmt.Errorf("open consultation id counter: %w", err)
	}
	if p, err = part(PartitionEvents); err != nil {
		return nil, err
	}
	if s.events, err = stablemem.InitCounter(p, 0); err != nil {
		return nil, fmt.Errorf("open event counter: %w", err)
	}
	if p, err = part(PartitionConsultations); err != nil {
		return nil, err
	}
	if s.consultations, err = stablemem.OpenMap(p, ConsultationCodec); err != nil {
		return nil, fmt.Errorf("open consultations: %w", err)
	}
	if p, err = part(PartitionAdvisors); err != nil {
		return nil, err
	}
	if s.advisors, err = stablemem.OpenMap(p, AdvisorCodec); err != nil {
		return nil, fmt.Errorf("open advisors: %w", err)
	}
	if p, err = part(PartitionFeedback); err != nil {
		return nil, err
	}
	if s.feedback, err = stablemem.OpenMap(p, FeedbackCodec); err != nil {
		return nil, fmt.Errorf("open feedback: %w", err)
	}
	if p, err = part(PartitionTimeline); err != nil {
		return nil, err
	}
	if s.timeline, err = stablemem.OpenMap(p, TimelineCodec); err != nil {
		return nil, fmt.Errorf("open timeline: %w", err)
	}

	if p, err = part(PartitionSchema); err != nil {
		return nil, err
	}
	initial := SchemaMeta{Version: CurrentSchemaVersion}
	if p.Pages() == 0 && !s.empty() {
		// Data written before the schema cell existed.
		initial.Version = 1
	}
	if s.schema, err = stablemem.InitCell(p, schemaMetaCodec, initial); err != nil {
		return nil, fmt.Errorf("open schema: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemoryStore opens a store over a fresh in-memory region.
func NewMemoryStore(ctx context.Context) (*Store, error) {
	mm, err := stablemem.InitMemoryManager(stablemem.NewMemoryRegion())
	if err != nil {
		return nil, err
	}
	return OpenStore(ctx, mm)
}

func (s *Store) empty() bool {
	return s.ids.Current() == 0 && s.consultIDs.Current() == 0 && s.events.Current() == 0 &&
		s.advisors.Len() == 0 && s.consultations.Len() == 0 &&
		s.feedback.Len() == 0 && s.timeline.Len() == 0
}

// Schema returns the stored schema metadata.
func (s *Store) Schema() SchemaMeta { return s.schema.Get() }

// Sync flushes the backing region.
func (s *Store) Sync() error { return s.mm.Sync() }

// Stats summarises the durable state of a store.
type Stats struct {
	SchemaVersion      uint32            `json:"schema_version"`
	LastAdvisorID      uint64            `json:"last_advisor_id"`
	LastConsultationID uint64            `json:"last_consultation_id"`
	LastEventID        uint64            `json:"last_event_id"`
	Records            map[string]int    `json:"records"`
	PartitionPages     map[string]uint64 `json:"partition_pages"`
	BucketPages        uint64            `json:"bucket_pages"`
}

// Stats reports record counts, counters and partition sizes.
func (s *Store) Stats() Stats {
	st := Stats{
		SchemaVersion:      s.schema.Get().Version,
		LastAdvisorID:      s.ids.Current(),
		LastConsultationID: s.consultIDs.Current(),
		LastEventID:        s.events.Current(),
		Records: map[string]int{
			"advisors":      s.advisors.Len(),
			"consultations": s.consultations.Len(),
			"feedback":      s.feedback.Len(),
			"timeline":      s.timeline.Len(),
		},
		PartitionPages: make(map[string]uint64, len(PartitionNames)),
		BucketPages:    s.mm.BucketPages(),
	}
	for id, name := range PartitionNames {
		st.PartitionPages[name] = s.mm.MustPartition(id).Pages()
	}
	return st
}

// Advisors returns every advisor in id order.
func (s *Store) Advisors() []Advisor { return s.advisors.Values() }

// Consultations returns every consultation in id order.
func (s *Store) Consultations() []Consultation { return s.consultations.Values() }

// Feedback returns every feedback record in key order.
func (s *Store) Feedback() []FeedbackRecord { return s.feedback.Values() }

// Timeline returns every timeline event in event id order.
func (s *Store) Timeline() []TimelineEvent { return s.timeline.Values() }
