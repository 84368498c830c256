package consult

import (
	"context"
	"fmt"
	"time"

	"advisory.org/internal/audit"
	"advisory.org/internal/obs"
	"advisory.org/internal/stablemem"
)

// CurrentSchemaVersion is the record layout written by this binary.
//
// Version 1 stored advisors without an availability flag. Version 2 added it.
const CurrentSchemaVersion = 2

// recordVersion is stamped on every record written by this binary.
const recordVersion uint8 = CurrentSchemaVersion

// SchemaMeta is persisted in the schema cell.
type SchemaMeta struct {
	Version    uint32            `json:"version" cbor:"1,keyasint"`
	Migrations []MigrationRecord `json:"migrations" cbor:"2,keyasint,omitempty"`
}

// MigrationRecord documents one applied migration.
type MigrationRecord struct {
	From      uint32 `json:"from" cbor:"1,keyasint"`
	To        uint32 `json:"to" cbor:"2,keyasint"`
	Name      string `json:"name" cbor:"3,keyasint"`
	AppliedAt uint64 `json:"applied_at" cbor:"4,keyasint"`
	Records   int    `json:"records" cbor:"5,keyasint"`
}

type migration struct {
	from, to uint32
	name     string
	apply    func(*Store) (int, error)
}

var migrations = []migration{
	{from: 1, to: 2, name: "advisor availability", apply: migrateAdvisorAvailability},
}

// migrateAdvisorAvailability marks advisors stored before the availability
// flag existed as available, which is what add_advisor has always defaulted to.
func migrateAdvisorAvailability(s *Store) (int, error) {
	n := 0
	for id, a := range s.advisors.All() {
		if a.Version >= 2 {
			continue
		}
		a.Version = 2
		a.IsAvailable = true
		if _, _, err := s.advisors.Insert(id, a); err != nil {
			return n, fmt.Errorf("advisor %d: %w", id, err)
		}
		n++
	}
	return n, nil
}

func (s *Store) migrate(ctx context.Context) error {
	meta := s.schema.Get()
	if meta.Version > CurrentSchemaVersion {
		return fmt.Errorf("%w: stored schema %d is newer than %d", stablemem.ErrSchemaMismatch, meta.Version, CurrentSchemaVersion)
	}
	for _, m := range migrations {
		if meta.Version != m.from {
			continue
		}
		n, err := m.apply(s)
		if err != nil {
			return fmt.Errorf("migrate schema %d->%d: %w", m.from, m.to, err)
		}
		rec := MigrationRecord{
			From:      m.from,
			To:        m.to,
			Name:      m.name,
			AppliedAt: uint64(time.Now().UnixNano()),
			Records:   n,
		}
		meta.Version = m.to
		meta.Migrations = append(meta.Migrations, rec)
		if err := s.schema.Set(meta); err != nil {
			return fmt.Errorf("record migration %d->%d: %w", m.from, m.to, err)
		}
		if err := audit.LogEvent(ctx, "schema.migrated", map[string]any{
			"from": m.from, "to": m.to, "name": m.name, "records": n,
		}); err != nil {
			obs.Warn("audit log failed", map[string]any{"error": err.Error()})
		}
	}
	if meta.Version != CurrentSchemaVersion {
		return fmt.Errorf("%w: no migration from schema %d", stablemem.ErrSchemaMismatch, meta.Version)
	}
	return nil
}
