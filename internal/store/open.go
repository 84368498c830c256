// Package store opens the region a deployment keeps its records in.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"advisory.org/internal/config"
	"advisory.org/internal/consult"
	"advisory.org/internal/stablemem"
	"advisory.org/internal/store/pg"
)

// Backing is an opened region together with whatever holds it.
type Backing struct {
	Region stablemem.Region
	// DB is set for the postgres backend and used for readiness pings.
	DB      *sql.DB
	Backend string
	close   func() error
}

// Open opens the region described by cfg.
func Open(ctx context.Context, cfg config.RegionConfig) (*Backing, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return &Backing{Region: stablemem.NewMemoryRegion(), Backend: cfg.Backend, close: func() error { return nil }}, nil
	case config.BackendFile:
		r, err := stablemem.OpenFileRegion(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &Backing{Region: r, Backend: cfg.Backend, close: r.Close}, nil
	case config.BackendPostgres:
		db, err := pg.Open(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		r, err := pg.OpenRegion(ctx, db, cfg.Name)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Backing{Region: r, DB: db, Backend: cfg.Backend, close: func() error {
			serr := r.Sync()
			cerr := db.Close()
			if serr != nil {
				return serr
			}
			return cerr
		}}, nil
	default:
		return nil, fmt.Errorf("unknown region backend %q", cfg.Backend)
	}
}

// OpenStore lays the record collections over the backing's region.
func (b *Backing) OpenStore(ctx context.Context, bucketPages uint16) (*consult.Store, error) {
	mm, err := stablemem.InitMemoryManager(b.Region, stablemem.WithBucketPages(bucketPages))
	if err != nil {
		return nil, fmt.Errorf("init memory manager: %w", err)
	}
	return consult.OpenStore(ctx, mm)
}

// Close flushes and releases the region.
func (b *Backing) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}
