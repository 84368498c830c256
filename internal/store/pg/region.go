package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"advisory.org/internal/stablemem"
)

// Open connects to Postgres through the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// Region keeps a stablemem region in Postgres. Pages are held in memory and
// written back by Sync; pages never written stay absent from region_pages and
// read as zeros.
type Region struct {
	db   *sql.DB
	name string

	mu        sync.RWMutex
	data      []byte
	dirty     map[uint64]struct{}
	persisted uint64
}

var _ stablemem.Region = (*Region)(nil)

// OpenRegion loads the named region. A region that has never been synced
// starts empty.
func OpenRegion(ctx context.Context, db *sql.DB, name string) (*Region, error) {
	r := &Region{db: db, name: name, dirty: make(map[uint64]struct{})}

	var pages int64
	err := db.QueryRowContext(ctx, `select pages from regions where name = $1`, name).Scan(&pages)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		pages = 0
	case err != nil:
		return nil, fmt.Errorf("load region %s: %w", name, err)
	}
	if pages < 0 {
		return nil, fmt.Errorf("%w: region %s has %d pages", stablemem.ErrCorruptHeader, name, pages)
	}
	r.persisted = uint64(pages)
	r.data = make([]byte, uint64(pages)*stablemem.PageSize)

	rows, err := db.QueryContext(ctx, `select page_no, data from region_pages where region = $1 order by page_no`, name)
	if err != nil {
		return nil, fmt.Errorf("load pages of %s: %w", name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			pageNo int64
			page   []byte
		)
		if err := rows.Scan(&pageNo, &page); err != nil {
			return nil, err
		}
		if pageNo < 0 || pageNo >= pages || len(page) != stablemem.PageSize {
			return nil, fmt.Errorf("%w: page %d of region %s (%d bytes)", stablemem.ErrCorruptHeader, pageNo, name, len(page))
		}
		copy(r.data[pageNo*stablemem.PageSize:], page)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Region) Pages() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.data)) / stablemem.PageSize
}

func (r *Region) Grow(n uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := uint64(len(r.data)) / stablemem.PageSize
	r.data = append(r.data, make([]byte, n*stablemem.PageSize)...)
	return prev, nil
}

func (r *Region) ReadAt(p []byte, off int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.check(off, len(p)); err != nil {
		return 0, err
	}
	return copy(p, r.data[off:]), nil
}

func (r *Region) WriteAt(p []byte, off int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(off, len(p)); err != nil {
		return 0, err
	}
	n := copy(r.data[off:], p)
	if n > 0 {
		first := uint64(off) / stablemem.PageSize
		last := (uint64(off) + uint64(n) - 1) / stablemem.PageSize
		for pg := first; pg <= last; pg++ {
			r.dirty[pg] = struct{}{}
		}
	}
	return n, nil
}

func (r *Region) check(off int64, n int) error {
	size := uint64(len(r.data))
	if off < 0 || uint64(off)+uint64(n) > size {
		return fmt.Errorf("%w: [%d,%d) of %d bytes", stablemem.ErrOutOfBounds, off, off+int64(n), size)
	}
	return nil
}

// Sync writes the page count and every dirty page in one transaction.
func (r *Region) Sync() error {
	return r.SyncContext(context.Background())
}

// SyncContext is Sync with a caller supplied context.
func (r *Region) SyncContext(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pages := uint64(len(r.data)) / stablemem.PageSize
	if len(r.dirty) == 0 && pages == r.persisted {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync region %s: %w", r.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into regions(name, pages, updated_at)
		values ($1, $2, now())
		on conflict (name) do update
		set pages = excluded.pages, updated_at = now()
	`, r.name, int64(pages)); err != nil {
		return fmt.Errorf("sync region %s: %w", r.name, err)
	}

	dirty := make([]uint64, 0, len(r.dirty))
	for pg := range r.dirty {
		dirty = append(dirty, pg)
	}
	sort.Slice(dirty, func(i, j int) bool { return dirty[i] < dirty[j] })
	for _, pg := range dirty {
		start := pg * stablemem.PageSize
		if _, err := tx.ExecContext(ctx, `
			insert into region_pages(region, page_no, data)
			values ($1, $2, $3)
			on conflict (region, page_no) do update
			set data = excluded.data
		`, r.name, int64(pg), r.data[start:start+stablemem.PageSize]); err != nil {
			return fmt.Errorf("sync page %d of %s: %w", pg, r.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync region %s: %w", r.name, err)
	}

	r.dirty = make(map[uint64]struct{})
	r.persisted = pages
	return nil
}

// Dirty reports how many pages await Sync.
func (r *Region) Dirty() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dirty)
}
