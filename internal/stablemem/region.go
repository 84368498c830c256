package stablemem

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// PageSize is the growth unit of every region and partition.
const PageSize = 64 << 10

// Region is one contiguous, page-granular durable store.
type Region interface {
	io.ReaderAt
	io.WriterAt
	// Pages reports the current size in pages.
	Pages() uint64
	// Grow extends the region by n zeroed pages and returns the previous size.
	Grow(n uint64) (uint64, error)
	// Sync flushes written bytes to durable media.
	Sync() error
}

func checkRange(off int64, n int, pages uint64) error {
	if off < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrOutOfBounds, off)
	}
	if uint64(off)+uint64(n) > pages*PageSize {
		return fmt.Errorf("%w: [%d,%d) of %d bytes", ErrOutOfBounds, off, uint64(off)+uint64(n), pages*PageSize)
	}
	return nil
}

// MemoryRegion keeps the region on the heap. It does not survive restarts.
type MemoryRegion struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemoryRegion returns an empty heap region.
func NewMemoryRegion() *MemoryRegion {
	return &MemoryRegion{}
}

func (r *MemoryRegion) Pages() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.data)) / PageSize
}

func (r *MemoryRegion) Grow(n uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := uint64(len(r.data)) / PageSize
	r.data = append(r.data, make([]byte, n*PageSize)...)
	return prev, nil
}

func (r *MemoryRegion) ReadAt(p []byte, off int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := checkRange(off, len(p), uint64(len(r.data))/PageSize); err != nil {
		return 0, err
	}
	return copy(p, r.data[off:]), nil
}

func (r *MemoryRegion) WriteAt(p []byte, off int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := checkRange(off, len(p), uint64(len(r.data))/PageSize); err != nil {
		return 0, err
	}
	return copy(r.data[off:], p), nil
}

func (r *MemoryRegion) Sync() error { return nil }

// FileRegion stores the region in a single file.
type FileRegion struct {
	mu    sync.RWMutex
	f     *os.File
	pages uint64
}

// OpenFileRegion opens (or creates) the region file at path. A file whose size
// is not a whole number of pages is rejected.
func OpenFileRegion(path string) (*FileRegion, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open region file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat region file: %w", err)
	}
	if info.Size()%PageSize != 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: file size %d is not page aligned", ErrCorruptHeader, info.Size())
	}
	return &FileRegion{f: f, pages: uint64(info.Size()) / PageSize}, nil
}

func (r *FileRegion) Pages() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pages
}

func (r *FileRegion) Grow(n uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.pages
	if err := r.f.Truncate(int64((prev + n) * PageSize)); err != nil {
		return prev, fmt.Errorf("grow region file: %w", err)
	}
	r.pages = prev + n
	return prev, nil
}

func (r *FileRegion) ReadAt(p []byte, off int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := checkRange(off, len(p), r.pages); err != nil {
		return 0, err
	}
	n, err := r.f.ReadAt(p, off)
	if errors.Is(err, io.EOF) && n == len(p) {
		err = nil
	}
	return n, err
}

func (r *FileRegion) WriteAt(p []byte, off int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := checkRange(off, len(p), r.pages); err != nil {
		return 0, err
	}
	return r.f.WriteAt(p, off)
}

func (r *FileRegion) Sync() error {
	return r.f.Sync()
}

// Close syncs and closes the underlying file.
func (r *FileRegion) Close() error {
	if err := r.f.Sync(); err != nil {
		_ = r.f.Close()
		return err
	}
	return r.f.Close()
}
