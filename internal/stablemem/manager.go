package stablemem

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// PartitionID names a partition. The binding of ids to purposes is fixed per deployment.
type PartitionID uint8

const (
	// MaxPartitions is the number of partitions one region can carry.
	MaxPartitions = 255
	// MaxBuckets bounds the number of buckets one region can hand out.
	MaxBuckets = 32768
	// DefaultBucketPages is the bucket size used when the region is first formatted.
	DefaultBucketPages = 128

	headerMagic   = "PGA"
	layoutVersion = 1
	headerPages   = 1
	freeBucket    = 0xFF

	offBucketCount = 4
	offBucketPages = 6
	offSizes       = 16
	offBucketTable = offSizes + MaxPartitions*8
	headerLen      = offBucketTable + MaxBuckets
)

// MemoryManager divides one region into independently growable partitions.
// Each partition owns an ordered list of fixed-size buckets; buckets are
// handed out from the region tail and never shared.
type MemoryManager struct {
	mu          sync.Mutex
	region      Region
	bucketPages uint64
	bucketCount uint16
	sizes       [MaxPartitions]uint64
	owners      []byte
	buckets     [MaxPartitions][]uint16
	partitions  map[PartitionID]*Partition
}

// Option configures a MemoryManager.
type Option func(*MemoryManager)

// WithBucketPages sets the bucket size used when formatting an empty region.
// Formatted regions keep the bucket size recorded in their header.
func WithBucketPages(n uint16) Option {
	return func(m *MemoryManager) {
		if n > 0 {
			m.bucketPages = uint64(n)
		}
	}
}

// InitMemoryManager formats an empty region or loads the layout of an existing one.
func InitMemoryManager(region Region, opts ...Option) (*MemoryManager, error) {
	m := &MemoryManager{
		region:      region,
		bucketPages: DefaultBucketPages,
		owners:      make([]byte, MaxBuckets),
		partitions:  make(map[PartitionID]*Partition),
	}
	for _, opt := range opts {
		opt(m)
	}
	if region.Pages() == 0 {
		if _, err := region.Grow(headerPages); err != nil {
			return nil, fmt.Errorf("format region: %w", err)
		}
		for i := range m.owners {
			m.owners[i] = freeBucket
		}
		if err := m.writeHeader(); err != nil {
			return nil, err
		}
		return m, nil
	}
	if err := m.loadHeader(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MemoryManager) loadHeader() error {
	hdr := make([]byte, headerLen)
	if _, err := m.region.ReadAt(hdr, 0); err != nil {
		return fmt.Errorf("read region header: %w", err)
	}
	if string(hdr[:3]) != headerMagic || hdr[3] != layoutVersion {
		return ErrCorruptHeader
	}
	m.bucketCount = binary.LittleEndian.Uint16(hdr[offBucketCount:])
	m.bucketPages = uint64(binary.LittleEndian.Uint16(hdr[offBucketPages:]))
	if m.bucketPages == 0 || int(m.bucketCount) > MaxBuckets {
		return ErrCorruptHeader
	}
	for i := range m.sizes {
		m.sizes[i] = binary.LittleEndian.Uint64(hdr[offSizes+i*8:])
	}
	copy(m.owners, hdr[offBucketTable:])
	for b := 0; b < int(m.bucketCount); b++ {
		owner := m.owners[b]
		if owner == freeBucket {
			return fmt.Errorf("%w: bucket %d below the allocation mark is unowned", ErrCorruptHeader, b)
		}
		m.buckets[owner] = append(m.buckets[owner], uint16(b))
	}
	for id, size := range m.sizes {
		if size > uint64(len(m.buckets[id]))*m.bucketPages {
			return fmt.Errorf("%w: partition %d larger than its buckets", ErrCorruptHeader, id)
		}
	}
	return nil
}

func (m *MemoryManager) writeHeader() error {
	hdr := make([]byte, headerLen)
	copy(hdr, headerMagic)
	hdr[3] = layoutVersion
	binary.LittleEndian.PutUint16(hdr[offBucketCount:], m.bucketCount)
	binary.LittleEndian.PutUint16(hdr[offBucketPages:], uint16(m.bucketPages))
	for i, size := range m.sizes {
		binary.LittleEndian.PutUint64(hdr[offSizes+i*8:], size)
	}
	copy(hdr[offBucketTable:], m.owners)
	if _, err := m.region.WriteAt(hdr, 0); err != nil {
		return fmt.Errorf("write region header: %w", err)
	}
	return nil
}

// Partition returns the handle for id. The same id always resolves to the same
// buckets, including after a restart.
func (m *MemoryManager) Partition(id PartitionID) (*Partition, error) {
	if int(id) >= MaxPartitions {
		return nil, fmt.Errorf("%w: %d >= %d", ErrPartitionLimit, id, MaxPartitions)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.partitions[id]; ok {
		return p, nil
	}
	p := &Partition{mm: m, id: id}
	m.partitions[id] = p
	return p, nil
}

// MustPartition is Partition for startup code that cannot run without the partition.
func (m *MemoryManager) MustPartition(id PartitionID) *Partition {
	p, err := m.Partition(id)
	if err != nil {
		panic(err)
	}
	return p
}

// BucketPages reports the bucket size fixed when the region was formatted.
func (m *MemoryManager) BucketPages() uint64 { return m.bucketPages }

// Sync flushes the underlying region.
func (m *MemoryManager) Sync() error { return m.region.Sync() }

func (m *MemoryManager) size(id PartitionID) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sizes[id]
}

func (m *MemoryManager) grow(id PartitionID, n uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.sizes[id]
	if n == 0 {
		return prev, nil
	}
	want := prev + n
	need := (want + m.bucketPages - 1) / m.bucketPages
	have := uint64(len(m.buckets[id]))
	if need > have {
		extra := need - have
		if uint64(m.bucketCount)+extra > MaxBuckets {
			return prev, ErrOutOfBuckets
		}
		regionPages := headerPages + (uint64(m.bucketCount)+extra)*m.bucketPages
		if cur := m.region.Pages(); cur < regionPages {
			if _, err := m.region.Grow(regionPages - cur); err != nil {
				return prev, fmt.Errorf("grow region: %w", err)
			}
		}
		for i := uint64(0); i < extra; i++ {
			b := m.bucketCount
			m.owners[b] = byte(id)
			m.buckets[id] = append(m.buckets[id], b)
			m.bucketCount++
		}
	}
	m.sizes[id] = want
	if err := m.writeHeader(); err != nil {
		// Nothing on disk refers to the new buckets yet.
		for uint64(len(m.buckets[id])) > have {
			m.bucketCount--
			m.owners[m.bucketCount] = freeBucket
			m.buckets[id] = m.buckets[id][:len(m.buckets[id])-1]
		}
		m.sizes[id] = prev
		return prev, err
	}
	return prev, nil
}

// translate maps a partition offset to a region offset and the number of
// contiguous bytes available there before the bucket ends.
func (m *MemoryManager) translate(id PartitionID, off uint64) (int64, uint64) {
	bucketBytes := m.bucketPages * PageSize
	idx := off / bucketBytes
	within := off % bucketBytes
	bucket := uint64(m.buckets[id][idx])
	phys := headerPages*PageSize + bucket*bucketBytes + within
	return int64(phys), bucketBytes - within
}

func (m *MemoryManager) access(id PartitionID, p []byte, off int64, write bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkRange(off, len(p), m.sizes[id]); err != nil {
		return 0, fmt.Errorf("partition %d: %w", id, err)
	}
	done := 0
	for done < len(p) {
		phys, avail := m.translate(id, uint64(off)+uint64(done))
		chunk := uint64(len(p) - done)
		if chunk > avail {
			chunk = avail
		}
		var err error
		if write {
			_, err = m.region.WriteAt(p[done:done+int(chunk)], phys)
		} else {
			_, err = m.region.ReadAt(p[done:done+int(chunk)], phys)
		}
		if err != nil {
			return done, err
		}
		done += int(chunk)
	}
	return done, nil
}

// Partition is an independently growable, byte-addressable view of the region.
type Partition struct {
	mm *MemoryManager
	id PartitionID
}

// ID returns the partition identifier.
func (p *Partition) ID() PartitionID { return p.id }

// Pages reports the partition size in pages.
func (p *Partition) Pages() uint64 { return p.mm.size(p.id) }

// Grow extends the partition by n pages and returns the previous size.
func (p *Partition) Grow(n uint64) (uint64, error) { return p.mm.grow(p.id, n) }

func (p *Partition) ReadAt(b []byte, off int64) (int, error) {
	return p.mm.access(p.id, b, off, false)
}

func (p *Partition) WriteAt(b []byte, off int64) (int, error) {
	return p.mm.access(p.id, b, off, true)
}

// ensure grows the partition until at least size bytes are addressable.
func (p *Partition) ensure(size uint64) error {
	have := p.Pages() * PageSize
	if size <= have {
		return nil
	}
	_, err := p.Grow((size - have + PageSize - 1) / PageSize)
	return err
}
