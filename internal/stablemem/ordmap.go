package stablemem

import (
	"encoding/binary"
	"fmt"
	"iter"
	"slices"
	"sync"
)

const (
	mapMagic     = "OMP"
	mapVersion   = 1
	mapHeaderLen = 64

	slotFree = 0
	slotLive = 1

	// state, generation, key, length
	slotHeaderLen = 1 + 8 + 8 + 4
)

// Map is a durable map from uint64 keys to bounded-size records, ordered by key.
//
// Records live in fixed-width slots after a small header that only records
// the slot high-water mark. A slot becomes live by a single state byte write
// after its body is in place, so a failed write never exposes a half written
// record. Replacements go to a spare slot stamped with a higher generation;
// if the old slot cannot be freed, the next open keeps the newer generation.
// The sorted key index is kept in memory and rebuilt by a slot scan at open.
type Map[V any] struct {
	mu       sync.RWMutex
	p        *Partition
	codec    Codec[V]
	slotLen  uint64
	slots    uint64
	gen      uint64
	index    map[uint64]uint64
	keys     []uint64
	freeList []uint64
}

// OpenMap opens the map stored in p, formatting the partition if it is empty.
func OpenMap[V any](p *Partition, codec Codec[V]) (*Map[V], error) {
	m := &Map[V]{
		p:       p,
		codec:   codec,
		slotLen: uint64(slotHeaderLen + codec.MaxSize()),
		index:   make(map[uint64]uint64),
	}
	if p.Pages() == 0 {
		if _, err := p.Grow(1); err != nil {
			return nil, fmt.Errorf("format map: %w", err)
		}
		if err := m.writeHeader(0); err != nil {
			return nil, err
		}
		return m, nil
	}
	hdr := make([]byte, mapHeaderLen)
	if _, err := p.ReadAt(hdr, 0); err != nil {
		return nil, fmt.Errorf("read map header: %w", err)
	}
	if string(hdr[:3]) != mapMagic || hdr[3] != mapVersion {
		return nil, fmt.Errorf("%w: partition %d is not a map", ErrCorruptHeader, p.ID())
	}
	if stored := binary.LittleEndian.Uint32(hdr[4:]); int(stored) != codec.MaxSize() {
		return nil, fmt.Errorf("%w: partition %d holds records of up to %d bytes, codec declares %d",
			ErrSchemaMismatch, p.ID(), stored, codec.MaxSize())
	}
	m.slots = binary.LittleEndian.Uint64(hdr[8:])
	if end := uint64(m.slotOffset(m.slots)); end > p.Pages()*PageSize {
		return nil, fmt.Errorf("%w: partition %d counts %d slots past its end", ErrCorruptHeader, p.ID(), m.slots)
	}

	gens := make(map[uint64]uint64)
	sh := make([]byte, slotHeaderLen)
	for s := uint64(0); s < m.slots; s++ {
		if _, err := p.ReadAt(sh, m.slotOffset(s)); err != nil {
			return nil, fmt.Errorf("scan slot %d: %w", s, err)
		}
		if sh[0] != slotLive {
			m.freeList = append(m.freeList, s)
			continue
		}
		gen := binary.LittleEndian.Uint64(sh[1:])
		key := binary.LittleEndian.Uint64(sh[9:])
		m.gen = max(m.gen, gen)
		prev, dup := m.index[key]
		if !dup {
			m.index[key] = s
			gens[key] = gen
			m.keys = append(m.keys, key)
			continue
		}
		// An interrupted replacement left two live copies; keep the newer one.
		stale := s
		if gen > gens[key] {
			stale = prev
			m.index[key] = s
			gens[key] = gen
		}
		if _, err := p.WriteAt([]byte{slotFree}, m.slotOffset(stale)); err != nil {
			return nil, fmt.Errorf("free stale slot %d: %w", stale, err)
		}
		m.freeList = append(m.freeList, stale)
	}
	slices.Sort(m.keys)
	return m, nil
}

func (m *Map[V]) slotOffset(slot uint64) int64 {
	return int64(mapHeaderLen + slot*m.slotLen)
}

func (m *Map[V]) writeHeader(slots uint64) error {
	hdr := make([]byte, mapHeaderLen)
	copy(hdr, mapMagic)
	hdr[3] = mapVersion
	binary.LittleEndian.PutUint32(hdr[4:], uint32(m.codec.MaxSize()))
	binary.LittleEndian.PutUint64(hdr[8:], slots)
	if _, err := m.p.WriteAt(hdr, 0); err != nil {
		return fmt.Errorf("write map header: %w", err)
	}
	return nil
}

// spareSlot returns a free slot, extending the slot range on disk first when
// none is left.
func (m *Map[V]) spareSlot() (uint64, error) {
	if n := len(m.freeList); n > 0 {
		return m.freeList[n-1], nil
	}
	slot := m.slots
	if err := m.p.ensure(uint64(m.slotOffset(slot + 1))); err != nil {
		return 0, err
	}
	if err := m.writeHeader(slot + 1); err != nil {
		return 0, err
	}
	m.slots++
	m.freeList = append(m.freeList, slot)
	return slot, nil
}

func (m *Map[V]) readSlot(key, slot uint64) V {
	sh := make([]byte, slotHeaderLen)
	if _, err := m.p.ReadAt(sh, m.slotOffset(slot)); err != nil {
		panic(&CorruptionError{Partition: m.p.ID(), Key: key, Err: err})
	}
	n := binary.LittleEndian.Uint32(sh[17:])
	if int(n) > m.codec.MaxSize() {
		panic(&CorruptionError{Partition: m.p.ID(), Key: key, Err: fmt.Errorf("slot length %d exceeds %d", n, m.codec.MaxSize())})
	}
	data := make([]byte, n)
	if _, err := m.p.ReadAt(data, m.slotOffset(slot)+slotHeaderLen); err != nil {
		panic(&CorruptionError{Partition: m.p.ID(), Key: key, Err: err})
	}
	v, err := m.codec.Decode(data)
	if err != nil {
		panic(&CorruptionError{Partition: m.p.ID(), Key: key, Err: err})
	}
	return v
}

// Get returns the record stored under key.
func (m *Map[V]) Get(key uint64) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	slot, ok := m.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return m.readSlot(key, slot), true
}

// Contains reports whether key is present without decoding its record.
func (m *Map[V]) Contains(key uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.index[key]
	return ok
}

// Insert stores v under key and returns the record it replaced, if any.
// The record is encoded before anything is written, so an oversized record
// leaves the map untouched. On error the map is unchanged, in memory and on
// the next open.
func (m *Map[V]) Insert(key uint64, v V) (V, bool, error) {
	var prev V
	data, err := m.codec.Encode(v)
	if err != nil {
		return prev, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old, replaced := m.index[key]
	if replaced {
		prev = m.readSlot(key, old)
	}
	slot, err := m.spareSlot()
	if err != nil {
		return prev, false, err
	}

	gen := m.gen + 1
	body := make([]byte, slotHeaderLen-1+len(data))
	binary.LittleEndian.PutUint64(body[0:], gen)
	binary.LittleEndian.PutUint64(body[8:], key)
	binary.LittleEndian.PutUint32(body[16:], uint32(len(data)))
	copy(body[slotHeaderLen-1:], data)
	if _, err := m.p.WriteAt(body, m.slotOffset(slot)+1); err != nil {
		return prev, false, fmt.Errorf("write slot: %w", err)
	}
	if _, err := m.p.WriteAt([]byte{slotLive}, m.slotOffset(slot)); err != nil {
		return prev, false, fmt.Errorf("commit slot: %w", err)
	}

	m.gen = gen
	m.freeList = m.freeList[:len(m.freeList)-1]
	m.index[key] = slot
	if !replaced {
		pos, _ := slices.BinarySearch(m.keys, key)
		m.keys = slices.Insert(m.keys, pos, key)
		return prev, false, nil
	}
	// The new record is committed. A stale copy left live here is dropped
	// by generation at the next open.
	if _, err := m.p.WriteAt([]byte{slotFree}, m.slotOffset(old)); err == nil {
		m.freeList = append(m.freeList, old)
	}
	return prev, true, nil
}

// Remove deletes key and returns the record it held.
func (m *Map[V]) Remove(key uint64) (V, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var prev V
	slot, ok := m.index[key]
	if !ok {
		return prev, false, nil
	}
	prev = m.readSlot(key, slot)
	if _, err := m.p.WriteAt([]byte{slotFree}, m.slotOffset(slot)); err != nil {
		var zero V
		return zero, false, fmt.Errorf("free slot: %w", err)
	}
	delete(m.index, key)
	pos, _ := slices.BinarySearch(m.keys, key)
	m.keys = slices.Delete(m.keys, pos, pos+1)
	m.freeList = append(m.freeList, slot)
	return prev, true, nil
}

// Len returns the number of stored records.
func (m *Map[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

// Keys returns the stored keys in ascending order.
func (m *Map[V]) Keys() []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.keys)
}

// All iterates records in ascending key order. The key set is captured when
// iteration starts; keys removed afterwards are skipped.
func (m *Map[V]) All() iter.Seq2[uint64, V] {
	return func(yield func(uint64, V) bool) {
		for _, key := range m.Keys() {
			v, ok := m.Get(key)
			if !ok {
				continue
			}
			if !yield(key, v) {
				return
			}
		}
	}
}

// Values collects every record in key order.
func (m *Map[V]) Values() []V {
	out := make([]V, 0, m.Len())
	for _, v := range m.All() {
		out = append(out, v)
	}
	return out
}
