package stablemem

import (
	"encoding/binary"
	"fmt"
)

const (
	cellMagic     = "CEL"
	cellVersion   = 1
	cellHeaderLen = 8
)

// Cell holds a single durable value.
type Cell[T any] struct {
	p     *Partition
	codec Codec[T]
	value T
}

// InitCell loads the value stored in p, writing initial on first use.
func InitCell[T any](p *Partition, codec Codec[T], initial T) (*Cell[T], error) {
	c := &Cell[T]{p: p, codec: codec}
	if p.Pages() == 0 {
		if err := c.Set(initial); err != nil {
			return nil, fmt.Errorf("init cell: %w", err)
		}
		return c, nil
	}
	hdr := make([]byte, cellHeaderLen)
	if _, err := p.ReadAt(hdr, 0); err != nil {
		return nil, fmt.Errorf("read cell: %w", err)
	}
	if string(hdr[:3]) != cellMagic || hdr[3] != cellVersion {
		return nil, fmt.Errorf("%w: partition %d is not a cell", ErrCorruptHeader, p.ID())
	}
	n := binary.LittleEndian.Uint32(hdr[4:])
	data := make([]byte, n)
	if _, err := p.ReadAt(data, cellHeaderLen); err != nil {
		return nil, fmt.Errorf("read cell: %w", err)
	}
	v, err := codec.Decode(data)
	if err != nil {
		panic(&CorruptionError{Partition: p.ID(), Err: err})
	}
	c.value = v
	return c, nil
}

// Get returns the current value.
func (c *Cell[T]) Get() T { return c.value }

// Set encodes and persists v.
func (c *Cell[T]) Set(v T) error {
	data, err := c.codec.Encode(v)
	if err != nil {
		return err
	}
	if err := c.p.ensure(uint64(cellHeaderLen + len(data))); err != nil {
		return err
	}
	buf := make([]byte, cellHeaderLen+len(data))
	copy(buf, cellMagic)
	buf[3] = cellVersion
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(data)))
	copy(buf[cellHeaderLen:], data)
	if _, err := c.p.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("write cell: %w", err)
	}
	c.value = v
	return nil
}
