package stablemem

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

const (
	counterMagic   = "CNT"
	counterVersion = 1
	counterLen     = 12
)

// Counter is a durable 64-bit value used to mint identifiers. It only moves forward.
type Counter struct {
	mu    sync.Mutex
	p     *Partition
	value uint64
}

// InitCounter loads the counter kept in p, writing initial on first use.
func InitCounter(p *Partition, initial uint64) (*Counter, error) {
	c := &Counter{p: p}
	if p.Pages() == 0 {
		if _, err := p.Grow(1); err != nil {
			return nil, fmt.Errorf("init counter: %w", err)
		}
		if err := c.store(initial); err != nil {
			return nil, err
		}
		return c, nil
	}
	buf := make([]byte, counterLen)
	if _, err := p.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("read counter: %w", err)
	}
	if string(buf[:3]) != counterMagic || buf[3] != counterVersion {
		return nil, fmt.Errorf("%w: partition %d is not a counter", ErrCorruptHeader, p.ID())
	}
	c.value = binary.LittleEndian.Uint64(buf[4:])
	return c, nil
}

func (c *Counter) store(v uint64) error {
	buf := make([]byte, counterLen)
	copy(buf, counterMagic)
	buf[3] = counterVersion
	binary.LittleEndian.PutUint64(buf[4:], v)
	if _, err := c.p.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("write counter: %w", err)
	}
	c.value = v
	return nil
}

// Next persists value+1 and returns it, so the first minted id is 1.
func (c *Counter) Next() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value == math.MaxUint64 {
		return 0, ErrCounterExhausted
	}
	next := c.value + 1
	if err := c.store(next); err != nil {
		return 0, err
	}
	return next, nil
}

// Current returns the last minted value.
func (c *Counter) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
