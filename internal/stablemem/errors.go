package stablemem

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfBounds      = errors.New("stablemem: access beyond the end of the region")
	ErrPartitionLimit   = errors.New("stablemem: partition id exceeds the platform limit")
	ErrOutOfBuckets     = errors.New("stablemem: no free buckets left in the region")
	ErrCorruptHeader    = errors.New("stablemem: region header is corrupt or has an unknown layout")
	ErrCounterExhausted = errors.New("stablemem: counter reached its maximum value")
	ErrRecordTooLarge   = errors.New("stablemem: encoded record exceeds its declared maximum size")
	ErrSchemaMismatch   = errors.New("stablemem: stored layout does not match the requested codec")
)

// CorruptionError reports bytes that could not be decoded back into a record.
// It is raised as a panic: the store cannot continue serving from a partition
// it can no longer read.
type CorruptionError struct {
	Partition PartitionID
	Key       uint64
	Err       error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("stablemem: partition %d key %d: undecodable record: %v", e.Partition, e.Key, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }
