package stablemem

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionsDoNotOverlap(t *testing.T) {
	mm, err := InitMemoryManager(NewMemoryRegion(), WithBucketPages(1))
	require.NoError(t, err)

	a := mm.MustPartition(0)
	b := mm.MustPartition(1)

	// Interleave growth so the buckets of a and b alternate in the region.
	for i := 0; i < 3; i++ {
		_, err := a.Grow(1)
		require.NoError(t, err)
		_, err = b.Grow(1)
		require.NoError(t, err)
	}

	fillA := bytes.Repeat([]byte{0xAA}, 3*PageSize)
	fillB := bytes.Repeat([]byte{0xBB}, 3*PageSize)
	_, err = a.WriteAt(fillA, 0)
	require.NoError(t, err)
	_, err = b.WriteAt(fillB, 0)
	require.NoError(t, err)

	gotA := make([]byte, len(fillA))
	_, err = a.ReadAt(gotA, 0)
	require.NoError(t, err)
	assert.Equal(t, fillA, gotA)

	gotB := make([]byte, len(fillB))
	_, err = b.ReadAt(gotB, 0)
	require.NoError(t, err)
	assert.Equal(t, fillB, gotB)
}

func TestPartitionWriteSpansBuckets(t *testing.T) {
	mm, err := InitMemoryManager(NewMemoryRegion(), WithBucketPages(1))
	require.NoError(t, err)
	p := mm.MustPartition(3)
	_, err = p.Grow(2)
	require.NoError(t, err)
	// Force the next bucket of p to be non adjacent.
	_, err = mm.MustPartition(4).Grow(1)
	require.NoError(t, err)
	_, err = p.Grow(1)
	require.NoError(t, err)

	payload := []byte("crosses-the-bucket-boundary")
	off := int64(2*PageSize - 10)
	_, err = p.WriteAt(payload, off)
	require.NoError(t, err)

	got := make([]byte, len(payload))
	_, err = p.ReadAt(got, off)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestPartitionBounds(t *testing.T) {
	mm, err := InitMemoryManager(NewMemoryRegion(), WithBucketPages(1))
	require.NoError(t, err)
	p := mm.MustPartition(0)

	_, err = p.WriteAt([]byte{1}, 0)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, err = p.Grow(1)
	require.NoError(t, err)
	_, err = p.ReadAt(make([]byte, 2), PageSize-1)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestPartitionLimit(t *testing.T) {
	mm, err := InitMemoryManager(NewMemoryRegion())
	require.NoError(t, err)

	_, err = mm.Partition(MaxPartitions)
	assert.ErrorIs(t, err, ErrPartitionLimit)
	assert.Panics(t, func() { mm.MustPartition(MaxPartitions) })

	p, err := mm.Partition(MaxPartitions - 1)
	require.NoError(t, err)
	assert.Equal(t, PartitionID(MaxPartitions-1), p.ID())
}

func TestLayoutSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.bin")
	region, err := OpenFileRegion(path)
	require.NoError(t, err)

	mm, err := InitMemoryManager(region, WithBucketPages(2))
	require.NoError(t, err)
	p := mm.MustPartition(7)
	_, err = mm.MustPartition(2).Grow(3)
	require.NoError(t, err)
	_, err = p.Grow(3)
	require.NoError(t, err)
	_, err = p.WriteAt([]byte("durable"), 2*PageSize+5)
	require.NoError(t, err)
	require.NoError(t, region.Close())

	region, err = OpenFileRegion(path)
	require.NoError(t, err)
	defer region.Close()

	// The stored bucket size wins over the option.
	mm, err = InitMemoryManager(region, WithBucketPages(64))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), mm.BucketPages())

	p = mm.MustPartition(7)
	assert.Equal(t, uint64(3), p.Pages())
	got := make([]byte, len("durable"))
	_, err = p.ReadAt(got, 2*PageSize+5)
	require.NoError(t, err)
	assert.Equal(t, "durable", string(got))
	assert.Equal(t, uint64(3), mm.MustPartition(2).Pages())
}

func TestCorruptHeaderRejected(t *testing.T) {
	region := NewMemoryRegion()
	_, err := region.Grow(1)
	require.NoError(t, err)
	_, err = region.WriteAt([]byte("XYZ"), 0)
	require.NoError(t, err)

	_, err = InitMemoryManager(region)
	assert.ErrorIs(t, err, ErrCorruptHeader)
}

func TestFileRegionRejectsUnalignedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "odd.bin")
	region, err := OpenFileRegion(path)
	require.NoError(t, err)
	_, err = region.Grow(1)
	require.NoError(t, err)
	require.NoError(t, region.f.Truncate(PageSize+3))
	require.NoError(t, region.Close())

	_, err = OpenFileRegion(path)
	assert.ErrorIs(t, err, ErrCorruptHeader)
}

func TestFailedGrowKeepsLayout(t *testing.T) {
	region := &flakyRegion{MemoryRegion: NewMemoryRegion()}
	mm, err := InitMemoryManager(region, WithBucketPages(1))
	require.NoError(t, err)
	p := mm.MustPartition(3)
	_, err = p.Grow(1)
	require.NoError(t, err)

	region.failNext(1)
	_, err = p.Grow(1)
	region.failAt = 0
	require.ErrorIs(t, err, errInjected)
	assert.Equal(t, uint64(1), p.Pages())

	reopened, err := InitMemoryManager(region)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), reopened.MustPartition(3).Pages())

	// The bucket handed back is reused without overlapping anything.
	q := mm.MustPartition(4)
	_, err = q.Grow(1)
	require.NoError(t, err)
	_, err = p.Grow(1)
	require.NoError(t, err)
	_, err = p.WriteAt([]byte("p"), PageSize)
	require.NoError(t, err)
	_, err = q.WriteAt([]byte("q"), 0)
	require.NoError(t, err)
	got := make([]byte, 1)
	_, err = p.ReadAt(got, PageSize)
	require.NoError(t, err)
	assert.Equal(t, "p", string(got))
}
