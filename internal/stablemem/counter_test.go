package stablemem

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterStartsAtOne(t *testing.T) {
	mm, err := InitMemoryManager(NewMemoryRegion(), WithBucketPages(1))
	require.NoError(t, err)
	c, err := InitCounter(mm.MustPartition(0), 0)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), c.Current())
	for want := uint64(1); want <= 5; want++ {
		got, err := c.Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestCounterSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.bin")
	region, err := OpenFileRegion(path)
	require.NoError(t, err)
	mm, err := InitMemoryManager(region, WithBucketPages(1))
	require.NoError(t, err)
	c, err := InitCounter(mm.MustPartition(0), 0)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := c.Next()
		require.NoError(t, err)
	}
	require.NoError(t, region.Close())

	region, err = OpenFileRegion(path)
	require.NoError(t, err)
	defer region.Close()
	mm, err = InitMemoryManager(region)
	require.NoError(t, err)
	// initial is ignored once the counter exists
	c, err = InitCounter(mm.MustPartition(0), 100)
	require.NoError(t, err)
	got, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), got)
}

func TestCounterExhausted(t *testing.T) {
	mm, err := InitMemoryManager(NewMemoryRegion(), WithBucketPages(1))
	require.NoError(t, err)
	c, err := InitCounter(mm.MustPartition(0), math.MaxUint64-1)
	require.NoError(t, err)

	got, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got)

	_, err = c.Next()
	assert.ErrorIs(t, err, ErrCounterExhausted)
	assert.Equal(t, uint64(math.MaxUint64), c.Current())
}

func TestCounterRejectsForeignPartition(t *testing.T) {
	mm, err := InitMemoryManager(NewMemoryRegion(), WithBucketPages(1))
	require.NoError(t, err)
	_, err = OpenMap[testRecord](mm.MustPartition(1), testCodec(t, 128))
	require.NoError(t, err)

	_, err = InitCounter(mm.MustPartition(1), 0)
	assert.ErrorIs(t, err, ErrCorruptHeader)
}

func TestCellRoundTrip(t *testing.T) {
	mm, err := InitMemoryManager(NewMemoryRegion(), WithBucketPages(1))
	require.NoError(t, err)
	codec := testCodec(t, 256)

	cell, err := InitCell(mm.MustPartition(6), codec, testRecord{ID: 1, Name: "first"})
	require.NoError(t, err)
	assert.Equal(t, "first", cell.Get().Name)

	require.NoError(t, cell.Set(testRecord{ID: 2, Name: "second"}))

	reopened, err := InitCell(mm.MustPartition(6), codec, testRecord{})
	require.NoError(t, err)
	assert.Equal(t, testRecord{ID: 2, Name: "second"}, reopened.Get())
}
