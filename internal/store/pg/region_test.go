package pg

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisory.org/internal/stablemem"
)

func TestOpenRegionLoadsStoredPages(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	page := make([]byte, stablemem.PageSize)
	page[0] = 7
	mock.ExpectQuery("select pages from regions").WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"pages"}).AddRow(2))
	mock.ExpectQuery("select page_no, data from region_pages").WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"page_no", "data"}).AddRow(1, page))

	r, err := OpenRegion(context.Background(), db, "main")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r.Pages())

	buf := make([]byte, 1)
	_, err = r.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(0), buf[0], "missing pages read as zeros")

	_, err = r.ReadAt(buf, stablemem.PageSize)
	require.NoError(t, err)
	assert.Equal(t, byte(7), buf[0])

	_, err = r.ReadAt(buf, 2*stablemem.PageSize)
	assert.ErrorIs(t, err, stablemem.ErrOutOfBounds)

	require.NoError(t, r.Sync(), "nothing to write")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenRegionRejectsShortPage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("select pages from regions").WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"pages"}).AddRow(1))
	mock.ExpectQuery("select page_no, data from region_pages").WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"page_no", "data"}).AddRow(0, []byte{1, 2, 3}))

	_, err = OpenRegion(context.Background(), db, "main")
	assert.ErrorIs(t, err, stablemem.ErrCorruptHeader)
}

func TestSyncWritesDirtyPagesOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("select pages from regions").WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"pages"}))
	mock.ExpectQuery("select page_no, data from region_pages").WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"page_no", "data"}))

	r, err := OpenRegion(context.Background(), db, "main")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r.Pages())

	prev, err := r.Grow(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), prev)

	// straddles pages 1 and 2
	_, err = r.WriteAt([]byte{1, 2, 3, 4}, 2*stablemem.PageSize-2)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Dirty())

	mock.ExpectBegin()
	mock.ExpectExec("insert into regions").WithArgs("main", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into region_pages").WithArgs("main", int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into region_pages").WithArgs("main", int64(2), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, r.Sync())
	assert.Equal(t, 0, r.Dirty())
	require.NoError(t, r.Sync())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncFailureKeepsPagesDirty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("select pages from regions").WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"pages"}))
	mock.ExpectQuery("select page_no, data from region_pages").WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"page_no", "data"}))

	r, err := OpenRegion(context.Background(), db, "main")
	require.NoError(t, err)
	_, err = r.Grow(1)
	require.NoError(t, err)
	_, err = r.WriteAt([]byte{9}, 0)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("insert into regions").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err = r.Sync()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 1, r.Dirty())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegionBacksMemoryManager(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("select pages from regions").WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"pages"}))
	mock.ExpectQuery("select page_no, data from region_pages").WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"page_no", "data"}))

	r, err := OpenRegion(context.Background(), db, "main")
	require.NoError(t, err)

	mm, err := stablemem.InitMemoryManager(r, stablemem.WithBucketPages(1))
	require.NoError(t, err)
	c, err := stablemem.InitCounter(mm.MustPartition(0), 0)
	require.NoError(t, err)
	id, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
	assert.Greater(t, r.Dirty(), 0)
}
