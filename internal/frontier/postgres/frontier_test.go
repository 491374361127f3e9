package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/imagecrawler/internal/crawler"
)

func newMockFrontier(t *testing.T) (*Frontier, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	f, err := NewWithPool(mock, "run1_")
	require.NoError(t, err)
	return f, mock
}

func TestNewWithPoolValidatesPrefix(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "bad-prefix;")
	require.Error(t, err)
	_, err = NewWithPool(nil, "ok_")
	require.Error(t, err)
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestEnsureSchemaCreatesTables(t *testing.T) {
	t.Parallel()

	f, mock := newMockFrontier(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS run1_content_urls").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS run1_content_urls_pending_idx").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS run1_picture_urls").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS run1_picture_urls_pending_idx").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS run1_stored_pictures").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, f.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueContentInsertsDistinctURLs(t *testing.T) {
	t.Parallel()

	f, mock := newMockFrontier(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO run1_content_urls (location) SELECT unnest($1::text[]) ON CONFLICT (location) DO NOTHING")).
		WithArgs([]string{"http://x.test/", "http://x.test/a"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	err := f.EnqueueContent(context.Background(), []string{"http://x.test/", "http://x.test/a", "http://x.test/"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueEmptyIsNoop(t *testing.T) {
	t.Parallel()

	f, mock := newMockFrontier(t)
	require.NoError(t, f.EnqueuePictures(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNextPicturesQueriesPending(t *testing.T) {
	t.Parallel()

	f, mock := newMockFrontier(t)
	rows := pgxmock.NewRows([]string{"location"}).
		AddRow("http://x.test/1.png").
		AddRow("http://x.test/2.png")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT location FROM run1_picture_urls WHERE NOT visited ORDER BY seq LIMIT $1")).
		WithArgs(8).
		WillReturnRows(rows)

	got, err := f.NextPictures(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://x.test/1.png", "http://x.test/2.png"}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNextContentEmpty(t *testing.T) {
	t.Parallel()

	f, mock := newMockFrontier(t)
	mock.ExpectQuery("SELECT location FROM run1_content_urls").
		WithArgs(1).
		WillReturnRows(pgxmock.NewRows([]string{"location"}))

	_, ok, err := f.NextContent(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPictureVisitedOnlyUpdatesPending(t *testing.T) {
	t.Parallel()

	f, mock := newMockFrontier(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE run1_picture_urls SET visited = TRUE, error = $2 WHERE location = $1 AND NOT visited")).
		WithArgs("http://x.test/p.png", "HTTP_STATUS:404").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE run1_content_urls").
		WithArgs("http://x.test/", nil).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ctx := context.Background()
	require.NoError(t, f.MarkPictureVisited(ctx, "http://x.test/p.png", "HTTP_STATUS:404"))
	require.NoError(t, f.MarkContentVisited(ctx, "http://x.test/", ""))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStoredPictureIgnoresConflicts(t *testing.T) {
	t.Parallel()

	f, mock := newMockFrontier(t)
	pic := crawler.StoredPicture{ContentHash: "0123456789abcde", SourceURL: "http://x.test/p.png", RelativePath: "01/23/45/0123456789abcde.png"}
	mock.ExpectExec("INSERT INTO run1_stored_pictures").
		WithArgs(pic.ContentHash, pic.SourceURL, pic.RelativePath).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, f.RecordStoredPicture(context.Background(), pic))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoredPictureList(t *testing.T) {
	t.Parallel()

	f, mock := newMockFrontier(t)
	rows := pgxmock.NewRows([]string{"content_hash", "source_url", "relative_path"}).
		AddRow("0123456789abcde", "http://x.test/p.png", "01/23/45/0123456789abcde.png")
	mock.ExpectQuery("SELECT content_hash, source_url, relative_path FROM run1_stored_pictures").WillReturnRows(rows)

	pics, err := f.StoredPictureList(context.Background())
	require.NoError(t, err)
	require.Len(t, pics, 1)
	assert.Equal(t, "01/23/45/0123456789abcde.png", pics[0].RelativePath)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecErrorIsWrapped(t *testing.T) {
	t.Parallel()

	f, mock := newMockFrontier(t)
	boom := errors.New("connection refused")
	mock.ExpectExec("INSERT INTO run1_picture_urls").WillReturnError(boom)

	err := f.EnqueuePictures(context.Background(), []string{"http://x.test/p.png"})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}
