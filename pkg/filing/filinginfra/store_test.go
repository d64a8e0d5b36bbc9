package filinginfra

import (
	"context"
	"os"
	"regexp"
	"testing"

	"github.com/Abraxas-365/finai/pkg/filing"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store filing.VectorStore) {
	t.Helper()
	ctx := context.Background()
	key := filing.IndexKey{Ticker: "AAPL", AccessionNo: "acc-" + t.Name()}

	ok, err := store.HasIndex(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Index(ctx, key, []filing.Chunk{
		{ID: key.AccessionNo + "-0", Position: 0, Text: "revenue", Vector: []float32{1, 0, 0}},
		{ID: key.AccessionNo + "-1", Position: 1, Text: "risk factors", Vector: []float32{0, 1, 0}},
		{ID: key.AccessionNo + "-2", Position: 2, Text: "net sales", Vector: []float32{0.9, 0.1, 0}},
	}))

	ok, err = store.HasIndex(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	matches, err := store.Search(ctx, key, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "revenue", matches[0].Chunk.Text)
	assert.Equal(t, "net sales", matches[1].Chunk.Text)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Greater(t, matches[0].Score, matches[1].Score)

	other, err := store.Search(ctx, filing.IndexKey{Ticker: "MSFT", AccessionNo: "x"}, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, store.Index(ctx, key, []filing.Chunk{
		{ID: key.AccessionNo + "-9", Position: 0, Text: "replaced", Vector: []float32{0, 0, 1}},
	}))
	matches, err = store.Search(ctx, key, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "replaced", matches[0].Chunk.Text)
}

func TestMemoryVectorStore(t *testing.T) {
	exerciseStore(t, NewMemoryVectorStore())
}

func TestPostgresVectorStore(t *testing.T) {
	dsn := os.Getenv("FINAI_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FINAI_TEST_POSTGRES_DSN not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewPostgresVectorStore(db)
	require.NoError(t, store.EnsureSchema(context.Background()))
	exerciseStore(t, store)
}

func newMockVectorStore(t *testing.T) (*PostgresVectorStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresVectorStore(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresVectorStoreHasIndex(t *testing.T) {
	store, mock := newMockVectorStore(t)
	key := filing.IndexKey{Ticker: "AAPL", AccessionNo: "0000320193-24-000123"}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM filing_chunks WHERE ticker = $1 AND accession_no = $2)")).
		WithArgs("AAPL", "0000320193-24-000123").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.HasIndex(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresVectorStoreIndexReplacesChunks(t *testing.T) {
	store, mock := newMockVectorStore(t)
	key := filing.IndexKey{Ticker: "AAPL", AccessionNo: "acc"}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM filing_chunks WHERE ticker = $1 AND accession_no = $2")).
		WithArgs("AAPL", "acc").
		WillReturnResult(sqlmock.NewResult(0, 4))
	insert := mock.ExpectPrepare("INSERT INTO filing_chunks")
	insert.ExpectExec().
		WithArgs("acc-0", "AAPL", "acc", 0, "revenue", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	insert.ExpectExec().
		WithArgs("acc-1", "AAPL", "acc", 1, "risk factors", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Index(context.Background(), key, []filing.Chunk{
		{ID: "acc-0", Position: 0, Text: "revenue", Vector: []float32{1, 0}},
		{ID: "acc-1", Position: 1, Text: "risk factors", Vector: []float32{0, 1}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresVectorStoreSearchRanksByCosineDistance(t *testing.T) {
	store, mock := newMockVectorStore(t)
	key := filing.IndexKey{Ticker: "AAPL", AccessionNo: "acc"}

	mock.ExpectQuery(regexp.QuoteMeta("1 - (embedding <=> $3) AS score") + `[\s\S]+` + regexp.QuoteMeta("ORDER BY embedding <=> $3") + `\s+LIMIT \$4`).
		WithArgs("AAPL", "acc", sqlmock.AnyArg(), 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "position", "content", "score"}).
			AddRow("acc-0", 0, "revenue", 0.98).
			AddRow("acc-2", 2, "net sales", 0.91))

	matches, err := store.Search(context.Background(), key, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "revenue", matches[0].Chunk.Text)
	assert.Equal(t, 2, matches[1].Chunk.Position)
	assert.InDelta(t, 0.91, matches[1].Score, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresVectorStoreSearchWithoutResultsSkipsQuery(t *testing.T) {
	store, mock := newMockVectorStore(t)

	matches, err := store.Search(context.Background(), filing.IndexKey{Ticker: "AAPL"}, []float32{1}, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.NoError(t, mock.ExpectationsWereMet())
}
