package memoryxinfra

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/Abraxas-365/finai/pkg/ai/llm/memoryx"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseLog runs the contract every memoryx.Log must honour
func exerciseLog(t *testing.T, log memoryx.Log, key string) {
	t.Helper()
	ctx := context.Background()

	turns, err := log.Load(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, turns, "unknown key loads as empty")

	want := []memoryx.Turn{
		{ID: "t1", Query: "What is AAPL at?", Response: "$190", CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		{ID: "t2", Query: "And TSLA?", Response: "$250", CreatedAt: time.Date(2025, 1, 2, 3, 5, 5, 0, time.UTC)},
	}
	require.NoError(t, log.Save(ctx, key, want))

	got, err := log.Load(ctx, key)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range want {
		assert.Equal(t, want[i].Query, got[i].Query)
		assert.Equal(t, want[i].Response, got[i].Response)
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt))
	}

	require.NoError(t, log.Save(ctx, key, want[1:]))
	got, err = log.Load(ctx, key)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "And TSLA?", got[0].Query)

	require.NoError(t, log.Delete(ctx, key))
	require.NoError(t, log.Delete(ctx, key))
	got, err = log.Load(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileLog(t *testing.T) {
	log, err := NewFileLog(t.TempDir())
	require.NoError(t, err)
	exerciseLog(t, log, "conversation-1")
}

func TestFileLogEncodesUnsafeKey(t *testing.T) {
	dir := t.TempDir()
	log, err := NewFileLog(dir)
	require.NoError(t, err)

	require.NoError(t, log.Save(context.Background(), "../../etc/passwd", []memoryx.Turn{{Query: "q", Response: "r"}}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b64.Li4vLi4vZXRjL3Bhc3N3ZA.json", entries[0].Name())
}

func TestFileLogKeepsSimilarKeysApart(t *testing.T) {
	ctx := context.Background()
	log, err := NewFileLog(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, log.Save(ctx, "alice_bank", []memoryx.Turn{{Query: "alice secret", Response: "r"}}))

	for _, key := range []string{"alice bank", "alice.bank", "alice/bank", "b64.YWxpY2VfYmFuaw"} {
		turns, err := log.Load(ctx, key)
		require.NoError(t, err)
		assert.Empty(t, turns, "key %q must not see the history of alice_bank", key)
	}

	require.NoError(t, log.Save(ctx, "alice bank", []memoryx.Turn{{Query: "bob question", Response: "r"}}))
	turns, err := log.Load(ctx, "alice_bank")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "alice secret", turns[0].Query)

	turns, err = log.Load(ctx, "alice bank")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "bob question", turns[0].Query)
}

func TestFileLogReadsLegacyHistory(t *testing.T) {
	dir := t.TempDir()
	legacy := `[{"query": "What is Apple's revenue?", "response": "About $383B."}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conversation_history.json"), []byte(legacy), 0o644))

	log, err := NewFileLog(dir)
	require.NoError(t, err)

	turns, err := log.Load(context.Background(), "conversation_history")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "About $383B.", turns[0].Response)
	assert.True(t, turns[0].CreatedAt.IsZero())
}

func TestFileLogRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))

	log, err := NewFileLog(dir)
	require.NoError(t, err)

	_, err = log.Load(context.Background(), "bad")
	assert.Error(t, err)
}

func newMiniredisLog(t *testing.T, ttl time.Duration) (*RedisLog, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLog(client, ttl), mr
}

func TestRedisLogInMemory(t *testing.T) {
	log, _ := newMiniredisLog(t, 0)
	exerciseLog(t, log, "conversation-1")
}

func TestRedisLogKeyAndExpiry(t *testing.T) {
	ctx := context.Background()
	log, mr := newMiniredisLog(t, time.Minute)

	require.NoError(t, log.Save(ctx, "c1", []memoryx.Turn{{Query: "q", Response: "r"}}))
	assert.True(t, mr.Exists("conversation:c1"))
	assert.Equal(t, time.Minute, mr.TTL("conversation:c1"))

	mr.FastForward(2 * time.Minute)
	turns, err := log.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, turns, "expired history loads as empty")
}

func TestRedisLogRejectsCorruptValue(t *testing.T) {
	log, mr := newMiniredisLog(t, 0)
	require.NoError(t, mr.Set("conversation:bad", "{not json"))

	_, err := log.Load(context.Background(), "bad")
	assert.Error(t, err)
}

func newMockPostgresLog(t *testing.T) (*PostgresLog, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresLog(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresLogLoadOrdersByPosition(t *testing.T) {
	log, mock := newMockPostgresLog(t)
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM conversation_turns")+`\s+WHERE conversation_id = \$1\s+ORDER BY position`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "conversation_id", "position", "query", "response", "created_at"}).
			AddRow("t1", "c1", 0, "What is AAPL at?", "$190", created).
			AddRow("t2", "c1", 1, "And TSLA?", "$250", created))

	turns, err := log.Load(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "t1", turns[0].ID)
	assert.Equal(t, "And TSLA?", turns[1].Query)
	assert.True(t, created.Equal(turns[1].CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLogSaveReplacesTurnsInOneTransaction(t *testing.T) {
	log, mock := newMockPostgresLog(t)
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM conversation_turns WHERE conversation_id = $1")).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO conversation_turns").
		WithArgs(
			"t1", "c1", 0, "q1", "r1", created,
			sqlmock.AnyArg(), "c1", 1, "q2", "r2", sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := log.Save(context.Background(), "c1", []memoryx.Turn{
		{ID: "t1", Query: "q1", Response: "r1", CreatedAt: created},
		{Query: "q2", Response: "r2"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLogSaveEmptyOnlyClears(t *testing.T) {
	log, mock := newMockPostgresLog(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM conversation_turns").
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, log.Save(context.Background(), "c1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLogSaveRollsBackOnFailure(t *testing.T) {
	log, mock := newMockPostgresLog(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM conversation_turns").
		WithArgs("c1").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := log.Save(context.Background(), "c1", []memoryx.Turn{{Query: "q", Response: "r"}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLog(t *testing.T) {
	addr := os.Getenv("FINAI_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FINAI_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	exerciseLog(t, NewRedisLog(client, time.Minute), "test-"+t.Name())
}

func TestPostgresLog(t *testing.T) {
	dsn := os.Getenv("FINAI_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FINAI_TEST_POSTGRES_DSN not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := NewPostgresLog(db)
	require.NoError(t, log.EnsureSchema(context.Background()))
	exerciseLog(t, log, "test-"+t.Name())
}
