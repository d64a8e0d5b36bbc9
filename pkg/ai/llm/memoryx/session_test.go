package memoryx

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapLog struct {
	mu      sync.Mutex
	data    map[string][]Turn
	loads   int
	saves   int
	deletes int
	err     error
}

func newMapLog() *mapLog {
	return &mapLog{data: make(map[string][]Turn)}
}

func (l *mapLog) Load(_ context.Context, key string) ([]Turn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	if l.err != nil {
		return nil, l.err
	}
	return append([]Turn(nil), l.data[key]...), nil
}

func (l *mapLog) Save(_ context.Context, key string, turns []Turn) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.saves++
	if l.err != nil {
		return l.err
	}
	l.data[key] = turns
	return nil
}

func (l *mapLog) Delete(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deletes++
	delete(l.data, key)
	return nil
}

func TestSessionLoadsOnOpenAndSavesOnClose(t *testing.T) {
	ctx := context.Background()
	log := newMapLog()
	log.data["c1"] = []Turn{{Query: "old", Response: "answer"}}

	s, err := Open(ctx, log, "c1", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Memory().Len())

	s.Memory().Add("new", "reply")
	assert.Equal(t, 0, log.saves, "turns are not written mid-session")

	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))
	assert.Equal(t, 1, log.saves)
	assert.Equal(t, 1, log.loads)
	require.Len(t, log.data["c1"], 2)
	assert.Equal(t, "new", log.data["c1"][1].Query)
}

func TestSessionOpenFailure(t *testing.T) {
	log := newMapLog()
	log.err = errors.New("disk gone")

	_, err := Open(context.Background(), log, "c1", 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRegistry.New(ErrLoadFailed)))
}

func TestSessionClear(t *testing.T) {
	ctx := context.Background()
	log := newMapLog()
	log.data["c1"] = []Turn{{Query: "q", Response: "r"}}

	s, err := Open(ctx, log, "c1", 3)
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx))

	assert.Equal(t, 0, s.Memory().Len())
	assert.NotContains(t, log.data, "c1")
}

func TestSessionCloseWithoutChangesWritesNothing(t *testing.T) {
	ctx := context.Background()
	log := newMapLog()
	log.data["known"] = []Turn{{Query: "q", Response: "r"}}

	for _, key := range []string{"known", "unknown"} {
		s, err := Open(ctx, log, key, 3)
		require.NoError(t, err)
		assert.False(t, s.Dirty())
		require.NoError(t, s.Close(ctx))
	}

	assert.Zero(t, log.saves)
	assert.NotContains(t, log.data, "unknown")
}

func TestSessionClearedSessionIsNotResaved(t *testing.T) {
	ctx := context.Background()
	log := newMapLog()
	log.data["c1"] = []Turn{{Query: "q", Response: "r"}}

	s, err := Open(ctx, log, "c1", 3)
	require.NoError(t, err)
	s.Memory().Add("q2", "r2")
	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Close(ctx))

	assert.Zero(t, log.saves)
	assert.NotContains(t, log.data, "c1")
}
