package memoryx

import (
	"context"
	"net/http"
	"sync"

	"github.com/Abraxas-365/finai/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("MEMORY")

var (
	ErrLoadFailed   = ErrRegistry.Register("LOAD_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Failed to load conversation history")
	ErrSaveFailed   = ErrRegistry.Register("SAVE_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Failed to save conversation history")
	ErrDeleteFailed = ErrRegistry.Register("DELETE_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Failed to delete conversation history")
)

// Log is the durable history of conversations, keyed by conversation id.
// Load of an unknown key returns no turns and no error.
type Log interface {
	Load(ctx context.Context, key string) ([]Turn, error)
	Save(ctx context.Context, key string, turns []Turn) error
	Delete(ctx context.Context, key string) error
}

// Session binds a Memory to its entry in a Log. History is read once when
// the session opens and written once when it closes, unless nothing changed.
type Session struct {
	key    string
	log    Log
	memory *Memory

	mu     sync.Mutex
	closed bool
	// saved is the memory change count the log entry reflects
	saved uint64
}

// Open loads the history stored under key into a new memory of the given
// capacity
func Open(ctx context.Context, log Log, key string, capacity int) (*Session, error) {
	turns, err := log.Load(ctx, key)
	if err != nil {
		return nil, ErrRegistry.NewWithCause(ErrLoadFailed, err).WithDetail("key", key)
	}

	mem := New(capacity)
	mem.Restore(turns)

	return &Session{key: key, log: log, memory: mem, saved: mem.Changes()}, nil
}

func (s *Session) Key() string {
	return s.key
}

func (s *Session) Memory() *Memory {
	return s.memory
}

// Flush writes the current turns to the log without closing the session
func (s *Session) Flush(ctx context.Context) error {
	changes := s.memory.Changes()
	if err := s.log.Save(ctx, s.key, s.memory.Turns()); err != nil {
		return ErrRegistry.NewWithCause(ErrSaveFailed, err).WithDetail("key", s.key)
	}
	s.saved = changes
	return nil
}

// Dirty reports whether the memory changed since it was loaded or saved
func (s *Session) Dirty() bool {
	return s.memory.Changes() != s.saved
}

// Close saves the history when it changed. Closing twice saves once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if s.Dirty() {
		if err := s.Flush(ctx); err != nil {
			return err
		}
	}
	s.closed = true
	return nil
}

// Clear empties the memory and removes the stored history
func (s *Session) Clear(ctx context.Context) error {
	s.memory.Clear()
	if err := s.log.Delete(ctx, s.key); err != nil {
		return ErrRegistry.NewWithCause(ErrDeleteFailed, err).WithDetail("key", s.key)
	}
	s.saved = s.memory.Changes()
	return nil
}
