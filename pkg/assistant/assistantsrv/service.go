package assistantsrv

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Abraxas-365/finai/pkg/ai/llm/memoryx"
	"github.com/Abraxas-365/finai/pkg/assistant"
	"github.com/Abraxas-365/finai/pkg/errx"
	"github.com/Abraxas-365/finai/pkg/logx"
	"github.com/Abraxas-365/finai/pkg/observability"
	"github.com/google/uuid"
)

var ErrRegistry = errx.NewRegistry("CONVERSATION")

var (
	ErrShutdown  = ErrRegistry.Register("SHUTDOWN", errx.TypeInternal, http.StatusServiceUnavailable, "Service is shutting down")
	ErrInvalidID = ErrRegistry.Register("INVALID_ID", errx.TypeValidation, http.StatusBadRequest, "Invalid conversation id")
)

// Config controls conversation lifetimes
type Config struct {
	MaxHistory int
	// IdleTimeout closes conversations unused for that long, zero keeps them open
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
}

// Turn is the result of one question in a conversation
type Turn struct {
	ConversationID string
	*assistant.Result
}

// ConversationService keeps one memory session per conversation. Turns of the
// same conversation run one at a time; different conversations run in
// parallel.
type ConversationService struct {
	engine  *assistant.Engine
	log     memoryx.Log
	cfg     Config
	metrics *observability.Metrics

	mu            sync.Mutex
	conversations map[string]*conversation
	closed        bool
}

type conversation struct {
	mu       sync.Mutex
	session  *memoryx.Session
	lastUsed time.Time
	gone     bool
}

func NewConversationService(engine *assistant.Engine, log memoryx.Log, cfg Config, metrics *observability.Metrics) *ConversationService {
	if cfg.MaxHistory < 1 {
		cfg.MaxHistory = 10
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	return &ConversationService{
		engine:        engine,
		log:           log,
		cfg:           cfg,
		metrics:       metrics,
		conversations: make(map[string]*conversation),
	}
}

// Ask answers query in conversation id, starting a new conversation when id
// is empty
func (s *ConversationService) Ask(ctx context.Context, id, query string) (*Turn, error) {
	return s.ask(ctx, id, func(mem *memoryx.Memory) (*assistant.Result, error) {
		return s.engine.Run(ctx, query, mem)
	})
}

// AskStream is Ask with the answer streamed to onChunk
func (s *ConversationService) AskStream(ctx context.Context, id, query string, onChunk func(string) error) (*Turn, error) {
	return s.ask(ctx, id, func(mem *memoryx.Memory) (*assistant.Result, error) {
		return s.engine.Stream(ctx, query, mem, onChunk)
	})
}

func (s *ConversationService) ask(ctx context.Context, id string, run func(*memoryx.Memory) (*assistant.Result, error)) (*Turn, error) {
	if id == "" {
		id = uuid.NewString()
	}

	var turn *Turn
	err := s.with(ctx, id, func(c *conversation) error {
		res, err := run(c.session.Memory())
		if err != nil {
			return err
		}
		turn = &Turn{ConversationID: id, Result: res}
		return nil
	})
	return turn, err
}

// History returns the retained turns of conversation id. An open
// conversation answers from memory; otherwise the stored history is read
// without opening a session.
func (s *ConversationService) History(ctx context.Context, id string) ([]memoryx.Turn, error) {
	if id == "" {
		return nil, ErrRegistry.New(ErrInvalidID)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrRegistry.New(ErrShutdown)
	}
	c, ok := s.conversations[id]
	s.mu.Unlock()

	if ok {
		c.mu.Lock()
		if !c.gone && c.session != nil {
			turns := c.session.Memory().Turns()
			c.mu.Unlock()
			return turns, nil
		}
		// a closed conversation has already been saved
		c.mu.Unlock()
	}

	stored, err := s.log.Load(ctx, id)
	if err != nil {
		return nil, memoryx.ErrRegistry.NewWithCause(memoryx.ErrLoadFailed, err).WithDetail("key", id)
	}
	mem := memoryx.New(s.cfg.MaxHistory)
	mem.Restore(stored)
	return mem.Turns(), nil
}

// Delete forgets conversation id, including its stored history
func (s *ConversationService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrRegistry.New(ErrInvalidID)
	}
	return s.with(ctx, id, func(c *conversation) error {
		if err := c.session.Clear(ctx); err != nil {
			return err
		}
		s.remove(id, c)
		return nil
	})
}

// with runs fn holding the lock of conversation id, opening its session
// first when needed
func (s *ConversationService) with(ctx context.Context, id string, fn func(*conversation) error) error {
	for {
		c, err := s.acquire(id)
		if err != nil {
			return err
		}

		c.mu.Lock()
		if c.gone {
			// closed by the janitor or a delete while we waited
			c.mu.Unlock()
			continue
		}
		if c.session == nil {
			session, err := memoryx.Open(ctx, s.log, id, s.cfg.MaxHistory)
			if err != nil {
				s.remove(id, c)
				c.mu.Unlock()
				return err
			}
			c.session = session
		}

		err = fn(c)
		c.lastUsed = time.Now()
		c.mu.Unlock()
		return err
	}
}

func (s *ConversationService) acquire(id string) (*conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrRegistry.New(ErrShutdown)
	}
	c, ok := s.conversations[id]
	if !ok {
		c = &conversation{lastUsed: time.Now()}
		s.conversations[id] = c
		s.metrics.SetActiveConversations(len(s.conversations))
	}
	return c, nil
}

// remove drops c from the map. The caller holds c.mu.
func (s *ConversationService) remove(id string, c *conversation) {
	c.gone = true
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversations[id] == c {
		delete(s.conversations, id)
	}
	s.metrics.SetActiveConversations(len(s.conversations))
}

// Active returns the number of open conversations
func (s *ConversationService) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// StartJanitor closes idle conversations every CleanupInterval until ctx is
// done. It returns immediately when IdleTimeout is zero.
func (s *ConversationService) StartJanitor(ctx context.Context) {
	if s.cfg.IdleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logx.Info("Conversation janitor stopped")
			return
		case <-ticker.C:
			s.CloseIdle(ctx, time.Now().Add(-s.cfg.IdleTimeout))
		}
	}
}

// CloseIdle saves and closes the conversations last used before cutoff.
// Conversations busy with a turn are skipped.
func (s *ConversationService) CloseIdle(ctx context.Context, cutoff time.Time) int {
	s.mu.Lock()
	candidates := make(map[string]*conversation, len(s.conversations))
	for id, c := range s.conversations {
		candidates[id] = c
	}
	s.mu.Unlock()

	closed := 0
	for id, c := range candidates {
		if !c.mu.TryLock() {
			continue
		}
		if c.gone || c.lastUsed.After(cutoff) {
			c.mu.Unlock()
			continue
		}
		if err := s.closeSession(ctx, id, c); err != nil {
			logx.WithFields(logx.Fields{"conversation_id": id}).Errorf("Failed to save idle conversation: %v", err)
		} else {
			closed++
		}
		c.mu.Unlock()
	}

	if closed > 0 {
		logx.Infof("Closed %d idle conversations", closed)
	}
	return closed
}

// closeSession saves the session of c and drops it. The caller holds c.mu.
func (s *ConversationService) closeSession(ctx context.Context, id string, c *conversation) error {
	if c.session != nil {
		if err := c.session.Close(ctx); err != nil {
			return err
		}
	}
	s.remove(id, c)
	return nil
}

// Shutdown refuses new turns, waits for running ones and saves every
// conversation
func (s *ConversationService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	all := make(map[string]*conversation, len(s.conversations))
	for id, c := range s.conversations {
		all[id] = c
	}
	s.mu.Unlock()

	var errs []error
	for id, c := range all {
		c.mu.Lock()
		if !c.gone {
			if err := s.closeSession(ctx, id, c); err != nil {
				errs = append(errs, err)
			}
		}
		c.mu.Unlock()
	}

	logx.Infof("Saved %d conversations", len(all)-len(errs))
	return errors.Join(errs...)
}
