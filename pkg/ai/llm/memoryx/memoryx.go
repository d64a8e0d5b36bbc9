// Package memoryx holds the bounded conversation memory of a session and
// renders it for inclusion in prompts.
package memoryx

import (
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EmptyHistory is rendered when a memory holds no turns
const EmptyHistory = "No conversation history."

// Turn is one completed query/response exchange
type Turn struct {
	ID        string    `json:"id,omitempty"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Memory is a FIFO of at most capacity turns. It is safe for concurrent use
// but a conversation is expected to have a single writer.
type Memory struct {
	mu       sync.RWMutex
	capacity int
	turns    []Turn
	changes  uint64
}

// New creates an empty memory. A capacity below 1 is treated as 1.
func New(capacity int) *Memory {
	capacity = max(capacity, 1)
	return &Memory{
		capacity: capacity,
		turns:    make([]Turn, 0, capacity),
	}
}

// Add appends a turn, evicting the oldest one when over capacity
func (m *Memory) Add(query, response string) Turn {
	turn := Turn{
		ID:        uuid.NewString(),
		Query:     query,
		Response:  response,
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turn)
	m.trim()
	m.changes++
	return turn
}

// Restore replaces the content with turns, keeping only the most recent ones
// that fit
func (m *Memory) Restore(turns []Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns[:0], turns...)
	m.trim()
}

func (m *Memory) trim() {
	if over := len(m.turns) - m.capacity; over > 0 {
		m.turns = append(m.turns[:0], m.turns[over:]...)
	}
}

// Turns returns a copy of the retained turns, oldest first
func (m *Memory) Turns() []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

// Changes counts the calls to Add and Clear. Restore does not count, so a
// memory freshly restored from storage reports zero.
func (m *Memory) Changes() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.changes
}

func (m *Memory) Capacity() int {
	return m.capacity
}

// Clear drops every turn
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = m.turns[:0]
	m.changes++
}

// Lines yields the rendered history one line at a time. Each iteration works
// on a snapshot taken when it starts, so the sequence can be ranged over
// again and reflects turns added in between.
func (m *Memory) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		turns := m.Turns()
		if len(turns) == 0 {
			yield(EmptyHistory)
			return
		}
		for i, t := range turns {
			n := i + 1
			if !yield(fmt.Sprintf("User Query %d: %s", n, t.Query)) {
				return
			}
			if !yield(fmt.Sprintf("Assistant Response %d: %s", n, t.Response)) {
				return
			}
			if !yield("") {
				return
			}
		}
	}
}

// Render returns the whole history as prompt text
func (m *Memory) Render() string {
	var sb strings.Builder
	first := true
	for line := range m.Lines() {
		if !first {
			sb.WriteByte('\n')
		}
		first = false
		sb.WriteString(line)
	}
	return sb.String()
}
