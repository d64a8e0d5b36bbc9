package filinginfra

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/Abraxas-365/finai/pkg/ai/embedding"
	"github.com/Abraxas-365/finai/pkg/filing"
)

// MemoryVectorStore keeps chunks in process and searches by cosine similarity.
// Indexes live as long as the process.
type MemoryVectorStore struct {
	mu      sync.RWMutex
	indexes map[filing.IndexKey][]filing.Chunk
}

func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{indexes: make(map[filing.IndexKey][]filing.Chunk)}
}

func (s *MemoryVectorStore) HasIndex(_ context.Context, key filing.IndexKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indexes[key]
	return ok, nil
}

func (s *MemoryVectorStore) Index(_ context.Context, key filing.IndexKey, chunks []filing.Chunk) error {
	stored := make([]filing.Chunk, len(chunks))
	copy(stored, chunks)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[key] = stored
	return nil
}

func (s *MemoryVectorStore) Search(_ context.Context, key filing.IndexKey, vector []float32, k int) ([]filing.Match, error) {
	s.mu.RLock()
	chunks := s.indexes[key]
	s.mu.RUnlock()

	if k <= 0 || len(chunks) == 0 {
		return nil, nil
	}

	matches := make([]filing.Match, 0, len(chunks))
	for _, c := range chunks {
		matches = append(matches, filing.Match{Chunk: c, Score: embedding.CosineSimilarity(vector, c.Vector)})
	}
	slices.SortStableFunc(matches, func(a, b filing.Match) int {
		return cmp.Compare(b.Score, a.Score)
	})

	return matches[:min(k, len(matches))], nil
}

var _ filing.VectorStore = (*MemoryVectorStore)(nil)
