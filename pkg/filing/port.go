package filing

import "context"

// Source fetches filing metadata and text from the regulator side
type Source interface {
	LatestFiling(ctx context.Context, ticker, formType string) (*Filing, error)
	FilingText(ctx context.Context, f *Filing) (string, error)
}

// VectorStore keeps the embedded chunks of filings
type VectorStore interface {
	HasIndex(ctx context.Context, key IndexKey) (bool, error)
	// Index replaces the chunks stored under key
	Index(ctx context.Context, key IndexKey, chunks []Chunk) error
	// Search returns at most k chunks ordered by decreasing similarity
	Search(ctx context.Context, key IndexKey, vector []float32, k int) ([]Match, error)
}

// ContextRetriever returns the passages of the latest 10-K of ticker that
// are relevant to query, rendered for a prompt
type ContextRetriever interface {
	GetFilingContext(ctx context.Context, ticker, query, history string) (string, error)
}
