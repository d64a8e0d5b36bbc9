package assistant

import (
	"context"

	"github.com/Abraxas-365/finai/pkg/ai/llm"
)

// Classifier decides which context a query needs
type Classifier interface {
	Classify(ctx context.Context, query, history string) (Classification, error)
}

// Generator produces the answer text. *llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, messages []llm.Message, opts ...llm.Option) (string, error)
	GenerateStream(ctx context.Context, messages []llm.Message, onChunk func(string) error, opts ...llm.Option) (string, error)
}

var _ Generator = (*llm.Client)(nil)
