package embedding

import "context"

// Embedder turns text into vectors. Filing chunks go through EmbedDocuments
// and search queries through EmbedQuery, which lets asymmetric models tell
// them apart.
type Embedder interface {
	// EmbedDocuments converts a slice of documents into vector embeddings
	EmbedDocuments(ctx context.Context, documents []string, opts ...Option) ([]Embedding, error)

	// EmbedQuery converts a single query text into a vector embedding
	EmbedQuery(ctx context.Context, text string, opts ...Option) (Embedding, error)
}

// Embedding is one vector with the usage of the request that produced it
type Embedding struct {
	Vector []float32
	Usage  Usage
}

type Usage struct {
	PromptTokens int
	TotalTokens  int
}

// Client carries the model defaults shared by indexing and search so both
// sides of a comparison use the same vector space.
type Client struct {
	embedder Embedder
	defaults []Option
}

// NewClient creates a new embedding client
func NewClient(embedder Embedder, defaults ...Option) *Client {
	return &Client{embedder: embedder, defaults: defaults}
}

func (c *Client) options(opts []Option) []Option {
	all := make([]Option, 0, len(c.defaults)+len(opts))
	all = append(all, c.defaults...)
	return append(all, opts...)
}

func (c *Client) EmbedDocuments(ctx context.Context, documents []string, opts ...Option) ([]Embedding, error) {
	return c.embedder.EmbedDocuments(ctx, documents, c.options(opts)...)
}

func (c *Client) EmbedQuery(ctx context.Context, text string, opts ...Option) (Embedding, error) {
	return c.embedder.EmbedQuery(ctx, text, c.options(opts)...)
}
