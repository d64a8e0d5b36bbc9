package filingsrv

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/Abraxas-365/finai/pkg/ai/embedding"
	"github.com/Abraxas-365/finai/pkg/ai/llm"
	"github.com/Abraxas-365/finai/pkg/errx"
	"github.com/Abraxas-365/finai/pkg/filing"
	"github.com/Abraxas-365/finai/pkg/fsx"
	"github.com/Abraxas-365/finai/pkg/logx"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const searchQueryPrompt = `You are a financial search query optimizer. Your job is to generate an optimized search query
for retrieving information from SEC 10-K filings based on the user's query and conversation history.

USER QUERY: %s

CONVERSATION HISTORY:
%s

Based on the user query and conversation history, generate an optimized search query that:
1. Captures the key financial concepts needed
2. Includes specific financial terms that might be in 10-K documents
3. Extracts and expands any implied searches from the conversation context
4. Uses specific financial terminology that would appear in SEC filings
5. Is focused and precise (between 10-20 words)

DO NOT explain your reasoning. ONLY output the optimized search query text.

OPTIMIZED SEARCH QUERY:`

// Config tunes chunking and retrieval
type Config struct {
	FormType        string
	ChunkSize       int
	ChunkOverlap    int
	TopK            int
	MaxContextChars int
	EmbedBatchSize  int
	OptimizeQuery   bool
}

func (c Config) withDefaults() Config {
	if c.FormType == "" {
		c.FormType = filing.FormAnnualReport
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 200
	}
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 64
	}
	return c
}

// Service answers filing context requests: it indexes the latest filing of a
// ticker once and searches it for every query
type Service struct {
	source   filing.Source
	store    filing.VectorStore
	embedder embedding.Embedder
	rewriter *llm.Client
	files    fsx.FileSystem
	splitter *filing.Splitter
	cfg      Config

	indexing singleflight.Group
}

// NewService wires the retrieval pipeline. rewriter and files are optional:
// without a rewriter the raw query is embedded, without files the filing
// text is fetched every time an index is built.
func NewService(source filing.Source, store filing.VectorStore, embedder embedding.Embedder, rewriter *llm.Client, files fsx.FileSystem, cfg Config) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		source:   source,
		store:    store,
		embedder: embedder,
		rewriter: rewriter,
		files:    files,
		splitter: filing.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		cfg:      cfg,
	}
}

// GetFilingContext implements filing.ContextRetriever
func (s *Service) GetFilingContext(ctx context.Context, ticker, query, history string) (string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	log := logx.WithFields(logx.Fields{"ticker": ticker})

	f, err := s.source.LatestFiling(ctx, ticker, s.cfg.FormType)
	if err != nil {
		return "", retrievalError(err, ticker)
	}
	if f.Ticker == "" {
		f.Ticker = ticker
	}
	key := f.Key()

	if err := s.ensureIndex(ctx, f); err != nil {
		return "", retrievalError(err, ticker)
	}

	searchQuery := s.searchQuery(ctx, query, history)
	log.Debugf("Searching %s for %q", key, searchQuery)

	qv, err := s.embedder.EmbedQuery(ctx, searchQuery)
	if err != nil {
		return "", filing.ErrRegistry.NewWithCause(filing.ErrRetrieval, fmt.Errorf("failed to embed query: %w", err)).
			WithDetail("ticker", ticker)
	}

	matches, err := s.store.Search(ctx, key, embedding.Normalize(qv.Vector), s.cfg.TopK)
	if err != nil {
		return "", retrievalError(err, ticker)
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No relevant information found in the 10-K filing for %s.", ticker), nil
	}

	return s.render(f, ticker, matches), nil
}

// ensureIndex builds the index of f unless it exists. Concurrent callers for
// the same filing share one build, which is not cancelled when one of them
// goes away.
func (s *Service) ensureIndex(ctx context.Context, f *filing.Filing) error {
	key := f.Key()
	ch := s.indexing.DoChan(key.String(), func() (any, error) {
		return nil, s.buildIndex(context.WithoutCancel(ctx), f)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (s *Service) buildIndex(ctx context.Context, f *filing.Filing) error {
	key := f.Key()
	log := logx.WithFields(logx.Fields{"ticker": key.Ticker, "accession": key.AccessionNo})

	ok, err := s.store.HasIndex(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	text, err := s.filingText(ctx, f)
	if err != nil {
		return err
	}

	pieces := s.splitter.Split(text)
	if len(pieces) == 0 {
		return filing.ErrRegistry.New(filing.ErrNoContent).WithDetail("ticker", key.Ticker)
	}
	log.Infof("Indexing %d chunks", len(pieces))

	chunks := make([]filing.Chunk, 0, len(pieces))
	for start := 0; start < len(pieces); start += s.cfg.EmbedBatchSize {
		batch := pieces[start:min(start+s.cfg.EmbedBatchSize, len(pieces))]
		vectors, err := s.embedder.EmbedDocuments(ctx, batch)
		if err != nil {
			return filing.ErrRegistry.NewWithCause(filing.ErrRetrieval, fmt.Errorf("failed to embed chunks: %w", err))
		}
		if len(vectors) != len(batch) {
			return filing.ErrRegistry.NewWithCause(filing.ErrRetrieval, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch)))
		}
		for i, v := range vectors {
			chunks = append(chunks, filing.Chunk{
				ID:       uuid.NewString(),
				Position: start + i,
				Text:     batch[i],
				Vector:   embedding.Normalize(v.Vector),
			})
		}
	}

	if err := s.store.Index(ctx, key, chunks); err != nil {
		return err
	}
	log.Info("✅ Filing indexed")
	return nil
}

// filingText reads the raw text from the file cache, fetching and caching it
// on a miss
func (s *Service) filingText(ctx context.Context, f *filing.Filing) (string, error) {
	if s.files == nil {
		return s.source.FilingText(ctx, f)
	}

	p := cachePath(f)
	data, err := s.files.ReadFile(ctx, p)
	if err == nil {
		return string(data), nil
	}
	if !fsx.IsNotFound(err) {
		logx.Warnf("Filing cache read failed for %s: %v", p, err)
	}

	text, err := s.source.FilingText(ctx, f)
	if err != nil {
		return "", err
	}
	if err := s.files.WriteFile(ctx, p, []byte(text)); err != nil {
		logx.Warnf("Filing cache write failed for %s: %v", p, err)
	}
	return text, nil
}

func cachePath(f *filing.Filing) string {
	return path.Join("filings", strings.ToUpper(f.Ticker), f.AccessionNo+".txt")
}

// searchQuery rewrites query into 10-K vocabulary, or returns it unchanged
// when rewriting is off or fails
func (s *Service) searchQuery(ctx context.Context, query, history string) string {
	if !s.cfg.OptimizeQuery || s.rewriter == nil {
		return query
	}
	if strings.TrimSpace(history) == "" {
		history = "No conversation history."
	}

	prompt := fmt.Sprintf(searchQueryPrompt, query, history)
	out, err := s.rewriter.Generate(ctx, []llm.Message{llm.NewUserMessage(prompt)}, llm.WithDeterministic())
	if err != nil {
		logx.Warnf("Search query rewrite failed, using the raw query: %v", err)
		return query
	}

	out = strings.Trim(strings.TrimSpace(out), `"'`)
	if out == "" {
		return query
	}
	return out
}

// render formats the header and passages, stopping before the passage that
// would exceed MaxContextChars. The first passage is always kept, truncated
// if needed.
func (s *Service) render(f *filing.Filing, ticker string, matches []filing.Match) string {
	var sb strings.Builder
	sb.WriteString(f.Header(ticker))
	sb.WriteString("\n\n")

	budget := s.cfg.MaxContextChars
	for i, m := range matches {
		passage := fmt.Sprintf("Context %d:\n%s\n\n", i+1, strings.TrimSpace(m.Chunk.Text))
		if budget > 0 {
			used := utf8.RuneCountInString(sb.String())
			if used+utf8.RuneCountInString(passage) > budget {
				if i == 0 {
					sb.WriteString(truncateRunes(passage, max(budget-used, 0)))
				}
				break
			}
		}
		sb.WriteString(passage)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// retrievalError keeps errors already classified by the filing registry and
// wraps everything else as a retrieval failure
func retrievalError(err error, ticker string) error {
	if strings.HasPrefix(errx.CodeOf(err), "FILING_") {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return filing.ErrRegistry.NewWithCause(filing.ErrRetrieval, err).WithDetail("ticker", ticker)
}

var _ filing.ContextRetriever = (*Service)(nil)
