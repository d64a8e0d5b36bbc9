package filinginfra

import (
	"context"

	"github.com/Abraxas-365/finai/pkg/errx"
	"github.com/Abraxas-365/finai/pkg/filing"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
)

const filingChunksSchema = `
	CREATE EXTENSION IF NOT EXISTS vector;
	CREATE TABLE IF NOT EXISTS filing_chunks (
		id           TEXT PRIMARY KEY,
		ticker       TEXT NOT NULL,
		accession_no TEXT NOT NULL,
		position     INT NOT NULL,
		content      TEXT NOT NULL,
		embedding    vector NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_filing_chunks_filing
		ON filing_chunks (ticker, accession_no);`

type chunkRow struct {
	ID       string  `db:"id"`
	Position int     `db:"position"`
	Content  string  `db:"content"`
	Score    float64 `db:"score"`
}

// PostgresVectorStore keeps chunks in filing_chunks and searches with the
// pgvector cosine distance operator
type PostgresVectorStore struct {
	db *sqlx.DB
}

func NewPostgresVectorStore(db *sqlx.DB) *PostgresVectorStore {
	return &PostgresVectorStore{db: db}
}

// EnsureSchema installs the vector extension and creates the table
func (s *PostgresVectorStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, filingChunksSchema); err != nil {
		return errx.Wrap(err, "failed to create filing_chunks", errx.TypeInternal)
	}
	return nil
}

func (s *PostgresVectorStore) HasIndex(ctx context.Context, key filing.IndexKey) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM filing_chunks WHERE ticker = $1 AND accession_no = $2)`
	if err := s.db.GetContext(ctx, &exists, query, key.Ticker, key.AccessionNo); err != nil {
		return false, errx.Wrap(err, "failed to check filing index", errx.TypeInternal).
			WithDetail("index", key.String())
	}
	return exists, nil
}

func (s *PostgresVectorStore) Index(ctx context.Context, key filing.IndexKey, chunks []filing.Chunk) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin transaction", errx.TypeInternal)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM filing_chunks WHERE ticker = $1 AND accession_no = $2`, key.Ticker, key.AccessionNo); err != nil {
		return errx.Wrap(err, "failed to clear filing index", errx.TypeInternal).
			WithDetail("index", key.String())
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO filing_chunks (id, ticker, accession_no, position, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return errx.Wrap(err, "failed to prepare chunk insert", errx.TypeInternal)
	}
	defer stmt.Close()

	for _, c := range chunks {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, id, key.Ticker, key.AccessionNo, c.Position, c.Text, pgvector.NewVector(c.Vector)); err != nil {
			return errx.Wrap(err, "failed to insert chunk", errx.TypeInternal).
				WithDetail("index", key.String()).
				WithDetail("position", c.Position)
		}
	}

	if err := tx.Commit(); err != nil {
		return errx.Wrap(err, "failed to commit filing index", errx.TypeInternal)
	}
	return nil
}

func (s *PostgresVectorStore) Search(ctx context.Context, key filing.IndexKey, vector []float32, k int) ([]filing.Match, error) {
	if k <= 0 {
		return nil, nil
	}

	query := `
		SELECT id, position, content, 1 - (embedding <=> $3) AS score
		FROM filing_chunks
		WHERE ticker = $1 AND accession_no = $2
		ORDER BY embedding <=> $3
		LIMIT $4`

	var rows []chunkRow
	if err := s.db.SelectContext(ctx, &rows, query, key.Ticker, key.AccessionNo, pgvector.NewVector(vector), k); err != nil {
		return nil, errx.Wrap(err, "failed to search filing index", errx.TypeInternal).
			WithDetail("index", key.String())
	}

	matches := make([]filing.Match, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, filing.Match{
			Chunk: filing.Chunk{ID: r.ID, Position: r.Position, Text: r.Content},
			Score: r.Score,
		})
	}
	return matches, nil
}

var _ filing.VectorStore = (*PostgresVectorStore)(nil)
