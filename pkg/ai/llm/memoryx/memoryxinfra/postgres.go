package memoryxinfra

import (
	"context"
	"time"

	"github.com/Abraxas-365/finai/pkg/ai/llm/memoryx"
	"github.com/Abraxas-365/finai/pkg/errx"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const conversationTurnsSchema = `
	CREATE TABLE IF NOT EXISTS conversation_turns (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		position        INT NOT NULL,
		query           TEXT NOT NULL,
		response        TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_conversation_turns_conversation
		ON conversation_turns (conversation_id, position);`

type turnRow struct {
	ID             string    `db:"id"`
	ConversationID string    `db:"conversation_id"`
	Position       int       `db:"position"`
	Query          string    `db:"query"`
	Response       string    `db:"response"`
	CreatedAt      time.Time `db:"created_at"`
}

// PostgresLog stores turns as rows of conversation_turns
type PostgresLog struct {
	db *sqlx.DB
}

func NewPostgresLog(db *sqlx.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

// EnsureSchema creates the table when missing
func (l *PostgresLog) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, conversationTurnsSchema); err != nil {
		return errx.Wrap(err, "failed to create conversation_turns", errx.TypeInternal)
	}
	return nil
}

func (l *PostgresLog) Load(ctx context.Context, key string) ([]memoryx.Turn, error) {
	query := `
		SELECT id, conversation_id, position, query, response, created_at
		FROM conversation_turns
		WHERE conversation_id = $1
		ORDER BY position`

	var rows []turnRow
	if err := l.db.SelectContext(ctx, &rows, query, key); err != nil {
		return nil, errx.Wrap(err, "failed to load conversation turns", errx.TypeInternal).
			WithDetail("conversation_id", key)
	}

	turns := make([]memoryx.Turn, 0, len(rows))
	for _, r := range rows {
		turns = append(turns, memoryx.Turn{
			ID:        r.ID,
			Query:     r.Query,
			Response:  r.Response,
			CreatedAt: r.CreatedAt,
		})
	}
	return turns, nil
}

// Save replaces the stored turns of the conversation in one transaction
func (l *PostgresLog) Save(ctx context.Context, key string, turns []memoryx.Turn) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin transaction", errx.TypeInternal)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_turns WHERE conversation_id = $1`, key); err != nil {
		return errx.Wrap(err, "failed to clear conversation turns", errx.TypeInternal).
			WithDetail("conversation_id", key)
	}

	if len(turns) > 0 {
		rows := make([]turnRow, 0, len(turns))
		for i, t := range turns {
			id := t.ID
			if id == "" {
				id = uuid.NewString()
			}
			created := t.CreatedAt
			if created.IsZero() {
				created = time.Now().UTC()
			}
			rows = append(rows, turnRow{
				ID:             id,
				ConversationID: key,
				Position:       i,
				Query:          t.Query,
				Response:       t.Response,
				CreatedAt:      created,
			})
		}

		query := `
			INSERT INTO conversation_turns (
				id, conversation_id, position, query, response, created_at
			) VALUES (
				:id, :conversation_id, :position, :query, :response, :created_at
			)`
		if _, err := tx.NamedExecContext(ctx, query, rows); err != nil {
			return errx.Wrap(err, "failed to save conversation turns", errx.TypeInternal).
				WithDetail("conversation_id", key)
		}
	}

	if err := tx.Commit(); err != nil {
		return errx.Wrap(err, "failed to commit conversation turns", errx.TypeInternal)
	}
	return nil
}

func (l *PostgresLog) Delete(ctx context.Context, key string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM conversation_turns WHERE conversation_id = $1`, key); err != nil {
		return errx.Wrap(err, "failed to delete conversation turns", errx.TypeInternal).
			WithDetail("conversation_id", key)
	}
	return nil
}
