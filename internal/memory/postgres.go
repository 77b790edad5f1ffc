package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/companion/internal/reliability"
)

const connectAttempts = 5

// PostgresStore archives turns in the chat_turns table. Ids are unique, so a
// retried archive write is a no-op.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	// The database may still be starting when the service boots.
	err = reliability.Retry(ctx, connectAttempts, 250*time.Millisecond, 4*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := ensureTurnsTable(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

const turnColumns = "id, user_id, session_id, role, content, pii_redacted, created_at"

// ensureTurnsTable creates the archive table on first boot; existing rows are
// never migrated.
func ensureTurnsTable(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS chat_turns (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_turns_user_created ON chat_turns (user_id, created_at)`,
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create chat_turns: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveTurn(ctx context.Context, record TurnRecord) error {
	if strings.TrimSpace(record.UserID) == "" {
		return ErrMissingUser
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_turns (`+turnColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		record.ID, record.UserID, record.SessionID, record.Role,
		record.Content, record.PIIRedacted, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("archive turn %s: %w", record.ID, err)
	}
	return nil
}

func (s *PostgresStore) RecentTurns(ctx context.Context, userID string, limit int) ([]TurnRecord, error) {
	limit = clampLimit(limit)

	rows, err := s.pool.Query(ctx,
		`SELECT `+turnColumns+` FROM chat_turns
		 WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("load turns for %s: %w", userID, err)
	}
	defer rows.Close()

	// Rows arrive newest first; fill from the back to return them oldest first.
	newestFirst := make([]TurnRecord, 0, limit)
	for rows.Next() {
		var r TurnRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.SessionID, &r.Role, &r.Content, &r.PIIRedacted, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		newestFirst = append(newestFirst, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load turns for %s: %w", userID, err)
	}

	turns := make([]TurnRecord, len(newestFirst))
	for i, r := range newestFirst {
		turns[len(turns)-1-i] = r
	}
	return turns, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
