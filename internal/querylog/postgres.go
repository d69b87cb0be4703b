package querylog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ppiankov/medrights/internal/model"
)

//go:embed schema.sql
var schemaSQL string

const insertRecord = `INSERT INTO query_log
    (id, created_at, query, response, top_intent, confidence, template,
     clause_ids, client, session_id, cached, duration_ms, data_version)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12, $13)
ON CONFLICT (id) DO NOTHING`

// PostgresSink writes records to the query_log table
type PostgresSink struct {
	db *sql.DB
}

// OpenPostgres connects to dsn, verifies the connection and applies the
// schema
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	sink := NewPostgresSink(db)
	if err := sink.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

// NewPostgresSink wraps an existing connection pool. The caller owns
// migrations when using this constructor.
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// Migrate creates the query_log table if it does not exist
func (s *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate query_log: %w", err)
	}
	return nil
}

// Write inserts rec. Re-delivered records with the same id are ignored.
func (s *PostgresSink) Write(ctx context.Context, rec model.QueryRecord) error {
	ids := rec.ClauseIDs
	if ids == nil {
		ids = []string{}
	}

	_, err := s.db.ExecContext(ctx, insertRecord,
		rec.ID, rec.Timestamp, rec.Query, rec.Response, rec.TopIntent,
		rec.Confidence, rec.Template, pq.Array(ids), rec.Client, rec.Session,
		rec.Cached, rec.DurationMS, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("insert query record: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (s *PostgresSink) Close() error {
	return s.db.Close()
}
