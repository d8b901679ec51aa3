package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"code-runner/internal/config"
)

// ErrNotFound is returned when a session or execution does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps a PostgreSQL connection pool holding session and execution records.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool and verifies connectivity.
func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().Msg("connected to PostgreSQL")
	return &DB{pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Healthy checks database connectivity.
func (db *DB) Healthy(ctx context.Context) bool {
	return db.pool.Ping(ctx) == nil
}

// Migrate creates the schema if it does not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			status     TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("creating sessions table: %w", err)
	}

	_, err = db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS executions (
			id                TEXT PRIMARY KEY,
			session_id        TEXT NOT NULL REFERENCES sessions(id),
			language          TEXT NOT NULL,
			code              TEXT NOT NULL,
			status            TEXT NOT NULL,
			stdout            TEXT,
			stderr            TEXT,
			execution_time_ms BIGINT,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("creating executions table: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS executions_session_id_idx ON executions (session_id, created_at DESC)`)
	if err != nil {
		return fmt.Errorf("creating executions index: %w", err)
	}

	return nil
}

// CreateSession persists a new session in ACTIVE status.
func (db *DB) CreateSession(ctx context.Context) (*Session, error) {
	sess := &Session{
		ID:        uuid.New().String(),
		Status:    SessionActive,
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO sessions (id, status, created_at) VALUES ($1, $2, $3)`,
		sess.ID, sess.Status, sess.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}
	return sess, nil
}

// GetSession retrieves a session by ID.
func (db *DB) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := db.pool.QueryRow(ctx,
		`SELECT id, status, created_at FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.Status, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying session %s: %w", id, err)
	}
	return &sess, nil
}

// CreateExecution inserts a new execution record. The record must exist
// before the corresponding job is enqueued, so a worker always finds the
// record it is asked to update.
func (db *DB) CreateExecution(ctx context.Context, exec *Execution) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO executions (id, session_id, language, code, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		exec.ID, exec.SessionID, exec.Language, exec.Code, exec.Status, exec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// GetExecution retrieves a single execution by ID.
func (db *DB) GetExecution(ctx context.Context, id string) (*Execution, error) {
	var exec Execution
	err := db.pool.QueryRow(ctx, `
		SELECT id, session_id, language, code, status, stdout, stderr,
			execution_time_ms, created_at, updated_at
		FROM executions WHERE id = $1`, id,
	).Scan(
		&exec.ID, &exec.SessionID, &exec.Language, &exec.Code, &exec.Status,
		&exec.Stdout, &exec.Stderr, &exec.ExecutionTimeMS,
		&exec.CreatedAt, &exec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying execution %s: %w", id, err)
	}
	return &exec, nil
}

// ListSessionExecutions returns a session's executions, newest first.
func (db *DB) ListSessionExecutions(ctx context.Context, sessionID string, limit int) ([]Execution, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := db.pool.Query(ctx, `
		SELECT id, session_id, language, code, status, stdout, stderr,
			execution_time_ms, created_at, updated_at
		FROM executions
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var results []Execution
	for rows.Next() {
		var exec Execution
		if err := rows.Scan(
			&exec.ID, &exec.SessionID, &exec.Language, &exec.Code, &exec.Status,
			&exec.Stdout, &exec.Stderr, &exec.ExecutionTimeMS,
			&exec.CreatedAt, &exec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning execution row: %w", err)
		}
		results = append(results, exec)
	}

	return results, rows.Err()
}

// MarkRunning transitions an execution to RUNNING.
func (db *DB) MarkRunning(ctx context.Context, id string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE executions SET status = $2, updated_at = now() WHERE id = $1`,
		id, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("marking execution %s running: %w", id, err)
	}
	return nil
}

// FinishExecution persists the terminal status, captured output and timing
// in one update. executionTimeMS is nil when no process completed normally
// (timeout, spawn failure, unsupported language).
func (db *DB) FinishExecution(ctx context.Context, id string, status Status, stdout, stderr string, executionTimeMS *int64) error {
	_, err := db.pool.Exec(ctx, `
		UPDATE executions
		SET status = $2, stdout = $3, stderr = $4, execution_time_ms = $5, updated_at = now()
		WHERE id = $1`,
		id, status, truncateForDB(stdout, 65535), truncateForDB(stderr, 65535), executionTimeMS,
	)
	if err != nil {
		return fmt.Errorf("finishing execution %s: %w", id, err)
	}
	return nil
}

// truncateForDB caps captured output, backing up to a rune boundary so the
// cut never produces invalid UTF-8 (Postgres rejects it in TEXT columns).
func truncateForDB(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
