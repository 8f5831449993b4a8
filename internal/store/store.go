// Package store is the SQLite persistence layer: cron job records,
// conversation history, and the workspace file log.
//
// SQLite prefers a single writer, so the pool is capped at one connection
// and WAL mode is enabled. Schema setup is an embedded idempotent script.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"clawbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Job is a durable scheduled-job record. Schedule is a 5-field cron string;
// it is validated by the scheduler before a row is ever created.
type Job struct {
	ID       int64
	Schedule string
	Task     string
	Message  string
	Enabled  bool
}

// Message is one conversation turn.
type Message struct {
	Role    string
	Content string
}

// FileEntry records a file the assistant wrote into the workspace.
// CreatedAt is kept as the raw SQLite timestamp text; it is display-only.
type FileEntry struct {
	Filename    string
	Description string
	CreatedAt   string
}

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

type Store struct {
	db  *sql.DB
	log logx.Logger
}

// Open opens (creating if needed) the database at cfg.Path and applies the schema.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store: path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Store{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- cron jobs ----

// AddJob inserts an enabled job and returns the store-assigned id.
func (s *Store) AddJob(ctx context.Context, schedule, task, message string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO cron_jobs (schedule, task, message, enabled) VALUES (?, ?, ?, 1)`,
		schedule, task, message,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// EnabledJobs returns every job still marked enabled, oldest first.
func (s *Store) EnabledJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, schedule, task, message, enabled FROM cron_jobs WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var enabled int64
		if err := rows.Scan(&j.ID, &j.Schedule, &j.Task, &j.Message, &enabled); err != nil {
			return nil, err
		}
		j.Enabled = enabled == 1
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// DisableJob soft-deletes a job. Returns false when no enabled row matched,
// which makes repeated disables idempotent rather than an error.
func (s *Store) DisableJob(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE cron_jobs SET enabled = 0 WHERE id = ? AND enabled = 1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ---- conversation history ----

func (s *Store) AppendMessage(ctx context.Context, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (role, content) VALUES (?, ?)`, role, content)
	return err
}

// History returns the most recent limit turns in chronological order.
func (s *Store) History(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM conversations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query is newest-first for the LIMIT; callers want oldest-first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) ClearHistory(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations`)
	return err
}

// ---- workspace files ----

func (s *Store) LogFile(ctx context.Context, filename, description string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workspace_files (filename, description) VALUES (?, ?)`,
		filename, nullStr(description))
	return err
}

func (s *Store) Files(ctx context.Context) ([]FileEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT filename, COALESCE(description, ''), created_at FROM workspace_files ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []FileEntry
	for rows.Next() {
		var f FileEntry
		if err := rows.Scan(&f.Filename, &f.Description, &f.CreatedAt); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
