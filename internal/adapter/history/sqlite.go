// Package history persists finished tasks in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"uetools/internal/domain"
)

// Fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements domain.TaskHistory using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			command    TEXT NOT NULL DEFAULT '{}',
			status     TEXT NOT NULL,
			exit_code  INTEGER,
			error      TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			ended_at   TEXT
		)
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS tasks_started_at ON tasks (started_at)")
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record inserts rec, replacing an earlier row with the same ID.
func (s *SQLiteStore) Record(ctx context.Context, rec domain.TaskRecord) error {
	cmdJSON, err := json.Marshal(rec.Command)
	if err != nil {
		return fmt.Errorf("marshal task command: %w", err)
	}
	var exitCode sql.NullInt64
	if rec.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*rec.ExitCode), Valid: true}
	}
	var ended sql.NullString
	if rec.EndedAt != nil {
		ended = sql.NullString{String: rec.EndedAt.UTC().Format(timeLayout), Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO tasks (id, name, command, status, exit_code, error, started_at, ended_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.Name, string(cmdJSON), string(rec.Status), exitCode, rec.Error,
		rec.StartedAt.UTC().Format(timeLayout), ended,
	)
	return err
}

// Recent returns up to limit records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]domain.TaskRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, command, status, exit_code, error, started_at, ended_at FROM tasks ORDER BY started_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TaskRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep records and reports how many went.
func (s *SQLiteStore) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM tasks WHERE id NOT IN (SELECT id FROM tasks ORDER BY started_at DESC, id DESC LIMIT ?)", keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanRecord(rows *sql.Rows) (domain.TaskRecord, error) {
	var (
		rec                domain.TaskRecord
		cmdStr, status, st string
		exitCode           sql.NullInt64
		ended              sql.NullString
	)
	if err := rows.Scan(&rec.ID, &rec.Name, &cmdStr, &status, &exitCode, &rec.Error, &st, &ended); err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(cmdStr), &rec.Command); err != nil {
		return rec, fmt.Errorf("unmarshal task command: %w", err)
	}
	rec.Status = domain.TaskStatus(status)
	if exitCode.Valid {
		code := int(exitCode.Int64)
		rec.ExitCode = &code
	}
	rec.StartedAt, _ = time.Parse(timeLayout, st)
	if ended.Valid {
		t, _ := time.Parse(timeLayout, ended.String)
		rec.EndedAt = &t
	}
	return rec, nil
}

// Pruner is implemented by histories that can drop old records.
type Pruner interface {
	Prune(ctx context.Context, keep int) (int64, error)
}

// Attach records every task.completed event in h. When retain is positive and
// h is a Pruner, only the newest retain records are kept after each write.
// It returns an unsubscribe function.
func Attach(bus domain.EventBus, h domain.TaskHistory, retain int, logger *slog.Logger) func() {
	return bus.Subscribe(domain.EventTaskCompleted, func(ctx context.Context, ev domain.Event) {
		var p domain.TaskEventPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			logger.Warn("bad task event payload", "error", err)
			return
		}
		ended := ev.Timestamp
		rec := domain.TaskRecord{
			ID:        p.ID,
			Name:      p.Name,
			Command:   p.Command,
			Status:    p.Status,
			ExitCode:  p.ExitCode,
			Error:     p.Error,
			StartedAt: ended.Add(-time.Duration(p.DurationMs) * time.Millisecond),
			EndedAt:   &ended,
		}
		if err := h.Record(ctx, rec); err != nil {
			logger.Warn("task history write failed", "task", p.Name, "error", err)
			return
		}
		pr, ok := h.(Pruner)
		if !ok || retain <= 0 {
			return
		}
		if n, err := pr.Prune(ctx, retain); err != nil {
			logger.Warn("task history prune failed", "error", err)
		} else if n > 0 {
			logger.Debug("task history pruned", "removed", n)
		}
	})
}

var (
	_ domain.TaskHistory = (*SQLiteStore)(nil)
	_ Pruner             = (*SQLiteStore)(nil)
)
