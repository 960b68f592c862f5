package embedding

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type Kind string

const (
	KindTask   Kind = "task"
	KindTriage Kind = "triage"
)

// Record is one embedded task or triage task.
type Record struct {
	ProjectID   string
	TaskID      string
	Kind        Kind
	Title       string
	Assignees   []string
	Vector      []float32
	Engine      string
	ContentHash string
	UpdatedAt   time.Time
}

// Query selects index candidates. Kinds empty means every kind.
type Query struct {
	ProjectID string
	Engine    string
	Assignee  string
	Kinds     []Kind
}

var openDB = sql.Open

// SQLiteIndex persists vectors in SQLite. Similarity is computed in Go over
// the project's rows.
type SQLiteIndex struct {
	db *sql.DB
}

// OpenSQLiteIndex opens (or creates) the index at path. Use ":memory:" for an
// ephemeral index.
func OpenSQLiteIndex(path string) (*SQLiteIndex, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}
	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding index: %w", err)
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	idx := &SQLiteIndex{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (s *SQLiteIndex) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS task_embeddings (
	project_id   TEXT NOT NULL,
	task_id      TEXT NOT NULL,
	kind         TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	assignees    TEXT NOT NULL DEFAULT '[]',
	vector       TEXT NOT NULL,
	engine       TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	updated_at   TEXT NOT NULL,
	PRIMARY KEY (project_id, task_id)
);
CREATE INDEX IF NOT EXISTS idx_task_embeddings_project ON task_embeddings(project_id, engine);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate embedding index: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

func (s *SQLiteIndex) Upsert(ctx context.Context, r Record) error {
	assignees, err := json.Marshal(nonNil(r.Assignees))
	if err != nil {
		return fmt.Errorf("failed to encode assignees: %w", err)
	}
	vector, err := json.Marshal(r.Vector)
	if err != nil {
		return fmt.Errorf("failed to encode vector: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO task_embeddings (project_id, task_id, kind, title, assignees, vector, engine, content_hash, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (project_id, task_id) DO UPDATE SET
	kind = excluded.kind,
	title = excluded.title,
	assignees = excluded.assignees,
	vector = excluded.vector,
	engine = excluded.engine,
	content_hash = excluded.content_hash,
	updated_at = excluded.updated_at`,
		r.ProjectID, r.TaskID, string(r.Kind), r.Title, string(assignees), string(vector),
		r.Engine, r.ContentHash, r.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to upsert embedding of %s: %w", r.TaskID, err)
	}
	return nil
}

// Fingerprint returns the engine and content hash stored for a task, or
// empty strings when it has not been indexed.
func (s *SQLiteIndex) Fingerprint(ctx context.Context, projectID, taskID string) (engine, contentHash string, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT engine, content_hash FROM task_embeddings WHERE project_id = ? AND task_id = ?`,
		projectID, taskID).Scan(&engine, &contentHash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to read fingerprint of %s: %w", taskID, err)
	}
	return engine, contentHash, nil
}

func (s *SQLiteIndex) Delete(ctx context.Context, projectID, taskID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM task_embeddings WHERE project_id = ? AND task_id = ?`, projectID, taskID); err != nil {
		return fmt.Errorf("failed to delete embedding of %s: %w", taskID, err)
	}
	return nil
}

func (s *SQLiteIndex) Candidates(ctx context.Context, q Query) ([]Record, error) {
	query := `SELECT task_id, kind, title, assignees, vector, engine, content_hash, updated_at
FROM task_embeddings WHERE project_id = ? AND engine = ?`
	args := []any{q.ProjectID, q.Engine}
	if q.Assignee != "" {
		query += ` AND EXISTS (SELECT 1 FROM json_each(task_embeddings.assignees) WHERE json_each.value = ?)`
		args = append(args, q.Assignee)
	}
	if len(q.Kinds) > 0 {
		query += ` AND kind IN (?` + strings.Repeat(",?", len(q.Kinds)-1) + `)`
		for _, k := range q.Kinds {
			args = append(args, string(k))
		}
	}
	query += ` ORDER BY task_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                    Record
			kind, assignees, vec string
			updatedAt            string
		)
		if err := rows.Scan(&r.TaskID, &kind, &r.Title, &assignees, &vec, &r.Engine, &r.ContentHash, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		r.ProjectID = q.ProjectID
		r.Kind = Kind(kind)
		if err := json.Unmarshal([]byte(assignees), &r.Assignees); err != nil {
			return nil, fmt.Errorf("failed to decode assignees of %s: %w", r.TaskID, err)
		}
		if err := json.Unmarshal([]byte(vec), &r.Vector); err != nil {
			return nil, fmt.Errorf("failed to decode vector of %s: %w", r.TaskID, err)
		}
		r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
