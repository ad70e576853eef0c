package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/stemsi/examcli/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the durable client-local state: the credential pair that survives
// restarts, and a cache of graded results so attempt history can be browsed
// offline. In-progress attempt state is deliberately NOT persisted — a crash
// or restart during an attempt loses unsaved answers.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
	attempt_id TEXT PRIMARY KEY,
	exam_title TEXT NOT NULL,
	payload    TEXT NOT NULL,
	graded_at  TEXT NOT NULL
);`

// Open creates (if needed) and opens the state database under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "examcli.db"))
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Credentials ────────────────────────────────────────────────────────────

// SaveCredentials upserts the single credential row.
func (s *Store) SaveCredentials(access, refresh string) error {
	_, err := s.db.Exec(`
		INSERT INTO credentials (id, access_token, refresh_token, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at`,
		access, refresh, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// LoadCredentials returns the stored pair, or ErrNotFound if never logged in.
func (s *Store) LoadCredentials() (access, refresh string, err error) {
	row := s.db.QueryRow(`SELECT access_token, refresh_token FROM credentials WHERE id = 1`)
	if err := row.Scan(&access, &refresh); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", ErrNotFound
		}
		return "", "", fmt.Errorf("load credentials: %w", err)
	}
	return access, refresh, nil
}

// ClearCredentials removes the stored pair (logout teardown).
func (s *Store) ClearCredentials() error {
	if _, err := s.db.Exec(`DELETE FROM credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// ─── Result cache ───────────────────────────────────────────────────────────

// SaveResult caches a graded result keyed by attempt id.
func (s *Store) SaveResult(result *model.AttemptResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO results (attempt_id, exam_title, payload, graded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (attempt_id) DO UPDATE SET
			exam_title = excluded.exam_title,
			payload = excluded.payload,
			graded_at = excluded.graded_at`,
		result.AttemptID, result.ExamTitle, string(payload),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// LoadResult returns a cached result, or ErrNotFound.
func (s *Store) LoadResult(attemptID string) (*model.AttemptResult, error) {
	var payload string
	row := s.db.QueryRow(`SELECT payload FROM results WHERE attempt_id = ?`, attemptID)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load result: %w", err)
	}

	var result model.AttemptResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &result, nil
}

// ListResults returns all cached results, most recently graded first.
func (s *Store) ListResults() ([]model.AttemptResult, error) {
	rows, err := s.db.Query(`SELECT payload FROM results ORDER BY graded_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []model.AttemptResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		var result model.AttemptResult
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}
