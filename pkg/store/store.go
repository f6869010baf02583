package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a commit record does not exist
var ErrNotFound = errors.New("record not found")

// ErrNotUndoable is returned when a commit was already undone
var ErrNotUndoable = errors.New("commit is not undoable")

// TurnRecord is one persisted conversation turn
type TurnRecord struct {
	ID           string
	Repo         string
	Role         string
	Content      string
	ChangedPaths []string
	CreatedAt    time.Time
}

// CommitRecord is the metadata kept for a committed change, enough to undo
// it later
type CommitRecord struct {
	SHA          string
	Repo         string
	Message      string
	ChangedPaths []string
	Undoable     bool
	CreatedAt    time.Time
}

// Store wraps the SQLite database holding conversation history and commit
// records
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at the given path
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// init creates the database schema
func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversation_turns (
		id TEXT PRIMARY KEY,
		repo TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		changed_paths TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_turns_repo ON conversation_turns(repo, created_at);

	CREATE TABLE IF NOT EXISTS commit_records (
		sha TEXT PRIMARY KEY,
		repo TEXT NOT NULL,
		message TEXT NOT NULL,
		changed_paths TEXT NOT NULL,
		undoable INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_commits_repo ON commit_records(repo, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendTurn stores one conversation turn
func (s *Store) AppendTurn(repo, role, content string, changedPaths []string) error {
	if changedPaths == nil {
		changedPaths = []string{}
	}
	paths, err := json.Marshal(changedPaths)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO conversation_turns (id, repo, role, content, changed_paths, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), repo, role, content, string(paths), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// RecentTurns returns up to n most recent turns for a repository, oldest
// first
func (s *Store) RecentTurns(repo string, n int) ([]TurnRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, repo, role, content, changed_paths, created_at
		FROM conversation_turns
		WHERE repo = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, repo, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load turns: %w", err)
	}
	defer rows.Close()

	var turns []TurnRecord
	for rows.Next() {
		var t TurnRecord
		var paths string
		var created int64
		if err := rows.Scan(&t.ID, &t.Repo, &t.Role, &t.Content, &paths, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(paths), &t.ChangedPaths); err != nil {
			return nil, err
		}
		t.CreatedAt = time.UnixMilli(created)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// SaveCommit stores a commit record with the undoable flag set
func (s *Store) SaveCommit(repo, sha, message string, changedPaths []string) error {
	paths, err := json.Marshal(changedPaths)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO commit_records (sha, repo, message, changed_paths, undoable, created_at)
		VALUES (?, ?, ?, ?, 1, ?)`,
		sha, repo, message, string(paths), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save commit record: %w", err)
	}
	return nil
}

// GetCommit loads a commit record
func (s *Store) GetCommit(repo, sha string) (*CommitRecord, error) {
	var rec CommitRecord
	var paths string
	var undoable int
	var created int64

	err := s.db.QueryRow(`
		SELECT sha, repo, message, changed_paths, undoable, created_at
		FROM commit_records
		WHERE repo = ? AND sha = ?`, repo, sha).
		Scan(&rec.SHA, &rec.Repo, &rec.Message, &paths, &undoable, &created)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load commit record: %w", err)
	}

	if err := json.Unmarshal([]byte(paths), &rec.ChangedPaths); err != nil {
		return nil, err
	}
	rec.Undoable = undoable == 1
	rec.CreatedAt = time.UnixMilli(created)
	return &rec, nil
}

// MarkUndone flips a commit's undoable flag. The flag only moves one way:
// marking an already-undone commit fails.
func (s *Store) MarkUndone(repo, sha string) error {
	res, err := s.db.Exec(`
		UPDATE commit_records SET undoable = 0
		WHERE repo = ? AND sha = ? AND undoable = 1`, repo, sha)
	if err != nil {
		return fmt.Errorf("failed to mark commit undone: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotUndoable
	}
	return nil
}
