package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/btouchard/beacon/internal/task"
)

const timeFormat = time.RFC3339

var migrations = []string{
	`CREATE TABLE stories (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL
	);
	CREATE TABLE users (
		id           TEXT PRIMARY KEY,
		email        TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL
	);
	CREATE TABLE tasks (
		id           TEXT PRIMARY KEY,
		story_id     TEXT NOT NULL REFERENCES stories(id),
		status       TEXT NOT NULL,
		owner_id     TEXT NOT NULL DEFAULT '',
		claimed_at   TEXT NOT NULL DEFAULT '',
		completed_at TEXT NOT NULL DEFAULT '',
		estimate     INTEGER NOT NULL DEFAULT 0,
		criteria     TEXT NOT NULL DEFAULT '[]',
		created_at   TEXT NOT NULL
	);
	CREATE INDEX idx_tasks_story ON tasks(story_id);
	CREATE INDEX idx_tasks_status ON tasks(status);
	CREATE TABLE events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		type       TEXT NOT NULL,
		task_id    TEXT NOT NULL,
		story_id   TEXT NOT NULL DEFAULT '',
		actor_id   TEXT NOT NULL DEFAULT '',
		payload    TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX idx_events_task ON events(task_id);`,
}

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, zero CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// The database file is created with 0600 permissions and its parent directory with 0700.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}

		// Pre-create the file with restrictive permissions if it doesn't exist
		if _, err := os.Stat(path); os.IsNotExist(err) {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
			if err != nil {
				return nil, fmt.Errorf("creating database file: %w", err)
			}
			_ = f.Close()
		}
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	// Ensure schema_version table exists
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		slog.Info("applying migration", "version", i+1)
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Tasks ---

const taskColumns = "id, story_id, status, owner_id, claimed_at, completed_at, estimate, criteria, created_at"

func (s *SQLiteStore) CreateTask(t *task.Task) error {
	criteria, err := json.Marshal(t.Criteria)
	if err != nil {
		return fmt.Errorf("encoding criteria: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.StoryID, string(t.Status), t.OwnerID,
		formatTime(t.ClaimedAt), formatTime(t.CompletedAt),
		t.Estimate, string(criteria), formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTask(id string) (*task.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, task.ErrNotFound
	}
	return t, err
}

func (s *SQLiteStore) ListTasks(f TaskFilter) ([]task.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE 1=1"
	var args []any

	if f.StoryID != "" {
		query += " AND story_id = ?"
		args = append(args, f.StoryID)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.OwnerID != "" {
		query += " AND owner_id = ?"
		args = append(args, f.OwnerID)
	}

	query += " ORDER BY created_at"

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *SQLiteStore) Transition(id string, op task.Op, userID string, now time.Time) (*task.Task, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	cur, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, task.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	next, err := task.Apply(*cur, op, userID, now)
	if err != nil {
		return nil, err
	}

	// The status guard makes the write conditional on the state the rule
	// check ran against.
	res, err := tx.Exec(`UPDATE tasks SET status = ?, owner_id = ?, claimed_at = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(next.Status), next.OwnerID,
		formatTime(next.ClaimedAt), formatTime(next.CompletedAt),
		id, string(cur.Status))
	if err != nil {
		return nil, fmt.Errorf("updating task: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking update: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("task %s changed concurrently", id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transition: %w", err)
	}

	return &next, nil
}

// --- Stories ---

func (s *SQLiteStore) CreateStory(st *Story) error {
	_, err := s.db.Exec(`INSERT INTO stories (id, title, description, created_at) VALUES (?, ?, ?, ?)`,
		st.ID, st.Title, st.Description, formatTime(st.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting story: %w", err)
	}
	return nil
}

// ErrNoRecord is returned when a story or user lookup finds nothing.
var ErrNoRecord = errors.New("record not found")

func (s *SQLiteStore) GetStory(id string) (*Story, error) {
	var st Story
	var createdAt string
	err := s.db.QueryRow(`SELECT id, title, description, created_at FROM stories WHERE id = ?`, id).
		Scan(&st.ID, &st.Title, &st.Description, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRecord
	}
	if err != nil {
		return nil, fmt.Errorf("scanning story: %w", err)
	}
	st.CreatedAt = parseTime(createdAt)
	return &st, nil
}

// --- Users ---

func (s *SQLiteStore) CreateUser(u *User) error {
	_, err := s.db.Exec(`INSERT INTO users (id, email, display_name, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.DisplayName, formatTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(id string) (*User, error) {
	var u User
	var createdAt string
	err := s.db.QueryRow(`SELECT id, email, display_name, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Email, &u.DisplayName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRecord
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

// --- Events ---

func (s *SQLiteStore) AddEvent(e *EventRecord) error {
	res, err := s.db.Exec(`INSERT INTO events (type, task_id, story_id, actor_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Type, e.TaskID, e.StoryID, e.ActorID, e.Payload, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) GetEvents(taskID string, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`SELECT id, type, task_id, story_id, actor_id, payload, created_at
		FROM events WHERE task_id = ? ORDER BY id DESC LIMIT ?`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Type, &e.TaskID, &e.StoryID, &e.ActorID, &e.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Maintenance ---

func (s *SQLiteStore) Cleanup(olderThan time.Time) error {
	if _, err := s.db.Exec("DELETE FROM events WHERE created_at < ?", formatTime(olderThan)); err != nil {
		return fmt.Errorf("cleaning events: %w", err)
	}
	return nil
}

// --- Helpers ---

type scanFunc func(dest ...any) error

func scanTask(scan scanFunc) (*task.Task, error) {
	var t task.Task
	var status, claimedAt, completedAt, criteria, createdAt string

	err := scan(&t.ID, &t.StoryID, &status, &t.OwnerID,
		&claimedAt, &completedAt, &t.Estimate, &criteria, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning task: %w", err)
	}

	t.Status = task.Status(status)
	t.ClaimedAt = parseTime(claimedAt)
	t.CompletedAt = parseTime(completedAt)
	t.CreatedAt = parseTime(createdAt)

	if err := json.Unmarshal([]byte(criteria), &t.Criteria); err != nil {
		return nil, fmt.Errorf("decoding criteria: %w", err)
	}

	return &t, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeFormat, s)
	return t
}
