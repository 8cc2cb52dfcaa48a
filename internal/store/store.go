// Package store persists schemes, courses, grades, exam attempts, and degree
// structure in a single SQLite database. All multi-row mutations run inside
// one transaction so derived state (final grades, active attempts) never
// drifts from the inputs it was computed from.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"unitrack/internal/exam"
	"unitrack/internal/logging"
)

// Store is the SQLite-backed record store.
type Store struct {
	db       *sql.DB
	mu       sync.RWMutex
	dbPath   string
	policies exam.PolicySource
}

// IntegrityError reports stored data that violates a relationship the engine
// relies on, such as a grade referencing a scheme that no longer exists.
type IntegrityError struct {
	Table  string
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("data integrity violation in %s: %s", e.Table, e.Detail)
}

// NotFoundError reports a lookup by name or id that matched nothing.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

// Open initializes the SQLite database at the given path. policies supplies
// the institution-level exam policy layer; per-course overrides stored in the
// database are applied on top of it.
func Open(path string, policies exam.PolicySource) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	logging.Store("Opening store at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// NORMAL is safe under WAL and much faster than FULL
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable foreign keys: %v", err)
	}

	s := &Store{db: db, dbPath: path, policies: policies}
	if err := s.initialize(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.SeedBuiltinSchemes(); err != nil {
		db.Close()
		return nil, err
	}
	logging.StoreDebug("Store initialized")

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	logging.StoreDebug("Closing store at %s", s.dbPath)
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// initialize creates all tables and indexes if missing.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS grading_schemes (
		name TEXT PRIMARY KEY,
		direction TEXT NOT NULL,
		scale TEXT NOT NULL,
		pass_threshold REAL NOT NULL,
		is_builtin INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS grade_conversions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_scheme TEXT NOT NULL REFERENCES grading_schemes(name),
		to_scheme TEXT NOT NULL REFERENCES grading_schemes(name),
		from_value REAL NOT NULL,
		to_value REAL NOT NULL,
		UNIQUE(from_scheme, to_scheme, from_value)
	);

	CREATE TABLE IF NOT EXISTS degrees (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		degree_type TEXT NOT NULL,
		name TEXT NOT NULL,
		institution TEXT NOT NULL DEFAULT '',
		scheme TEXT NOT NULL DEFAULT 'german',
		total_ects_required INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(degree_type, name)
	);

	CREATE TABLE IF NOT EXISTS degree_areas (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		degree_id INTEGER NOT NULL REFERENCES degrees(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		required_ects INTEGER NOT NULL DEFAULT 0,
		counts_towards_gpa INTEGER NOT NULL DEFAULT 1,
		display_order INTEGER NOT NULL DEFAULT 0,
		UNIQUE(degree_id, name)
	);

	CREATE TABLE IF NOT EXISTS courses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		short_name TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		ects INTEGER NOT NULL DEFAULT 0,
		institution TEXT NOT NULL DEFAULT '',
		scheme TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'enrolled',
		is_external INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS course_possible_categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		degree_id INTEGER NOT NULL REFERENCES degrees(id) ON DELETE CASCADE,
		area_id INTEGER NOT NULL REFERENCES degree_areas(id) ON DELETE CASCADE,
		is_recommended INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		UNIQUE(course_id, degree_id, area_id)
	);

	CREATE TABLE IF NOT EXISTS course_degree_mappings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		degree_id INTEGER NOT NULL REFERENCES degrees(id) ON DELETE CASCADE,
		area_id INTEGER NOT NULL REFERENCES degree_areas(id) ON DELETE CASCADE,
		ects_override INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(course_id, degree_id)
	);

	CREATE TABLE IF NOT EXISTS grade_components (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 0,
		is_bonus INTEGER NOT NULL DEFAULT 0,
		grade REAL,
		points_earned REAL,
		points_total REAL,
		is_completed INTEGER NOT NULL DEFAULT 0,
		UNIQUE(course_id, name)
	);

	CREATE TABLE IF NOT EXISTS bonus_configs (
		course_id INTEGER PRIMARY KEY REFERENCES courses(id) ON DELETE CASCADE,
		max_points REAL NOT NULL,
		max_bonus_percent REAL NOT NULL,
		func_kind TEXT NOT NULL DEFAULT 'linear',
		threshold_steps TEXT NOT NULL DEFAULT '[]',
		timing TEXT NOT NULL DEFAULT 'before-pass',
		grade_cap REAL
	);

	CREATE TABLE IF NOT EXISTS final_grades (
		course_id INTEGER PRIMARY KEY REFERENCES courses(id) ON DELETE CASCADE,
		grade REAL,
		scheme TEXT NOT NULL,
		passed INTEGER NOT NULL DEFAULT 0,
		pending INTEGER NOT NULL DEFAULT 1,
		computed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS exam_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		attempt_number INTEGER NOT NULL,
		exam_date DATETIME NOT NULL,
		grade REAL NOT NULL,
		passed INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(course_id, attempt_number)
	);

	CREATE TABLE IF NOT EXISTS attempt_state (
		course_id INTEGER PRIMARY KEY REFERENCES courses(id) ON DELETE CASCADE,
		active_number INTEGER NOT NULL DEFAULT 0,
		mode TEXT NOT NULL DEFAULT 'policy',
		manual_reason TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS course_policies (
		course_id INTEGER PRIMARY KEY REFERENCES courses(id) ON DELETE CASCADE,
		max_attempts INTEGER,
		strategy TEXT,
		allow_retake_after_pass INTEGER,
		require_grade_for_completion INTEGER,
		warn_on_final_attempt INTEGER
	);

	CREATE TABLE IF NOT EXISTS override_audit (
		id TEXT PRIMARY KEY,
		course_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_conversions_pair ON grade_conversions(from_scheme, to_scheme);
	CREATE INDEX IF NOT EXISTS idx_areas_degree ON degree_areas(degree_id);
	CREATE INDEX IF NOT EXISTS idx_mappings_degree ON course_degree_mappings(degree_id);
	CREATE INDEX IF NOT EXISTS idx_eligibility_course ON course_possible_categories(course_id);
	CREATE INDEX IF NOT EXISTS idx_components_course ON grade_components(course_id);
	CREATE INDEX IF NOT EXISTS idx_attempts_course ON exam_attempts(course_id);
	CREATE INDEX IF NOT EXISTS idx_audit_course ON override_audit(course_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// begin starts a write transaction. Callers defer tx.Rollback() and Commit
// explicitly on success.
func (s *Store) begin() (*sql.Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to start transaction: %v", err)
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}
