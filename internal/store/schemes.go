package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"unitrack/internal/logging"
	"unitrack/internal/scheme"
)

// SeedBuiltinSchemes inserts the built-in grading schemes if they are not
// already present. User-defined schemes with the same names are never
// overwritten.
func (s *Store) SeedBuiltinSchemes() error {
	for _, b := range scheme.Builtins() {
		scale, err := json.Marshal(b.Scale)
		if err != nil {
			return fmt.Errorf("failed to encode scale for %s: %w", b.Name, err)
		}
		_, err = s.db.Exec(
			`INSERT OR IGNORE INTO grading_schemes (name, direction, scale, pass_threshold, is_builtin)
			 VALUES (?, ?, ?, ?, 1)`,
			b.Name, string(b.Direction), string(scale), b.PassThreshold,
		)
		if err != nil {
			return fmt.Errorf("failed to seed scheme %s: %w", b.Name, err)
		}
	}
	return nil
}

// SaveScheme validates and stores a user-defined grading scheme.
// An existing scheme with the same name is replaced.
func (s *Store) SaveScheme(sch *scheme.Scheme) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := sch.Validate(); err != nil {
		return err
	}
	scale, err := json.Marshal(sch.Scale)
	if err != nil {
		return fmt.Errorf("failed to encode scale: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO grading_schemes (name, direction, scale, pass_threshold, is_builtin)
		 VALUES (?, ?, ?, ?, 0)
		 ON CONFLICT(name) DO UPDATE SET
		   direction = excluded.direction,
		   scale = excluded.scale,
		   pass_threshold = excluded.pass_threshold`,
		sch.Name, string(sch.Direction), string(scale), sch.PassThreshold,
	)
	if err != nil {
		return fmt.Errorf("failed to save scheme: %w", err)
	}
	logging.Store("Saved grading scheme %s", sch.Name)
	return nil
}

// GetScheme loads one grading scheme by name.
func (s *Store) GetScheme(name string) (*scheme.Scheme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getScheme(s.db, name)
}

type queryer interface {
	QueryRow(query string, args ...interface{}) *sql.Row
	Query(query string, args ...interface{}) (*sql.Rows, error)
}

func getScheme(q queryer, name string) (*scheme.Scheme, error) {
	var direction, scaleJSON string
	var threshold float64
	err := q.QueryRow(
		"SELECT direction, scale, pass_threshold FROM grading_schemes WHERE name = ?", name,
	).Scan(&direction, &scaleJSON, &threshold)
	if err == sql.ErrNoRows {
		return nil, &scheme.UnknownSchemeError{Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load scheme %s: %w", name, err)
	}

	dir, err := scheme.ParseDirection(direction)
	if err != nil {
		return nil, &IntegrityError{Table: "grading_schemes", Detail: fmt.Sprintf("scheme %s: %v", name, err)}
	}
	var scale []float64
	if err := json.Unmarshal([]byte(scaleJSON), &scale); err != nil {
		return nil, &IntegrityError{Table: "grading_schemes", Detail: fmt.Sprintf("scheme %s has malformed scale", name)}
	}
	return &scheme.Scheme{Name: name, Direction: dir, Scale: scale, PassThreshold: threshold}, nil
}

// SchemeInfo is a scheme row with its origin flag, for listings.
type SchemeInfo struct {
	Scheme  *scheme.Scheme
	Builtin bool
}

// ListSchemes returns all stored schemes ordered by name.
func (s *Store) ListSchemes() ([]SchemeInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT name, direction, scale, pass_threshold, is_builtin FROM grading_schemes ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemes: %w", err)
	}
	defer rows.Close()

	var out []SchemeInfo
	for rows.Next() {
		var name, direction, scaleJSON string
		var threshold float64
		var builtin int
		if err := rows.Scan(&name, &direction, &scaleJSON, &threshold, &builtin); err != nil {
			return nil, err
		}
		dir, err := scheme.ParseDirection(direction)
		if err != nil {
			return nil, &IntegrityError{Table: "grading_schemes", Detail: fmt.Sprintf("scheme %s: %v", name, err)}
		}
		var scale []float64
		if err := json.Unmarshal([]byte(scaleJSON), &scale); err != nil {
			return nil, &IntegrityError{Table: "grading_schemes", Detail: fmt.Sprintf("scheme %s has malformed scale", name)}
		}
		out = append(out, SchemeInfo{
			Scheme:  &scheme.Scheme{Name: name, Direction: dir, Scale: scale, PassThreshold: threshold},
			Builtin: builtin != 0,
		})
	}
	return out, rows.Err()
}

// DeleteScheme removes a user-defined scheme. Built-in schemes and schemes
// still referenced by a course or conversion table cannot be deleted.
func (s *Store) DeleteScheme(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var builtin int
	err = tx.QueryRow("SELECT is_builtin FROM grading_schemes WHERE name = ?", name).Scan(&builtin)
	if err == sql.ErrNoRows {
		return &scheme.UnknownSchemeError{Name: name}
	}
	if err != nil {
		return err
	}
	if builtin != 0 {
		return fmt.Errorf("cannot delete built-in scheme %s", name)
	}

	var refs int
	if err := tx.QueryRow("SELECT COUNT(*) FROM courses WHERE scheme = ?", name).Scan(&refs); err != nil {
		return err
	}
	if refs > 0 {
		return fmt.Errorf("scheme %s is used by %d course(s)", name, refs)
	}

	if _, err := tx.Exec("DELETE FROM grade_conversions WHERE from_scheme = ? OR to_scheme = ?", name, name); err != nil {
		return fmt.Errorf("failed to delete conversions for %s: %w", name, err)
	}
	if _, err := tx.Exec("DELETE FROM grading_schemes WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to delete scheme %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logging.Store("Deleted grading scheme %s", name)
	return nil
}

// AddConversion stores one conversion table entry after validating it against
// the stored schemes. An existing entry for the same source value is replaced.
func (s *Store) AddConversion(e scheme.ConversionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, err := getScheme(s.db, e.FromScheme)
	if err != nil {
		return err
	}
	to, err := getScheme(s.db, e.ToScheme)
	if err != nil {
		return err
	}
	if !from.InBounds(e.FromValue) {
		return fmt.Errorf("value %.3f is outside scheme %s", e.FromValue, e.FromScheme)
	}
	if !to.InBounds(e.ToValue) {
		return fmt.Errorf("value %.3f is outside scheme %s", e.ToValue, e.ToScheme)
	}

	_, err = s.db.Exec(
		`INSERT INTO grade_conversions (from_scheme, to_scheme, from_value, to_value)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(from_scheme, to_scheme, from_value) DO UPDATE SET to_value = excluded.to_value`,
		e.FromScheme, e.ToScheme, e.FromValue, e.ToValue,
	)
	if err != nil {
		return fmt.Errorf("failed to save conversion: %w", err)
	}
	return nil
}

// Conversions returns the stored conversion table for a scheme pair, ordered
// by source value.
func (s *Store) Conversions(fromScheme, toScheme string) ([]scheme.ConversionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT from_value, to_value FROM grade_conversions
		 WHERE from_scheme = ? AND to_scheme = ? ORDER BY from_value`,
		fromScheme, toScheme,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversions: %w", err)
	}
	defer rows.Close()

	var out []scheme.ConversionEntry
	for rows.Next() {
		e := scheme.ConversionEntry{FromScheme: fromScheme, ToScheme: toScheme}
		if err := rows.Scan(&e.FromValue, &e.ToValue); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Registry builds an in-memory scheme registry from everything stored:
// all schemes plus all conversion entries. Conversion and aggregation go
// through this registry so they see one consistent view.
func (s *Store) Registry() (*scheme.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadRegistry(s.db)
}

func loadRegistry(q queryer) (*scheme.Registry, error) {
	reg := scheme.NewRegistry()

	rows, err := q.Query("SELECT name, direction, scale, pass_threshold FROM grading_schemes")
	if err != nil {
		return nil, fmt.Errorf("failed to load schemes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, direction, scaleJSON string
		var threshold float64
		if err := rows.Scan(&name, &direction, &scaleJSON, &threshold); err != nil {
			return nil, err
		}
		dir, err := scheme.ParseDirection(direction)
		if err != nil {
			return nil, &IntegrityError{Table: "grading_schemes", Detail: fmt.Sprintf("scheme %s: %v", name, err)}
		}
		var scale []float64
		if err := json.Unmarshal([]byte(scaleJSON), &scale); err != nil {
			return nil, &IntegrityError{Table: "grading_schemes", Detail: fmt.Sprintf("scheme %s has malformed scale", name)}
		}
		if err := reg.Register(&scheme.Scheme{Name: name, Direction: dir, Scale: scale, PassThreshold: threshold}); err != nil {
			return nil, &IntegrityError{Table: "grading_schemes", Detail: err.Error()}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	crows, err := q.Query("SELECT from_scheme, to_scheme, from_value, to_value FROM grade_conversions")
	if err != nil {
		return nil, fmt.Errorf("failed to load conversions: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var e scheme.ConversionEntry
		if err := crows.Scan(&e.FromScheme, &e.ToScheme, &e.FromValue, &e.ToValue); err != nil {
			return nil, err
		}
		if err := reg.AddConversion(e); err != nil {
			return nil, &IntegrityError{Table: "grade_conversions", Detail: err.Error()}
		}
	}
	return reg, crows.Err()
}
