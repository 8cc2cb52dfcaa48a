package store

import (
	"database/sql"
	"fmt"
	"time"

	"unitrack/internal/logging"
	"unitrack/internal/progress"
)

// Course is one course record.
type Course struct {
	ID          int64
	ShortName   string
	Name        string
	ECTS        int
	Institution string
	Scheme      string
	Status      string
	IsExternal  bool
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func validStatus(status string) bool {
	switch status {
	case progress.StatusEnrolled, progress.StatusCompleted, progress.StatusDropped, progress.StatusArchived:
		return true
	}
	return false
}

// AddCourse inserts a new course. The short name must be unique and the
// scheme must already be stored.
func (s *Store) AddCourse(c *Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ShortName == "" {
		return fmt.Errorf("course short name must not be empty")
	}
	if c.ECTS < 0 {
		return fmt.Errorf("course ECTS must not be negative")
	}
	if c.Status == "" {
		c.Status = progress.StatusEnrolled
	}
	if !validStatus(c.Status) {
		return fmt.Errorf("invalid course status %q", c.Status)
	}
	if _, err := getScheme(s.db, c.Scheme); err != nil {
		return err
	}

	res, err := s.db.Exec(
		`INSERT INTO courses (short_name, name, ects, institution, scheme, status, is_external, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ShortName, c.Name, c.ECTS, c.Institution, c.Scheme, c.Status, c.IsExternal, c.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert course %s: %w", c.ShortName, err)
	}
	c.ID, _ = res.LastInsertId()
	logging.Store("Added course %s (%d ECTS, scheme %s)", c.ShortName, c.ECTS, c.Scheme)
	return nil
}

func scanCourse(row *sql.Row) (*Course, error) {
	var c Course
	var external int
	err := row.Scan(&c.ID, &c.ShortName, &c.Name, &c.ECTS, &c.Institution, &c.Scheme,
		&c.Status, &external, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.IsExternal = external != 0
	return &c, nil
}

const courseColumns = "id, short_name, name, ects, institution, scheme, status, is_external, notes, created_at, updated_at"

func getCourse(q queryer, shortName string) (*Course, error) {
	c, err := scanCourse(q.QueryRow(
		"SELECT "+courseColumns+" FROM courses WHERE short_name = ?", shortName,
	))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "course", Key: shortName}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load course %s: %w", shortName, err)
	}
	return c, nil
}

func getCourseByID(q queryer, id int64) (*Course, error) {
	c, err := scanCourse(q.QueryRow(
		"SELECT "+courseColumns+" FROM courses WHERE id = ?", id,
	))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "course", Key: fmt.Sprintf("id %d", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load course id %d: %w", id, err)
	}
	return c, nil
}

// GetCourse loads one course by its short name.
func (s *Store) GetCourse(shortName string) (*Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCourse(s.db, shortName)
}

// ListCourses returns courses, optionally filtered by status and institution.
// Empty filter values match everything.
func (s *Store) ListCourses(status, institution string) ([]*Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if status != "" && !validStatus(status) {
		return nil, fmt.Errorf("invalid course status %q", status)
	}

	query := "SELECT " + courseColumns + " FROM courses WHERE 1=1"
	var args []interface{}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	if institution != "" {
		query += " AND institution = ?"
		args = append(args, institution)
	}
	query += " ORDER BY short_name"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	defer rows.Close()

	var out []*Course
	for rows.Next() {
		var c Course
		var external int
		if err := rows.Scan(&c.ID, &c.ShortName, &c.Name, &c.ECTS, &c.Institution, &c.Scheme,
			&c.Status, &external, &c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.IsExternal = external != 0
		out = append(out, &c)
	}
	return out, rows.Err()
}

// UpdateCourse updates the editable fields of a course. Scheme changes are
// rejected while grades exist, because stored grade values are expressed in
// the course's scheme.
func (s *Store) UpdateCourse(c *Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	existing, err := getCourseByID(tx, c.ID)
	if err != nil {
		return err
	}
	if c.Scheme != existing.Scheme {
		if _, err := getScheme(tx, c.Scheme); err != nil {
			return err
		}
		var graded int
		err = tx.QueryRow(
			`SELECT (SELECT COUNT(*) FROM exam_attempts WHERE course_id = ?)
			      + (SELECT COUNT(*) FROM grade_components WHERE course_id = ? AND grade IS NOT NULL)`,
			c.ID, c.ID,
		).Scan(&graded)
		if err != nil {
			return err
		}
		if graded > 0 {
			return fmt.Errorf("cannot change scheme of %s: grades are recorded in %s", existing.ShortName, existing.Scheme)
		}
	}

	_, err = tx.Exec(
		`UPDATE courses SET name = ?, ects = ?, institution = ?, scheme = ?, is_external = ?, notes = ?,
		 updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		c.Name, c.ECTS, c.Institution, c.Scheme, c.IsExternal, c.Notes, c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update course %s: %w", existing.ShortName, err)
	}
	return tx.Commit()
}

// SetCourseStatus transitions a course's lifecycle state. Completing a course
// requires a passing grade when the effective policy demands one; force
// overrides that check and records the override with the given reason.
func (s *Store) SetCourseStatus(shortName, status string, force bool, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validStatus(status) {
		return fmt.Errorf("invalid course status %q", status)
	}

	tx, err := s.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	c, err := getCourse(tx, shortName)
	if err != nil {
		return err
	}

	if status == progress.StatusCompleted {
		pol, err := s.effectivePolicy(tx, c)
		if err != nil {
			return err
		}
		if pol.RequireGradeForCompletion {
			grade, graded, err := effectiveGrade(tx, c.ID)
			if err != nil {
				return err
			}
			if !graded || !grade.Passed {
				if !force {
					return fmt.Errorf("course %s has no passing grade; use --force with a note to complete anyway", shortName)
				}
				if reason == "" {
					return fmt.Errorf("forcing completion of %s requires a note", shortName)
				}
				if err := recordAudit(tx, c.ID, "force-complete", reason); err != nil {
					return err
				}
				logging.PolicyWarn("Course %s completed without passing grade: %s", shortName, reason)
			}
		}
	}

	_, err = tx.Exec(
		"UPDATE courses SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update status of %s: %w", shortName, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logging.Store("Course %s status: %s -> %s", shortName, c.Status, status)
	return nil
}

// DeleteCourse removes a course and everything hanging off it: components,
// bonus config, final grade, attempts, mappings, eligibility, policy rows,
// and the audit trail.
func (s *Store) DeleteCourse(shortName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	c, err := getCourse(tx, shortName)
	if err != nil {
		return err
	}

	// Child tables cascade via foreign keys; the audit table keeps no FK so
	// it is cleared explicitly.
	if _, err := tx.Exec("DELETE FROM override_audit WHERE course_id = ?", c.ID); err != nil {
		return fmt.Errorf("failed to delete audit rows for %s: %w", shortName, err)
	}
	if _, err := tx.Exec("DELETE FROM courses WHERE id = ?", c.ID); err != nil {
		return fmt.Errorf("failed to delete course %s: %w", shortName, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logging.Store("Deleted course %s", shortName)
	return nil
}
