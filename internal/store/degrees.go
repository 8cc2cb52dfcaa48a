package store

import (
	"database/sql"
	"fmt"

	"unitrack/internal/logging"
	"unitrack/internal/progress"
)

// AddDegree inserts a degree program. Type and name together must be unique.
func (s *Store) AddDegree(d *progress.Degree) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.Name == "" || d.Type == "" {
		return fmt.Errorf("degree type and name must not be empty")
	}
	if d.Scheme == "" {
		d.Scheme = "german"
	}
	if _, err := getScheme(s.db, d.Scheme); err != nil {
		return err
	}

	res, err := s.db.Exec(
		`INSERT INTO degrees (degree_type, name, institution, scheme, total_ects_required)
		 VALUES (?, ?, ?, ?, ?)`,
		d.Type, d.Name, d.Institution, d.Scheme, d.TotalECTSRequired,
	)
	if err != nil {
		return fmt.Errorf("failed to insert degree %s: %w", d.Name, err)
	}
	d.ID, _ = res.LastInsertId()
	logging.Store("Added degree %s %s", d.Type, d.Name)
	return nil
}

func getDegree(q queryer, name string) (*progress.Degree, error) {
	var d progress.Degree
	err := q.QueryRow(
		`SELECT id, degree_type, name, institution, scheme, total_ects_required
		 FROM degrees WHERE name = ?`, name,
	).Scan(&d.ID, &d.Type, &d.Name, &d.Institution, &d.Scheme, &d.TotalECTSRequired)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "degree", Key: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load degree %s: %w", name, err)
	}
	return &d, nil
}

// GetDegree loads one degree by name.
func (s *Store) GetDegree(name string) (*progress.Degree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getDegree(s.db, name)
}

// ListDegrees returns all active degrees.
func (s *Store) ListDegrees() ([]progress.Degree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, degree_type, name, institution, scheme, total_ects_required
		 FROM degrees WHERE is_active = 1 ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list degrees: %w", err)
	}
	defer rows.Close()

	var out []progress.Degree
	for rows.Next() {
		var d progress.Degree
		if err := rows.Scan(&d.ID, &d.Type, &d.Name, &d.Institution, &d.Scheme, &d.TotalECTSRequired); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AddArea adds a requirement area to a degree.
func (s *Store) AddArea(degreeName string, a *progress.Area) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.Name == "" {
		return fmt.Errorf("area name must not be empty")
	}
	if a.RequiredECTS < 0 {
		return fmt.Errorf("required ECTS must not be negative")
	}

	d, err := getDegree(s.db, degreeName)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`INSERT INTO degree_areas (degree_id, name, required_ects, counts_towards_gpa, display_order)
		 VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(display_order), 0) + 1 FROM degree_areas WHERE degree_id = ?))`,
		d.ID, a.Name, a.RequiredECTS, a.CountsTowardsGPA, d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert area %s: %w", a.Name, err)
	}
	a.ID, _ = res.LastInsertId()
	a.DegreeID = d.ID
	logging.Store("Added area %s to degree %s (%d ECTS, gpa=%v)", a.Name, degreeName, a.RequiredECTS, a.CountsTowardsGPA)
	return nil
}

func getArea(q queryer, degreeID int64, name string) (*progress.Area, error) {
	var a progress.Area
	var counts int
	err := q.QueryRow(
		`SELECT id, degree_id, name, required_ects, counts_towards_gpa
		 FROM degree_areas WHERE degree_id = ? AND name = ?`, degreeID, name,
	).Scan(&a.ID, &a.DegreeID, &a.Name, &a.RequiredECTS, &counts)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "area", Key: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load area %s: %w", name, err)
	}
	a.CountsTowardsGPA = counts != 0
	return &a, nil
}

// ListAreas returns a degree's areas in display order.
func (s *Store) ListAreas(degreeName string) ([]progress.Area, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, err := getDegree(s.db, degreeName)
	if err != nil {
		return nil, err
	}
	return listAreas(s.db, d.ID)
}

func listAreas(q queryer, degreeID int64) ([]progress.Area, error) {
	rows, err := q.Query(
		`SELECT id, degree_id, name, required_ects, counts_towards_gpa
		 FROM degree_areas WHERE degree_id = ? ORDER BY display_order, id`, degreeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list areas: %w", err)
	}
	defer rows.Close()

	var out []progress.Area
	for rows.Next() {
		var a progress.Area
		var counts int
		if err := rows.Scan(&a.ID, &a.DegreeID, &a.Name, &a.RequiredECTS, &counts); err != nil {
			return nil, err
		}
		a.CountsTowardsGPA = counts != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// AddEligibility records that a course may count toward an area of a degree.
// Eligibility is advisory; it does not affect progress until a mapping
// commits the course to one area.
func (s *Store) AddEligibility(courseShort, degreeName, areaName string, recommended bool, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := getCourse(s.db, courseShort)
	if err != nil {
		return err
	}
	d, err := getDegree(s.db, degreeName)
	if err != nil {
		return err
	}
	a, err := getArea(s.db, d.ID, areaName)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT INTO course_possible_categories (course_id, degree_id, area_id, is_recommended, notes)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(course_id, degree_id, area_id) DO UPDATE SET
		   is_recommended = excluded.is_recommended,
		   notes = excluded.notes`,
		c.ID, d.ID, a.ID, recommended, notes,
	)
	if err != nil {
		return fmt.Errorf("failed to save eligibility: %w", err)
	}
	return nil
}

// RemoveEligibility deletes an eligibility entry. It fails while a committed
// mapping still relies on it.
func (s *Store) RemoveEligibility(courseShort, degreeName, areaName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	c, err := getCourse(tx, courseShort)
	if err != nil {
		return err
	}
	d, err := getDegree(tx, degreeName)
	if err != nil {
		return err
	}
	a, err := getArea(tx, d.ID, areaName)
	if err != nil {
		return err
	}

	var mapped int
	err = tx.QueryRow(
		"SELECT COUNT(*) FROM course_degree_mappings WHERE course_id = ? AND degree_id = ? AND area_id = ?",
		c.ID, d.ID, a.ID,
	).Scan(&mapped)
	if err != nil {
		return err
	}
	if mapped > 0 {
		return fmt.Errorf("course %s is mapped into %s/%s; remove the mapping first", courseShort, degreeName, areaName)
	}

	res, err := tx.Exec(
		"DELETE FROM course_possible_categories WHERE course_id = ? AND degree_id = ? AND area_id = ?",
		c.ID, d.ID, a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete eligibility: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Kind: "eligibility", Key: fmt.Sprintf("%s/%s/%s", courseShort, degreeName, areaName)}
	}
	return tx.Commit()
}

// MapCourse commits a course to one area of a degree. The target must be
// among the course's recorded eligible areas for that degree, and a course
// holds at most one mapping per degree; remapping replaces the old area.
func (s *Store) MapCourse(courseShort, degreeName, areaName string, ectsOverride *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	c, err := getCourse(tx, courseShort)
	if err != nil {
		return err
	}
	d, err := getDegree(tx, degreeName)
	if err != nil {
		return err
	}
	a, err := getArea(tx, d.ID, areaName)
	if err != nil {
		return err
	}
	if ectsOverride != nil && *ectsOverride < 0 {
		return fmt.Errorf("ECTS override must not be negative")
	}

	var eligible int
	err = tx.QueryRow(
		"SELECT COUNT(*) FROM course_possible_categories WHERE course_id = ? AND degree_id = ? AND area_id = ?",
		c.ID, d.ID, a.ID,
	).Scan(&eligible)
	if err != nil {
		return err
	}
	if eligible == 0 {
		return fmt.Errorf("course %s is not eligible for %s/%s; record the eligibility first", courseShort, degreeName, areaName)
	}

	_, err = tx.Exec(
		`INSERT INTO course_degree_mappings (course_id, degree_id, area_id, ects_override)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(course_id, degree_id) DO UPDATE SET
		   area_id = excluded.area_id,
		   ects_override = excluded.ects_override`,
		c.ID, d.ID, a.ID, ectsOverride,
	)
	if err != nil {
		return fmt.Errorf("failed to save mapping: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logging.Store("Mapped %s into %s/%s", courseShort, degreeName, areaName)
	return nil
}

// UnmapCourse removes a course's mapping for one degree.
func (s *Store) UnmapCourse(courseShort, degreeName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := getCourse(s.db, courseShort)
	if err != nil {
		return err
	}
	d, err := getDegree(s.db, degreeName)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		"DELETE FROM course_degree_mappings WHERE course_id = ? AND degree_id = ?", c.ID, d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Kind: "mapping", Key: fmt.Sprintf("%s/%s", courseShort, degreeName)}
	}
	return nil
}

// DeleteDegree removes a degree, its areas, mappings, and eligibility rows.
func (s *Store) DeleteDegree(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := getDegree(s.db, name)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec("DELETE FROM degrees WHERE id = ?", d.ID); err != nil {
		return fmt.Errorf("failed to delete degree %s: %w", name, err)
	}
	logging.Store("Deleted degree %s", name)
	return nil
}
