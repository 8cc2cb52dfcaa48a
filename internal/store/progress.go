package store

import (
	"database/sql"
	"fmt"

	"unitrack/internal/logging"
	"unitrack/internal/progress"
)

// EffectiveGrade is the grade a course currently counts with.
// Source names where it came from: an exam attempt or the component
// calculator.
type EffectiveGrade struct {
	Value  float64
	Scheme string
	Passed bool
	Source string
}

// effectiveGrade resolves a course's standing grade. The active exam attempt
// wins; without attempts, a computed non-pending component grade counts.
// The boolean is false while the course has no usable grade.
func effectiveGrade(q queryer, courseID int64) (EffectiveGrade, bool, error) {
	st, err := loadAttemptState(q, courseID)
	if err != nil {
		return EffectiveGrade{}, false, err
	}
	if active := st.Active(); active != nil {
		c, err := getCourseByID(q, courseID)
		if err != nil {
			return EffectiveGrade{}, false, err
		}
		return EffectiveGrade{Value: active.Grade, Scheme: c.Scheme, Passed: active.Passed, Source: "attempt"}, true, nil
	}

	fg, ok, err := loadFinalGrade(q, courseID)
	if err != nil {
		return EffectiveGrade{}, false, err
	}
	if !ok || fg.Pending {
		return EffectiveGrade{}, false, nil
	}
	return EffectiveGrade{Value: fg.Value, Scheme: fg.Scheme, Passed: fg.Passed, Source: "components"}, true, nil
}

// CourseGrade returns the effective grade for one course. The boolean is
// false while the grade is still pending or absent.
func (s *Store) CourseGrade(shortName string) (EffectiveGrade, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := getCourse(s.db, shortName)
	if err != nil {
		return EffectiveGrade{}, false, err
	}
	return effectiveGrade(s.db, c.ID)
}

// LoadSnapshot reads everything progress aggregation needs in one
// transaction: degrees, areas, mappings, eligibility, and every course with
// its effective grade resolved.
func (s *Store) LoadSnapshot() (*progress.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	timer := logging.StartTimer(logging.CategoryReport, "LoadSnapshot")
	defer timer.Stop()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	snap := &progress.Snapshot{Courses: make(map[int64]progress.CourseStanding)}

	drows, err := tx.Query(
		"SELECT id, degree_type, name, institution, scheme, total_ects_required FROM degrees WHERE is_active = 1",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load degrees: %w", err)
	}
	for drows.Next() {
		var d progress.Degree
		if err := drows.Scan(&d.ID, &d.Type, &d.Name, &d.Institution, &d.Scheme, &d.TotalECTSRequired); err != nil {
			drows.Close()
			return nil, err
		}
		snap.Degrees = append(snap.Degrees, d)
	}
	if err := drows.Err(); err != nil {
		drows.Close()
		return nil, err
	}
	drows.Close()

	for _, d := range snap.Degrees {
		areas, err := listAreas(tx, d.ID)
		if err != nil {
			return nil, err
		}
		snap.Areas = append(snap.Areas, areas...)
	}

	mrows, err := tx.Query("SELECT course_id, degree_id, area_id, ects_override FROM course_degree_mappings")
	if err != nil {
		return nil, fmt.Errorf("failed to load mappings: %w", err)
	}
	for mrows.Next() {
		var m progress.Mapping
		var override sql.NullInt64
		if err := mrows.Scan(&m.CourseID, &m.DegreeID, &m.AreaID, &override); err != nil {
			mrows.Close()
			return nil, err
		}
		if override.Valid {
			v := int(override.Int64)
			m.ECTSOverride = &v
		}
		snap.Mappings = append(snap.Mappings, m)
	}
	if err := mrows.Err(); err != nil {
		mrows.Close()
		return nil, err
	}
	mrows.Close()

	erows, err := tx.Query("SELECT course_id, degree_id, area_id, is_recommended FROM course_possible_categories")
	if err != nil {
		return nil, fmt.Errorf("failed to load eligibility: %w", err)
	}
	for erows.Next() {
		var e progress.Eligibility
		var rec int
		if err := erows.Scan(&e.CourseID, &e.DegreeID, &e.AreaID, &rec); err != nil {
			erows.Close()
			return nil, err
		}
		e.Recommended = rec != 0
		snap.Eligible = append(snap.Eligible, e)
	}
	if err := erows.Err(); err != nil {
		erows.Close()
		return nil, err
	}
	erows.Close()

	crows, err := tx.Query("SELECT id, short_name, name, ects, scheme, status FROM courses")
	if err != nil {
		return nil, fmt.Errorf("failed to load courses: %w", err)
	}
	var standings []progress.CourseStanding
	for crows.Next() {
		var cs progress.CourseStanding
		if err := crows.Scan(&cs.CourseID, &cs.ShortName, &cs.Name, &cs.ECTS, &cs.Scheme, &cs.Status); err != nil {
			crows.Close()
			return nil, err
		}
		standings = append(standings, cs)
	}
	if err := crows.Err(); err != nil {
		crows.Close()
		return nil, err
	}
	crows.Close()

	for i := range standings {
		eg, ok, err := effectiveGrade(tx, standings[i].CourseID)
		if err != nil {
			return nil, err
		}
		if ok {
			standings[i].Grade = eg.Value
			standings[i].Passed = eg.Passed
			standings[i].Graded = true
		}
		snap.Courses[standings[i].CourseID] = standings[i]
	}

	return snap, tx.Commit()
}

// DegreeProgress computes the degree report: per-area ECTS and GPA, the
// degree GPA, and the per-area shortfall.
func (s *Store) DegreeProgress(degreeName string) (progress.DegreeProgress, error) {
	d, err := s.GetDegree(degreeName)
	if err != nil {
		return progress.DegreeProgress{}, err
	}
	snap, err := s.LoadSnapshot()
	if err != nil {
		return progress.DegreeProgress{}, err
	}
	reg, err := s.Registry()
	if err != nil {
		return progress.DegreeProgress{}, err
	}
	dp, err := snap.DegreeProgressFor(reg, *d)
	if err != nil {
		return progress.DegreeProgress{}, err
	}
	logging.Report("Computed progress for %s: %d ECTS earned", degreeName, dp.EarnedECTS)
	return dp, nil
}

// UnmappedCourses lists courses that are eligible somewhere but committed
// nowhere.
func (s *Store) UnmappedCourses() ([]progress.CourseStanding, error) {
	snap, err := s.LoadSnapshot()
	if err != nil {
		return nil, err
	}
	return snap.Unmapped(), nil
}
