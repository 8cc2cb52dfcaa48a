package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"unitrack/internal/grading"
	"unitrack/internal/logging"
)

// AddGradeComponent adds a weighted component to a course. With rebalance,
// existing non-bonus weights are scaled down so the total stays at 100;
// without it, the insert is rejected unless the weights already add up.
// The course's final grade is recomputed in the same transaction.
func (s *Store) AddGradeComponent(shortName, name string, weight float64, isBonus, rebalance bool) error {
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
	comps, err := loadComponents(tx, c.ID)
	if err != nil {
		return err
	}

	for _, existing := range comps {
		if existing.Name == name {
			return fmt.Errorf("component %q already exists", name)
		}
	}

	if isBonus {
		if weight != 0 {
			return fmt.Errorf("bonus components carry no weight")
		}
		comps = append(comps, grading.Component{Name: name, IsBonus: true})
	} else {
		comps, err = grading.AddComponent(comps, name, weight, rebalance)
		if err != nil {
			return err
		}
	}

	if err := saveComponents(tx, c.ID, comps); err != nil {
		return err
	}
	if err := recomputeFinalGrade(tx, c); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logging.Engine("Added component %q (weight %.1f) to %s", name, weight, shortName)
	return nil
}

// SetComponents replaces a course's non-bonus components in one transaction.
// The new weights must sum to exactly 100; on any error nothing changes.
// Bonus components and the bonus rule stay in place, and recorded scores
// carry over for components that keep their name.
func (s *Store) SetComponents(shortName string, defs []grading.Component) error {
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
	existing, err := loadComponents(tx, c.ID)
	if err != nil {
		return err
	}
	comps, err := grading.SetComponents(existing, defs)
	if err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM grade_components WHERE course_id = ? AND is_bonus = 0", c.ID); err != nil {
		return fmt.Errorf("failed to clear components: %w", err)
	}
	if err := saveComponents(tx, c.ID, comps); err != nil {
		return err
	}
	if err := recomputeFinalGrade(tx, c); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logging.Engine("Set %d components on %s", len(defs), shortName)
	return nil
}

// RemoveGradeComponent deletes a component and rescales the remaining
// non-bonus weights back to 100.
func (s *Store) RemoveGradeComponent(shortName, name string) error {
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
	comps, err := loadComponents(tx, c.ID)
	if err != nil {
		return err
	}
	comps, err = grading.RemoveComponent(comps, name)
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM grade_components WHERE course_id = ? AND name = ?", c.ID, name); err != nil {
		return fmt.Errorf("failed to delete component %q: %w", name, err)
	}
	if err := saveComponents(tx, c.ID, comps); err != nil {
		return err
	}
	if err := recomputeFinalGrade(tx, c); err != nil {
		return err
	}
	return tx.Commit()
}

// ScoreComponent records a result for one component, either as a direct grade
// or as points. Passing neither marks the component incomplete again. The
// final grade is recomputed in the same transaction.
func (s *Store) ScoreComponent(shortName, name string, grade, pointsEarned, pointsMax *float64) error {
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
	sch, err := getScheme(tx, c.Scheme)
	if err != nil {
		return err
	}

	var isBonus int
	err = tx.QueryRow(
		"SELECT is_bonus FROM grade_components WHERE course_id = ? AND name = ?", c.ID, name,
	).Scan(&isBonus)
	if err == sql.ErrNoRows {
		return &NotFoundError{Kind: "component", Key: fmt.Sprintf("%s/%s", shortName, name)}
	}
	if err != nil {
		return fmt.Errorf("failed to load component %q: %w", name, err)
	}

	if isBonus != 0 && grade != nil {
		return fmt.Errorf("bonus component %q is scored with points, not a direct grade", name)
	}
	if grade != nil && !sch.InBounds(*grade) {
		return fmt.Errorf("grade %.3f is outside scheme %s", *grade, c.Scheme)
	}
	if (pointsEarned == nil) != (pointsMax == nil) {
		return fmt.Errorf("points require both earned and maximum values")
	}
	if pointsMax != nil && *pointsMax <= 0 {
		return fmt.Errorf("maximum points must be positive")
	}
	if pointsEarned != nil && *pointsEarned < 0 {
		return fmt.Errorf("earned points must not be negative")
	}

	completed := grade != nil || pointsEarned != nil
	_, err = tx.Exec(
		`UPDATE grade_components SET grade = ?, points_earned = ?, points_total = ?, is_completed = ?
		 WHERE course_id = ? AND name = ?`,
		grade, pointsEarned, pointsMax, completed, c.ID, name,
	)
	if err != nil {
		return fmt.Errorf("failed to score component %q: %w", name, err)
	}

	if err := recomputeFinalGrade(tx, c); err != nil {
		return err
	}
	return tx.Commit()
}

// Components returns a course's grade components in insertion order.
func (s *Store) Components(shortName string) ([]grading.Component, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := getCourse(s.db, shortName)
	if err != nil {
		return nil, err
	}
	return loadComponents(s.db, c.ID)
}

// SetBonusConfig stores or replaces a course's bonus configuration and
// recomputes the final grade under it.
func (s *Store) SetBonusConfig(shortName string, cfg *grading.BonusConfig) error {
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

	if cfg == nil {
		if _, err := tx.Exec("DELETE FROM bonus_configs WHERE course_id = ?", c.ID); err != nil {
			return fmt.Errorf("failed to clear bonus config: %w", err)
		}
	} else {
		if cfg.MaxPoints <= 0 {
			return fmt.Errorf("bonus max points must be positive")
		}
		if cfg.MaxBonusPercent < 0 {
			return fmt.Errorf("bonus percent must not be negative")
		}
		var steps []grading.ThresholdStep
		if t, ok := cfg.Func.(grading.Threshold); ok {
			steps = t.Steps
		}
		stepsJSON, err := json.Marshal(steps)
		if err != nil {
			return fmt.Errorf("failed to encode threshold steps: %w", err)
		}
		var gradeCap interface{}
		if cfg.GradeCap != nil {
			gradeCap = *cfg.GradeCap
		}
		_, err = tx.Exec(
			`INSERT INTO bonus_configs (course_id, max_points, max_bonus_percent, func_kind, threshold_steps, timing, grade_cap)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(course_id) DO UPDATE SET
			   max_points = excluded.max_points,
			   max_bonus_percent = excluded.max_bonus_percent,
			   func_kind = excluded.func_kind,
			   threshold_steps = excluded.threshold_steps,
			   timing = excluded.timing,
			   grade_cap = excluded.grade_cap`,
			c.ID, cfg.MaxPoints, cfg.MaxBonusPercent, cfg.Func.Kind(), string(stepsJSON), string(cfg.Timing), gradeCap,
		)
		if err != nil {
			return fmt.Errorf("failed to save bonus config: %w", err)
		}
	}

	if err := recomputeFinalGrade(tx, c); err != nil {
		return err
	}
	return tx.Commit()
}

// BonusConfig loads a course's bonus configuration, or nil when none is set.
func (s *Store) BonusConfig(shortName string) (*grading.BonusConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := getCourse(s.db, shortName)
	if err != nil {
		return nil, err
	}
	return loadBonusConfig(s.db, c.ID)
}

// FinalGrade returns the stored computed grade for a course. The boolean is
// false when no components have been set up yet.
func (s *Store) FinalGrade(shortName string) (grading.FinalGrade, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := getCourse(s.db, shortName)
	if err != nil {
		return grading.FinalGrade{}, false, err
	}
	return loadFinalGrade(s.db, c.ID)
}

func loadComponents(q queryer, courseID int64) ([]grading.Component, error) {
	rows, err := q.Query(
		`SELECT id, name, weight, is_bonus, grade, points_earned, points_total, is_completed
		 FROM grade_components WHERE course_id = ? ORDER BY id`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load components: %w", err)
	}
	defer rows.Close()

	var out []grading.Component
	for rows.Next() {
		var comp grading.Component
		var isBonus, completed int
		var grade, earned, total sql.NullFloat64
		if err := rows.Scan(&comp.ID, &comp.Name, &comp.Weight, &isBonus, &grade, &earned, &total, &completed); err != nil {
			return nil, err
		}
		comp.IsBonus = isBonus != 0
		comp.Completed = completed != 0
		if grade.Valid {
			v := grade.Float64
			comp.Grade = &v
		}
		if earned.Valid {
			v := earned.Float64
			comp.PointsEarned = &v
		}
		if total.Valid {
			v := total.Float64
			comp.PointsMax = &v
		}
		out = append(out, comp)
	}
	return out, rows.Err()
}

// saveComponents upserts the given component set. Rebalancing rewrites every
// weight, so all rows are written back.
func saveComponents(tx *sql.Tx, courseID int64, comps []grading.Component) error {
	for _, comp := range comps {
		_, err := tx.Exec(
			`INSERT INTO grade_components (course_id, name, weight, is_bonus, grade, points_earned, points_total, is_completed)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(course_id, name) DO UPDATE SET
			   weight = excluded.weight,
			   is_bonus = excluded.is_bonus,
			   grade = excluded.grade,
			   points_earned = excluded.points_earned,
			   points_total = excluded.points_total,
			   is_completed = excluded.is_completed`,
			courseID, comp.Name, comp.Weight, comp.IsBonus,
			comp.Grade, comp.PointsEarned, comp.PointsMax, comp.Completed,
		)
		if err != nil {
			return fmt.Errorf("failed to save component %q: %w", comp.Name, err)
		}
	}
	return nil
}

func loadBonusConfig(q queryer, courseID int64) (*grading.BonusConfig, error) {
	var maxPoints, maxPercent float64
	var kind, stepsJSON, timing string
	var gradeCap sql.NullFloat64
	err := q.QueryRow(
		`SELECT max_points, max_bonus_percent, func_kind, threshold_steps, timing, grade_cap
		 FROM bonus_configs WHERE course_id = ?`,
		courseID,
	).Scan(&maxPoints, &maxPercent, &kind, &stepsJSON, &timing, &gradeCap)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bonus config: %w", err)
	}

	var steps []grading.ThresholdStep
	if err := json.Unmarshal([]byte(stepsJSON), &steps); err != nil {
		return nil, &IntegrityError{Table: "bonus_configs", Detail: "malformed threshold steps"}
	}
	fn, err := grading.ParseBonusFunc(kind, steps)
	if err != nil {
		return nil, &IntegrityError{Table: "bonus_configs", Detail: err.Error()}
	}
	tm, err := grading.ParseBonusTiming(timing)
	if err != nil {
		return nil, &IntegrityError{Table: "bonus_configs", Detail: err.Error()}
	}

	cfg := &grading.BonusConfig{
		MaxPoints:       maxPoints,
		MaxBonusPercent: maxPercent,
		Func:            fn,
		Timing:          tm,
	}
	if gradeCap.Valid {
		v := gradeCap.Float64
		cfg.GradeCap = &v
	}
	return cfg, nil
}

func loadFinalGrade(q queryer, courseID int64) (grading.FinalGrade, bool, error) {
	var fg grading.FinalGrade
	var grade sql.NullFloat64
	var passed, pending int
	err := q.QueryRow(
		"SELECT grade, scheme, passed, pending FROM final_grades WHERE course_id = ?", courseID,
	).Scan(&grade, &fg.Scheme, &passed, &pending)
	if err == sql.ErrNoRows {
		return grading.FinalGrade{}, false, nil
	}
	if err != nil {
		return grading.FinalGrade{}, false, fmt.Errorf("failed to load final grade: %w", err)
	}
	if grade.Valid {
		fg.Value = grade.Float64
	}
	fg.Passed = passed != 0
	fg.Pending = pending != 0
	return fg, true, nil
}

// recomputeFinalGrade recalculates a course's component grade from what is
// stored and upserts the result. With no components the stored row is
// removed. Runs inside the caller's transaction.
func recomputeFinalGrade(tx *sql.Tx, c *Course) error {
	comps, err := loadComponents(tx, c.ID)
	if err != nil {
		return err
	}
	if len(comps) == 0 {
		_, err := tx.Exec("DELETE FROM final_grades WHERE course_id = ?", c.ID)
		return err
	}

	sch, err := getScheme(tx, c.Scheme)
	if err != nil {
		return err
	}
	bonus, err := loadBonusConfig(tx, c.ID)
	if err != nil {
		return err
	}

	fg, err := grading.Compute(sch, comps, bonus)
	if err != nil {
		return err
	}

	var grade interface{}
	if !fg.Pending {
		grade = fg.Value
	}
	_, err = tx.Exec(
		`INSERT INTO final_grades (course_id, grade, scheme, passed, pending, computed_at)
		 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(course_id) DO UPDATE SET
		   grade = excluded.grade,
		   scheme = excluded.scheme,
		   passed = excluded.passed,
		   pending = excluded.pending,
		   computed_at = excluded.computed_at`,
		c.ID, grade, fg.Scheme, fg.Passed, fg.Pending,
	)
	if err != nil {
		return fmt.Errorf("failed to save final grade: %w", err)
	}
	logging.EngineDebug("Recomputed grade for %s (pending=%v)", c.ShortName, fg.Pending)
	return nil
}
