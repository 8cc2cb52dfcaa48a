package store

import (
	"database/sql"
	"fmt"
	"time"

	"unitrack/internal/exam"
	"unitrack/internal/logging"
)

// effectivePolicy resolves the policy chain for a course: built-in defaults,
// overlaid with the institution's config, overlaid with the per-course row.
func (s *Store) effectivePolicy(q queryer, c *Course) (exam.Policy, error) {
	pol := exam.DefaultPolicy()
	if s.policies != nil {
		pol = s.policies.InstitutionPolicy(c.Institution)
	}

	override, err := loadCoursePolicy(q, c.ID)
	if err != nil {
		return exam.Policy{}, err
	}
	if override != nil {
		pol = exam.Resolve(pol, override)
	}
	return pol, nil
}

// EffectivePolicy returns the resolved exam policy governing a course.
func (s *Store) EffectivePolicy(shortName string) (exam.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := getCourse(s.db, shortName)
	if err != nil {
		return exam.Policy{}, err
	}
	return s.effectivePolicy(s.db, c)
}

// SetCoursePolicy stores a per-course policy override. A nil override clears
// the course back to its institution policy.
func (s *Store) SetCoursePolicy(shortName string, override *exam.PolicyOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := getCourse(s.db, shortName)
	if err != nil {
		return err
	}

	if override == nil || override.IsZero() {
		_, err := s.db.Exec("DELETE FROM course_policies WHERE course_id = ?", c.ID)
		if err != nil {
			return fmt.Errorf("failed to clear course policy: %w", err)
		}
		logging.Policy("Cleared policy override for %s", shortName)
		return nil
	}

	var strategy interface{}
	if override.Strategy != nil {
		strategy = string(*override.Strategy)
	}
	_, err = s.db.Exec(
		`INSERT INTO course_policies (course_id, max_attempts, strategy, allow_retake_after_pass, require_grade_for_completion, warn_on_final_attempt)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(course_id) DO UPDATE SET
		   max_attempts = excluded.max_attempts,
		   strategy = excluded.strategy,
		   allow_retake_after_pass = excluded.allow_retake_after_pass,
		   require_grade_for_completion = excluded.require_grade_for_completion,
		   warn_on_final_attempt = excluded.warn_on_final_attempt`,
		c.ID, override.MaxAttempts, strategy, override.AllowRetakeAfterPass,
		override.RequireGradeForCompletion, override.WarnOnFinalAttempt,
	)
	if err != nil {
		return fmt.Errorf("failed to save course policy: %w", err)
	}
	logging.Policy("Set policy override for %s", shortName)
	return nil
}

func loadCoursePolicy(q queryer, courseID int64) (*exam.PolicyOverride, error) {
	var maxAttempts sql.NullInt64
	var strategy sql.NullString
	var allowRetake, requireGrade, warnFinal sql.NullBool
	err := q.QueryRow(
		`SELECT max_attempts, strategy, allow_retake_after_pass, require_grade_for_completion, warn_on_final_attempt
		 FROM course_policies WHERE course_id = ?`,
		courseID,
	).Scan(&maxAttempts, &strategy, &allowRetake, &requireGrade, &warnFinal)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load course policy: %w", err)
	}

	var o exam.PolicyOverride
	if maxAttempts.Valid {
		v := int(maxAttempts.Int64)
		o.MaxAttempts = &v
	}
	if strategy.Valid {
		st, err := exam.ParseStrategy(strategy.String)
		if err != nil {
			return nil, &IntegrityError{Table: "course_policies", Detail: err.Error()}
		}
		o.Strategy = &st
	}
	if allowRetake.Valid {
		v := allowRetake.Bool
		o.AllowRetakeAfterPass = &v
	}
	if requireGrade.Valid {
		v := requireGrade.Bool
		o.RequireGradeForCompletion = &v
	}
	if warnFinal.Valid {
		v := warnFinal.Bool
		o.WarnOnFinalAttempt = &v
	}
	return &o, nil
}

// loadAttemptState assembles the resolver state for a course from the
// attempts table and the attempt_state row.
func loadAttemptState(q queryer, courseID int64) (*exam.State, error) {
	st := &exam.State{CourseID: courseID, Mode: exam.ModePolicy}

	rows, err := q.Query(
		`SELECT id, attempt_number, exam_date, grade, passed, notes
		 FROM exam_attempts WHERE course_id = ? ORDER BY attempt_number`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		a := exam.Attempt{CourseID: courseID}
		var passed int
		if err := rows.Scan(&a.ID, &a.Number, &a.Date, &a.Grade, &passed, &a.Note); err != nil {
			return nil, err
		}
		a.Passed = passed != 0
		st.Attempts = append(st.Attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var mode string
	err = q.QueryRow(
		"SELECT active_number, mode, manual_reason FROM attempt_state WHERE course_id = ?", courseID,
	).Scan(&st.ActiveNumber, &mode, &st.ManualReason)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to load attempt state: %w", err)
	}
	if err == nil {
		switch exam.Mode(mode) {
		case exam.ModePolicy, exam.ModeManual:
			st.Mode = exam.Mode(mode)
		default:
			return nil, &IntegrityError{Table: "attempt_state", Detail: fmt.Sprintf("unknown mode %q", mode)}
		}
	}

	if st.ActiveNumber != 0 {
		found := false
		for _, a := range st.Attempts {
			if a.Number == st.ActiveNumber {
				found = true
				break
			}
		}
		if !found {
			return nil, &IntegrityError{Table: "attempt_state", Detail: fmt.Sprintf("active attempt %d does not exist for course %d", st.ActiveNumber, courseID)}
		}
	}
	return st, nil
}

func saveAttemptState(tx *sql.Tx, st *exam.State) error {
	_, err := tx.Exec(
		`INSERT INTO attempt_state (course_id, active_number, mode, manual_reason)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(course_id) DO UPDATE SET
		   active_number = excluded.active_number,
		   mode = excluded.mode,
		   manual_reason = excluded.manual_reason`,
		st.CourseID, st.ActiveNumber, string(st.Mode), st.ManualReason,
	)
	if err != nil {
		return fmt.Errorf("failed to save attempt state: %w", err)
	}
	return nil
}

// AddAttempt records a new exam attempt for a course under its effective
// policy. force bypasses retake and limit checks; it requires a note and is
// written to the audit trail. The returned warning is non-empty when the
// policy warns about the final remaining attempt.
func (s *Store) AddAttempt(shortName string, grade float64, date time.Time, note string, force bool) (*exam.Attempt, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin()
	if err != nil {
		return nil, "", err
	}
	defer tx.Rollback()

	c, err := getCourse(tx, shortName)
	if err != nil {
		return nil, "", err
	}
	sch, err := getScheme(tx, c.Scheme)
	if err != nil {
		return nil, "", err
	}
	if !sch.InBounds(grade) {
		return nil, "", fmt.Errorf("grade %.3f is outside scheme %s", grade, c.Scheme)
	}
	pol, err := s.effectivePolicy(tx, c)
	if err != nil {
		return nil, "", err
	}
	st, err := loadAttemptState(tx, c.ID)
	if err != nil {
		return nil, "", err
	}

	if force && note == "" {
		return nil, "", fmt.Errorf("forcing an attempt requires a note")
	}

	att, warning, err := st.Add(sch, grade, date, note, force, pol)
	if err != nil {
		return nil, "", err
	}

	res, err := tx.Exec(
		`INSERT INTO exam_attempts (course_id, attempt_number, exam_date, grade, passed, notes)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, att.Number, att.Date, att.Grade, att.Passed, att.Note,
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to insert attempt: %w", err)
	}
	att.ID, _ = res.LastInsertId()

	if err := saveAttemptState(tx, st); err != nil {
		return nil, "", err
	}
	if force {
		if err := recordAudit(tx, c.ID, "force-attempt", note); err != nil {
			return nil, "", err
		}
		logging.PolicyWarn("Forced attempt %d for %s: %s", att.Number, shortName, note)
	}
	if err := tx.Commit(); err != nil {
		return nil, "", err
	}
	logging.Policy("Recorded attempt %d for %s (grade %.2f, passed=%v)", att.Number, shortName, att.Grade, att.Passed)
	return att, warning, nil
}

// SetActiveAttempt pins the active attempt manually. With best set, the
// scheme-best attempt wins instead of an explicit number. The reason is
// mandatory and audited.
func (s *Store) SetActiveAttempt(shortName string, number int, best bool, reason string) error {
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
	st, err := loadAttemptState(tx, c.ID)
	if err != nil {
		return err
	}
	if err := st.SetActive(sch, number, best, reason); err != nil {
		return err
	}
	if err := saveAttemptState(tx, st); err != nil {
		return err
	}
	if err := recordAudit(tx, c.ID, "manual-active-attempt", reason); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logging.Policy("Pinned attempt %d as active for %s: %s", st.ActiveNumber, shortName, reason)
	return nil
}

// ResetAttemptPolicy drops a manual override and lets the policy strategy
// pick the active attempt again.
func (s *Store) ResetAttemptPolicy(shortName string) error {
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
	pol, err := s.effectivePolicy(tx, c)
	if err != nil {
		return err
	}
	st, err := loadAttemptState(tx, c.ID)
	if err != nil {
		return err
	}
	st.ResetToPolicy(sch, pol)
	if err := saveAttemptState(tx, st); err != nil {
		return err
	}
	if err := recordAudit(tx, c.ID, "reset-to-policy", ""); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logging.Policy("Reset %s to policy-resolved active attempt %d", shortName, st.ActiveNumber)
	return nil
}

// AttemptHistory returns the full attempt history for a course along with the
// policy-derived remaining-attempt count.
func (s *Store) AttemptHistory(shortName string) (exam.History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := getCourse(s.db, shortName)
	if err != nil {
		return exam.History{}, err
	}
	pol, err := s.effectivePolicy(s.db, c)
	if err != nil {
		return exam.History{}, err
	}
	st, err := loadAttemptState(s.db, c.ID)
	if err != nil {
		return exam.History{}, err
	}
	return st.History(pol), nil
}
