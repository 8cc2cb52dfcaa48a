package store

import (
	"errors"
	"testing"
	"time"

	"unitrack/internal/exam"
)

func examDay(n int) time.Time {
	return time.Date(2025, 2, n, 0, 0, 0, 0, time.UTC)
}

func TestAttemptFlow(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	addTestCourse(t, s, "algo", 6)

	att, warn, err := s.AddAttempt("algo", 5.0, examDay(1), "", false)
	if err != nil {
		t.Fatalf("AddAttempt error: %v", err)
	}
	if att.Number != 1 || att.Passed {
		t.Errorf("attempt = %+v, want failed attempt 1", att)
	}
	if warn != "" {
		t.Errorf("unexpected warning under unlimited policy: %q", warn)
	}

	// The failing attempt does not block a retake.
	att, _, err = s.AddAttempt("algo", 2.3, examDay(2), "", false)
	if err != nil {
		t.Fatalf("AddAttempt(retake) error: %v", err)
	}
	if att.Number != 2 || !att.Passed {
		t.Errorf("attempt = %+v, want passing attempt 2", att)
	}

	hist, err := s.AttemptHistory("algo")
	if err != nil {
		t.Fatalf("AttemptHistory error: %v", err)
	}
	if hist.ActiveNumber != 2 || hist.Mode != exam.ModePolicy {
		t.Errorf("history = %+v, want active attempt 2 in policy mode", hist)
	}
	if hist.AttemptsRemaining != -1 {
		t.Errorf("AttemptsRemaining = %d, want -1", hist.AttemptsRemaining)
	}

	eg, graded, err := s.CourseGrade("algo")
	if err != nil {
		t.Fatalf("CourseGrade error: %v", err)
	}
	if !graded || eg.Source != "attempt" || eg.Value != 2.3 {
		t.Errorf("effective grade = %+v (graded=%v), want attempt grade 2.3", eg, graded)
	}

	// Default policy forbids retaking a passed course.
	_, _, err = s.AddAttempt("algo", 1.3, examDay(3), "", false)
	var rne *exam.RetakeNotAllowedError
	if !errors.As(err, &rne) {
		t.Fatalf("retake after pass = %v, want RetakeNotAllowedError", err)
	}

	_, _, err = s.AddAttempt("algo", 1.3, examDay(3), "", true)
	if err == nil {
		t.Fatal("forcing an attempt without a note should fail")
	}
	att, _, err = s.AddAttempt("algo", 1.3, examDay(3), "grade improvement approved", true)
	if err != nil {
		t.Fatalf("forced attempt error: %v", err)
	}
	if att.Number != 3 {
		t.Errorf("attempt number = %d, want 3", att.Number)
	}

	// First-passing keeps attempt 2 active even though 1.3 is better.
	hist, _ = s.AttemptHistory("algo")
	if hist.ActiveNumber != 2 {
		t.Errorf("active attempt = %d, want 2", hist.ActiveNumber)
	}

	trail, err := s.AuditTrail("algo")
	if err != nil {
		t.Fatalf("AuditTrail error: %v", err)
	}
	if len(trail) != 1 || trail[0].Action != "force-attempt" {
		t.Errorf("audit trail = %+v, want one force-attempt entry", trail)
	}
}

func TestAttemptGradeBounds(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	addTestCourse(t, s, "algo", 6)

	if _, _, err := s.AddAttempt("algo", 6.5, examDay(1), "", false); err == nil {
		t.Error("grade outside the scheme should be rejected")
	}
}

func TestManualActiveAttempt(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	addTestCourse(t, s, "algo", 6)

	if _, _, err := s.AddAttempt("algo", 2.3, examDay(1), "", false); err != nil {
		t.Fatalf("AddAttempt error: %v", err)
	}
	if _, _, err := s.AddAttempt("algo", 1.3, examDay(2), "second try", true); err != nil {
		t.Fatalf("AddAttempt error: %v", err)
	}

	if err := s.SetActiveAttempt("algo", 2, false, ""); err == nil {
		t.Fatal("manual activation without a reason should fail")
	}
	if err := s.SetActiveAttempt("algo", 2, false, "transcript lists the retake"); err != nil {
		t.Fatalf("SetActiveAttempt error: %v", err)
	}

	hist, err := s.AttemptHistory("algo")
	if err != nil {
		t.Fatalf("AttemptHistory error: %v", err)
	}
	if hist.ActiveNumber != 2 || hist.Mode != exam.ModeManual || hist.ManualReason == "" {
		t.Errorf("history = %+v, want manual mode pinned to attempt 2", hist)
	}

	if err := s.ResetAttemptPolicy("algo"); err != nil {
		t.Fatalf("ResetAttemptPolicy error: %v", err)
	}
	hist, _ = s.AttemptHistory("algo")
	if hist.Mode != exam.ModePolicy || hist.ActiveNumber != 1 {
		t.Errorf("history after reset = %+v, want policy mode on attempt 1", hist)
	}

	trail, _ := s.AuditTrail("algo")
	actions := map[string]bool{}
	for _, e := range trail {
		actions[e.Action] = true
	}
	for _, want := range []string{"force-attempt", "manual-active-attempt", "reset-to-policy"} {
		if !actions[want] {
			t.Errorf("audit trail missing %s: %+v", want, trail)
		}
	}
}

func TestCoursePolicyOverride(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	addTestCourse(t, s, "algo", 6)

	max := 1
	warn := false
	if err := s.SetCoursePolicy("algo", &exam.PolicyOverride{MaxAttempts: &max, WarnOnFinalAttempt: &warn}); err != nil {
		t.Fatalf("SetCoursePolicy error: %v", err)
	}

	pol, err := s.EffectivePolicy("algo")
	if err != nil {
		t.Fatalf("EffectivePolicy error: %v", err)
	}
	if pol.MaxAttempts != 1 || pol.WarnOnFinalAttempt {
		t.Errorf("effective policy = %+v", pol)
	}

	if _, _, err := s.AddAttempt("algo", 5.0, examDay(1), "", false); err != nil {
		t.Fatalf("AddAttempt error: %v", err)
	}
	_, _, err = s.AddAttempt("algo", 3.0, examDay(2), "", false)
	var ale *exam.AttemptLimitExceededError
	if !errors.As(err, &ale) {
		t.Fatalf("second attempt = %v, want AttemptLimitExceededError", err)
	}

	// Clearing the override restores the unlimited default.
	if err := s.SetCoursePolicy("algo", nil); err != nil {
		t.Fatalf("SetCoursePolicy(nil) error: %v", err)
	}
	if _, _, err := s.AddAttempt("algo", 3.0, examDay(2), "", false); err != nil {
		t.Fatalf("AddAttempt after clearing override error: %v", err)
	}
}

func TestInstitutionPolicyApplies(t *testing.T) {
	t.Parallel()

	best := exam.DefaultPolicy()
	best.Strategy = exam.Best
	best.AllowRetakeAfterPass = true
	s := newTestStoreWithPolicies(t, &stubPolicies{byInstitution: map[string]exam.Policy{"tum": best}})
	addTestCourse(t, s, "algo", 6)

	if _, _, err := s.AddAttempt("algo", 2.3, examDay(1), "", false); err != nil {
		t.Fatalf("AddAttempt error: %v", err)
	}
	// Retaking the passed course is allowed and the better grade wins.
	if _, _, err := s.AddAttempt("algo", 1.3, examDay(2), "", false); err != nil {
		t.Fatalf("AddAttempt(retake) error: %v", err)
	}

	hist, err := s.AttemptHistory("algo")
	if err != nil {
		t.Fatalf("AttemptHistory error: %v", err)
	}
	if hist.ActiveNumber != 2 {
		t.Errorf("active attempt = %d, want 2 under best strategy", hist.ActiveNumber)
	}
}
