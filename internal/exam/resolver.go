package exam

import (
	"fmt"
	"time"

	"unitrack/internal/scheme"
)

// Mode states how the active attempt is chosen.
type Mode string

const (
	// ModePolicy recomputes the active attempt from the effective strategy
	// after every insert.
	ModePolicy Mode = "policy"
	// ModeManual pins the active attempt until the course is reset to
	// policy mode. A manual override always carries a reason.
	ModeManual Mode = "manual"
)

// Attempt is one recorded exam sitting. Numbers increase strictly from 1 per
// course.
type Attempt struct {
	ID       int64
	CourseID int64
	Number   int
	Date     time.Time
	Grade    float64
	Passed   bool
	Note     string
}

// State is the attempt history of one course plus the activation bookkeeping.
// ActiveNumber is zero while no attempts exist.
type State struct {
	CourseID     int64
	Attempts     []Attempt
	ActiveNumber int
	Mode         Mode
	ManualReason string
}

// History is the read model exposed to callers. AttemptsRemaining is -1 when
// the effective policy places no limit.
type History struct {
	Attempts          []Attempt
	ActiveNumber      int
	Mode              Mode
	ManualReason      string
	AttemptsRemaining int
}

// RetakeNotAllowedError reports an attempt on a course that already has a
// passing active attempt under a policy that forbids retakes after passing.
type RetakeNotAllowedError struct {
	CourseID int64
	Policy   Policy
}

func (e *RetakeNotAllowedError) Error() string {
	return fmt.Sprintf("course %d already has a passing active attempt and the policy forbids retakes after passing; record with force and a justification note to override", e.CourseID)
}

// AttemptLimitExceededError reports an attempt beyond the policy's maximum.
type AttemptLimitExceededError struct {
	CourseID int64
	Used     int
	Policy   Policy
}

func (e *AttemptLimitExceededError) Error() string {
	return fmt.Sprintf("course %d has used %d of %d allowed attempts; record with force and a justification note to override", e.CourseID, e.Used, e.Policy.MaxAttempts)
}

// AttemptNotFoundError reports a reference to an attempt number that does
// not exist on the course.
type AttemptNotFoundError struct {
	CourseID int64
	Number   int
}

func (e *AttemptNotFoundError) Error() string {
	return fmt.Sprintf("course %d has no attempt %d", e.CourseID, e.Number)
}

// Active returns the active attempt, or nil while no attempts exist.
func (s *State) Active() *Attempt {
	for i := range s.Attempts {
		if s.Attempts[i].Number == s.ActiveNumber {
			return &s.Attempts[i]
		}
	}
	return nil
}

// find returns the attempt with the given number.
func (s *State) find(number int) *Attempt {
	for i := range s.Attempts {
		if s.Attempts[i].Number == number {
			return &s.Attempts[i]
		}
	}
	return nil
}

// AttemptsRemaining computes the remaining attempts under the policy, -1 for
// unlimited.
func (s *State) AttemptsRemaining(pol Policy) int {
	if pol.MaxAttempts <= 0 {
		return -1
	}
	rem := pol.MaxAttempts - len(s.Attempts)
	if rem < 0 {
		return 0
	}
	return rem
}

// History builds the read model under the effective policy.
func (s *State) History(pol Policy) History {
	return History{
		Attempts:          append([]Attempt(nil), s.Attempts...),
		ActiveNumber:      s.ActiveNumber,
		Mode:              s.Mode,
		ManualReason:      s.ManualReason,
		AttemptsRemaining: s.AttemptsRemaining(pol),
	}
}

// Add validates the new attempt against the effective policy and appends it.
// Grade passing is judged by the course scheme. In policy mode the active
// attempt is recomputed; a manual override stays untouched. The returned
// warning is non-empty when this insert leaves exactly one attempt and the
// policy warns on final attempts.
func (s *State) Add(sch *scheme.Scheme, grade float64, date time.Time, note string, force bool, pol Policy) (*Attempt, string, error) {
	if active := s.Active(); active != nil && active.Passed && !pol.AllowRetakeAfterPass && !force {
		return nil, "", &RetakeNotAllowedError{CourseID: s.CourseID, Policy: pol}
	}
	if pol.MaxAttempts > 0 && len(s.Attempts) >= pol.MaxAttempts && !force {
		return nil, "", &AttemptLimitExceededError{CourseID: s.CourseID, Used: len(s.Attempts), Policy: pol}
	}

	att := Attempt{
		CourseID: s.CourseID,
		Number:   len(s.Attempts) + 1,
		Date:     date,
		Grade:    grade,
		Passed:   sch.IsPassing(grade),
		Note:     note,
	}
	s.Attempts = append(s.Attempts, att)
	if s.Mode == "" {
		s.Mode = ModePolicy
	}
	if s.Mode == ModePolicy {
		s.recomputeActive(sch, pol)
	}

	var warning string
	if pol.WarnOnFinalAttempt && pol.MaxAttempts > 0 && pol.MaxAttempts-len(s.Attempts) == 1 {
		warning = fmt.Sprintf("one attempt remaining for course %d (policy allows %d)", s.CourseID, pol.MaxAttempts)
	}
	return &s.Attempts[len(s.Attempts)-1], warning, nil
}

// recomputeActive applies the strategy over the full attempt list.
// FirstPassing: earliest passing attempt, else the most recent one so the
// latest failing grade stays visible. Best: scheme-direction-best grade,
// ties resolving to the earliest attempt.
func (s *State) recomputeActive(sch *scheme.Scheme, pol Policy) {
	if len(s.Attempts) == 0 {
		s.ActiveNumber = 0
		return
	}
	switch pol.Strategy {
	case Best:
		best := s.Attempts[0]
		for _, a := range s.Attempts[1:] {
			if sch.Better(a.Grade, best.Grade) {
				best = a
			}
		}
		s.ActiveNumber = best.Number
	default: // FirstPassing
		for _, a := range s.Attempts {
			if a.Passed {
				s.ActiveNumber = a.Number
				return
			}
		}
		s.ActiveNumber = s.Attempts[len(s.Attempts)-1].Number
	}
}

// SetActive pins the active attempt manually. A non-empty reason is
// required; with best set the scheme-best attempt is chosen instead of an
// explicit number.
func (s *State) SetActive(sch *scheme.Scheme, number int, best bool, reason string) error {
	if reason == "" {
		return fmt.Errorf("manual attempt activation requires a reason")
	}
	if best {
		if len(s.Attempts) == 0 {
			return &AttemptNotFoundError{CourseID: s.CourseID, Number: 1}
		}
		target := s.Attempts[0]
		for _, a := range s.Attempts[1:] {
			if sch.Better(a.Grade, target.Grade) {
				target = a
			}
		}
		number = target.Number
	} else if s.find(number) == nil {
		return &AttemptNotFoundError{CourseID: s.CourseID, Number: number}
	}
	s.ActiveNumber = number
	s.Mode = ModeManual
	s.ManualReason = reason
	return nil
}

// ResetToPolicy drops a manual override and recomputes the active attempt
// under the effective strategy.
func (s *State) ResetToPolicy(sch *scheme.Scheme, pol Policy) {
	s.Mode = ModePolicy
	s.ManualReason = ""
	s.recomputeActive(sch, pol)
}
