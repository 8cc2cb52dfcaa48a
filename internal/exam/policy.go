// Package exam records exam attempts and resolves which attempt counts as
// active for a course under an institution's retake policy.
package exam

import "fmt"

// Strategy selects the active attempt when the course is in policy mode.
type Strategy string

const (
	// FirstPassing activates the earliest passing attempt; with no passing
	// attempt the most recent one stays visible.
	FirstPassing Strategy = "first-passing"
	// Best activates the attempt with the scheme-direction-best grade.
	Best Strategy = "best"
)

// ParseStrategy parses a strategy from its string form.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case string(FirstPassing):
		return FirstPassing, nil
	case string(Best):
		return Best, nil
	default:
		return "", fmt.Errorf("unknown active-attempt strategy %q", s)
	}
}

// Policy is the effective retake policy for a course. MaxAttempts of zero
// means unlimited.
type Policy struct {
	MaxAttempts               int
	Strategy                  Strategy
	AllowRetakeAfterPass      bool
	RequireGradeForCompletion bool
	WarnOnFinalAttempt        bool
}

// DefaultPolicy is the fallback at the end of the override chain:
// course fields, then institution fields, then these defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:               0,
		Strategy:                  FirstPassing,
		AllowRetakeAfterPass:      false,
		RequireGradeForCompletion: true,
		WarnOnFinalAttempt:        true,
	}
}

// PolicyOverride carries course-level policy fields. Nil fields fall through
// to the institution policy.
type PolicyOverride struct {
	MaxAttempts               *int
	Strategy                  *Strategy
	AllowRetakeAfterPass      *bool
	RequireGradeForCompletion *bool
	WarnOnFinalAttempt        *bool
}

// IsZero reports whether the override sets nothing.
func (o *PolicyOverride) IsZero() bool {
	return o == nil || (o.MaxAttempts == nil && o.Strategy == nil && o.AllowRetakeAfterPass == nil &&
		o.RequireGradeForCompletion == nil && o.WarnOnFinalAttempt == nil)
}

// Resolve merges the course override over the institution policy. This is
// plain field resolution, not dynamic dispatch.
func Resolve(base Policy, override *PolicyOverride) Policy {
	p := base
	if override == nil {
		return p
	}
	if override.MaxAttempts != nil {
		p.MaxAttempts = *override.MaxAttempts
	}
	if override.Strategy != nil {
		p.Strategy = *override.Strategy
	}
	if override.AllowRetakeAfterPass != nil {
		p.AllowRetakeAfterPass = *override.AllowRetakeAfterPass
	}
	if override.RequireGradeForCompletion != nil {
		p.RequireGradeForCompletion = *override.RequireGradeForCompletion
	}
	if override.WarnOnFinalAttempt != nil {
		p.WarnOnFinalAttempt = *override.WarnOnFinalAttempt
	}
	return p
}

// PolicySource resolves the institution-level policy for a course. The
// configuration layer implements this.
type PolicySource interface {
	InstitutionPolicy(institution string) Policy
}
