package grading

import (
	"fmt"
	"sort"
)

// BonusTiming controls whether the bonus applies before or after the pass
// check on the base grade.
type BonusTiming string

const (
	// ApplyBeforePass applies the bonus unconditionally; pass/fail is then
	// evaluated on the adjusted value.
	ApplyBeforePass BonusTiming = "before-pass"
	// ApplyAfterPass applies the bonus only when the base grade already
	// passes; a failing base grade is returned unmodified.
	ApplyAfterPass BonusTiming = "after-pass"
)

// ParseBonusTiming parses a timing from its string form.
func ParseBonusTiming(s string) (BonusTiming, error) {
	switch s {
	case string(ApplyBeforePass):
		return ApplyBeforePass, nil
	case string(ApplyAfterPass):
		return ApplyAfterPass, nil
	default:
		return "", fmt.Errorf("unknown bonus timing %q", s)
	}
}

// BonusFunc maps earned bonus points to a fraction in [0, 1] of the
// configured maximum bonus percent. The variant is chosen once at
// configuration time and invoked uniformly by the calculator.
type BonusFunc interface {
	Fraction(earnedPoints, maxPoints float64) float64
	Kind() string
}

// Linear scales the fraction with earned points over maximum points.
type Linear struct{}

func (Linear) Kind() string { return "linear" }

func (Linear) Fraction(earnedPoints, maxPoints float64) float64 {
	if maxPoints <= 0 {
		return 0
	}
	f := earnedPoints / maxPoints
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// ThresholdStep grants Percent (0-100) of the maximum bonus once MinPoints
// are earned.
type ThresholdStep struct {
	MinPoints float64 `json:"min_points"`
	Percent   float64 `json:"percent"`
}

// Threshold grants the percent of the highest step whose point requirement
// is met, and nothing below the first step.
type Threshold struct {
	Steps []ThresholdStep
}

func (Threshold) Kind() string { return "threshold" }

func (t Threshold) Fraction(earnedPoints, _ float64) float64 {
	steps := append([]ThresholdStep(nil), t.Steps...)
	sort.Slice(steps, func(i, j int) bool { return steps[i].MinPoints < steps[j].MinPoints })
	var pct float64
	for _, s := range steps {
		if earnedPoints >= s.MinPoints {
			pct = s.Percent
		}
	}
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 1
	}
	return pct / 100
}

// ParseBonusFunc reconstructs a bonus function from its stored form.
func ParseBonusFunc(kind string, steps []ThresholdStep) (BonusFunc, error) {
	switch kind {
	case "linear":
		return Linear{}, nil
	case "threshold":
		if len(steps) == 0 {
			return nil, fmt.Errorf("threshold bonus function needs at least one step")
		}
		return Threshold{Steps: steps}, nil
	default:
		return nil, fmt.Errorf("unknown bonus function %q", kind)
	}
}

// BonusConfig describes how earned bonus points improve the base grade.
// GradeCap, when set, is the best value the adjusted grade may reach.
type BonusConfig struct {
	MaxPoints       float64
	MaxBonusPercent float64
	Func            BonusFunc
	Timing          BonusTiming
	GradeCap        *float64
}
