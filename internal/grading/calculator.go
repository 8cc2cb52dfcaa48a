package grading

import (
	"unitrack/internal/scheme"
)

// FinalGrade is the computed outcome for a course. Pending means at least one
// non-bonus component has no recorded score yet; it is a valid intermediate
// state, not an error.
type FinalGrade struct {
	Value   float64
	Scheme  string
	Passed  bool
	Pending bool
}

// Compute derives the final grade from the component set and, when
// configured, the bonus function.
//
// The base grade is the weight-fraction sum over non-bonus components. Bonus
// points are read from completed bonus components; with none recorded the
// base grade stands. The bonus adjustment is direction-aware, capped at the
// configured grade cap, and never worse than the unbonused base.
func Compute(sch *scheme.Scheme, comps []Component, bonus *BonusConfig) (FinalGrade, error) {
	if err := ValidateWeights(comps); err != nil {
		return FinalGrade{}, err
	}

	var base float64
	for _, c := range comps {
		if c.IsBonus {
			continue
		}
		if !c.Completed {
			return FinalGrade{Scheme: sch.Name, Pending: true}, nil
		}
		g, err := c.ResolveGrade(sch)
		if err != nil {
			return FinalGrade{}, err
		}
		base += c.Weight / 100 * g
	}

	value := base
	passed := sch.IsPassing(base)

	earned, haveBonus := earnedBonusPoints(comps)
	if bonus != nil && haveBonus {
		pct := bonus.Func.Fraction(earned, bonus.MaxPoints) * bonus.MaxBonusPercent / 100

		apply := true
		if bonus.Timing == ApplyAfterPass && !sch.IsPassing(base) {
			apply = false
		}
		if apply {
			var adjusted float64
			if sch.Direction == scheme.LowerIsBetter {
				adjusted = base * (1 - pct)
			} else {
				adjusted = base * (1 + pct)
			}
			if bonus.GradeCap != nil {
				adjusted = sch.ClampTowardBest(adjusted, *bonus.GradeCap)
			}
			value = sch.BestOf(base, adjusted)
			if bonus.Timing == ApplyBeforePass {
				passed = sch.IsPassing(value)
			}
		}
	}

	return FinalGrade{Value: value, Scheme: sch.Name, Passed: passed}, nil
}

// earnedBonusPoints sums recorded points across completed bonus components.
// The second return is false when no bonus input has been recorded at all.
func earnedBonusPoints(comps []Component) (float64, bool) {
	var sum float64
	have := false
	for _, c := range comps {
		if !c.IsBonus || !c.Completed {
			continue
		}
		if c.PointsEarned != nil {
			sum += *c.PointsEarned
			have = true
		}
	}
	return sum, have
}
