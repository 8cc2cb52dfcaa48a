// Package grading computes a course's final grade from weighted components
// and an optional bonus function. All computation here is pure; persistence
// and transaction boundaries live in the store.
package grading

import (
	"fmt"
	"math"

	"unitrack/internal/scheme"
)

// weightEpsilon absorbs float noise when checking that weights sum to 100.
const weightEpsilon = 1e-9

// Component is one weighted part of a course grade. Weight is a percent of
// 100 for regular components and ignored for bonus components. A score is
// either a direct grade in the course's scheme or points over a maximum.
type Component struct {
	ID           int64
	Name         string
	Weight       float64
	IsBonus      bool
	Grade        *float64
	PointsEarned *float64
	PointsMax    *float64
	Completed    bool
}

// WeightSumError reports a non-bonus weight set that does not sum to 100.
type WeightSumError struct {
	Sum float64
}

func (e *WeightSumError) Error() string {
	return fmt.Sprintf("non-bonus component weights must sum to 100, got %.4g", e.Sum)
}

// NonBonusWeightSum sums the weights of all non-bonus components.
func NonBonusWeightSum(comps []Component) float64 {
	var sum float64
	for _, c := range comps {
		if !c.IsBonus {
			sum += c.Weight
		}
	}
	return sum
}

// ValidateWeights checks the sum-to-100 invariant over the non-bonus set.
func ValidateWeights(comps []Component) error {
	sum := NonBonusWeightSum(comps)
	if math.Abs(sum-100) > weightEpsilon {
		return &WeightSumError{Sum: sum}
	}
	return nil
}

// AddComponent appends a new non-bonus component to the set. Without
// rebalancing the new total must still be 100 exactly. With rebalancing the
// existing non-bonus weights are scaled down proportionally so the total
// returns to 100; the first component absorbs any float residue.
func AddComponent(comps []Component, name string, weight float64, rebalance bool) ([]Component, error) {
	if weight <= 0 || weight > 100 {
		return nil, &WeightSumError{Sum: NonBonusWeightSum(comps) + weight}
	}
	out := append([]Component(nil), comps...)
	if !rebalance {
		sum := NonBonusWeightSum(out) + weight
		if math.Abs(sum-100) > weightEpsilon {
			return nil, &WeightSumError{Sum: sum}
		}
		return append(out, Component{Name: name, Weight: weight}), nil
	}

	oldSum := NonBonusWeightSum(out)
	remaining := 100 - weight
	if oldSum > 0 {
		factor := remaining / oldSum
		var scaled float64
		first := -1
		for i := range out {
			if out[i].IsBonus {
				continue
			}
			if first < 0 {
				first = i
			}
			out[i].Weight *= factor
			scaled += out[i].Weight
		}
		if first >= 0 {
			out[first].Weight += remaining - scaled
		}
	}
	return append(out, Component{Name: name, Weight: weight}), nil
}

// SetComponents replaces the non-bonus set with the given name/weight pairs.
// The new weights must sum to exactly 100. Bonus components survive the
// replacement, and a recorded score carries over when a component keeps its
// name.
func SetComponents(existing []Component, next []Component) ([]Component, error) {
	prev := make(map[string]Component, len(existing))
	for _, c := range existing {
		if !c.IsBonus {
			prev[c.Name] = c
		}
	}

	out := make([]Component, 0, len(next)+len(existing))
	seen := make(map[string]bool, len(next))
	for _, n := range next {
		if n.Name == "" {
			return nil, fmt.Errorf("component name must not be empty")
		}
		if seen[n.Name] {
			return nil, fmt.Errorf("duplicate component %q", n.Name)
		}
		seen[n.Name] = true
		if n.Weight <= 0 || n.Weight > 100 {
			return nil, fmt.Errorf("component %q weight %.4g is out of range", n.Name, n.Weight)
		}
		c := Component{Name: n.Name, Weight: n.Weight}
		if old, ok := prev[n.Name]; ok {
			c.Grade = old.Grade
			c.PointsEarned = old.PointsEarned
			c.PointsMax = old.PointsMax
			c.Completed = old.Completed
		}
		out = append(out, c)
	}
	if err := ValidateWeights(out); err != nil {
		return nil, err
	}

	for _, c := range existing {
		if !c.IsBonus {
			continue
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("component %q already exists as a bonus component", c.Name)
		}
		out = append(out, c)
	}
	return out, nil
}

// RemoveComponent drops a component by name and proportionally scales the
// remaining non-bonus weights back up to 100.
func RemoveComponent(comps []Component, name string) ([]Component, error) {
	out := make([]Component, 0, len(comps))
	var removed *Component
	for _, c := range comps {
		if c.Name == name {
			cc := c
			removed = &cc
			continue
		}
		out = append(out, c)
	}
	if removed == nil {
		return nil, fmt.Errorf("component %q not found", name)
	}
	if removed.IsBonus {
		return out, nil
	}
	oldSum := NonBonusWeightSum(out)
	if oldSum <= 0 {
		return out, nil
	}
	factor := 100 / oldSum
	var scaled float64
	first := -1
	for i := range out {
		if out[i].IsBonus {
			continue
		}
		if first < 0 {
			first = i
		}
		out[i].Weight *= factor
		scaled += out[i].Weight
	}
	if first >= 0 {
		out[first].Weight += 100 - scaled
	}
	return out, nil
}

// ResolveGrade returns the component's grade value in the course scheme,
// converting a points score through the scale when needed.
func (c *Component) ResolveGrade(sch *scheme.Scheme) (float64, error) {
	if c.Grade != nil {
		return *c.Grade, nil
	}
	if c.PointsEarned != nil && c.PointsMax != nil {
		return sch.PointsToGrade(*c.PointsEarned, *c.PointsMax)
	}
	return 0, fmt.Errorf("component %q has no recorded score", c.Name)
}
