// Package scheme implements grading schemes: ordered grade scales with a
// semantic direction, pass thresholds, and exact-lookup conversion tables
// between scales of different institutions.
package scheme

import (
	"fmt"
	"math"
)

// Direction states which end of a scale is the good one. German grades run
// 1.0 (best) to 5.0 (worst); US GPA runs 4.0 (best) to 0.0 (worst).
type Direction string

const (
	LowerIsBetter  Direction = "lower-is-better"
	HigherIsBetter Direction = "higher-is-better"
)

// ParseDirection parses a direction from its string form.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case string(LowerIsBetter):
		return LowerIsBetter, nil
	case string(HigherIsBetter):
		return HigherIsBetter, nil
	default:
		return "", fmt.Errorf("unknown scale direction %q", s)
	}
}

// Scheme is a grading scale definition. Scale is ordered best to worst and
// must be strictly monotonic in the declared direction.
type Scheme struct {
	Name          string
	Direction     Direction
	Scale         []float64
	PassThreshold float64
}

// InvalidSchemeError reports a scheme definition that violates the scale
// invariants. It is caller-correctable.
type InvalidSchemeError struct {
	Name   string
	Reason string
}

func (e *InvalidSchemeError) Error() string {
	return fmt.Sprintf("invalid grading scheme %q: %s", e.Name, e.Reason)
}

// Validate checks the scale monotonicity and threshold invariants.
func (s *Scheme) Validate() error {
	if s.Name == "" {
		return &InvalidSchemeError{Name: s.Name, Reason: "empty scheme name"}
	}
	if len(s.Scale) < 2 {
		return &InvalidSchemeError{Name: s.Name, Reason: "scale needs at least two values"}
	}
	for i := 1; i < len(s.Scale); i++ {
		prev, cur := s.Scale[i-1], s.Scale[i]
		switch s.Direction {
		case LowerIsBetter:
			// best-to-worst means strictly increasing values
			if cur <= prev {
				return &InvalidSchemeError{Name: s.Name, Reason: fmt.Sprintf("scale not strictly increasing at index %d (%.4g then %.4g)", i, prev, cur)}
			}
		case HigherIsBetter:
			if cur >= prev {
				return &InvalidSchemeError{Name: s.Name, Reason: fmt.Sprintf("scale not strictly decreasing at index %d (%.4g then %.4g)", i, prev, cur)}
			}
		default:
			return &InvalidSchemeError{Name: s.Name, Reason: fmt.Sprintf("unknown direction %q", s.Direction)}
		}
	}
	if !s.inBounds(s.PassThreshold) {
		return &InvalidSchemeError{Name: s.Name, Reason: fmt.Sprintf("pass threshold %.4g outside [%.4g, %.4g]", s.PassThreshold, s.Worst(), s.Best())}
	}
	return nil
}

// Best returns the best attainable value on the scale.
func (s *Scheme) Best() float64 { return s.Scale[0] }

// Worst returns the worst value on the scale.
func (s *Scheme) Worst() float64 { return s.Scale[len(s.Scale)-1] }

func (s *Scheme) inBounds(v float64) bool {
	lo, hi := s.Worst(), s.Best()
	if lo > hi {
		lo, hi = hi, lo
	}
	return v >= lo && v <= hi
}

// InBounds reports whether v lies within [worst, best].
func (s *Scheme) InBounds(v float64) bool { return s.inBounds(v) }

// IsPassing compares v against the pass threshold using the scale direction.
func (s *Scheme) IsPassing(v float64) bool {
	if s.Direction == LowerIsBetter {
		return v <= s.PassThreshold
	}
	return v >= s.PassThreshold
}

// Better reports whether a is strictly better than b on this scale.
func (s *Scheme) Better(a, b float64) bool {
	if s.Direction == LowerIsBetter {
		return a < b
	}
	return a > b
}

// BestOf returns the direction-best of a and b.
func (s *Scheme) BestOf(a, b float64) float64 {
	if s.Better(a, b) {
		return a
	}
	return b
}

// ClampTowardBest limits v so it never crosses the given cap in the best
// direction. Used for bonus grade caps.
func (s *Scheme) ClampTowardBest(v, cap float64) float64 {
	if s.Better(v, cap) {
		return cap
	}
	return v
}

// PointsToGrade converts a points-over-maximum score into a grade value by
// piecewise-linear interpolation across the ordered scale. Full points map to
// the best value, zero points to the worst. The fraction is clamped to [0, 1].
func (s *Scheme) PointsToGrade(earned, max float64) (float64, error) {
	if max <= 0 {
		return 0, fmt.Errorf("maximum points must be positive, got %.4g", max)
	}
	frac := earned / max
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	// Position measured from the best end of the scale.
	pos := (1 - frac) * float64(len(s.Scale)-1)
	lo := int(math.Floor(pos))
	if lo >= len(s.Scale)-1 {
		return s.Worst(), nil
	}
	t := pos - float64(lo)
	return s.Scale[lo] + t*(s.Scale[lo+1]-s.Scale[lo]), nil
}
