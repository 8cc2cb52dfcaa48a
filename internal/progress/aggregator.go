// Package progress rolls active course grades up into ECTS totals and
// ECTS-weighted GPA per degree area and per degree. It is pure computation
// over a snapshot the store loads in one read-only transaction.
package progress

import (
	"sort"

	"unitrack/internal/scheme"
)

// Course lifecycle states as stored on the course row.
const (
	StatusEnrolled  = "enrolled"
	StatusCompleted = "completed"
	StatusDropped   = "dropped"
	StatusArchived  = "archived"
)

// CourseStanding is a course with its currently-active grade resolved.
// Graded is false while the course has neither an active exam attempt nor a
// finalized component grade.
type CourseStanding struct {
	CourseID  int64
	ShortName string
	Name      string
	ECTS      int
	Scheme    string
	Status    string
	Grade     float64
	Passed    bool
	Graded    bool
}

// Degree mirrors the degree row. Scheme is the reporting scheme GPA values
// are expressed in.
type Degree struct {
	ID                int64
	Type              string
	Name              string
	Institution       string
	TotalECTSRequired int
	Scheme            string
}

// Area mirrors the degree-area row.
type Area struct {
	ID               int64
	DegreeID         int64
	Name             string
	RequiredECTS     int
	CountsTowardsGPA bool
}

// Mapping is a committed course-to-area assignment. ECTSOverride replaces the
// course's own ECTS value for this degree only.
type Mapping struct {
	CourseID     int64
	DegreeID     int64
	AreaID       int64
	ECTSOverride *int
}

// Eligibility is a possible (not committed) assignment.
type Eligibility struct {
	CourseID    int64
	DegreeID    int64
	AreaID      int64
	Recommended bool
}

// Snapshot is the consistent read the aggregator works from.
type Snapshot struct {
	Degrees  []Degree
	Areas    []Area
	Mappings []Mapping
	Eligible []Eligibility
	Courses  map[int64]CourseStanding
}

// CourseProgress is one mapping's contribution to an area.
type CourseProgress struct {
	CourseID  int64
	ShortName string
	ECTS      int
	Grade     float64
	Scheme    string
	Passed    bool
}

// AreaProgress reports one area. GPA is nil for areas excluded from GPA or
// with no graded passing courses; per-course grades are still listed.
type AreaProgress struct {
	Area       Area
	EarnedECTS int
	GPA        *float64
	Courses    []CourseProgress
}

// DegreeProgress aggregates over all areas of one degree.
type DegreeProgress struct {
	Degree      Degree
	EarnedECTS  int
	GPA         *float64
	Areas       []AreaProgress
	MissingECTS int
}

// MissingRequirement is one area's ECTS shortfall.
type MissingRequirement struct {
	AreaID   int64
	AreaName string
	Missing  int
}

// counts reports whether a mapping contributes to progress: the course must
// not be dropped or archived, and its active grade must be a pass.
func (s *Snapshot) counts(m Mapping) (CourseStanding, bool) {
	c, ok := s.Courses[m.CourseID]
	if !ok {
		return CourseStanding{}, false
	}
	if c.Status == StatusDropped || c.Status == StatusArchived {
		return CourseStanding{}, false
	}
	if !c.Graded || !c.Passed {
		return CourseStanding{}, false
	}
	return c, true
}

func mappingECTS(m Mapping, c CourseStanding) int {
	if m.ECTSOverride != nil {
		return *m.ECTSOverride
	}
	return c.ECTS
}

// AreaProgressFor computes one area's earned ECTS and GPA. Grades recorded in
// a different scheme are converted to targetScheme through the registry's
// exact-lookup table; a missing entry is a hard error.
func (s *Snapshot) AreaProgressFor(reg *scheme.Registry, area Area, targetScheme string) (AreaProgress, error) {
	out := AreaProgress{Area: area}
	var gradeSum, ectsSum float64
	for _, m := range s.Mappings {
		if m.AreaID != area.ID || m.DegreeID != area.DegreeID {
			continue
		}
		c, ok := s.counts(m)
		if !ok {
			continue
		}
		ects := mappingECTS(m, c)
		out.EarnedECTS += ects

		grade, err := reg.Convert(c.Grade, c.Scheme, targetScheme)
		if err != nil {
			return AreaProgress{}, err
		}
		out.Courses = append(out.Courses, CourseProgress{
			CourseID:  c.CourseID,
			ShortName: c.ShortName,
			ECTS:      ects,
			Grade:     grade,
			Scheme:    targetScheme,
			Passed:    true,
		})
		if area.CountsTowardsGPA {
			gradeSum += grade * float64(ects)
			ectsSum += float64(ects)
		}
	}
	if area.CountsTowardsGPA && ectsSum > 0 {
		gpa := gradeSum / ectsSum
		out.GPA = &gpa
	}
	sort.Slice(out.Courses, func(i, j int) bool { return out.Courses[i].CourseID < out.Courses[j].CourseID })
	return out, nil
}

// DegreeProgressFor aggregates all areas of the degree. The degree GPA is the
// ECTS-weighted average across qualifying mappings of GPA-counting areas,
// which equals weighting each area's GPA by its earned ECTS. A course mapped
// into several degrees contributes fully and independently to each.
func (s *Snapshot) DegreeProgressFor(reg *scheme.Registry, degree Degree) (DegreeProgress, error) {
	out := DegreeProgress{Degree: degree}
	var gradeSum, ectsSum float64
	for _, area := range s.Areas {
		if area.DegreeID != degree.ID {
			continue
		}
		ap, err := s.AreaProgressFor(reg, area, degree.Scheme)
		if err != nil {
			return DegreeProgress{}, err
		}
		out.Areas = append(out.Areas, ap)
		out.EarnedECTS += ap.EarnedECTS
		if area.CountsTowardsGPA {
			for _, cp := range ap.Courses {
				gradeSum += cp.Grade * float64(cp.ECTS)
				ectsSum += float64(cp.ECTS)
			}
		}
		if short := area.RequiredECTS - ap.EarnedECTS; short > 0 {
			out.MissingECTS += short
		}
	}
	if ectsSum > 0 {
		gpa := gradeSum / ectsSum
		out.GPA = &gpa
	}
	return out, nil
}

// Missing lists the per-area ECTS shortfall for a computed degree progress.
func Missing(dp DegreeProgress) []MissingRequirement {
	var out []MissingRequirement
	for _, ap := range dp.Areas {
		short := ap.Area.RequiredECTS - ap.EarnedECTS
		if short < 0 {
			short = 0
		}
		out = append(out, MissingRequirement{AreaID: ap.Area.ID, AreaName: ap.Area.Name, Missing: short})
	}
	return out
}

// Unmapped lists courses that are eligible for at least one (degree, area)
// but have no committed mapping anywhere. They are excluded from every
// progress and GPA sum until mapped.
func (s *Snapshot) Unmapped() []CourseStanding {
	mapped := make(map[int64]bool, len(s.Mappings))
	for _, m := range s.Mappings {
		mapped[m.CourseID] = true
	}
	seen := make(map[int64]bool)
	var out []CourseStanding
	for _, e := range s.Eligible {
		if mapped[e.CourseID] || seen[e.CourseID] {
			continue
		}
		c, ok := s.Courses[e.CourseID]
		if !ok || c.Status == StatusDropped || c.Status == StatusArchived {
			continue
		}
		seen[e.CourseID] = true
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseID < out[j].CourseID })
	return out
}
