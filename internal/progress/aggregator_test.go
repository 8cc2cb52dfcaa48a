package progress

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitrack/internal/scheme"
)

func registry(t *testing.T) *scheme.Registry {
	t.Helper()
	reg := scheme.NewRegistry()
	for _, s := range scheme.Builtins() {
		require.NoError(t, reg.Register(s))
	}
	return reg
}

func course(id int64, short string, ects int, grade float64) CourseStanding {
	return CourseStanding{
		CourseID:  id,
		ShortName: short,
		Name:      short,
		ECTS:      ects,
		Scheme:    "german",
		Status:    StatusEnrolled,
		Grade:     grade,
		Passed:    true,
		Graded:    true,
	}
}

func intp(v int) *int { return &v }

func snapshot() *Snapshot {
	return &Snapshot{
		Degrees: []Degree{{ID: 1, Type: "msc", Name: "CS", TotalECTSRequired: 120, Scheme: "german"}},
		Areas: []Area{
			{ID: 10, DegreeID: 1, Name: "Core", RequiredECTS: 30, CountsTowardsGPA: true},
			{ID: 11, DegreeID: 1, Name: "Languages", RequiredECTS: 10, CountsTowardsGPA: false},
		},
		Courses: map[int64]CourseStanding{},
	}
}

func TestAreaGPAWeightedByECTS(t *testing.T) {
	snap := snapshot()
	snap.Courses[1] = course(1, "algo", 5, 1.0)
	snap.Courses[2] = course(2, "db", 5, 2.0)
	snap.Courses[3] = course(3, "os", 5, 2.2)
	snap.Mappings = []Mapping{
		{CourseID: 1, DegreeID: 1, AreaID: 10},
		{CourseID: 2, DegreeID: 1, AreaID: 10},
		{CourseID: 3, DegreeID: 1, AreaID: 10},
	}

	ap, err := snap.AreaProgressFor(registry(t), snap.Areas[0], "german")
	require.NoError(t, err)
	assert.Equal(t, 15, ap.EarnedECTS)
	require.NotNil(t, ap.GPA)
	assert.InDelta(t, 26.0/15.0, *ap.GPA, 1e-9)
}

func TestNonGPAAreaListsCoursesWithoutGPA(t *testing.T) {
	snap := snapshot()
	snap.Courses[4] = course(4, "spanish", 3, 1.3)
	snap.Mappings = []Mapping{{CourseID: 4, DegreeID: 1, AreaID: 11}}

	ap, err := snap.AreaProgressFor(registry(t), snap.Areas[1], "german")
	require.NoError(t, err)
	assert.Equal(t, 3, ap.EarnedECTS)
	assert.Nil(t, ap.GPA)
	require.Len(t, ap.Courses, 1)
	assert.Equal(t, "spanish", ap.Courses[0].ShortName)
}

func TestDroppedAndUngradedExcluded(t *testing.T) {
	snap := snapshot()
	graded := course(1, "algo", 5, 1.0)
	dropped := course(2, "db", 5, 2.0)
	dropped.Status = StatusDropped
	archived := course(3, "os", 5, 2.0)
	archived.Status = StatusArchived
	pending := course(4, "ml", 5, 0)
	pending.Graded = false
	pending.Passed = false
	failed := course(5, "stats", 5, 5.0)
	failed.Passed = false
	snap.Courses[1] = graded
	snap.Courses[2] = dropped
	snap.Courses[3] = archived
	snap.Courses[4] = pending
	snap.Courses[5] = failed
	for id := int64(1); id <= 5; id++ {
		snap.Mappings = append(snap.Mappings, Mapping{CourseID: id, DegreeID: 1, AreaID: 10})
	}

	ap, err := snap.AreaProgressFor(registry(t), snap.Areas[0], "german")
	require.NoError(t, err)
	assert.Equal(t, 5, ap.EarnedECTS)
	require.Len(t, ap.Courses, 1)
	assert.Equal(t, int64(1), ap.Courses[0].CourseID)
}

func TestECTSOverrideReplacesCourseECTS(t *testing.T) {
	snap := snapshot()
	snap.Courses[1] = course(1, "algo", 9, 2.0)
	snap.Mappings = []Mapping{{CourseID: 1, DegreeID: 1, AreaID: 10, ECTSOverride: intp(6)}}

	ap, err := snap.AreaProgressFor(registry(t), snap.Areas[0], "german")
	require.NoError(t, err)
	assert.Equal(t, 6, ap.EarnedECTS)
	assert.Equal(t, 6, ap.Courses[0].ECTS)
}

func TestDegreeProgressAggregatesAreas(t *testing.T) {
	snap := snapshot()
	snap.Courses[1] = course(1, "algo", 10, 1.0)
	snap.Courses[2] = course(2, "spanish", 5, 3.0)
	snap.Mappings = []Mapping{
		{CourseID: 1, DegreeID: 1, AreaID: 10},
		{CourseID: 2, DegreeID: 1, AreaID: 11},
	}

	dp, err := snap.DegreeProgressFor(registry(t), snap.Degrees[0])
	require.NoError(t, err)
	assert.Equal(t, 15, dp.EarnedECTS)
	// The language area is excluded from GPA, so only algo contributes.
	require.NotNil(t, dp.GPA)
	assert.InDelta(t, 1.0, *dp.GPA, 1e-9)
	// Core is short 20, Languages short 5.
	assert.Equal(t, 25, dp.MissingECTS)

	want := []MissingRequirement{
		{AreaID: 10, AreaName: "Core", Missing: 20},
		{AreaID: 11, AreaName: "Languages", Missing: 5},
	}
	if diff := cmp.Diff(want, Missing(dp)); diff != "" {
		t.Errorf("missing requirements mismatch (-want +got):\n%s", diff)
	}
}

func TestDegreesAggregateIndependently(t *testing.T) {
	snap := snapshot()
	snap.Degrees = append(snap.Degrees, Degree{ID: 2, Type: "cert", Name: "DataCert", TotalECTSRequired: 30, Scheme: "german"})
	snap.Areas = append(snap.Areas, Area{ID: 20, DegreeID: 2, Name: "Methods", RequiredECTS: 15, CountsTowardsGPA: true})
	snap.Courses[1] = course(1, "stats", 5, 1.7)
	snap.Courses[2] = course(2, "algo", 5, 1.0)
	snap.Mappings = []Mapping{
		{CourseID: 1, DegreeID: 1, AreaID: 10},
		{CourseID: 1, DegreeID: 2, AreaID: 20, ECTSOverride: intp(4)},
		{CourseID: 2, DegreeID: 1, AreaID: 10},
	}

	reg := registry(t)
	dp1, err := snap.DegreeProgressFor(reg, snap.Degrees[0])
	require.NoError(t, err)
	dp2, err := snap.DegreeProgressFor(reg, snap.Degrees[1])
	require.NoError(t, err)

	// stats counts fully in both degrees, at 5 and 4 ECTS respectively.
	assert.Equal(t, 10, dp1.EarnedECTS)
	assert.InDelta(t, 1.35, *dp1.GPA, 1e-9)
	assert.Equal(t, 4, dp2.EarnedECTS)
	assert.InDelta(t, 1.7, *dp2.GPA, 1e-9)
}

func TestConversionThroughRegistry(t *testing.T) {
	reg := registry(t)
	require.NoError(t, reg.AddConversion(scheme.ConversionEntry{FromScheme: "us", ToScheme: "german", FromValue: 4.0, ToValue: 1.0}))
	require.NoError(t, reg.AddConversion(scheme.ConversionEntry{FromScheme: "us", ToScheme: "german", FromValue: 3.0, ToValue: 2.0}))

	snap := snapshot()
	external := course(1, "abroad", 6, 4.0)
	external.Scheme = "us"
	snap.Courses[1] = external
	snap.Mappings = []Mapping{{CourseID: 1, DegreeID: 1, AreaID: 10}}

	ap, err := snap.AreaProgressFor(reg, snap.Areas[0], "german")
	require.NoError(t, err)
	require.NotNil(t, ap.GPA)
	assert.InDelta(t, 1.0, *ap.GPA, 1e-9)
	assert.Equal(t, "german", ap.Courses[0].Scheme)
}

func TestMissingConversionIsHardError(t *testing.T) {
	snap := snapshot()
	external := course(1, "abroad", 6, 3.7)
	external.Scheme = "us"
	snap.Courses[1] = external
	snap.Mappings = []Mapping{{CourseID: 1, DegreeID: 1, AreaID: 10}}

	_, err := snap.AreaProgressFor(registry(t), snap.Areas[0], "german")
	var ue *scheme.UnmappedGradeValueError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 3.7, ue.Value)

	_, err = snap.DegreeProgressFor(registry(t), snap.Degrees[0])
	assert.Error(t, err)
}

func TestUnmappedCourses(t *testing.T) {
	snap := snapshot()
	snap.Courses[1] = course(1, "algo", 5, 1.0)
	snap.Courses[2] = course(2, "db", 5, 2.0)
	dropped := course(3, "os", 5, 2.0)
	dropped.Status = StatusDropped
	snap.Courses[3] = dropped
	snap.Eligible = []Eligibility{
		{CourseID: 1, DegreeID: 1, AreaID: 10},
		{CourseID: 2, DegreeID: 1, AreaID: 10},
		{CourseID: 2, DegreeID: 1, AreaID: 11},
		{CourseID: 3, DegreeID: 1, AreaID: 10},
	}
	snap.Mappings = []Mapping{{CourseID: 1, DegreeID: 1, AreaID: 10}}

	un := snap.Unmapped()
	require.Len(t, un, 1)
	assert.Equal(t, int64(2), un[0].CourseID)
}
