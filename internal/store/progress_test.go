package store

import (
	"math"
	"testing"

	"unitrack/internal/progress"
)

func setUpDegree(t *testing.T, s *Store) {
	t.Helper()
	d := &progress.Degree{Type: "msc", Name: "CS", Institution: "tum", TotalECTSRequired: 120, Scheme: "german"}
	if err := s.AddDegree(d); err != nil {
		t.Fatalf("AddDegree error: %v", err)
	}
	core := &progress.Area{Name: "Core", RequiredECTS: 30, CountsTowardsGPA: true}
	if err := s.AddArea("CS", core); err != nil {
		t.Fatalf("AddArea(Core) error: %v", err)
	}
	lang := &progress.Area{Name: "Languages", RequiredECTS: 10, CountsTowardsGPA: false}
	if err := s.AddArea("CS", lang); err != nil {
		t.Fatalf("AddArea(Languages) error: %v", err)
	}
}

func gradeCourse(t *testing.T, s *Store, short string, grade float64) {
	t.Helper()
	if err := s.AddGradeComponent(short, "exam", 100, false, false); err != nil {
		t.Fatalf("AddGradeComponent(%s) error: %v", short, err)
	}
	if err := s.ScoreComponent(short, "exam", &grade, nil, nil); err != nil {
		t.Fatalf("ScoreComponent(%s) error: %v", short, err)
	}
}

func TestDegreeProgressEndToEnd(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	setUpDegree(t, s)

	addTestCourse(t, s, "algo", 5)
	addTestCourse(t, s, "db", 5)
	addTestCourse(t, s, "os", 5)
	gradeCourse(t, s, "algo", 1.0)
	gradeCourse(t, s, "db", 2.0)
	gradeCourse(t, s, "os", 2.3)

	for _, short := range []string{"algo", "db", "os"} {
		if err := s.AddEligibility(short, "CS", "Core", true, ""); err != nil {
			t.Fatalf("AddEligibility(%s) error: %v", short, err)
		}
	}

	// Mapping requires a recorded eligibility.
	if err := s.MapCourse("algo", "CS", "Languages", nil); err == nil {
		t.Fatal("mapping outside the eligible areas should fail")
	}

	for _, short := range []string{"algo", "db"} {
		if err := s.MapCourse(short, "CS", "Core", nil); err != nil {
			t.Fatalf("MapCourse(%s) error: %v", short, err)
		}
	}
	override := 4
	if err := s.MapCourse("os", "CS", "Core", &override); err != nil {
		t.Fatalf("MapCourse(os) error: %v", err)
	}

	dp, err := s.DegreeProgress("CS")
	if err != nil {
		t.Fatalf("DegreeProgress error: %v", err)
	}
	if dp.EarnedECTS != 14 {
		t.Errorf("EarnedECTS = %d, want 14", dp.EarnedECTS)
	}
	if dp.GPA == nil {
		t.Fatal("expected a degree GPA")
	}
	// (1.0*5 + 2.0*5 + 2.3*4) / 14
	want := (5.0 + 10.0 + 9.2) / 14.0
	if math.Abs(*dp.GPA-want) > 1e-9 {
		t.Errorf("GPA = %v, want %v", *dp.GPA, want)
	}
	// Core is short 16, Languages short 10.
	if dp.MissingECTS != 26 {
		t.Errorf("MissingECTS = %d, want 26", dp.MissingECTS)
	}
}

func TestDroppedCourseLeavesProgress(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	setUpDegree(t, s)

	addTestCourse(t, s, "algo", 5)
	gradeCourse(t, s, "algo", 1.0)
	if err := s.AddEligibility("algo", "CS", "Core", false, ""); err != nil {
		t.Fatalf("AddEligibility error: %v", err)
	}
	if err := s.MapCourse("algo", "CS", "Core", nil); err != nil {
		t.Fatalf("MapCourse error: %v", err)
	}

	if err := s.SetCourseStatus("algo", "dropped", false, ""); err != nil {
		t.Fatalf("SetCourseStatus error: %v", err)
	}
	dp, err := s.DegreeProgress("CS")
	if err != nil {
		t.Fatalf("DegreeProgress error: %v", err)
	}
	if dp.EarnedECTS != 0 || dp.GPA != nil {
		t.Errorf("dropped course still counts: %+v", dp)
	}
}

func TestUnmappedCourses(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	setUpDegree(t, s)

	addTestCourse(t, s, "algo", 5)
	addTestCourse(t, s, "db", 5)
	for _, short := range []string{"algo", "db"} {
		if err := s.AddEligibility(short, "CS", "Core", false, ""); err != nil {
			t.Fatalf("AddEligibility(%s) error: %v", short, err)
		}
	}
	if err := s.MapCourse("algo", "CS", "Core", nil); err != nil {
		t.Fatalf("MapCourse error: %v", err)
	}

	un, err := s.UnmappedCourses()
	if err != nil {
		t.Fatalf("UnmappedCourses error: %v", err)
	}
	if len(un) != 1 || un[0].ShortName != "db" {
		t.Errorf("unmapped = %+v, want just db", un)
	}
}

func TestRemapReplacesArea(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	setUpDegree(t, s)

	addTestCourse(t, s, "spanish", 3)
	gradeCourse(t, s, "spanish", 1.3)
	if err := s.AddEligibility("spanish", "CS", "Core", false, ""); err != nil {
		t.Fatalf("AddEligibility error: %v", err)
	}
	if err := s.AddEligibility("spanish", "CS", "Languages", true, "language credit"); err != nil {
		t.Fatalf("AddEligibility error: %v", err)
	}
	if err := s.MapCourse("spanish", "CS", "Core", nil); err != nil {
		t.Fatalf("MapCourse error: %v", err)
	}
	if err := s.MapCourse("spanish", "CS", "Languages", nil); err != nil {
		t.Fatalf("remap error: %v", err)
	}

	dp, err := s.DegreeProgress("CS")
	if err != nil {
		t.Fatalf("DegreeProgress error: %v", err)
	}
	for _, ap := range dp.Areas {
		switch ap.Area.Name {
		case "Core":
			if ap.EarnedECTS != 0 {
				t.Errorf("Core still holds %d ECTS after remap", ap.EarnedECTS)
			}
		case "Languages":
			if ap.EarnedECTS != 3 {
				t.Errorf("Languages holds %d ECTS, want 3", ap.EarnedECTS)
			}
			if ap.GPA != nil {
				t.Error("Languages is excluded from GPA")
			}
		}
	}

	// The eligibility backing the active mapping cannot be removed.
	if err := s.RemoveEligibility("spanish", "CS", "Languages"); err == nil {
		t.Error("removing eligibility under an active mapping should fail")
	}
	if err := s.UnmapCourse("spanish", "CS"); err != nil {
		t.Fatalf("UnmapCourse error: %v", err)
	}
	if err := s.RemoveEligibility("spanish", "CS", "Languages"); err != nil {
		t.Errorf("RemoveEligibility after unmap error: %v", err)
	}
}

func TestCoursesCountIndependentlyPerDegree(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	setUpDegree(t, s)

	cert := &progress.Degree{Type: "cert", Name: "DataCert", TotalECTSRequired: 30, Scheme: "german"}
	if err := s.AddDegree(cert); err != nil {
		t.Fatalf("AddDegree error: %v", err)
	}
	methods := &progress.Area{Name: "Methods", RequiredECTS: 15, CountsTowardsGPA: true}
	if err := s.AddArea("DataCert", methods); err != nil {
		t.Fatalf("AddArea error: %v", err)
	}

	addTestCourse(t, s, "stats", 5)
	gradeCourse(t, s, "stats", 1.7)
	if err := s.AddEligibility("stats", "CS", "Core", false, ""); err != nil {
		t.Fatalf("AddEligibility error: %v", err)
	}
	if err := s.AddEligibility("stats", "DataCert", "Methods", false, ""); err != nil {
		t.Fatalf("AddEligibility error: %v", err)
	}
	if err := s.MapCourse("stats", "CS", "Core", nil); err != nil {
		t.Fatalf("MapCourse error: %v", err)
	}
	override := 4
	if err := s.MapCourse("stats", "DataCert", "Methods", &override); err != nil {
		t.Fatalf("MapCourse error: %v", err)
	}

	cs, err := s.DegreeProgress("CS")
	if err != nil {
		t.Fatalf("DegreeProgress(CS) error: %v", err)
	}
	cert2, err := s.DegreeProgress("DataCert")
	if err != nil {
		t.Fatalf("DegreeProgress(DataCert) error: %v", err)
	}
	if cs.EarnedECTS != 5 || cert2.EarnedECTS != 4 {
		t.Errorf("ECTS = %d/%d, want 5/4", cs.EarnedECTS, cert2.EarnedECTS)
	}
}

func TestDeleteDegreeCascades(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	setUpDegree(t, s)

	addTestCourse(t, s, "algo", 5)
	if err := s.AddEligibility("algo", "CS", "Core", false, ""); err != nil {
		t.Fatalf("AddEligibility error: %v", err)
	}
	if err := s.MapCourse("algo", "CS", "Core", nil); err != nil {
		t.Fatalf("MapCourse error: %v", err)
	}

	if err := s.DeleteDegree("CS"); err != nil {
		t.Fatalf("DeleteDegree error: %v", err)
	}
	if _, err := s.GetDegree("CS"); err == nil {
		t.Error("degree should be gone")
	}
	// The course survives the degree.
	if _, err := s.GetCourse("algo"); err != nil {
		t.Errorf("course should survive degree deletion: %v", err)
	}
	un, err := s.UnmappedCourses()
	if err != nil {
		t.Fatalf("UnmappedCourses error: %v", err)
	}
	if len(un) != 0 {
		t.Errorf("eligibility rows should cascade away, got %+v", un)
	}
}
