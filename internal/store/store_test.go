package store

import (
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/goleak"

	"unitrack/internal/exam"
	"unitrack/internal/scheme"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubPolicies serves a fixed policy per institution, standing in for the
// configuration layer.
type stubPolicies struct {
	byInstitution map[string]exam.Policy
}

func (p *stubPolicies) InstitutionPolicy(institution string) exam.Policy {
	if pol, ok := p.byInstitution[institution]; ok {
		return pol
	}
	return exam.DefaultPolicy()
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return newTestStoreWithPolicies(t, &stubPolicies{})
}

func newTestStoreWithPolicies(t *testing.T, policies exam.PolicySource) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "unitrack.db"), policies)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addTestCourse(t *testing.T, s *Store, short string, ects int) *Course {
	t.Helper()
	c := &Course{ShortName: short, Name: short, ECTS: ects, Institution: "tum", Scheme: "german"}
	if err := s.AddCourse(c); err != nil {
		t.Fatalf("AddCourse(%s) error: %v", short, err)
	}
	return c
}

func TestOpenSeedsBuiltinSchemes(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	infos, err := s.ListSchemes()
	if err != nil {
		t.Fatalf("ListSchemes error: %v", err)
	}

	want := map[string]bool{}
	for _, b := range scheme.Builtins() {
		want[b.Name] = true
	}
	for _, info := range infos {
		if want[info.Scheme.Name] && !info.Builtin {
			t.Errorf("scheme %s should be marked builtin", info.Scheme.Name)
		}
		delete(want, info.Scheme.Name)
	}
	if len(want) > 0 {
		t.Errorf("missing builtin schemes after open: %v", want)
	}
}

func TestReopenKeepsData(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "unitrack.db")
	s, err := Open(path, &stubPolicies{})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	addTestCourse(t, s, "algo", 6)
	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	s2, err := Open(path, &stubPolicies{})
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	t.Cleanup(func() { s2.Close() })

	c, err := s2.GetCourse("algo")
	if err != nil {
		t.Fatalf("GetCourse after reopen error: %v", err)
	}
	if c.ECTS != 6 {
		t.Errorf("ECTS = %d, want 6", c.ECTS)
	}
}

func TestSaveAndDeleteScheme(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	custom := &scheme.Scheme{
		Name:          "swiss",
		Direction:     scheme.HigherIsBetter,
		Scale:         []float64{6, 5, 4, 3, 2, 1},
		PassThreshold: 4,
	}
	if err := s.SaveScheme(custom); err != nil {
		t.Fatalf("SaveScheme error: %v", err)
	}

	got, err := s.GetScheme("swiss")
	if err != nil {
		t.Fatalf("GetScheme error: %v", err)
	}
	if got.Direction != scheme.HigherIsBetter || got.PassThreshold != 4 {
		t.Errorf("unexpected scheme loaded: %+v", got)
	}

	if err := s.DeleteScheme("german"); err == nil {
		t.Error("deleting a builtin scheme should fail")
	}

	c := &Course{ShortName: "skiing", Name: "Skiing", ECTS: 3, Scheme: "swiss"}
	if err := s.AddCourse(c); err != nil {
		t.Fatalf("AddCourse error: %v", err)
	}
	if err := s.DeleteScheme("swiss"); err == nil {
		t.Error("deleting a scheme referenced by a course should fail")
	}
	if err := s.DeleteCourse("skiing"); err != nil {
		t.Fatalf("DeleteCourse error: %v", err)
	}
	if err := s.DeleteScheme("swiss"); err != nil {
		t.Errorf("DeleteScheme after course removal error: %v", err)
	}
}

func TestConversionRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	entries := []scheme.ConversionEntry{
		{FromScheme: "us", ToScheme: "german", FromValue: 4.0, ToValue: 1.0},
		{FromScheme: "us", ToScheme: "german", FromValue: 3.0, ToValue: 2.0},
	}
	for _, e := range entries {
		if err := s.AddConversion(e); err != nil {
			t.Fatalf("AddConversion error: %v", err)
		}
	}

	got, err := s.Conversions("us", "german")
	if err != nil {
		t.Fatalf("Conversions error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}

	reg, err := s.Registry()
	if err != nil {
		t.Fatalf("Registry error: %v", err)
	}
	v, err := reg.Convert(4.0, "us", "german")
	if err != nil {
		t.Fatalf("Convert error: %v", err)
	}
	if v != 1.0 {
		t.Errorf("Convert(4.0) = %v, want 1.0", v)
	}
	_, err = reg.Convert(3.7, "us", "german")
	var ue *scheme.UnmappedGradeValueError
	if !errors.As(err, &ue) {
		t.Errorf("expected UnmappedGradeValueError for 3.7, got %v", err)
	}

	bad := scheme.ConversionEntry{FromScheme: "us", ToScheme: "german", FromValue: 2.0, ToValue: 9.0}
	if err := s.AddConversion(bad); err == nil {
		t.Error("conversion target outside the scale should be rejected")
	}
}

func TestCourseLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	addTestCourse(t, s, "algo", 6)

	dup := &Course{ShortName: "algo", Name: "again", ECTS: 6, Scheme: "german"}
	if err := s.AddCourse(dup); err == nil {
		t.Error("duplicate short name should be rejected")
	}

	bad := &Course{ShortName: "mystery", Name: "m", ECTS: 3, Scheme: "klingon"}
	if err := s.AddCourse(bad); err == nil {
		t.Error("unknown scheme should be rejected")
	}

	c2 := &Course{ShortName: "db", Name: "Databases", ECTS: 5, Institution: "lmu", Scheme: "german", Status: "completed"}
	if err := s.AddCourse(c2); err != nil {
		t.Fatalf("AddCourse error: %v", err)
	}

	all, err := s.ListCourses("", "")
	if err != nil {
		t.Fatalf("ListCourses error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d courses, want 2", len(all))
	}
	lmuOnly, err := s.ListCourses("", "lmu")
	if err != nil {
		t.Fatalf("ListCourses(institution) error: %v", err)
	}
	if len(lmuOnly) != 1 || lmuOnly[0].ShortName != "db" {
		t.Errorf("institution filter returned %v", lmuOnly)
	}
	enrolled, err := s.ListCourses("enrolled", "")
	if err != nil {
		t.Fatalf("ListCourses(status) error: %v", err)
	}
	if len(enrolled) != 1 || enrolled[0].ShortName != "algo" {
		t.Errorf("status filter returned %v", enrolled)
	}

	if err := s.SetCourseStatus("algo", "dropped", false, ""); err != nil {
		t.Fatalf("SetCourseStatus error: %v", err)
	}
	c, err := s.GetCourse("algo")
	if err != nil {
		t.Fatalf("GetCourse error: %v", err)
	}
	if c.Status != "dropped" {
		t.Errorf("status = %q, want dropped", c.Status)
	}

	if err := s.DeleteCourse("algo"); err != nil {
		t.Fatalf("DeleteCourse error: %v", err)
	}
	_, err = s.GetCourse("algo")
	var nfe *NotFoundError
	if !errors.As(err, &nfe) {
		t.Errorf("expected NotFoundError after delete, got %v", err)
	}
}

func TestCompletionRequiresPassingGrade(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	addTestCourse(t, s, "algo", 6)

	if err := s.SetCourseStatus("algo", "completed", false, ""); err == nil {
		t.Fatal("completing an ungraded course should fail")
	}
	if err := s.SetCourseStatus("algo", "completed", true, ""); err == nil {
		t.Fatal("forcing completion without a note should fail")
	}
	if err := s.SetCourseStatus("algo", "completed", true, "credit transferred on paper"); err != nil {
		t.Fatalf("forced completion error: %v", err)
	}

	trail, err := s.AuditTrail("algo")
	if err != nil {
		t.Fatalf("AuditTrail error: %v", err)
	}
	if len(trail) != 1 || trail[0].Action != "force-complete" {
		t.Errorf("audit trail = %+v, want one force-complete entry", trail)
	}
}

func TestUpdateCourseRejectsSchemeChangeWithGrades(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	c := addTestCourse(t, s, "algo", 6)

	if err := s.AddGradeComponent("algo", "exam", 100, false, false); err != nil {
		t.Fatalf("AddGradeComponent error: %v", err)
	}
	g := 1.7
	if err := s.ScoreComponent("algo", "exam", &g, nil, nil); err != nil {
		t.Fatalf("ScoreComponent error: %v", err)
	}

	c.Scheme = "us"
	if err := s.UpdateCourse(c); err == nil {
		t.Error("scheme change with recorded grades should be rejected")
	}
}
