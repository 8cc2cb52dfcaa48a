package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitrack/internal/exam"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join(".unitrack", "unitrack.db"), cfg.Database.Path)
	assert.Equal(t, "german", cfg.DefaultScheme)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NotNil(t, cfg.Institutions)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "german", cfg.DefaultScheme)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".unitrack", "config.yaml")

	cfg := DefaultConfig()
	cfg.Student.Name = "Erika Mustermann"
	cfg.Student.MatriculationID = "0123456"
	cfg.DefaultInstitution = "tum"
	max := 3
	retake := true
	strat := string(exam.Best)
	cfg.Institutions["tum"] = InstitutionConfig{
		Scheme: "german",
		Policy: PolicyConfig{MaxAttempts: &max, Strategy: &strat, AllowRetakeAfterPass: &retake},
	}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Erika Mustermann", loaded.Student.Name)
	assert.Equal(t, "tum", loaded.DefaultInstitution)

	inst, ok := loaded.Institutions["tum"]
	require.True(t, ok)
	require.NotNil(t, inst.Policy.MaxAttempts)
	assert.Equal(t, 3, *inst.Policy.MaxAttempts)
	// Unset fields stay nil so they fall through to the defaults.
	assert.Nil(t, inst.Policy.RequireGradeForCompletion)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("UNITRACK_DB", "/tmp/override.db")
	t.Setenv("UNITRACK_INSTITUTION", "lmu")
	t.Setenv("UNITRACK_SCHEME", "us")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, "lmu", cfg.DefaultInstitution)
	assert.Equal(t, "us", cfg.DefaultScheme)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("student: [not a mapping"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Path = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	bad := "lottery"
	cfg.Institutions["tum"] = InstitutionConfig{Policy: PolicyConfig{Strategy: &bad}}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	neg := -1
	cfg.Institutions["tum"] = InstitutionConfig{Policy: PolicyConfig{MaxAttempts: &neg}}
	assert.Error(t, cfg.Validate())
}

func TestSchemeFor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Institutions["lmu"] = InstitutionConfig{Scheme: "us"}
	assert.Equal(t, "us", cfg.SchemeFor("lmu"))
	assert.Equal(t, "german", cfg.SchemeFor("tum"))
	assert.Equal(t, "german", cfg.SchemeFor(""))
}

func TestInstitutionPolicy(t *testing.T) {
	cfg := DefaultConfig()
	max := 3
	retake := true
	strat := string(exam.Best)
	cfg.Institutions["tum"] = InstitutionConfig{
		Policy: PolicyConfig{MaxAttempts: &max, Strategy: &strat, AllowRetakeAfterPass: &retake},
	}

	pol := cfg.InstitutionPolicy("tum")
	assert.Equal(t, 3, pol.MaxAttempts)
	assert.Equal(t, exam.Best, pol.Strategy)
	assert.True(t, pol.AllowRetakeAfterPass)
	// Fields the institution leaves unset keep the built-in defaults.
	assert.True(t, pol.RequireGradeForCompletion)
	assert.True(t, pol.WarnOnFinalAttempt)

	assert.Equal(t, exam.DefaultPolicy(), cfg.InstitutionPolicy("unknown"))
}
