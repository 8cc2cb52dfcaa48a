// Package config loads and saves the unitrack YAML configuration.
// The config holds student identity, database location, and per-institution
// grading defaults: which scheme an institution grades in and how its exam
// retake policy deviates from the built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"unitrack/internal/exam"
)

// Config holds all unitrack configuration.
type Config struct {
	// Student identity, printed on reports
	Student StudentConfig `yaml:"student"`

	// SQLite database location
	Database DatabaseConfig `yaml:"database"`

	// Institution applied to new courses when none is given
	DefaultInstitution string `yaml:"default_institution"`

	// Scheme applied when neither course nor institution names one
	DefaultScheme string `yaml:"default_scheme"`

	// Per-institution grading defaults, keyed by institution name
	Institutions map[string]InstitutionConfig `yaml:"institutions"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StudentConfig identifies the student the records belong to.
type StudentConfig struct {
	Name            string `yaml:"name"`
	Email           string `yaml:"email"`
	MatriculationID string `yaml:"matriculation_id"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// InstitutionConfig holds one institution's grading defaults.
type InstitutionConfig struct {
	// Scheme courses at this institution are graded in
	Scheme string `yaml:"scheme"`

	// Exam policy deviations from the built-in defaults.
	// Unset fields fall through to exam.DefaultPolicy.
	Policy PolicyConfig `yaml:"policy"`
}

// PolicyConfig is the YAML form of an exam policy override.
// Pointer fields distinguish "not set" from a zero value.
type PolicyConfig struct {
	MaxAttempts               *int    `yaml:"max_attempts,omitempty"`
	Strategy                  *string `yaml:"strategy,omitempty"`
	AllowRetakeAfterPass      *bool   `yaml:"allow_retake_after_pass,omitempty"`
	RequireGradeForCompletion *bool   `yaml:"require_grade_for_completion,omitempty"`
	WarnOnFinalAttempt        *bool   `yaml:"warn_on_final_attempt,omitempty"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories,omitempty"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: filepath.Join(".unitrack", "unitrack.db"),
		},
		DefaultScheme: "german",
		Institutions:  map[string]InstitutionConfig{},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the config file path under the given workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".unitrack", "config.yaml")
}

// Load loads configuration from a YAML file.
// A missing file returns the defaults, not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("UNITRACK_DB"); path != "" {
		c.Database.Path = path
	}
	if inst := os.Getenv("UNITRACK_INSTITUTION"); inst != "" {
		c.DefaultInstitution = inst
	}
	if sch := os.Getenv("UNITRACK_SCHEME"); sch != "" {
		c.DefaultScheme = sch
	}
}

// Validate checks the config for values the engine cannot work with.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	for name, inst := range c.Institutions {
		if inst.Policy.Strategy != nil {
			if _, err := exam.ParseStrategy(*inst.Policy.Strategy); err != nil {
				return fmt.Errorf("institution %q: %w", name, err)
			}
		}
		if inst.Policy.MaxAttempts != nil && *inst.Policy.MaxAttempts < 0 {
			return fmt.Errorf("institution %q: max_attempts must be >= 0", name)
		}
	}
	return nil
}

// SchemeFor returns the grading scheme for a course at the given institution:
// the institution's configured scheme if any, else the global default.
func (c *Config) SchemeFor(institution string) string {
	if inst, ok := c.Institutions[institution]; ok && inst.Scheme != "" {
		return inst.Scheme
	}
	return c.DefaultScheme
}

// policyOverride converts the YAML form into the resolver's override type.
func (p PolicyConfig) policyOverride() exam.PolicyOverride {
	var o exam.PolicyOverride
	o.MaxAttempts = p.MaxAttempts
	if p.Strategy != nil {
		if s, err := exam.ParseStrategy(*p.Strategy); err == nil {
			o.Strategy = &s
		}
	}
	o.AllowRetakeAfterPass = p.AllowRetakeAfterPass
	o.RequireGradeForCompletion = p.RequireGradeForCompletion
	o.WarnOnFinalAttempt = p.WarnOnFinalAttempt
	return o
}

// InstitutionPolicy resolves the effective exam policy for an institution:
// built-in defaults overlaid with the institution's configured deviations.
// Per-course overrides are applied by the store on top of this.
func (c *Config) InstitutionPolicy(institution string) exam.Policy {
	pol := exam.DefaultPolicy()
	if inst, ok := c.Institutions[institution]; ok {
		o := inst.Policy.policyOverride()
		pol = exam.Resolve(pol, &o)
	}
	return pol
}
