package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"unitrack/internal/config"
	"unitrack/internal/logging"
	"unitrack/internal/store"
)

var (
	// Global flags
	verbose   bool
	workspace string
	dbPath    string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "unitrack",
	Short: "unitrack - local student record and grade tracker",
	Long: `unitrack tracks courses, weighted grade components, exam attempts, and
degree progress in a local SQLite database.

Grades live in named grading schemes; cross-scheme comparison goes through
explicit conversion tables. Exam retakes are governed by per-institution
policies with audited manual overrides. Progress reports aggregate earned
ECTS and ECTS-weighted GPA per degree area.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to resolve workspace: %w", err)
			}
		}
		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// loadConfig reads the workspace config with environment overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.DefaultPath(workspace))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore opens the SQLite store with the config as policy source.
// The --db flag outranks the configured path.
func openStore() (*store.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	path := cfg.Database.Path
	if dbPath != "" {
		path = dbPath
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(workspace, path)
	}
	st, err := store.Open(path, cfg)
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&workspace, "workspace", "", "Workspace directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides config)")

	rootCmd.AddCommand(schemeCmd)
	rootCmd.AddCommand(courseCmd)
	rootCmd.AddCommand(gradeCmd)
	rootCmd.AddCommand(examCmd)
	rootCmd.AddCommand(degreeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
