package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"unitrack/internal/config"
)

var (
	cfgStudentName  string
	cfgInstitution  string
	cfgScheme       string
	cfgDatabasePath string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the workspace configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultPath(workspace)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}

		cfg := config.DefaultConfig()
		if cfgStudentName != "" {
			cfg.Student.Name = cfgStudentName
		}
		if cfgInstitution != "" {
			cfg.DefaultInstitution = cfgInstitution
		}
		if cfgScheme != "" {
			cfg.DefaultScheme = cfgScheme
		}
		if cfgDatabasePath != "" {
			cfg.Database.Path = cfgDatabasePath
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&cfgStudentName, "student", "", "Student name")
	configInitCmd.Flags().StringVar(&cfgInstitution, "institution", "", "Default institution")
	configInitCmd.Flags().StringVar(&cfgScheme, "scheme", "", "Default grading scheme")
	configInitCmd.Flags().StringVar(&cfgDatabasePath, "db", "", "Database path")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
