package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"unitrack/cmd/unitrack/ui"
	"unitrack/internal/scheme"
)

var (
	schemeDirection string
	schemeScale     string
	schemePass      float64
)

var schemeCmd = &cobra.Command{
	Use:   "scheme",
	Short: "Manage grading schemes and conversion tables",
}

var schemeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all grading schemes",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		infos, err := st.ListSchemes()
		if err != nil {
			return err
		}

		styles := ui.DefaultStyles()
		table := ui.NewSimpleTable("Grading Schemes", []string{"Name", "Direction", "Scale", "Pass", "Origin"})
		for _, info := range infos {
			origin := "user"
			if info.Builtin {
				origin = "built-in"
			}
			table.AddRow(
				info.Scheme.Name,
				string(info.Scheme.Direction),
				formatScale(info.Scheme.Scale),
				fmt.Sprintf("%.1f", info.Scheme.PassThreshold),
				origin,
			)
		}
		fmt.Print(table.View(styles))
		return nil
	},
}

var schemeAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a user-defined grading scheme",
	Long: `Adds a grading scheme. The scale is a comma-separated list of grade
values ordered from best to worst, and the pass threshold must lie on the
passing side of the scale.

Example:
  unitrack scheme add swiss --direction higher-is-better --scale 6,5.5,5,4.5,4,3,2,1 --pass 4`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := scheme.ParseDirection(schemeDirection)
		if err != nil {
			return err
		}
		scale, err := parseScale(schemeScale)
		if err != nil {
			return err
		}

		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		sch := &scheme.Scheme{Name: args[0], Direction: dir, Scale: scale, PassThreshold: schemePass}
		if err := st.SaveScheme(sch); err != nil {
			return err
		}
		fmt.Printf("Saved scheme %s\n", args[0])
		return nil
	},
}

var schemeDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a user-defined grading scheme",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeleteScheme(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted scheme %s\n", args[0])
		return nil
	},
}

var schemeMapCmd = &cobra.Command{
	Use:   "map [from-scheme] [to-scheme] [from-value] [to-value]",
	Short: "Add one conversion table entry between two schemes",
	Long: `Records that a grade value in one scheme corresponds to a value in
another. Conversion is exact lookup: converting a value with no entry fails
rather than interpolating.`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		fromValue, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid source value %q", args[2])
		}
		toValue, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return fmt.Errorf("invalid target value %q", args[3])
		}

		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		entry := scheme.ConversionEntry{
			FromScheme: args[0],
			ToScheme:   args[1],
			FromValue:  fromValue,
			ToValue:    toValue,
		}
		if err := st.AddConversion(entry); err != nil {
			return err
		}
		fmt.Printf("Mapped %s %.2f -> %s %.2f\n", args[0], fromValue, args[1], toValue)
		return nil
	},
}

var schemeConvertCmd = &cobra.Command{
	Use:   "convert [value] [from-scheme] [to-scheme]",
	Short: "Convert a grade value through the stored conversion table",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid value %q", args[0])
		}

		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		reg, err := st.Registry()
		if err != nil {
			return err
		}
		converted, err := reg.Convert(value, args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("%s %.2f = %s %.2f\n", args[1], value, args[2], converted)
		return nil
	},
}

var schemeConversionsCmd = &cobra.Command{
	Use:   "conversions [from-scheme] [to-scheme]",
	Short: "Show the conversion table between two schemes",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.Conversions(args[0], args[1])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Printf("No conversions stored for %s -> %s\n", args[0], args[1])
			return nil
		}

		styles := ui.DefaultStyles()
		table := ui.NewSimpleTable(fmt.Sprintf("Conversions %s -> %s", args[0], args[1]), []string{args[0], args[1]})
		for _, e := range entries {
			table.AddRow(fmt.Sprintf("%.2f", e.FromValue), fmt.Sprintf("%.2f", e.ToValue))
		}
		fmt.Print(table.View(styles))
		return nil
	},
}

func parseScale(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	scale := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid scale value %q", p)
		}
		scale = append(scale, v)
	}
	return scale, nil
}

func formatScale(scale []float64) string {
	if len(scale) <= 4 {
		parts := make([]string, len(scale))
		for i, v := range scale {
			parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprintf("%g..%g (%d steps)", scale[0], scale[len(scale)-1], len(scale))
}

func init() {
	schemeAddCmd.Flags().StringVar(&schemeDirection, "direction", "lower-is-better", "Scale direction: lower-is-better or higher-is-better")
	schemeAddCmd.Flags().StringVar(&schemeScale, "scale", "", "Comma-separated grade values, best to worst")
	schemeAddCmd.Flags().Float64Var(&schemePass, "pass", 0, "Pass threshold")
	schemeAddCmd.MarkFlagRequired("scale")
	schemeAddCmd.MarkFlagRequired("pass")

	schemeCmd.AddCommand(schemeListCmd)
	schemeCmd.AddCommand(schemeAddCmd)
	schemeCmd.AddCommand(schemeDeleteCmd)
	schemeCmd.AddCommand(schemeMapCmd)
	schemeCmd.AddCommand(schemeConvertCmd)
	schemeCmd.AddCommand(schemeConversionsCmd)
}
