package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"unitrack/cmd/unitrack/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status [degree]",
	Short: "Show degree progress: earned ECTS, GPA, and missing requirements",
	Long: `Without arguments, reports progress for every degree. With a degree
name, reports that degree in detail: per-area earned ECTS and GPA, the
degree GPA, the per-area shortfall, and courses still awaiting a mapping.

Only mapped, non-dropped courses with a passing active grade contribute.
GPA is the ECTS-weighted average over areas that count toward it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		styles := ui.DefaultStyles()

		degrees, err := st.ListDegrees()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			found := false
			for _, d := range degrees {
				if d.Name == args[0] {
					degrees = degrees[:0]
					degrees = append(degrees, d)
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("degree not found: %s", args[0])
			}
		}

		for _, d := range degrees {
			dp, err := st.DegreeProgress(d.Name)
			if err != nil {
				return err
			}

			fmt.Println(styles.Title.Render(fmt.Sprintf("%s %s", d.Type, d.Name)))

			table := ui.NewSimpleTable("", []string{"Area", "Earned", "Required", "Missing", "GPA"})
			for _, ap := range dp.Areas {
				missing := ap.Area.RequiredECTS - ap.EarnedECTS
				if missing < 0 {
					missing = 0
				}
				gpa := styles.Muted.Render("n/a")
				if ap.GPA != nil {
					gpa = fmt.Sprintf("%.2f", *ap.GPA)
				} else if !ap.Area.CountsTowardsGPA {
					gpa = styles.Muted.Render("excluded")
				}
				table.AddRow(
					ap.Area.Name,
					fmt.Sprintf("%d", ap.EarnedECTS),
					fmt.Sprintf("%d", ap.Area.RequiredECTS),
					fmt.Sprintf("%d", missing),
					gpa,
				)
			}
			fmt.Print(table.View(styles))

			fmt.Printf("Earned: %d", dp.EarnedECTS)
			if d.TotalECTSRequired > 0 {
				fmt.Printf(" / %d ECTS", d.TotalECTSRequired)
			} else {
				fmt.Print(" ECTS")
			}
			if dp.GPA != nil {
				fmt.Printf("   GPA: %s", styles.Bold.Render(fmt.Sprintf("%.2f (%s)", *dp.GPA, d.Scheme)))
			} else {
				fmt.Printf("   GPA: %s", styles.Muted.Render("no graded courses"))
			}
			fmt.Println()
			if dp.MissingECTS > 0 {
				fmt.Println(styles.Warning.Render(fmt.Sprintf("Missing %d ECTS across areas", dp.MissingECTS)))
			}
			fmt.Println()
		}

		// Eligible-but-unmapped courses count toward nothing until committed
		unmapped, err := st.UnmappedCourses()
		if err != nil {
			return err
		}
		if len(unmapped) > 0 {
			fmt.Println(styles.Subtitle.Render("Unmapped courses (eligible, not committed):"))
			for _, c := range unmapped {
				fmt.Printf("  %s - %s (%d ECTS)\n", c.ShortName, c.Name, c.ECTS)
			}
		}
		return nil
	},
}
