package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"unitrack/cmd/unitrack/ui"
	"unitrack/internal/progress"
)

var (
	degreeType        string
	degreeInstitution string
	degreeScheme      string
	degreeTotalECTS   int

	areaRequiredECTS int
	areaNoGPA        bool

	eligibleRecommended bool
	eligibleNotes       string

	mapECTSOverride int
)

var degreeCmd = &cobra.Command{
	Use:   "degree",
	Short: "Manage degree programs, requirement areas, and course mappings",
}

var degreeAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a degree program",
	Long: `Adds a degree. The scheme is the reporting scheme: GPA values in
progress reports are expressed in it, converting course grades through the
stored conversion tables where schemes differ.

Example:
  unitrack degree add "Computer Science" --type BSc --total-ects 180`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, cfg, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		sch := degreeScheme
		if sch == "" {
			sch = cfg.DefaultScheme
		}
		d := &progress.Degree{
			Type:              degreeType,
			Name:              args[0],
			Institution:       degreeInstitution,
			Scheme:            sch,
			TotalECTSRequired: degreeTotalECTS,
		}
		if err := st.AddDegree(d); err != nil {
			return err
		}
		fmt.Printf("Added degree %s %s\n", d.Type, d.Name)
		return nil
	},
}

var degreeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List degree programs",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		degrees, err := st.ListDegrees()
		if err != nil {
			return err
		}

		styles := ui.DefaultStyles()
		table := ui.NewSimpleTable("Degrees", []string{"Type", "Name", "Institution", "Scheme", "Total ECTS"})
		for _, d := range degrees {
			table.AddRow(d.Type, d.Name, d.Institution, d.Scheme, fmt.Sprintf("%d", d.TotalECTSRequired))
		}
		fmt.Print(table.View(styles))
		return nil
	},
}

var degreeAreaAddCmd = &cobra.Command{
	Use:   "area-add [degree] [area]",
	Short: "Add a requirement area to a degree",
	Long: `Adds an area with a required ECTS amount. Areas count toward the degree
GPA unless --no-gpa excludes them (typical for thesis or language credits).`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		a := &progress.Area{
			Name:             args[1],
			RequiredECTS:     areaRequiredECTS,
			CountsTowardsGPA: !areaNoGPA,
		}
		if err := st.AddArea(args[0], a); err != nil {
			return err
		}
		fmt.Printf("Added area %s to %s\n", args[1], args[0])
		return nil
	},
}

var degreeAreasCmd = &cobra.Command{
	Use:   "areas [degree]",
	Short: "List a degree's requirement areas",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		areas, err := st.ListAreas(args[0])
		if err != nil {
			return err
		}

		styles := ui.DefaultStyles()
		table := ui.NewSimpleTable(fmt.Sprintf("Areas of %s", args[0]), []string{"Name", "Required ECTS", "GPA"})
		for _, a := range areas {
			gpa := "yes"
			if !a.CountsTowardsGPA {
				gpa = "no"
			}
			table.AddRow(a.Name, fmt.Sprintf("%d", a.RequiredECTS), gpa)
		}
		fmt.Print(table.View(styles))
		return nil
	},
}

var degreeEligibleCmd = &cobra.Command{
	Use:   "eligible [course] [degree] [area]",
	Short: "Record that a course may count toward an area",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.AddEligibility(args[0], args[1], args[2], eligibleRecommended, eligibleNotes); err != nil {
			return err
		}
		fmt.Printf("Course %s is eligible for %s/%s\n", args[0], args[1], args[2])
		return nil
	},
}

var degreeIneligibleCmd = &cobra.Command{
	Use:   "ineligible [course] [degree] [area]",
	Short: "Remove an eligibility entry",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.RemoveEligibility(args[0], args[1], args[2]); err != nil {
			return err
		}
		fmt.Printf("Removed eligibility %s -> %s/%s\n", args[0], args[1], args[2])
		return nil
	},
}

var degreeMapCmd = &cobra.Command{
	Use:   "map [course] [degree] [area]",
	Short: "Commit a course to one area of a degree",
	Long: `Commits a course to an area; only mapped courses count toward progress
and GPA. The area must be among the course's recorded eligible areas.
--ects overrides the credited ECTS amount for this degree only.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		var override *int
		if cmd.Flags().Changed("ects") {
			override = &mapECTSOverride
		}
		if err := st.MapCourse(args[0], args[1], args[2], override); err != nil {
			return err
		}
		fmt.Printf("Mapped %s into %s/%s\n", args[0], args[1], args[2])
		return nil
	},
}

var degreeUnmapCmd = &cobra.Command{
	Use:   "unmap [course] [degree]",
	Short: "Remove a course's mapping for a degree",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.UnmapCourse(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Unmapped %s from %s\n", args[0], args[1])
		return nil
	},
}

var degreeSuggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "List graded courses that are eligible somewhere but mapped nowhere",
	Long: `Lists courses with recorded eligibilities but no committed mapping,
together with the areas they could count toward. These courses are excluded
from every progress report until mapped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		snap, err := st.LoadSnapshot()
		if err != nil {
			return err
		}
		unmapped := snap.Unmapped()
		styles := ui.DefaultStyles()
		if len(unmapped) == 0 {
			fmt.Println(styles.Muted.Render("Every eligible course is mapped."))
			return nil
		}

		degreeByID := make(map[int64]progress.Degree, len(snap.Degrees))
		for _, d := range snap.Degrees {
			degreeByID[d.ID] = d
		}
		areaByID := make(map[int64]progress.Area, len(snap.Areas))
		for _, a := range snap.Areas {
			areaByID[a.ID] = a
		}

		table := ui.NewSimpleTable("Unmapped Courses", []string{"Course", "ECTS", "Could count toward"})
		for _, c := range unmapped {
			for _, e := range snap.Eligible {
				if e.CourseID != c.CourseID {
					continue
				}
				d, ok := degreeByID[e.DegreeID]
				if !ok {
					continue
				}
				a := areaByID[e.AreaID]
				target := fmt.Sprintf("%s / %s", d.Name, a.Name)
				if e.Recommended {
					target += " " + styles.Badge.Render("recommended")
				}
				table.AddRow(c.ShortName, fmt.Sprintf("%d", c.ECTS), target)
			}
		}
		fmt.Print(table.View(styles))
		return nil
	},
}

var degreeDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a degree with its areas and mappings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeleteDegree(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted degree %s\n", args[0])
		return nil
	},
}

func init() {
	degreeAddCmd.Flags().StringVar(&degreeType, "type", "", "Degree type (BSc, MSc, ...)")
	degreeAddCmd.Flags().StringVar(&degreeInstitution, "institution", "", "Awarding institution")
	degreeAddCmd.Flags().StringVar(&degreeScheme, "scheme", "", "Reporting scheme (default from config)")
	degreeAddCmd.Flags().IntVar(&degreeTotalECTS, "total-ects", 0, "Total ECTS required")
	degreeAddCmd.MarkFlagRequired("type")

	degreeAreaAddCmd.Flags().IntVar(&areaRequiredECTS, "ects", 0, "Required ECTS in this area")
	degreeAreaAddCmd.Flags().BoolVar(&areaNoGPA, "no-gpa", false, "Exclude this area from the degree GPA")
	degreeAreaAddCmd.MarkFlagRequired("ects")

	degreeEligibleCmd.Flags().BoolVar(&eligibleRecommended, "recommended", false, "Mark as the recommended area")
	degreeEligibleCmd.Flags().StringVar(&eligibleNotes, "notes", "", "Free-form notes")

	degreeMapCmd.Flags().IntVar(&mapECTSOverride, "ects", 0, "Credited ECTS for this degree (overrides the course value)")

	degreeCmd.AddCommand(degreeAddCmd)
	degreeCmd.AddCommand(degreeListCmd)
	degreeCmd.AddCommand(degreeAreaAddCmd)
	degreeCmd.AddCommand(degreeAreasCmd)
	degreeCmd.AddCommand(degreeEligibleCmd)
	degreeCmd.AddCommand(degreeIneligibleCmd)
	degreeCmd.AddCommand(degreeMapCmd)
	degreeCmd.AddCommand(degreeUnmapCmd)
	degreeCmd.AddCommand(degreeSuggestCmd)
	degreeCmd.AddCommand(degreeDeleteCmd)
}
