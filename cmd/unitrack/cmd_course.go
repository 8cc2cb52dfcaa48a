package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"unitrack/cmd/unitrack/ui"
	"unitrack/internal/progress"
	"unitrack/internal/store"
)

var (
	courseName        string
	courseECTS        int
	courseInstitution string
	courseScheme      string
	courseExternal    bool
	courseNotes       string

	courseFilterStatus      string
	courseFilterInstitution string

	courseForce  bool
	courseReason string
)

var courseCmd = &cobra.Command{
	Use:   "course",
	Short: "Manage courses and their lifecycle",
}

var courseAddCmd = &cobra.Command{
	Use:   "add [short-name]",
	Short: "Add a course",
	Long: `Adds a course under a unique short name. The grading scheme defaults to
the institution's configured scheme.

Example:
  unitrack course add algo1 --name "Algorithms I" --ects 8 --institution "TU Munich"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, cfg, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		institution := courseInstitution
		if institution == "" {
			institution = cfg.DefaultInstitution
		}
		sch := courseScheme
		if sch == "" {
			sch = cfg.SchemeFor(institution)
		}

		c := &store.Course{
			ShortName:   args[0],
			Name:        courseName,
			ECTS:        courseECTS,
			Institution: institution,
			Scheme:      sch,
			IsExternal:  courseExternal,
			Notes:       courseNotes,
		}
		if err := st.AddCourse(c); err != nil {
			return err
		}
		fmt.Printf("Added course %s (%d ECTS, scheme %s)\n", c.ShortName, c.ECTS, c.Scheme)
		return nil
	},
}

var courseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List courses",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		courses, err := st.ListCourses(courseFilterStatus, courseFilterInstitution)
		if err != nil {
			return err
		}

		styles := ui.DefaultStyles()
		table := ui.NewSimpleTable("Courses", []string{"Short", "Name", "ECTS", "Institution", "Scheme", "Status", "Grade"})
		for _, c := range courses {
			grade := "-"
			if eg, ok, err := st.CourseGrade(c.ShortName); err == nil && ok {
				grade = fmt.Sprintf("%.2f", eg.Value)
				if !eg.Passed {
					grade = styles.Fail.Render(grade)
				}
			}
			table.AddRow(c.ShortName, c.Name, fmt.Sprintf("%d", c.ECTS), c.Institution, c.Scheme, c.Status, grade)
		}
		fmt.Print(table.View(styles))
		return nil
	},
}

var courseShowCmd = &cobra.Command{
	Use:   "show [short-name]",
	Short: "Show one course with its grade standing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		c, err := st.GetCourse(args[0])
		if err != nil {
			return err
		}

		styles := ui.DefaultStyles()
		fmt.Println(styles.Title.Render(fmt.Sprintf("%s - %s", c.ShortName, c.Name)))
		fmt.Printf("  ECTS:        %d\n", c.ECTS)
		fmt.Printf("  Institution: %s\n", c.Institution)
		fmt.Printf("  Scheme:      %s\n", c.Scheme)
		fmt.Printf("  Status:      %s\n", c.Status)
		if c.IsExternal {
			fmt.Println("  External:    yes")
		}
		if c.Notes != "" {
			fmt.Printf("  Notes:       %s\n", c.Notes)
		}

		eg, ok, err := st.CourseGrade(c.ShortName)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("  Grade:       " + styles.Muted.Render("pending"))
			return nil
		}
		status := styles.Pass.Render("passed")
		if !eg.Passed {
			status = styles.Fail.Render("failed")
		}
		fmt.Printf("  Grade:       %.2f (%s, via %s)\n", eg.Value, status, eg.Source)
		return nil
	},
}

func statusTransitionCmd(use, short, target string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " [short-name]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.SetCourseStatus(args[0], target, courseForce, courseReason); err != nil {
				return err
			}
			fmt.Printf("Course %s is now %s\n", args[0], target)
			return nil
		},
	}
	if target == progress.StatusCompleted {
		cmd.Flags().BoolVar(&courseForce, "force", false, "Complete without a passing grade")
		cmd.Flags().StringVar(&courseReason, "note", "", "Reason for the forced completion")
	}
	return cmd
}

var courseDeleteCmd = &cobra.Command{
	Use:   "delete [short-name]",
	Short: "Delete a course and all of its grades, attempts, and mappings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeleteCourse(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted course %s\n", args[0])
		return nil
	},
}

func init() {
	courseAddCmd.Flags().StringVar(&courseName, "name", "", "Full course name")
	courseAddCmd.Flags().IntVar(&courseECTS, "ects", 0, "ECTS credits")
	courseAddCmd.Flags().StringVar(&courseInstitution, "institution", "", "Institution (default from config)")
	courseAddCmd.Flags().StringVar(&courseScheme, "scheme", "", "Grading scheme (default from institution config)")
	courseAddCmd.Flags().BoolVar(&courseExternal, "external", false, "Mark as external/transfer course")
	courseAddCmd.Flags().StringVar(&courseNotes, "notes", "", "Free-form notes")
	courseAddCmd.MarkFlagRequired("name")
	courseAddCmd.MarkFlagRequired("ects")

	courseListCmd.Flags().StringVar(&courseFilterStatus, "status", "", "Filter by status (enrolled/completed/dropped/archived)")
	courseListCmd.Flags().StringVar(&courseFilterInstitution, "institution", "", "Filter by institution")

	courseCmd.AddCommand(courseAddCmd)
	courseCmd.AddCommand(courseListCmd)
	courseCmd.AddCommand(courseShowCmd)
	courseCmd.AddCommand(statusTransitionCmd("complete", "Mark a course completed", progress.StatusCompleted))
	courseCmd.AddCommand(statusTransitionCmd("drop", "Drop a course", progress.StatusDropped))
	courseCmd.AddCommand(statusTransitionCmd("archive", "Archive a course", progress.StatusArchived))
	courseCmd.AddCommand(statusTransitionCmd("enroll", "Re-enroll a course", progress.StatusEnrolled))
	courseCmd.AddCommand(courseDeleteCmd)
}
