package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"unitrack/cmd/unitrack/ui"
	"unitrack/internal/grading"
)

var (
	componentWeight    float64
	componentBonus     bool
	componentRebalance bool

	scoreGrade  float64
	scorePoints float64
	scoreMax    float64
	scoreClear  bool

	bonusMaxPoints  float64
	bonusMaxPercent float64
	bonusKind       string
	bonusSteps      string
	bonusTiming     string
	bonusCap        float64
)

var gradeCmd = &cobra.Command{
	Use:   "grade",
	Short: "Manage grade components, bonus rules, and computed grades",
}

var gradeComponentsSetCmd = &cobra.Command{
	Use:   "components-set [course] [name=weight ...]",
	Short: "Replace a course's weighted components in one step",
	Long: `Replaces the non-bonus component set. The weights must sum to
exactly 100. Bonus components are kept, and recorded scores carry over for
components that keep their name.

Example:
  unitrack grade components-set algo1 final=60 homework=40`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		defs := make([]grading.Component, 0, len(args)-1)
		for _, arg := range args[1:] {
			name, value, ok := strings.Cut(arg, "=")
			if !ok {
				return fmt.Errorf("expected name=weight, got %q", arg)
			}
			weight, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("invalid weight in %q: %w", arg, err)
			}
			defs = append(defs, grading.Component{Name: name, Weight: weight})
		}

		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SetComponents(args[0], defs); err != nil {
			return err
		}
		fmt.Printf("Set %d components on %s\n", len(defs), args[0])
		return nil
	},
}

var gradeComponentAddCmd = &cobra.Command{
	Use:   "component-add [course] [name]",
	Short: "Add a weighted grade component to a course",
	Long: `Adds a component to an existing set. Non-bonus weights must total
exactly 100 afterwards; with --rebalance, the existing weights are scaled
down to make room for the new one. Bonus components carry no weight and only
contribute extra points.

Example:
  unitrack grade components-set algo1 final=60 homework=40
  unitrack grade component-add algo1 project --weight 20 --rebalance
  unitrack grade component-add algo1 quizzes --bonus`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.AddGradeComponent(args[0], args[1], componentWeight, componentBonus, componentRebalance); err != nil {
			return err
		}
		fmt.Printf("Added component %s to %s\n", args[1], args[0])
		return nil
	},
}

var gradeComponentRemoveCmd = &cobra.Command{
	Use:   "component-remove [course] [name]",
	Short: "Remove a component and rescale the remaining weights",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.RemoveGradeComponent(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Removed component %s from %s\n", args[1], args[0])
		return nil
	},
}

var gradeScoreCmd = &cobra.Command{
	Use:   "score [course] [component]",
	Short: "Record a result for a component",
	Long: `Records a component result either as a direct grade (--grade) or as
points (--points and --max), which are interpolated onto the course scheme.
--clear marks the component incomplete again.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		var grade, points, max *float64
		if !scoreClear {
			if cmd.Flags().Changed("grade") {
				grade = &scoreGrade
			}
			if cmd.Flags().Changed("points") {
				points = &scorePoints
			}
			if cmd.Flags().Changed("max") {
				max = &scoreMax
			}
			if grade == nil && points == nil {
				return fmt.Errorf("provide --grade, or --points with --max, or --clear")
			}
		}

		if err := st.ScoreComponent(args[0], args[1], grade, points, max); err != nil {
			return err
		}
		fmt.Printf("Scored %s/%s\n", args[0], args[1])
		return nil
	},
}

var gradeBonusCmd = &cobra.Command{
	Use:   "bonus [course]",
	Short: "Configure the bonus rule for a course",
	Long: `Sets how bonus points translate into a grade improvement.

The bonus function is linear (improvement scales with the share of bonus
points earned) or threshold (stepwise, via --steps as JSON). Timing decides
whether the bonus can turn a failing grade into a pass (before-pass) or only
improves already-passing grades (after-pass). --cap bounds the improved
grade.

Example:
  unitrack grade bonus algo1 --max-points 20 --max-percent 20
  unitrack grade bonus algo1 --kind threshold --max-points 30 --max-percent 10 \
    --steps '[{"min_points":10,"percent":5},{"min_points":20,"percent":10}]'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		var steps []grading.ThresholdStep
		if bonusSteps != "" {
			if err := json.Unmarshal([]byte(bonusSteps), &steps); err != nil {
				return fmt.Errorf("invalid --steps: %w", err)
			}
		}
		fn, err := grading.ParseBonusFunc(bonusKind, steps)
		if err != nil {
			return err
		}
		timing, err := grading.ParseBonusTiming(bonusTiming)
		if err != nil {
			return err
		}

		cfg := &grading.BonusConfig{
			MaxPoints:       bonusMaxPoints,
			MaxBonusPercent: bonusMaxPercent,
			Func:            fn,
			Timing:          timing,
		}
		if cmd.Flags().Changed("cap") {
			cfg.GradeCap = &bonusCap
		}
		if err := st.SetBonusConfig(args[0], cfg); err != nil {
			return err
		}
		fmt.Printf("Set bonus rule for %s\n", args[0])
		return nil
	},
}

var gradeBonusClearCmd = &cobra.Command{
	Use:   "bonus-clear [course]",
	Short: "Remove the bonus rule from a course",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SetBonusConfig(args[0], nil); err != nil {
			return err
		}
		fmt.Printf("Cleared bonus rule for %s\n", args[0])
		return nil
	},
}

var gradeShowCmd = &cobra.Command{
	Use:   "show [course]",
	Short: "Show a course's components and computed grade",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		comps, err := st.Components(args[0])
		if err != nil {
			return err
		}

		styles := ui.DefaultStyles()
		table := ui.NewSimpleTable(fmt.Sprintf("Components of %s", args[0]), []string{"Name", "Weight", "Result", "Status"})
		for _, comp := range comps {
			weight := fmt.Sprintf("%.1f%%", comp.Weight)
			if comp.IsBonus {
				weight = "bonus"
			}
			result := "-"
			if comp.Grade != nil {
				result = fmt.Sprintf("%.2f", *comp.Grade)
			} else if comp.PointsEarned != nil && comp.PointsMax != nil {
				result = fmt.Sprintf("%.1f/%.1f pts", *comp.PointsEarned, *comp.PointsMax)
			}
			status := styles.Muted.Render("open")
			if comp.Completed {
				status = "done"
			}
			table.AddRow(comp.Name, weight, result, status)
		}
		fmt.Print(table.View(styles))

		fg, ok, err := st.FinalGrade(args[0])
		if err != nil {
			return err
		}
		switch {
		case !ok:
			fmt.Println(styles.Muted.Render("No components set up."))
		case fg.Pending:
			fmt.Println(styles.Muted.Render("Final grade pending: not all components are completed."))
		case fg.Passed:
			fmt.Printf("Final grade: %s\n", styles.Pass.Render(fmt.Sprintf("%.2f (passed)", fg.Value)))
		default:
			fmt.Printf("Final grade: %s\n", styles.Fail.Render(fmt.Sprintf("%.2f (failed)", fg.Value)))
		}
		return nil
	},
}

func init() {
	gradeComponentAddCmd.Flags().Float64Var(&componentWeight, "weight", 0, "Component weight in percent")
	gradeComponentAddCmd.Flags().BoolVar(&componentBonus, "bonus", false, "Bonus component (no weight)")
	gradeComponentAddCmd.Flags().BoolVar(&componentRebalance, "rebalance", false, "Scale existing weights down to fit")

	gradeScoreCmd.Flags().Float64Var(&scoreGrade, "grade", 0, "Direct grade in the course scheme")
	gradeScoreCmd.Flags().Float64Var(&scorePoints, "points", 0, "Points earned")
	gradeScoreCmd.Flags().Float64Var(&scoreMax, "max", 0, "Maximum points")
	gradeScoreCmd.Flags().BoolVar(&scoreClear, "clear", false, "Mark the component incomplete")

	gradeBonusCmd.Flags().Float64Var(&bonusMaxPoints, "max-points", 0, "Maximum collectable bonus points")
	gradeBonusCmd.Flags().Float64Var(&bonusMaxPercent, "max-percent", 0, "Grade improvement at full bonus points, in percent")
	gradeBonusCmd.Flags().StringVar(&bonusKind, "kind", "linear", "Bonus function: linear or threshold")
	gradeBonusCmd.Flags().StringVar(&bonusSteps, "steps", "", "Threshold steps as JSON")
	gradeBonusCmd.Flags().StringVar(&bonusTiming, "timing", "before-pass", "Bonus timing: before-pass or after-pass")
	gradeBonusCmd.Flags().Float64Var(&bonusCap, "cap", 0, "Best grade the bonus may reach")
	gradeBonusCmd.MarkFlagRequired("max-points")
	gradeBonusCmd.MarkFlagRequired("max-percent")

	gradeCmd.AddCommand(gradeComponentsSetCmd)
	gradeCmd.AddCommand(gradeComponentAddCmd)
	gradeCmd.AddCommand(gradeComponentRemoveCmd)
	gradeCmd.AddCommand(gradeScoreCmd)
	gradeCmd.AddCommand(gradeBonusCmd)
	gradeCmd.AddCommand(gradeBonusClearCmd)
	gradeCmd.AddCommand(gradeShowCmd)
}
