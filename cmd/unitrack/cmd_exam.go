package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"unitrack/cmd/unitrack/ui"
	"unitrack/internal/exam"
)

var (
	attemptDate  string
	attemptNote  string
	attemptForce bool

	activeNumber int
	activeBest   bool
	activeReason string

	policyMaxAttempts int
	policyStrategy    string
	policyAllowRetake bool
	policyRequire     bool
	policyWarnFinal   bool
)

var examCmd = &cobra.Command{
	Use:   "exam",
	Short: "Record exam attempts and manage retake policies",
}

var examAddCmd = &cobra.Command{
	Use:   "add [course] [grade]",
	Short: "Record an exam attempt",
	Long: `Records an attempt under the course's effective retake policy. The
policy can forbid retaking a passed exam or cap the attempt count; --force
with --note overrides either check and is written to the audit trail.

Example:
  unitrack exam add algo1 2.3 --date 2026-02-14`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		grade, err := parseGrade(args[1])
		if err != nil {
			return err
		}
		date := time.Now()
		if attemptDate != "" {
			date, err = time.Parse("2006-01-02", attemptDate)
			if err != nil {
				return fmt.Errorf("invalid --date %q, want YYYY-MM-DD", attemptDate)
			}
		}

		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		att, warning, err := st.AddAttempt(args[0], grade, date, attemptNote, attemptForce)
		if err != nil {
			return err
		}

		styles := ui.DefaultStyles()
		result := styles.Pass.Render("passed")
		if !att.Passed {
			result = styles.Fail.Render("failed")
		}
		fmt.Printf("Attempt %d for %s: %.2f (%s)\n", att.Number, args[0], att.Grade, result)
		if warning != "" {
			fmt.Println(styles.Warning.Render("Warning: " + warning))
		}
		return nil
	},
}

var examHistoryCmd = &cobra.Command{
	Use:   "history [course]",
	Short: "Show all attempts for a course",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		hist, err := st.AttemptHistory(args[0])
		if err != nil {
			return err
		}

		styles := ui.DefaultStyles()
		table := ui.NewSimpleTable(fmt.Sprintf("Attempts for %s", args[0]), []string{"#", "Date", "Grade", "Result", "Active", "Note"})
		for _, a := range hist.Attempts {
			result := "passed"
			if !a.Passed {
				result = "failed"
			}
			active := ""
			if a.Number == hist.ActiveNumber {
				active = styles.Badge.Render("active")
			}
			table.AddRow(
				fmt.Sprintf("%d", a.Number),
				a.Date.Format("2006-01-02"),
				fmt.Sprintf("%.2f", a.Grade),
				result,
				active,
				a.Note,
			)
		}
		fmt.Print(table.View(styles))

		if hist.Mode == exam.ModeManual {
			fmt.Println(styles.Warning.Render(fmt.Sprintf("Manual override in effect: %s", hist.ManualReason)))
		}
		if hist.AttemptsRemaining >= 0 {
			fmt.Printf("Attempts remaining: %d\n", hist.AttemptsRemaining)
		} else {
			fmt.Println("Attempts remaining: unlimited")
		}
		return nil
	},
}

var examSetActiveCmd = &cobra.Command{
	Use:   "set-active [course]",
	Short: "Manually pin which attempt counts",
	Long: `Overrides the policy strategy and pins one attempt as the active grade.
A --reason is required and audited. --best picks the scheme-best attempt
instead of an explicit --number.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !activeBest && activeNumber == 0 {
			return fmt.Errorf("provide --number or --best")
		}

		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SetActiveAttempt(args[0], activeNumber, activeBest, activeReason); err != nil {
			return err
		}
		fmt.Printf("Pinned active attempt for %s\n", args[0])
		return nil
	},
}

var examResetPolicyCmd = &cobra.Command{
	Use:   "reset-policy [course]",
	Short: "Return attempt selection to the policy strategy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.ResetAttemptPolicy(args[0]); err != nil {
			return err
		}
		fmt.Printf("Attempt selection for %s follows policy again\n", args[0])
		return nil
	},
}

var examPolicyShowCmd = &cobra.Command{
	Use:   "policy [course]",
	Short: "Show the effective retake policy for a course",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		pol, err := st.EffectivePolicy(args[0])
		if err != nil {
			return err
		}

		styles := ui.DefaultStyles()
		fmt.Println(styles.Title.Render(fmt.Sprintf("Effective policy for %s", args[0])))
		if pol.MaxAttempts > 0 {
			fmt.Printf("  Max attempts:           %d\n", pol.MaxAttempts)
		} else {
			fmt.Println("  Max attempts:           unlimited")
		}
		fmt.Printf("  Strategy:               %s\n", pol.Strategy)
		fmt.Printf("  Retake after pass:      %v\n", pol.AllowRetakeAfterPass)
		fmt.Printf("  Grade for completion:   %v\n", pol.RequireGradeForCompletion)
		fmt.Printf("  Warn on final attempt:  %v\n", pol.WarnOnFinalAttempt)
		return nil
	},
}

var examPolicySetCmd = &cobra.Command{
	Use:   "policy-set [course]",
	Short: "Set a per-course policy override",
	Long: `Overrides specific policy fields for one course. Only flags you pass
are overridden; the rest fall through to the institution policy.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		var o exam.PolicyOverride
		if cmd.Flags().Changed("max-attempts") {
			o.MaxAttempts = &policyMaxAttempts
		}
		if cmd.Flags().Changed("strategy") {
			strat, err := exam.ParseStrategy(policyStrategy)
			if err != nil {
				return err
			}
			o.Strategy = &strat
		}
		if cmd.Flags().Changed("allow-retake-after-pass") {
			o.AllowRetakeAfterPass = &policyAllowRetake
		}
		if cmd.Flags().Changed("require-grade") {
			o.RequireGradeForCompletion = &policyRequire
		}
		if cmd.Flags().Changed("warn-final") {
			o.WarnOnFinalAttempt = &policyWarnFinal
		}
		if o.IsZero() {
			return fmt.Errorf("no policy fields given")
		}

		if err := st.SetCoursePolicy(args[0], &o); err != nil {
			return err
		}
		fmt.Printf("Set policy override for %s\n", args[0])
		return nil
	},
}

var examPolicyClearCmd = &cobra.Command{
	Use:   "policy-clear [course]",
	Short: "Remove the per-course policy override",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SetCoursePolicy(args[0], nil); err != nil {
			return err
		}
		fmt.Printf("Cleared policy override for %s\n", args[0])
		return nil
	},
}

var examAuditCmd = &cobra.Command{
	Use:   "audit [course]",
	Short: "Show the override audit trail for a course",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.AuditTrail(args[0])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No overrides recorded.")
			return nil
		}

		styles := ui.DefaultStyles()
		table := ui.NewSimpleTable(fmt.Sprintf("Overrides for %s", args[0]), []string{"When", "Action", "Reason"})
		for _, e := range entries {
			table.AddRow(e.CreatedAt.Format("2006-01-02 15:04"), e.Action, e.Reason)
		}
		fmt.Print(table.View(styles))
		return nil
	},
}

func parseGrade(s string) (float64, error) {
	var v float64
	if _, err := fmt.Sscanf(s, "%f", &v); err != nil {
		return 0, fmt.Errorf("invalid grade %q", s)
	}
	return v, nil
}

func init() {
	examAddCmd.Flags().StringVar(&attemptDate, "date", "", "Exam date (YYYY-MM-DD, default today)")
	examAddCmd.Flags().StringVar(&attemptNote, "note", "", "Note for this attempt")
	examAddCmd.Flags().BoolVar(&attemptForce, "force", false, "Bypass retake and limit checks (requires --note)")

	examSetActiveCmd.Flags().IntVar(&activeNumber, "number", 0, "Attempt number to pin")
	examSetActiveCmd.Flags().BoolVar(&activeBest, "best", false, "Pin the scheme-best attempt")
	examSetActiveCmd.Flags().StringVar(&activeReason, "reason", "", "Reason for the manual override")
	examSetActiveCmd.MarkFlagRequired("reason")

	examPolicySetCmd.Flags().IntVar(&policyMaxAttempts, "max-attempts", 0, "Attempt limit (0 = unlimited)")
	examPolicySetCmd.Flags().StringVar(&policyStrategy, "strategy", "", "Active attempt strategy: first-passing or best")
	examPolicySetCmd.Flags().BoolVar(&policyAllowRetake, "allow-retake-after-pass", false, "Allow retaking a passed exam")
	examPolicySetCmd.Flags().BoolVar(&policyRequire, "require-grade", true, "Require a passing grade to complete the course")
	examPolicySetCmd.Flags().BoolVar(&policyWarnFinal, "warn-final", true, "Warn when one attempt remains")

	examCmd.AddCommand(examAddCmd)
	examCmd.AddCommand(examHistoryCmd)
	examCmd.AddCommand(examSetActiveCmd)
	examCmd.AddCommand(examResetPolicyCmd)
	examCmd.AddCommand(examPolicyShowCmd)
	examCmd.AddCommand(examPolicySetCmd)
	examCmd.AddCommand(examPolicyClearCmd)
	examCmd.AddCommand(examAuditCmd)
}
