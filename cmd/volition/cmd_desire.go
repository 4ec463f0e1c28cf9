package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"volition/internal/desire"
)

var (
	addSource   string
	addStrength float64
	addReason   string
	addDesc     string

	listStatus string
	listJSON   bool

	rejectReason string
	resetTarget  string
	resetForce   bool

	reinforceBoost float64
)

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a new desire",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.close()

		d, err := eng.mgr.Add(strings.Join(args, " "), addDesc, addReason,
			desire.Source(addSource), addStrength)
		if err != nil {
			return err
		}
		fmt.Printf("created %s (effective strength %.2f, threshold %.2f)\n",
			d.ID, d.EffectiveStrength(), eng.cfg.Strength.ActivationThreshold)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List desires",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.close()

		desires, err := eng.mgr.List(desire.Status(listStatus))
		if err != nil {
			return err
		}
		if listJSON {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(desires)
		}
		if len(desires) == 0 {
			fmt.Println("no desires")
			return nil
		}
		fmt.Printf("%-8s  %-17s  %-4s  %s\n", "ID", "STATUS", "STR", "TITLE")
		for _, d := range desires {
			fmt.Println(statusLine(d))
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one desire in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.close()

		d, err := findDesire(eng, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("# %s\n\n", d.Title)
		fmt.Printf("ID:        %s\n", d.ID)
		fmt.Printf("Status:    %s", d.Status)
		if d.StatusReason != "" {
			fmt.Printf(" (%s)", d.StatusReason)
		}
		fmt.Println()
		fmt.Printf("Source:    %s (weight %.2f)\n", d.Source, d.Source.Weight())
		fmt.Printf("Strength:  %.2f (effective %.2f)\n", d.Strength, d.EffectiveStrength())
		fmt.Printf("Attempts:  %d (successes %d)\n", d.Metrics.Attempts, d.Metrics.Successes)

		if d.Plan != nil {
			fmt.Printf("\n## Plan v%d: %s (risk %s)\n", d.Plan.Version, d.Plan.Goal, d.Plan.EstimatedRisk)
			for _, s := range d.Plan.Steps {
				marker := " "
				if s.RequiresApproval {
					marker = "!"
				}
				fmt.Printf("  %d.%s [%s] %s", s.Order, marker, s.Risk, s.Action)
				if s.Skill != "" {
					fmt.Printf(" (%s)", s.Skill)
				}
				fmt.Println()
			}
		}
		if d.Review != nil {
			fmt.Printf("\n## Review: %s (alignment %.2f, safety %.2f)\n",
				d.Review.Verdict, d.Review.AlignmentScore, d.Review.SafetyScore)
			for _, c := range d.Review.Concerns {
				fmt.Printf("  - %s\n", c)
			}
		}
		if d.Execution != nil {
			fmt.Printf("\n## Execution: %s (%d steps completed)\n", d.Execution.Status, d.Execution.StepsCompleted)
			for _, sr := range d.Execution.StepResults {
				ok := "ok"
				if !sr.Success {
					ok = "FAILED: " + sr.Error
				}
				fmt.Printf("  %d. %s\n", sr.Order, ok)
			}
		}
		if d.Verification != nil {
			fmt.Printf("\n## Verification: %s verified=%t\n", d.Verification.Strategy, d.Verification.Verified)
			for _, e := range d.Verification.Evidence {
				fmt.Printf("  + %s\n", e)
			}
			for _, e := range d.Verification.Errors {
				fmt.Printf("  - %s\n", e)
			}
		}
		if d.Outcome != nil {
			fmt.Printf("\n## Outcome: %s (score %.2f)\n", d.Outcome.Verdict, d.Outcome.SuccessScore)
			for _, l := range d.Outcome.LessonsLearned {
				fmt.Printf("  * %s\n", l)
			}
		}
		return nil
	},
}

var advanceCmd = &cobra.Command{
	Use:   "advance <id> [target-status]",
	Short: "Run the desire's next stage, or move it to an explicit status",
	Long: `Without a target, runs whatever pipeline stage the desire's current status
calls for (plan generation, review, execution, outcome review). With a
target, validates the move against the transition table and applies it
without running stage work.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.close()

		d, err := findDesire(eng, args[0])
		if err != nil {
			return err
		}
		if len(args) == 2 {
			if err := eng.mgr.AdvanceTo(d.ID, desire.Status(args[1]), "user"); err != nil {
				return err
			}
		} else if err := eng.mgr.Advance(cmd.Context(), d.ID); err != nil {
			return err
		}
		got, err := eng.mgr.Get(d.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%s is now %s\n", shortID(d.ID), got.Status)
		return nil
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a desire waiting on you",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.close()

		d, err := findDesire(eng, args[0])
		if err != nil {
			return err
		}
		if err := eng.mgr.Approve(d.ID, "user"); err != nil {
			return err
		}
		fmt.Printf("approved %s\n", d.ID)
		return nil
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a desire before it executes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.close()

		d, err := findDesire(eng, args[0])
		if err != nil {
			return err
		}
		if err := eng.mgr.Reject(d.ID, "user", rejectReason); err != nil {
			return err
		}
		fmt.Printf("rejected %s\n", d.ID)
		return nil
	},
}

var reviseCmd = &cobra.Command{
	Use:   "revise <id> <critique>",
	Short: "Send a desire back to planning with a critique",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.close()

		d, err := findDesire(eng, args[0])
		if err != nil {
			return err
		}
		critique := strings.Join(args[1:], " ")
		if err := eng.mgr.ReviseWithCritique(d.ID, "user", critique); err != nil {
			return err
		}
		fmt.Printf("revision queued for %s\n", d.ID)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <id>",
	Short: "Force a stuck executing desire back to a safe status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.close()

		d, err := findDesire(eng, args[0])
		if err != nil {
			return err
		}
		if err := eng.mgr.Reset(d.ID, desire.Status(resetTarget), "user", resetForce); err != nil {
			return err
		}
		fmt.Printf("reset %s to %s\n", d.ID, resetTarget)
		return nil
	},
}

var reinforceCmd = &cobra.Command{
	Use:   "reinforce <id>",
	Short: "Boost a desire's strength",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.close()

		d, err := findDesire(eng, args[0])
		if err != nil {
			return err
		}
		if err := eng.mgr.Reinforce(d.ID, reinforceBoost); err != nil {
			return err
		}
		got, err := eng.mgr.Get(d.ID)
		if err != nil {
			return err
		}
		fmt.Printf("reinforced %s to %.2f (effective %.2f)\n", d.ID, got.Strength, got.EffectiveStrength())
		return nil
	},
}

// findDesire resolves a full or prefix id.
func findDesire(eng *engine, idOrPrefix string) (*desire.Desire, error) {
	if d, err := eng.mgr.Get(idOrPrefix); err == nil {
		return d, nil
	}

	all, err := eng.mgr.List("")
	if err != nil {
		return nil, err
	}
	var matches []*desire.Desire
	for _, d := range all {
		if strings.HasPrefix(d.ID, idOrPrefix) {
			matches = append(matches, d)
		}
	}
	switch len(matches) {
	case 0:
		return nil, desire.ErrDesireNotFound
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("id prefix %q is ambiguous (%d matches)", idOrPrefix, len(matches))
	}
}

func init() {
	addCmd.Flags().StringVar(&addSource, "source", string(desire.SourceTask), "desire source (persona-goal, urgent-task, task, memory-pattern, curiosity, reflection, dream, tool-suggestion)")
	addCmd.Flags().Float64Var(&addStrength, "strength", 0.7, "initial strength in [0,1]")
	addCmd.Flags().StringVar(&addReason, "reason", "", "why this desire exists")
	addCmd.Flags().StringVar(&addDesc, "description", "", "longer description")

	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "emit JSON")

	rejectCmd.Flags().StringVar(&rejectReason, "reason", "", "why it was rejected")

	resetCmd.Flags().StringVar(&resetTarget, "to", string(desire.StatusPlanning), "target status (pending, planning, approved)")
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "reset even if not stuck")

	reinforceCmd.Flags().Float64Var(&reinforceBoost, "boost", 0.1, "strength boost in (0,1]")
}
