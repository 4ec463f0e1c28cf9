package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"volition/internal/desire"
	"volition/internal/skill"
)

var (
	skillsTrust  string
	invokeInputs string
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Inspect and drive the skill registry",
}

var skillsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List skills available at a trust level",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.close()

		trust := desire.TrustLevel(skillsTrust)
		if skillsTrust == "" {
			trust = desire.TrustLevel(eng.cfg.Engine.DefaultTrustLevel)
		}
		manifests := eng.registry.ListAvailable(trust)
		if len(manifests) == 0 {
			fmt.Printf("no skills available at trust %s\n", trust)
			return nil
		}
		fmt.Printf("%-16s  %-10s  %-8s  %-15s  %s\n", "ID", "CATEGORY", "RISK", "MIN TRUST", "FLAGS")
		for _, m := range manifests {
			flags := ""
			if m.ReadOnly {
				flags += "ro "
			}
			if m.RequiresApproval {
				flags += "approval"
			}
			fmt.Printf("%-16s  %-10s  %-8s  %-15s  %s\n", m.ID, m.Category, m.Risk, m.MinTrustLevel, flags)
		}
		return nil
	},
}

var skillsInvokeCmd = &cobra.Command{
	Use:   "invoke <skill-id>",
	Short: "Invoke a skill directly",
	Long: `Invokes a skill with JSON inputs at the configured trust level. High risk
skills queue an approval instead of running; decide it with
"volition skills approve <approval-id>".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.close()

		inputs := map[string]any{}
		if invokeInputs != "" {
			if err := json.Unmarshal([]byte(invokeInputs), &inputs); err != nil {
				return fmt.Errorf("invalid --inputs JSON: %w", err)
			}
		}
		trust := desire.TrustLevel(eng.cfg.Engine.DefaultTrustLevel)
		res, err := eng.registry.Invoke(cmd.Context(), args[0], inputs, trust, false)
		if err != nil {
			return err
		}
		return printSkillResult(res)
	},
}

var skillsApprovalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "List skill invocations waiting on approval",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.close()

		records, err := eng.mgr.PendingSkillApprovals()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no pending approvals")
			return nil
		}
		for _, rec := range records {
			inputs, _ := json.Marshal(rec.Item.Inputs)
			fmt.Printf("%s  %s  %s  %s\n",
				rec.Item.ID, rec.Item.SkillID, rec.Item.CreatedAt.Format("2006-01-02 15:04"), inputs)
		}
		return nil
	},
}

var skillsApproveCmd = &cobra.Command{
	Use:   "approve <approval-id>",
	Short: "Approve and run a queued invocation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decideApproval(cmd, args[0], true)
	},
}

var skillsDenyCmd = &cobra.Command{
	Use:   "deny <approval-id>",
	Short: "Deny a queued invocation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decideApproval(cmd, args[0], false)
	},
}

func decideApproval(cmd *cobra.Command, approvalID string, approved bool) error {
	eng, err := buildEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.close()

	res, err := eng.mgr.ApproveSkill(cmd.Context(), approvalID, approved)
	if err != nil {
		return err
	}
	if !approved {
		fmt.Printf("denied %s\n", approvalID)
		return nil
	}
	return printSkillResult(res)
}

func printSkillResult(res *skill.Result) error {
	switch res.Status {
	case skill.ResultOK:
		out, err := json.MarshalIndent(res.Output, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	case skill.ResultPendingApproval:
		fmt.Printf("queued for approval: %s\n", res.ApprovalID)
	case skill.ResultError:
		return fmt.Errorf("skill failed: %s", res.Error)
	}
	return nil
}

func init() {
	skillsListCmd.Flags().StringVar(&skillsTrust, "trust", "", "trust level to filter by (default: configured level)")
	skillsInvokeCmd.Flags().StringVar(&invokeInputs, "inputs", "", "JSON object of skill inputs")

	skillsCmd.AddCommand(skillsListCmd)
	skillsCmd.AddCommand(skillsInvokeCmd)
	skillsCmd.AddCommand(skillsApprovalsCmd)
	skillsCmd.AddCommand(skillsApproveCmd)
	skillsCmd.AddCommand(skillsDenyCmd)
}
