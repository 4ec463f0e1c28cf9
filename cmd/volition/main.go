// Package main implements the volition CLI - an autonomous goal pursuit
// engine that turns desires into planned, reviewed, executed, and
// independently verified work.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// workspace is the shared --workspace flag. Empty means the current
// directory.
var workspace string

var rootCmd = &cobra.Command{
	Use:   "volition",
	Short: "Autonomous goal pursuit engine",
	Long: `volition maintains a set of desires - candidate intentions with decaying
strength - and pursues the ones that matter: planning with a model, gating
execution behind alignment and safety review, running steps through
capability-scoped skills, and verifying outcomes independently instead of
trusting the executor's word.

Examples:
  volition add "organize the notes directory" --source task --strength 0.8
  volition run                      # start the engine loops
  volition list --status pending    # inspect one bucket
  volition approve <id>             # unblock a desire waiting on you
  volition revise <id> "skip the archive folder"`,
	SilenceUsage: true,
}

func resolveWorkspace() string {
	if workspace != "" {
		return workspace
	}
	ws, err := os.Getwd()
	if err != nil {
		return "."
	}
	return ws
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: current directory)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(advanceCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(reviseCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(reinforceCmd)
	rootCmd.AddCommand(skillsCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
