package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"volition/internal/config"
	"volition/internal/logging"
)

var runOnce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the engine loops",
	Long: `Runs the pipeline tick, strength decay, and retention pruning until
interrupted. Progress events stream to stdout; config file edits are
picked up for the next restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.close()

		if runOnce {
			eng.mgr.Tick(ctx)
			drainProgress(eng)
			return nil
		}

		go func() {
			for e := range eng.mgr.Progress() {
				if e.Stage == "transition" {
					fmt.Printf("[%s] %s: %s -> %s %s\n",
						e.At.Format("15:04:05"), shortID(e.DesireID), e.From, e.To, e.Message)
				} else {
					fmt.Printf("[%s] %s: %s %s\n",
						e.At.Format("15:04:05"), shortID(e.DesireID), e.Stage, e.Message)
				}
			}
		}()

		// Config edits are logged so an operator knows a restart will pick
		// them up; the running engine keeps its startup config.
		watchDone := make(chan struct{})
		go func() {
			defer close(watchDone)
			_ = config.Watch(ctx, eng.cfg.Workspace, func(config.Config) {
				logging.Get(logging.CategoryBoot).Info("config file changed; restart to apply")
				fmt.Println("config file changed; restart to apply")
			})
		}()

		fmt.Printf("volition engine running (workspace %s, tick %s)\n",
			eng.cfg.Workspace, eng.cfg.Engine.TickInterval)
		err = eng.mgr.Run(ctx)
		<-watchDone
		if err == context.Canceled {
			return nil
		}
		return err
	},
}

func drainProgress(eng *engine) {
	for {
		select {
		case e := <-eng.mgr.Progress():
			fmt.Printf("%s: %s %s\n", shortID(e.DesireID), e.Stage, e.Message)
		default:
			return
		}
	}
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single tick and exit")
}
