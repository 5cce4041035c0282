package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Inspect and run the syscall monitoring engine",
}

var monitorStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Install configured syscall hooks and run until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := app.MonitorEngine.Start(ctx); err != nil {
			return err
		}
		defer app.MonitorEngine.Stop(cmd.Context())

		<-ctx.Done()
		return nil
	},
}

var monitorRulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the configured monitoring rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, r := range app.MonitorEngine.Rules() {
			fmt.Printf("%s\t%s\tenabled=%v\tpriority=%s\n", r.ID, r.Name, r.Enabled, r.Priority)
		}
		return nil
	},
}

var monitorStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show syscall monitoring statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := app.MonitorEngine.Stats()
		fmt.Printf("total events: %d\nrule matches: %d\npeak events/sec: %d\navg processing: %s\n",
			s.TotalEvents, s.RuleMatches, s.PeakEventsPerSec, s.AvgProcessing)
		return nil
	},
}

func init() {
	monitorCmd.AddCommand(monitorStartCmd, monitorRulesCmd, monitorStatsCmd)
}
