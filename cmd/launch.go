package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/privarion/privarion/internal/launcher"
)

var launchMaxExecSeconds uint32

var launchCmd = &cobra.Command{
	Use:   "launch <app-path> [-- args...]",
	Short: "Launch an application into a fresh ephemeral space",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appPath := args[0]
		appArgs := args[1:]

		handle, err := app.Launcher.LaunchInNewSpace(cmd.Context(), appPath, appArgs, launcher.LaunchConfiguration{
			InheritEnv:         true,
			MaxExecTimeSeconds: launchMaxExecSeconds,
			KillOnParentExit:   true,
		})
		if err != nil {
			return err
		}
		fmt.Printf("launched pid %d in space %s\n", handle.PID, handle.SpaceID)
		return nil
	},
}

var launchListCmd = &cobra.Command{
	Use:   "ps",
	Short: "List running launched processes",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, h := range app.Launcher.GetRunning() {
			fmt.Printf("%s\t%d\t%s\t%s\n", h.ID, h.PID, h.SpaceID, h.AppPath)
		}
		return nil
	},
}

func init() {
	launchCmd.Flags().Uint32Var(&launchMaxExecSeconds, "max-exec-seconds", 0, "kill the process after this many seconds (0 disables)")
	launchCmd.AddCommand(launchListCmd)
}
