package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/privarion/privarion/internal/config"
	"github.com/privarion/privarion/internal/logging"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// Global flag values.
var (
	cfgFile   string
	verbose   bool
	logFormat string
)

// Cfg and app hold the loaded configuration and wired subsystem graph,
// available to every subcommand after PersistentPreRunE runs.
var (
	Cfg *config.Config
	app *App
)

// SetVersionInfo is called from main to inject build-time version info.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	buildDate = d
	rootCmd.Version = v
	rootCmd.SetVersionTemplate(fmt.Sprintf("privarion version {{.Version}} (commit: %s, built: %s)\n", c, d))
}

var rootCmd = &cobra.Command{
	Use:   "privarion",
	Short: "Privarion: host-local privacy enforcement for macOS-class systems",
	Long: `Privarion manages ephemeral application filesystem spaces, spoofs
identity-bearing syscall results, enforces a TCC-equivalent permission
policy, and monitors syscall activity for privacy-sensitive behavior.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Setup(logFormat, verbose)

		var err error
		Cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		app, err = NewApp(Cfg)
		if err != nil {
			return fmt.Errorf("wiring subsystems: %w", err)
		}

		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app != nil && app.Watcher != nil {
			return app.Watcher.Close()
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/privarion/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format (text or json)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("privarion version {{.Version}} (commit: %s, built: %s)\n", commit, buildDate))

	rootCmd.AddCommand(spaceCmd)
	rootCmd.AddCommand(launchCmd)
	rootCmd.AddCommand(identityCmd)
	rootCmd.AddCommand(permissionCmd)
	rootCmd.AddCommand(monitorCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
