package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/privarion/privarion/internal/identity"
)

var (
	identityPersistent bool
	identityValidate   bool
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Spoof or restore identity-bearing syscall results",
}

var identitySpoofCmd = &cobra.Command{
	Use:   "spoof <type,...>",
	Short: "Spoof one or more identity types (e.g. Hostname,MacAddress)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		types := parseIdentityTypes(args[0])
		profile := app.IdentityProfile()
		id, err := app.IdentitySpoof.Spoof(cmd.Context(), profile, identity.SpoofOptions{
			Types:           types,
			Persistent:      identityPersistent,
			ValidateChanges: identityValidate,
		})
		if err != nil {
			return err
		}
		fmt.Printf("rollback point: %s\n", id)
		return nil
	},
}

var identityRestoreCmd = &cobra.Command{
	Use:   "restore <type,...>",
	Short: "Restore identity types to their original values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.IdentitySpoof.Restore(cmd.Context(), parseIdentityTypes(args[0]))
	},
}

var identityRollbackCmd = &cobra.Command{
	Use:   "rollback <id>",
	Short: "Perform a rollback to a previously captured rollback point",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.IdentityRollback.PerformRollback(cmd.Context(), args[0])
	},
}

func parseIdentityTypes(csv string) []identity.Type {
	parts := strings.Split(csv, ",")
	types := make([]identity.Type, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			types = append(types, identity.Type(p))
		}
	}
	return types
}

func init() {
	identitySpoofCmd.Flags().BoolVar(&identityPersistent, "persistent", false, "persist the spoofed value across restarts")
	identitySpoofCmd.Flags().BoolVar(&identityValidate, "validate", false, "read back each applied value to confirm it took effect")
	identityCmd.AddCommand(identitySpoofCmd, identityRestoreCmd, identityRollbackCmd)
}
