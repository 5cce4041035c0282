package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/privarion/privarion/internal/permission"
)

var permissionCmd = &cobra.Command{
	Use:   "permission",
	Short: "Inspect and evaluate the permission store and policy engine",
}

var permissionEvaluateCmd = &cobra.Command{
	Use:   "evaluate <bundle-id> <service>",
	Short: "Evaluate a bundle's access request against the policy engine",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := app.PermissionEngine.Evaluate(cmd.Context(), permission.EvaluationRequest{
			BundleID:  args[0],
			Service:   args[1],
			Timestamp: time.Now(),
		})
		if err != nil {
			return err
		}
		fmt.Printf("decision: %s (confidence %.2f)\n%s\n", result.Decision.Kind, result.Confidence, result.Reasoning)
		return nil
	},
}

var permissionGrantCmd = &cobra.Command{
	Use:   "grant <bundle-id> <service> <duration>",
	Short: "Create a temporary permission grant (e.g. 30m, 1h)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, ok := permission.ParseDuration(args[2])
		if !ok {
			return fmt.Errorf("invalid duration %q", args[2])
		}
		result, err := app.PermissionGrants.Grant(permission.GrantRequest{
			BundleID:  args[0],
			Service:   args[1],
			Duration:  d,
			GrantedBy: "cli",
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", result.Outcome, result.Grant.ID)
		return nil
	},
}

var permissionRevokeCmd = &cobra.Command{
	Use:   "revoke <grant-id>",
	Short: "Revoke a temporary permission grant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.PermissionGrants.Revoke(args[0])
	},
}

var permissionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active temporary permission grants",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, g := range app.PermissionGrants.GetActive() {
			fmt.Printf("%s\t%s\t%s\texpires %s\n", g.ID, g.BundleID, g.Service, g.ExpiresAt.Format(time.RFC3339))
		}
		return nil
	},
}

var permissionSetCmd = &cobra.Command{
	Use:   "set <bundle-id> <service> <denied|unknown|allowed|limited>",
	Short: "Directly set a permission record's authorization value",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		av, err := parseAuthValue(args[2])
		if err != nil {
			return err
		}
		return app.PermissionStore.Grant(cmd.Context(), args[0], args[1], av)
	},
}

func init() {
	permissionCmd.AddCommand(permissionEvaluateCmd, permissionGrantCmd, permissionRevokeCmd, permissionListCmd, permissionSetCmd)
}
