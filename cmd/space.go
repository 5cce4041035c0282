package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var spaceCmd = &cobra.Command{
	Use:   "space",
	Short: "Manage ephemeral filesystem spaces",
}

var spaceCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new ephemeral space",
	RunE: func(cmd *cobra.Command, args []string) error {
		space, err := app.Ephemeral.CreateSpace(cmd.Context(), nil, nil)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\t%s\n", space.ID, space.State, space.MountPath)
		return nil
	},
}

var spaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active ephemeral spaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, s := range app.Ephemeral.ListActive() {
			fmt.Printf("%s\t%s\t%s\n", s.ID, s.State, s.MountPath)
		}
		return nil
	},
}

var spaceDestroyCmd = &cobra.Command{
	Use:   "destroy <id>",
	Short: "Destroy an ephemeral space and its snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid space id: %w", err)
		}
		return app.Ephemeral.DestroySpace(cmd.Context(), id)
	},
}

func init() {
	spaceCmd.AddCommand(spaceCreateCmd, spaceListCmd, spaceDestroyCmd)
}
