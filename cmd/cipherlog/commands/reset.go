package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the local key pair",
		Long: "Deletes the key pair of the current account. Messages sealed to the old\n" +
			"key can no longer be read. Run init again to create and register a new one.\n\n" +
			"A logd server binds each address to the signing key that first registered\n" +
			"it and refuses a new key. Export a backup first if the account uses logd.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete keys without --yes")
			}
			me, err := self()
			if err != nil {
				return err
			}
			if err := appCtx.Identity.Reset(me); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "key pair for %s deleted\n", me)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
