package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherlog/internal/domain"
)

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <record-id>",
		Short: "Soft-delete one of your messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			me, err := self()
			if err != nil {
				return err
			}
			id, err := domain.ParseRecordID(args[0])
			if err != nil {
				return err
			}
			if err := appCtx.Messages.DeleteMessage(cmd.Context(), me, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			return nil
		},
	}
}
