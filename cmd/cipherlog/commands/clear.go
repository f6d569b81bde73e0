package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"cipherlog/internal/domain"
)

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <peer>",
		Short: "Soft-delete every message you sent to a peer",
		Long: "Marks every message you published into the conversation as deleted.\n" +
			"Only your own records can be overwritten: messages sent by the peer stay\n" +
			"visible until the peer clears the conversation too.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			me, err := self()
			if err != nil {
				return err
			}
			peer, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			res, err := appCtx.Messages.ClearChat(cmd.Context(), me, peer)
			reportClear(cmd.OutOrStdout(), res)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Messages from %s remain until they clear the conversation too.\n", peer)
			return nil
		},
	}
}

func reportClear(out io.Writer, res domain.ClearResult) {
	fmt.Fprintf(out, "cleared %d record(s)\n", res.Cleared)
	for _, f := range res.Failed {
		fmt.Fprintf(out, "  not cleared %s: %v\n", f.ID, f.Err)
	}
}
