package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cipherlog/internal/domain"
)

type printer struct {
	out  io.Writer
	json bool
}

func (p printer) print(m domain.DecryptedMessage) {
	if p.json {
		_ = json.NewEncoder(p.out).Encode(m)
		return
	}
	ts := time.UnixMilli(int64(m.Timestamp)).Format(time.DateTime)
	who := m.Sender.String()
	if m.Outgoing {
		who = "me"
	}
	suffix := ""
	if m.MediaURL != "" {
		suffix = " <" + m.MediaURL + ">"
	}
	fmt.Fprintf(p.out, "[%s] %s: %s%s\n", ts, who, m.Plaintext, suffix)
}

// read <peer>: print the conversation with <peer>.
func readCmd() *cobra.Command {
	var (
		limit  int
		watch  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "read <peer>",
		Short: "Print the conversation with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			me, err := self()
			if err != nil {
				return err
			}
			peer, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			p := printer{out: cmd.OutOrStdout(), json: asJSON}

			if watch {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return appCtx.Messages.Watch(ctx, me, peer, p.print)
			}

			msgs, err := appCtx.Messages.Transcript(cmd.Context(), me, peer, limit)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				p.print(m)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "most recent messages to show (0: configured default, -1: all)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep polling and print new messages")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per message")
	return cmd
}
