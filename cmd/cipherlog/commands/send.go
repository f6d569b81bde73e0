package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherlog/internal/domain"
)

type sendFlags struct {
	messageType uint8
	mediaURL    string
	replyTo     string
}

func (f *sendFlags) register(cmd *cobra.Command) {
	cmd.Flags().Uint8Var(&f.messageType, "type", 0, "message type: 0 text, 1 image, 2 audio, 3 video, 4 file")
	cmd.Flags().StringVar(&f.mediaURL, "media-url", "", "media attachment URL")
	cmd.Flags().StringVar(&f.replyTo, "reply-to", "", "record id this message replies to")
}

func (f *sendFlags) options() (domain.SendOptions, error) {
	if f.messageType > uint8(domain.MessageFile) {
		return domain.SendOptions{}, fmt.Errorf("unknown message type %d", f.messageType)
	}
	opts := domain.SendOptions{MessageType: domain.MessageType(f.messageType), MediaURL: f.mediaURL}
	if f.replyTo != "" {
		id, err := domain.ParseRecordID(f.replyTo)
		if err != nil {
			return domain.SendOptions{}, fmt.Errorf("--reply-to: %w", err)
		}
		opts.ReplyTo = id
	}
	return opts, nil
}

// send <peer> <message>: encrypt and send a message to <peer>.
func sendCmd() *cobra.Command {
	var flags sendFlags
	cmd := &cobra.Command{
		Use:   "send <peer> <message>",
		Short: "Encrypt and send a message to a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			me, err := self()
			if err != nil {
				return err
			}
			peer, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			opts, err := flags.options()
			if err != nil {
				return err
			}

			res, err := appCtx.Messages.SendMessage(cmd.Context(), me, peer, args[1], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", res.ID)
			if res.SelfCopy != nil {
				if err := res.SelfCopy.Wait(cmd.Context()); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: your own copy was not saved (%v); you will not be able to read this message\n", err)
				}
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
