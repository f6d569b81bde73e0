package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherlog/internal/domain"
)

func groupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Create groups, distribute group keys and exchange group messages",
	}
	cmd.AddCommand(
		groupCreateCmd(),
		groupShareCmd(),
		groupSyncCmd(),
		groupSendCmd(),
		groupReadCmd(),
		groupClearCmd(),
	)
	return cmd
}

func groupCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a group and keep its key locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			me, err := self()
			if err != nil {
				return err
			}
			g, err := appCtx.Groups.CreateGroup(cmd.Context(), me)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "group %s\n", g.ID)
			return nil
		},
	}
}

func groupShareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "share <group-id> <member>...",
		Short: "Publish the group key for each member",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			me, err := self()
			if err != nil {
				return err
			}
			gid, err := domain.ParseGroupID(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, arg := range args[1:] {
				member, err := parseAddress(arg)
				if err != nil {
					return err
				}
				pending, err := appCtx.Groups.ShareGroupKey(cmd.Context(), me, gid, member)
				if err != nil {
					return fmt.Errorf("share with %s: %w", member, err)
				}
				if err := pending.Wait(cmd.Context()); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: key share for %s not published: %v\n", member, err)
					continue
				}
				fmt.Fprintf(out, "shared with %s\n", member)
			}
			return nil
		},
	}
}

func groupSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <from>...",
		Short: "Import group keys shared with you",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			me, err := self()
			if err != nil {
				return err
			}
			total := 0
			for _, arg := range args {
				from, err := parseAddress(arg)
				if err != nil {
					return err
				}
				n, err := appCtx.Groups.SyncGroupKeys(cmd.Context(), me, from)
				if err != nil {
					return err
				}
				total += n
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d group key(s) updated\n", total)
			return nil
		},
	}
}

func groupSendCmd() *cobra.Command {
	var flags sendFlags
	cmd := &cobra.Command{
		Use:   "send <group-id> <message>",
		Short: "Encrypt and send a group message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			me, err := self()
			if err != nil {
				return err
			}
			gid, err := domain.ParseGroupID(args[0])
			if err != nil {
				return err
			}
			opts, err := flags.options()
			if err != nil {
				return err
			}
			res, err := appCtx.Groups.SendGroupMessage(cmd.Context(), me, gid, args[1], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", res.ID)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func groupReadCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "read <group-id> <member>...",
		Short: "Print the messages the given members sent to a group",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			me, err := self()
			if err != nil {
				return err
			}
			gid, err := domain.ParseGroupID(args[0])
			if err != nil {
				return err
			}
			members := make([]domain.Address, 0, len(args)-1)
			for _, arg := range args[1:] {
				m, err := parseAddress(arg)
				if err != nil {
					return err
				}
				members = append(members, m)
			}
			msgs, err := appCtx.Groups.GroupTranscript(cmd.Context(), gid, members, limit)
			if err != nil {
				return err
			}
			p := printer{out: cmd.OutOrStdout(), json: asJSON}
			for _, m := range msgs {
				m.Outgoing = m.Sender == me
				p.print(m)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "most recent messages to show (0: configured default, -1: all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per message")
	return cmd
}

func groupClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <group-id>",
		Short: "Soft-delete every message you sent to a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			me, err := self()
			if err != nil {
				return err
			}
			gid, err := domain.ParseGroupID(args[0])
			if err != nil {
				return err
			}
			res, err := appCtx.Groups.ClearGroupChat(cmd.Context(), me, gid)
			reportClear(cmd.OutOrStdout(), res)
			return err
		},
	}
}
