package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherlog/internal/crypto"
	"cipherlog/internal/domain"
)

func initCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "init <address>",
		Short: "Create a key pair for an address and publish its public key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			kp, created, err := appCtx.Identity.EnsureKeyPair(addr)
			if err != nil {
				return err
			}
			if !offline {
				if err := appCtx.Identity.Register(cmd.Context(), addr); err != nil {
					return err
				}
			}
			if err := appCtx.Profiles.SaveProfile(domain.Profile{
				Address: addr,
				Backend: appCtx.Config.Backend.Kind,
			}); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if created {
				fmt.Fprintln(out, "Key pair created.")
			} else {
				fmt.Fprintln(out, "Key pair already present.")
			}
			if !offline {
				fmt.Fprintln(out, "Public key registered.")
			}
			fmt.Fprintf(out, "Fingerprint: %s\n", crypto.Fingerprint(kp.Public.Slice()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip publishing the public key")
	return cmd
}
