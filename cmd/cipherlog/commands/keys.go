package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const passphraseEnv = "CIPHERLOG_PASSPHRASE"

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Back up and restore local keys",
	}
	cmd.PersistentFlags().StringVarP(&backupPass, "backup-passphrase", "b", "", "backup passphrase (default: the key store passphrase)")
	cmd.AddCommand(keysExportCmd(), keysImportCmd())
	return cmd
}

func backupPassphrase() (string, error) {
	if backupPass != "" {
		return backupPass, nil
	}
	if p := appCtx.Config.KeyStore.Passphrase; p != "" {
		return p, nil
	}
	return "", errors.New("backup passphrase required (-b, -p or $" + passphraseEnv + ")")
}

func keysExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write every local key to an encrypted backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := backupPassphrase()
			if err != nil {
				return err
			}
			bundle, err := appCtx.Identity.Export(pass)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[0], bundle, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s\n", args[0])
			return nil
		},
	}
}

func keysImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace local keys with the content of a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := backupPassphrase()
			if err != nil {
				return err
			}
			bundle, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if err := appCtx.Identity.Import(pass, bundle); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "keys restored")
			return nil
		},
	}
}
