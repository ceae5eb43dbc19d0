package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aibiliti/kbdash/auth"
	"github.com/aibiliti/kbdash/internal/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue and check session tokens",
	Long: `Session token tools. Both subcommands read the same login configuration
as the server (config file and LOGIN_* environment variables).`,
}

var tokenVerifyCmd = &cobra.Command{
	Use:   "verify <token>",
	Short: "Check whether a session token is currently valid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !verifyToken(cmd.OutOrStdout(), cfg, args[0]) {
			return errSilent
		}
		return nil
	},
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Print a fresh session token for the configured username",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return issueToken(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenVerifyCmd)
	tokenCmd.AddCommand(tokenIssueCmd)
}

func newCodec(cfg *config.Config) (*auth.CredentialStore, *auth.SessionCodec) {
	store := auth.NewCredentialStore(cfg.Credentials())
	return store, auth.NewSessionCodec(store, auth.NewTokenSigner(store))
}

// verifyToken writes "valid <subject>" or "invalid" and reports the result.
// The reason for a rejection is never printed.
func verifyToken(w io.Writer, cfg *config.Config, token string) bool {
	_, codec := newCodec(cfg)
	subject, ok := codec.Verify(token)
	if !ok {
		fmt.Fprintln(w, "invalid")
		return false
	}
	fmt.Fprintf(w, "valid %s\n", subject)
	return true
}

func issueToken(w io.Writer, cfg *config.Config) error {
	store, codec := newCodec(cfg)
	if !store.IsConfigured() {
		return auth.ErrLoginNotConfigured
	}
	token, err := codec.Encode(store.Username())
	if err != nil {
		return err
	}
	fmt.Fprintln(w, token)
	return nil
}
