package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aibiliti/kbdash/auth"
	"github.com/aibiliti/kbdash/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "kbdash",
	Short: "kbdash is the knowledge base admin dashboard",
	Long: `An admin dashboard for industry knowledge bases, guarded by a single
configured credential pair and stateless signed session cookies.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// errSilent marks a failure whose output has already been written.
var errSilent = errors.New("silent failure")

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
}

// loadConfig builds the configuration from defaults, the optional config
// file, and the environment, in that order. Command flags are applied by
// the caller.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.FromEnv(os.LookupEnv)
	return cfg, nil
}

// newGate assembles the session gate for cfg.
func newGate(cfg *config.Config) *auth.Gate {
	store, codec := newCodec(cfg)
	return auth.NewGate(store, codec, auth.WithSecureCookies(cfg.Server.Production))
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}
