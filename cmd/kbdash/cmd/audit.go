package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"

	"github.com/aibiliti/kbdash/internal/config"
	"github.com/aibiliti/kbdash/storage"
	bboltstorage "github.com/aibiliti/kbdash/storage/bbolt"
	"github.com/aibiliti/kbdash/storage/postgres"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail tools",
	Long:  `Commands for inspecting the persisted authentication audit trail.`,
}

var auditListFlags struct {
	dataDir string
	limit   int
	json    bool
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent audit events, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if auditListFlags.limit < 1 {
			return fmt.Errorf("--limit must be positive")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("data-dir") {
			cfg.Data.Dir = auditListFlags.dataDir
			cfg.Data.AuditBackend = config.AuditBackendBolt
		}

		events, err := readAuditEvents(cmd.Context(), cfg, auditListFlags.limit)
		if err != nil {
			return err
		}
		return printAuditEvents(cmd.OutOrStdout(), events, auditListFlags.json)
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)
	auditListCmd.Flags().StringVar(&auditListFlags.dataDir, "data-dir", "./data", "Directory holding audit.db (forces the bolt backend)")
	auditListCmd.Flags().IntVar(&auditListFlags.limit, "limit", storage.DefaultLimit, "Maximum number of events to print")
	auditListCmd.Flags().BoolVar(&auditListFlags.json, "json", false, "Print events as JSON")
}

// readAuditEvents reads the newest limit events from the configured backend.
func readAuditEvents(ctx context.Context, cfg *config.Config, limit int) ([]storage.Event, error) {
	switch cfg.Data.AuditBackend {
	case config.AuditBackendPostgres:
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		store, err := postgres.NewRepositoryFromDSN(ctx, cfg.Data.PostgresDSN)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		events, err := store.Recent(limit)
		if err != nil {
			return nil, fmt.Errorf("reading audit events: %w", err)
		}
		return events, nil
	case config.AuditBackendMemory:
		return nil, fmt.Errorf("the memory audit backend does not persist events")
	default:
		return readBoltEvents(filepath.Join(cfg.Data.Dir, auditDBFile), limit)
	}
}

// readBoltEvents opens the store read-only so it can run next to a live
// server holding the write lock.
func readBoltEvents(path string, limit int) ([]storage.Event, error) {
	store, err := bboltstorage.NewRepositoryFromFile(path, &bbolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	defer store.Close()

	events, err := store.Recent(limit)
	if err != nil {
		return nil, fmt.Errorf("reading audit events: %w", err)
	}
	return events, nil
}

func printAuditEvents(w io.Writer, events []storage.Event, asJSON bool) error {
	if asJSON {
		if events == nil {
			events = []storage.Event{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEVENT\tSUBJECT\tREMOTE ADDR")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.CreatedAt.UTC().Format(time.RFC3339), e.Type, dash(e.Subject), dash(e.RemoteAddr))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
