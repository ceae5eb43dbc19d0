package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"

	"github.com/aibiliti/kbdash/api"
	"github.com/aibiliti/kbdash/internal/config"
	"github.com/aibiliti/kbdash/storage"
	bboltstorage "github.com/aibiliti/kbdash/storage/bbolt"
	"github.com/aibiliti/kbdash/storage/memory"
	"github.com/aibiliti/kbdash/storage/postgres"
	"github.com/aibiliti/kbdash/web"
)

const auditDBFile = "audit.db"

var serverFlags struct {
	addr           string
	dataDir        string
	auditBackend   string
	postgresDSN    string
	tlsCert        string
	tlsKey         string
	production     bool
	trustedProxies []string
	webhookURL     string
	webhookHeader  string
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the dashboard server",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer memguard.Purge()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyServerFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger := newLogger()
		handler, cleanup, err := buildServer(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		var tlsConfig *tls.Config
		if cfg.Server.TLSCert != "" {
			cert, err := tls.LoadX509KeyPair(cfg.Server.TLSCert, cfg.Server.TLSKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			tlsConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		server := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           handler,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if tlsConfig != nil {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner(cmd.OutOrStdout())
		logger.Info("starting server",
			"addr", cfg.Server.Addr,
			"tls", tlsConfig != nil,
			"production", cfg.Server.Production,
			"audit_backend", cfg.Data.AuditBackend,
		)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	f := serverCmd.Flags()
	f.StringVar(&serverFlags.addr, "addr", ":8080", "Address to listen on")
	f.StringVar(&serverFlags.dataDir, "data-dir", "./data", "Directory for persistent data")
	f.StringVar(&serverFlags.auditBackend, "audit-backend", config.AuditBackendBolt, "Audit trail backend (bolt, memory or postgres)")
	f.StringVar(&serverFlags.postgresDSN, "postgres-dsn", "", "PostgreSQL DSN for the postgres audit backend")
	f.StringVar(&serverFlags.tlsCert, "tls-cert", "", "Path to TLS certificate file")
	f.StringVar(&serverFlags.tlsKey, "tls-key", "", "Path to TLS key file")
	f.BoolVar(&serverFlags.production, "production", false, "Mark session cookies Secure")
	f.StringSliceVar(&serverFlags.trustedProxies, "trusted-proxies", nil, "CIDR ranges whose forwarding headers are trusted")
	f.StringVar(&serverFlags.webhookURL, "audit-webhook-url", "", "URL that receives every audit event")
	f.StringVar(&serverFlags.webhookHeader, "audit-webhook-header", "", `Extra webhook header, "Name: value"`)
}

// applyServerFlags overlays explicitly set flags onto cfg.
func applyServerFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.Server.Addr = serverFlags.addr
	}
	if f.Changed("data-dir") {
		cfg.Data.Dir = serverFlags.dataDir
	}
	if f.Changed("audit-backend") {
		cfg.Data.AuditBackend = serverFlags.auditBackend
	}
	if f.Changed("postgres-dsn") {
		cfg.Data.PostgresDSN = serverFlags.postgresDSN
	}
	if f.Changed("tls-cert") {
		cfg.Server.TLSCert = serverFlags.tlsCert
	}
	if f.Changed("tls-key") {
		cfg.Server.TLSKey = serverFlags.tlsKey
	}
	if f.Changed("production") {
		cfg.Server.Production = serverFlags.production
	}
	if f.Changed("trusted-proxies") {
		cfg.Server.TrustedProxies = serverFlags.trustedProxies
	}
	if f.Changed("audit-webhook-url") {
		cfg.Audit.WebhookURL = serverFlags.webhookURL
	}
	if f.Changed("audit-webhook-header") {
		cfg.Audit.WebhookHeader = serverFlags.webhookHeader
	}
}

// buildServer wires the audit trail, the session gate, and the routes. The
// returned cleanup flushes the webhook and closes the audit store.
func buildServer(cfg *config.Config, logger *slog.Logger) (http.Handler, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	events, closeEvents, err := openAuditRepository(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	proxies, err := cfg.ParsedTrustedProxies()
	if err != nil {
		closeEvents()
		return nil, nil, err
	}

	pages, err := web.New()
	if err != nil {
		closeEvents()
		return nil, nil, err
	}

	gate := newGate(cfg)
	switch {
	case !gate.IsLoginConfigured():
		logger.Warn("login is not configured; set LOGIN_USERNAME, LOGIN_PASSWORD and LOGIN_SECRET")
	case cfg.SecretFallback():
		logger.Warn("LOGIN_SECRET is not set; session tokens are signed with the login password")
	}

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithEventRepository(events),
		api.WithTrustedProxies(proxies),
		api.WithAlertFunc(func(e api.AlertEvent) {
			logger.Warn("security alert",
				"type", string(e.Type),
				"count", e.Count,
				"threshold", e.Threshold,
				"message", e.Message,
			)
		}, cfg.Audit.LoginFailureThreshold),
	}
	if cfg.Audit.WebhookURL != "" {
		opts = append(opts, api.WithAuditWebhook(cfg.Audit.WebhookURL, cfg.Audit.WebhookHeader))
	}
	a := api.New(gate, pages, opts...)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Mount("/", a.Router())

	cleanup := func() {
		a.Close()
		closeEvents()
	}
	return r, cleanup, nil
}

func openAuditRepository(ctx context.Context, cfg *config.Config) (storage.Repository, func(), error) {
	switch cfg.Data.AuditBackend {
	case config.AuditBackendMemory:
		return memory.NewRepository(), func() {}, nil
	case config.AuditBackendPostgres:
		store, err := postgres.NewRepositoryFromDSN(ctx, cfg.Data.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open audit storage: %w", err)
		}
		return store, store.Close, nil
	}
	if err := os.MkdirAll(cfg.Data.Dir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := bboltstorage.NewRepositoryFromFile(filepath.Join(cfg.Data.Dir, auditDBFile), &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit storage: %w", err)
	}
	return store, func() { store.Close() }, nil
}
