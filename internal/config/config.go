// Package config loads the dashboard configuration from an optional YAML file
// and the process environment.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aibiliti/kbdash/auth"
)

// Environment variables read by FromEnv.
const (
	EnvLoginUsername = "LOGIN_USERNAME"
	EnvLoginPassword = "LOGIN_PASSWORD"
	EnvLoginSecret   = "LOGIN_SECRET"
	EnvAppEnv        = "APP_ENV"
	EnvAddr          = "KBDASH_ADDR"
	EnvDataDir       = "KBDASH_DATA_DIR"
	EnvPostgresDSN   = "KBDASH_POSTGRES_DSN"
)

// Audit backends.
const (
	AuditBackendBolt     = "bolt"
	AuditBackendMemory   = "memory"
	AuditBackendPostgres = "postgres"
)

// Config is the complete dashboard configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Login  LoginConfig  `yaml:"login"`
	Data   DataConfig   `yaml:"data"`
	Audit  AuditConfig  `yaml:"audit"`
}

// ServerConfig holds listener and transport settings.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	TLSCert        string   `yaml:"tls_cert"`
	TLSKey         string   `yaml:"tls_key"`
	Production     bool     `yaml:"production"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// LoginConfig holds the single sign-in identity. A nil Secret means "not
// supplied" and falls back to Password; a non-nil empty Secret disables login.
type LoginConfig struct {
	Username string  `yaml:"username"`
	Password string  `yaml:"password"`
	Secret   *string `yaml:"secret"`
}

// DataConfig holds persistence settings.
type DataConfig struct {
	Dir          string `yaml:"dir"`
	AuditBackend string `yaml:"audit_backend"`
	PostgresDSN  string `yaml:"postgres_dsn"`
}

// AuditConfig holds audit forwarding and alerting settings.
type AuditConfig struct {
	WebhookURL            string `yaml:"webhook_url"`
	WebhookHeader         string `yaml:"webhook_header"`
	LoginFailureThreshold int    `yaml:"login_failure_threshold"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Data: DataConfig{
			Dir:          "./data",
			AuditBackend: AuditBackendBolt,
		},
	}
}

// Load reads a configuration file from the given path on top of Default.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to "".
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// FromEnv overlays environment variables onto c. Variables that are not
// present leave the current value alone.
func (c *Config) FromEnv(lookup LookupFunc) {
	if v, ok := lookup(EnvLoginUsername); ok {
		c.Login.Username = v
	}
	if v, ok := lookup(EnvLoginPassword); ok {
		c.Login.Password = v
	}
	if v, ok := lookup(EnvLoginSecret); ok {
		c.Login.Secret = &v
	}
	if v, ok := lookup(EnvAppEnv); ok && strings.EqualFold(v, "production") {
		c.Server.Production = true
	}
	if v, ok := lookup(EnvAddr); ok && v != "" {
		c.Server.Addr = v
	}
	if v, ok := lookup(EnvDataDir); ok && v != "" {
		c.Data.Dir = v
	}
	if v, ok := lookup(EnvPostgresDSN); ok && v != "" {
		c.Data.PostgresDSN = v
	}
}

// Credentials resolves the login identity, applying the secret fallback.
func (c *Config) Credentials() auth.Credentials {
	secret := c.Login.Password
	if c.Login.Secret != nil {
		secret = *c.Login.Secret
	}
	return auth.Credentials{
		Username: c.Login.Username,
		Password: c.Login.Password,
		Secret:   secret,
	}
}

// SecretFallback reports whether the signing secret is the login password.
func (c *Config) SecretFallback() bool {
	return c.Login.Secret == nil && c.Login.Password != ""
}

// ParsedTrustedProxies parses Server.TrustedProxies as CIDR prefixes. A bare
// address is treated as a single-host prefix.
func (c *Config) ParsedTrustedProxies() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.Server.TrustedProxies))
	for _, raw := range c.Server.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("parsing trusted proxy %q: %w", raw, err)
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing trusted proxy %q: %w", raw, err)
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes, nil
}

// Validate checks settings the server cannot start without. Missing login
// credentials are not an error: the dashboard starts with login disabled.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("server.tls_cert and server.tls_key must be set together")
	}
	switch c.Data.AuditBackend {
	case AuditBackendBolt:
		if c.Data.Dir == "" {
			return fmt.Errorf("data.dir is required for the bolt audit backend")
		}
	case AuditBackendPostgres:
		if c.Data.PostgresDSN == "" {
			return fmt.Errorf("data.postgres_dsn is required for the postgres audit backend")
		}
	case AuditBackendMemory:
	default:
		return fmt.Errorf("data.audit_backend must be %q, %q or %q, got %q",
			AuditBackendBolt, AuditBackendMemory, AuditBackendPostgres, c.Data.AuditBackend)
	}
	if c.Audit.LoginFailureThreshold < 0 {
		return fmt.Errorf("audit.login_failure_threshold must not be negative")
	}
	if _, err := c.ParsedTrustedProxies(); err != nil {
		return err
	}
	return nil
}
