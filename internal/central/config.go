// Package central wires the infradesk server: configuration, the REST API
// used by the admin panel and the CLI, and the gRPC health endpoint.
package central

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/why-xn/infradesk/internal/alerts"
	"github.com/why-xn/infradesk/internal/monitoring"
	"github.com/why-xn/infradesk/internal/store"
)

// Config holds the complete configuration for the server.
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Database   DatabaseConfig    `yaml:"database"`
	Auth       AuthConfig        `yaml:"auth"`
	Ledger     LedgerConfig      `yaml:"ledger"`
	Alerts     alerts.Thresholds `yaml:"alerts"`
	Monitoring monitoring.Config `yaml:"monitoring"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`
	GRPCPort int `yaml:"grpc_port"`

	// How often alert gauges, the health status and expired refresh tokens
	// are refreshed.
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite and a connection URL for postgres.
	DSN    string `yaml:"dsn"`
}

type AuthConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	AccessTokenExpiry  time.Duration `yaml:"access_token_expiry"`
	RefreshTokenExpiry time.Duration `yaml:"refresh_token_expiry"`

	// The first admin, created on startup when no operator exists.
	BootstrapAdminEmail    string `yaml:"bootstrap_admin_email"`
	BootstrapAdminPassword string `yaml:"bootstrap_admin_password"`
}

type LedgerConfig struct {
	// AllowOvercommit lets a VM claim more than a node has available. The
	// allocation is logged as a warning and available figures go negative.
	// Off by default; set allow_overcommit: true for warn-only placement.
	AllowOvercommit bool `yaml:"allow_overcommit"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:            8080,
			GRPCPort:            9090,
			MaintenanceInterval: time.Minute,
		},
		Database: DatabaseConfig{
			Driver: store.DriverSQLite,
			DSN:    "infradesk.db",
		},
		Auth: AuthConfig{
			AccessTokenExpiry:  15 * time.Minute,
			RefreshTokenExpiry: 7 * 24 * time.Hour,
		},
		Alerts: alerts.DefaultThresholds(),
	}
}

// LoadConfig reads configuration from a YAML file at the given path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides file values with INFRADESK_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"INFRADESK_DB_DRIVER":                &c.Database.Driver,
		"INFRADESK_DB_DSN":                   &c.Database.DSN,
		"INFRADESK_JWT_SECRET":               &c.Auth.JWTSecret,
		"INFRADESK_BOOTSTRAP_ADMIN_EMAIL":    &c.Auth.BootstrapAdminEmail,
		"INFRADESK_BOOTSTRAP_ADMIN_PASSWORD": &c.Auth.BootstrapAdminPassword,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"INFRADESK_HTTP_PORT": &c.Server.HTTPPort,
		"INFRADESK_GRPC_PORT": &c.Server.GRPCPort,
	}
	for key, dst := range ints {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	if v := getenv("INFRADESK_ALLOW_OVERCOMMIT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("INFRADESK_ALLOW_OVERCOMMIT: %w", err)
		}
		c.Ledger.AllowOvercommit = b
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.GRPCPort <= 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.Server.GRPCPort)
	}
	if c.Server.HTTPPort == c.Server.GRPCPort {
		return fmt.Errorf("HTTP and gRPC ports must be different")
	}
	if c.Server.MaintenanceInterval <= 0 {
		return fmt.Errorf("maintenance interval must be positive")
	}
	switch c.Database.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("jwt secret must be at least 32 characters")
	}
	if c.Auth.AccessTokenExpiry <= 0 || c.Auth.RefreshTokenExpiry <= 0 {
		return fmt.Errorf("token expiries must be positive")
	}
	if (c.Auth.BootstrapAdminEmail == "") != (c.Auth.BootstrapAdminPassword == "") {
		return fmt.Errorf("bootstrap admin needs both email and password")
	}
	t := c.Alerts
	if t.PasswordUrgentDays < 0 || t.PasswordDueSoonDays < t.PasswordUrgentDays {
		return fmt.Errorf("alerts: password_urgent_days must be between 0 and password_due_soon_days")
	}
	if t.ContractUrgentDays < 0 || t.ContractExpiringDays < t.ContractUrgentDays {
		return fmt.Errorf("alerts: contract_urgent_days must be between 0 and contract_expiring_days")
	}
	return nil
}
