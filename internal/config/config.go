// Package config loads reconciler settings from RECONCILER_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissing is returned when a required variable is unset.
var ErrMissing = errors.New("required configuration missing")

type Config struct {
	AdminSecretKey string // RECONCILER_ADMIN_SECRET_KEY (required)
	PackageID      string // RECONCILER_PACKAGE_ID (required, 0x-hex)
	Network        string // RECONCILER_NETWORK (required)
	RPCURL         string // RECONCILER_RPC_URL (default: looked up from Network)
	NetworksFile   string // RECONCILER_NETWORKS_FILE (optional TOML network table)
	HealthPort     int    // RECONCILER_HEALTH_PORT (default 3001)

	PollInterval         time.Duration // RECONCILER_POLL_INTERVAL (default 5s)
	BackoffInterval      time.Duration // RECONCILER_BACKOFF_INTERVAL (default 15s)
	EventLimit           int           // RECONCILER_EVENT_LIMIT (default 50)
	GasBudget            uint64        // RECONCILER_GAS_BUDGET (default 10000000)
	FinalityTimeout      time.Duration // RECONCILER_FINALITY_TIMEOUT (default 60s)
	ShutdownGrace        time.Duration // RECONCILER_SHUTDOWN_GRACE (default 5s)
	UnhealthyErrorStreak int           // RECONCILER_UNHEALTHY_ERROR_STREAK (default 0 = always healthy)

	GRPCAddr    string // RECONCILER_GRPC_ADDR (optional, empty = no gRPC health)
	NATSURL     string // RECONCILER_NATS_URL (optional, empty = no events)
	DatabaseURL string // RECONCILER_DATABASE_URL (optional, empty = no ledger)

	// Ledger export settings
	ExportInterval   time.Duration // RECONCILER_EXPORT_INTERVAL (default 10m; 0 = disabled)
	ExportS3Bucket   string        // RECONCILER_EXPORT_S3_BUCKET (enables S3 when set)
	ExportS3Key      string        // RECONCILER_EXPORT_S3_KEY (default "reconciler/attempts.jsonl")
	ExportS3Region   string        // RECONCILER_EXPORT_S3_REGION (default "us-east-1")
	ExportS3Endpoint string        // RECONCILER_EXPORT_S3_ENDPOINT (custom endpoint for MinIO)
}

// Load reads the environment and validates it. Any error is fatal at
// startup.
func Load() (*Config, error) {
	c, err := Read()
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Read parses the environment without enforcing required variables. CLI
// subcommands that only need part of the configuration use it directly.
func Read() (*Config, error) {
	c := &Config{
		AdminSecretKey:   strings.TrimSpace(os.Getenv("RECONCILER_ADMIN_SECRET_KEY")),
		PackageID:        strings.TrimSpace(os.Getenv("RECONCILER_PACKAGE_ID")),
		Network:          strings.TrimSpace(os.Getenv("RECONCILER_NETWORK")),
		RPCURL:           os.Getenv("RECONCILER_RPC_URL"),
		NetworksFile:     os.Getenv("RECONCILER_NETWORKS_FILE"),
		GRPCAddr:         os.Getenv("RECONCILER_GRPC_ADDR"),
		NATSURL:          os.Getenv("RECONCILER_NATS_URL"),
		DatabaseURL:      os.Getenv("RECONCILER_DATABASE_URL"),
		ExportS3Bucket:   os.Getenv("RECONCILER_EXPORT_S3_BUCKET"),
		ExportS3Key:      envOrDefault("RECONCILER_EXPORT_S3_KEY", "reconciler/attempts.jsonl"),
		ExportS3Region:   envOrDefault("RECONCILER_EXPORT_S3_REGION", "us-east-1"),
		ExportS3Endpoint: os.Getenv("RECONCILER_EXPORT_S3_ENDPOINT"),
	}

	var err error
	if c.HealthPort, err = envInt("RECONCILER_HEALTH_PORT", 3001); err != nil {
		return nil, err
	}
	if c.EventLimit, err = envInt("RECONCILER_EVENT_LIMIT", 50); err != nil {
		return nil, err
	}
	if c.UnhealthyErrorStreak, err = envInt("RECONCILER_UNHEALTHY_ERROR_STREAK", 0); err != nil {
		return nil, err
	}

	gas := envOrDefault("RECONCILER_GAS_BUDGET", "10000000")
	if c.GasBudget, err = strconv.ParseUint(gas, 10, 64); err != nil {
		return nil, fmt.Errorf("RECONCILER_GAS_BUDGET: %w", err)
	}

	for _, d := range []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"RECONCILER_POLL_INTERVAL", "5s", &c.PollInterval},
		{"RECONCILER_BACKOFF_INTERVAL", "15s", &c.BackoffInterval},
		{"RECONCILER_FINALITY_TIMEOUT", "60s", &c.FinalityTimeout},
		{"RECONCILER_SHUTDOWN_GRACE", "5s", &c.ShutdownGrace},
		{"RECONCILER_EXPORT_INTERVAL", "10m", &c.ExportInterval},
	} {
		v, err := time.ParseDuration(envOrDefault(d.key, d.fallback))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = v
	}

	return c, nil
}

// Validate checks required variables and ranges, and resolves RPCURL from
// the network table when it is not set explicitly.
func (c *Config) Validate() error {
	for _, req := range []struct {
		key string
		val string
	}{
		{"RECONCILER_ADMIN_SECRET_KEY", c.AdminSecretKey},
		{"RECONCILER_PACKAGE_ID", c.PackageID},
		{"RECONCILER_NETWORK", c.Network},
	} {
		if req.val == "" {
			return fmt.Errorf("%w: %s", ErrMissing, req.key)
		}
	}

	if !isHexID(c.PackageID) {
		return fmt.Errorf("RECONCILER_PACKAGE_ID: %q is not a 0x-prefixed hex id", c.PackageID)
	}
	if c.HealthPort < 1 || c.HealthPort > 65535 {
		return fmt.Errorf("RECONCILER_HEALTH_PORT: %d out of range 1-65535", c.HealthPort)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("RECONCILER_POLL_INTERVAL: must be positive, got %s", c.PollInterval)
	}
	if c.BackoffInterval < c.PollInterval {
		return fmt.Errorf("RECONCILER_BACKOFF_INTERVAL: %s is shorter than poll interval %s", c.BackoffInterval, c.PollInterval)
	}
	if c.EventLimit < 1 || c.EventLimit > 1000 {
		return fmt.Errorf("RECONCILER_EVENT_LIMIT: %d out of range 1-1000", c.EventLimit)
	}
	if c.GasBudget == 0 {
		return fmt.Errorf("RECONCILER_GAS_BUDGET: must be positive")
	}
	if c.FinalityTimeout <= 0 {
		return fmt.Errorf("RECONCILER_FINALITY_TIMEOUT: must be positive, got %s", c.FinalityTimeout)
	}
	if c.ShutdownGrace < 0 {
		return fmt.Errorf("RECONCILER_SHUTDOWN_GRACE: must not be negative, got %s", c.ShutdownGrace)
	}
	if c.UnhealthyErrorStreak < 0 {
		return fmt.Errorf("RECONCILER_UNHEALTHY_ERROR_STREAK: must not be negative, got %d", c.UnhealthyErrorStreak)
	}
	if c.ExportInterval < 0 {
		return fmt.Errorf("RECONCILER_EXPORT_INTERVAL: must not be negative, got %s", c.ExportInterval)
	}

	if c.RPCURL == "" {
		networks, err := LoadNetworks(c.NetworksFile)
		if err != nil {
			return err
		}
		n, ok := networks[c.Network]
		if !ok {
			return fmt.Errorf("RECONCILER_NETWORK: unknown network %q (known: %s)", c.Network, strings.Join(networks.Names(), ", "))
		}
		c.RPCURL = n.RPCURL
	}
	return nil
}

// HealthAddr is the listen address for the health HTTP server.
func (c *Config) HealthAddr() string {
	return ":" + strconv.Itoa(c.HealthPort)
}

// ExportEnabled reports whether ledger export should run.
func (c *Config) ExportEnabled() bool {
	return c.ExportInterval > 0 && c.DatabaseURL != "" && c.ExportS3Bucket != ""
}

func isHexID(s string) bool {
	h, ok := strings.CutPrefix(s, "0x")
	if !ok || h == "" || len(h) > 64 {
		return false
	}
	for _, r := range h {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
