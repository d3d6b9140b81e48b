package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type ServerConfig struct {
	Port        int    `toml:"port"`
	LogLevel    string `toml:"log_level"`
	BodyLimitMB int    `toml:"body_limit_mb"`
}

type JWTConfig struct {
	Secret        string `toml:"secret"` // HS256 signing secret shared with the auth provider
	Issuer        string `toml:"issuer"`
	TokenTTLHours int    `toml:"token_ttl_hours"`
}

type EncryptionConfig struct {
	Key string `toml:"key"` // secret the per-password AES keys are derived from
}

type StorageConfig struct {
	Driver string `toml:"driver"` // "bolt" or "sqlite"
	Path   string `toml:"path"`
}

type SyncConfig struct {
	CutoffDays         int     `toml:"cutoff_days"`
	FetchConcurrency   int     `toml:"fetch_concurrency"`
	FetchBatch         int     `toml:"fetch_batch"`
	FetchRatePerSecond float64 `toml:"fetch_rate_per_second"` // 0 disables
	LeaseSeconds       int     `toml:"lease_seconds"`
}

type MailConfig struct {
	TimeoutSeconds     int  `toml:"timeout_seconds"`
	InsecureSkipVerify bool `toml:"insecure_skip_verify"`
	VerifyBeforeSend   bool `toml:"verify_before_send"`
}

type RateLimitConfig struct {
	Requests      int `toml:"requests"`
	WindowSeconds int `toml:"window_seconds"`
}

type SSLConfig struct {
	Enabled    bool   `toml:"enabled"`
	CertFile   string `toml:"cert_file"`    // Path to fullchain.pem
	KeyFile    string `toml:"key_file"`     // Path to privkey.pem
	Port       int    `toml:"port"`         // HTTPS port (default 443)
	Domain     string `toml:"domain"`       // Domain name for HSTS
	HSTSMaxAge int    `toml:"hsts_max_age"` // Max age for HSTS in seconds
}

type Config struct {
	Server     ServerConfig     `toml:"server"`
	JWT        JWTConfig        `toml:"jwt"`
	Encryption EncryptionConfig `toml:"encryption"`
	Storage    StorageConfig    `toml:"storage"`
	Sync       SyncConfig       `toml:"sync"`
	Mail       MailConfig       `toml:"mail"`
	RateLimit  RateLimitConfig  `toml:"rate_limit"`
	SSL        SSLConfig        `toml:"ssl"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var config Config

	config.Server.Port = 3000
	config.Server.LogLevel = "info"
	config.Server.BodyLimitMB = 25

	config.JWT.Issuer = "mailbridge"
	config.JWT.TokenTTLHours = 24

	config.Storage.Driver = "bolt"
	config.Storage.Path = "./data"

	config.Sync.CutoffDays = 30
	config.Sync.FetchConcurrency = 5
	config.Sync.FetchBatch = 50
	config.Sync.LeaseSeconds = 300

	config.Mail.TimeoutSeconds = 45

	config.RateLimit.Requests = 100
	config.RateLimit.WindowSeconds = 60

	config.SSL.Port = 443
	config.SSL.HSTSMaxAge = 31536000 // 1 year

	return &config
}

// LoadConfig reads the TOML file at path on top of the defaults, then applies
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, config); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ENCRYPTION_KEY"); v != "" {
		c.Encryption.Key = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("MAILBRIDGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// Validate rejects unusable settings and clamps tunables into range.
func (c *Config) Validate() error {
	if c.Encryption.Key == "" {
		return errors.New("encryption key is required (encryption.key or ENCRYPTION_KEY)")
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt secret is required (jwt.secret or JWT_SECRET)")
	}
	switch c.Storage.Driver {
	case "bolt", "sqlite":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	c.Sync.FetchConcurrency = clamp(c.Sync.FetchConcurrency, 1, 10)
	c.Sync.FetchBatch = clamp(c.Sync.FetchBatch, 1, 500)
	c.Sync.CutoffDays = clamp(c.Sync.CutoffDays, 1, 3650)
	c.Mail.TimeoutSeconds = clamp(c.Mail.TimeoutSeconds, 5, 120)
	if c.Sync.LeaseSeconds < c.Mail.TimeoutSeconds {
		c.Sync.LeaseSeconds = c.Mail.TimeoutSeconds * 2
	}

	if c.SSL.Enabled {
		if err := c.ValidateSSL(); err != nil {
			return fmt.Errorf("SSL configuration error: %w", err)
		}
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MailTimeout is the hard deadline for one IMAP or SMTP session.
func (c *Config) MailTimeout() time.Duration {
	return time.Duration(c.Mail.TimeoutSeconds) * time.Second
}

// SyncCutoff is how far back a sync searches.
func (c *Config) SyncCutoff() time.Duration {
	return time.Duration(c.Sync.CutoffDays) * 24 * time.Hour
}

// SyncLease bounds how long one sync may hold its account.
func (c *Config) SyncLease() time.Duration {
	return time.Duration(c.Sync.LeaseSeconds) * time.Second
}

// ValidateSSL checks if the SSL configuration is valid
func (c *Config) ValidateSSL() error {
	if !c.SSL.Enabled {
		return nil
	}

	if c.SSL.CertFile == "" {
		return fmt.Errorf("SSL certificate file path is required")
	}

	if c.SSL.KeyFile == "" {
		return fmt.Errorf("SSL key file path is required")
	}

	// Try loading the certificates to verify they're valid
	_, err := tls.LoadX509KeyPair(c.SSL.CertFile, c.SSL.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to load SSL certificates: %w", err)
	}

	return nil
}

// GetSecurityHeaders returns the extra headers sent when TLS is enabled.
func (c *Config) GetSecurityHeaders() map[string]string {
	headers := make(map[string]string)

	if c.SSL.Enabled && c.SSL.Domain != "" {
		headers["Strict-Transport-Security"] = fmt.Sprintf("max-age=%d; includeSubDomains", c.SSL.HSTSMaxAge)
	}

	return headers
}
