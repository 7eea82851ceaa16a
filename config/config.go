package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Output string `toml:"output"` // "stdout", "stderr", or a file path
	Format string `toml:"format"` // "console" or "json"
	Level  string `toml:"level"`  // "debug", "info", "warn", "error"
}

// ServerConfig holds the JMAP HTTP listener configuration.
type ServerConfig struct {
	Name           string   `toml:"name"`
	Addr           string   `toml:"addr"`
	SessionSecret  string   `toml:"session_secret"` // HMAC key for session cookies
	AllowedOrigins []string `toml:"allowed_origins"`
	TLS            bool     `toml:"tls"`
	TLSCertFile    string   `toml:"tls_cert_file"`
	TLSKeyFile     string   `toml:"tls_key_file"`
	ReadTimeout    string   `toml:"read_timeout"`
	WriteTimeout   string   `toml:"write_timeout"`
}

// GetReadTimeout parses the read timeout duration.
func (s *ServerConfig) GetReadTimeout() (time.Duration, error) {
	if s.ReadTimeout == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(s.ReadTimeout)
}

// GetWriteTimeout parses the write timeout duration.
func (s *ServerConfig) GetWriteTimeout() (time.Duration, error) {
	if s.WriteTimeout == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(s.WriteTimeout)
}

// BackendConfig holds the upstream IMAP store configuration.
type BackendConfig struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	DialTimeout string `toml:"dial_timeout"`
}

// Addr returns the host:port dial address for the backend.
func (b *BackendConfig) Addr() string {
	port := b.Port
	if port == 0 {
		port = 993
	}
	return fmt.Sprintf("%s:%d", b.Host, port)
}

// GetDialTimeout parses the dial timeout duration.
func (b *BackendConfig) GetDialTimeout() (time.Duration, error) {
	if b.DialTimeout == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(b.DialTimeout)
}

// AuthLimiterConfig holds progressive authentication delay configuration.
type AuthLimiterConfig struct {
	Enabled             bool    `toml:"enabled"`
	DelayStartThreshold int     `toml:"delay_start_threshold"` // failures before delays kick in
	InitialDelay        string  `toml:"initial_delay"`
	MaxDelay            string  `toml:"max_delay"`
	DelayMultiplier     float64 `toml:"delay_multiplier"`
	WindowDuration      string  `toml:"window_duration"` // failure counting window
}

// GetInitialDelay parses the initial delay duration.
func (a *AuthLimiterConfig) GetInitialDelay() (time.Duration, error) {
	if a.InitialDelay == "" {
		return time.Second, nil
	}
	return time.ParseDuration(a.InitialDelay)
}

// GetMaxDelay parses the maximum delay duration.
func (a *AuthLimiterConfig) GetMaxDelay() (time.Duration, error) {
	if a.MaxDelay == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(a.MaxDelay)
}

// GetWindowDuration parses the failure window duration.
func (a *AuthLimiterConfig) GetWindowDuration() (time.Duration, error) {
	if a.WindowDuration == "" {
		return 15 * time.Minute, nil
	}
	return time.ParseDuration(a.WindowDuration)
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// ACMEConfig holds automatic certificate management configuration.
type ACMEConfig struct {
	Enabled  bool     `toml:"enabled"`
	Email    string   `toml:"email"`
	Domains  []string `toml:"domains"`
	CacheDir string   `toml:"cache_dir"`
}

// Config is the top-level gateway configuration.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Backend     BackendConfig     `toml:"backend"`
	AuthLimiter AuthLimiterConfig `toml:"auth_limiter"`
	Logging     LoggingConfig     `toml:"logging"`
	Metrics     MetricsConfig     `toml:"metrics"`
	ACME        ACMEConfig        `toml:"acme"`
}

// NewDefaultConfig returns a configuration with all defaults applied.
func NewDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name: "jig",
			Addr: ":8080",
		},
		Backend: BackendConfig{
			Port: 993,
		},
		AuthLimiter: AuthLimiterConfig{
			Enabled:             true,
			DelayStartThreshold: 3,
			DelayMultiplier:     2.0,
		},
		Logging: LoggingConfig{
			Output: "stderr",
			Format: "console",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
	}
}

// LoadConfigFromFile decodes a TOML configuration file into cfg on top of
// whatever defaults cfg already carries. Unknown keys are reported as an
// error so typos do not silently disable features.
func LoadConfigFromFile(configPath string, cfg *Config) error {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	metadata, err := toml.Decode(string(content), cfg)
	if err != nil {
		return fmt.Errorf("failed to parse config file '%s': %w", configPath, err)
	}

	if undecoded := metadata.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config file '%s' contains unknown keys: %v", configPath, undecoded)
	}

	return nil
}

// Validate checks the configuration for missing required values and
// unparseable durations.
func (c *Config) Validate() error {
	if c.Backend.Host == "" {
		return fmt.Errorf("backend.host is required")
	}
	if c.Server.SessionSecret == "" {
		return fmt.Errorf("server.session_secret is required")
	}
	if c.Server.TLS && !c.ACME.Enabled {
		if c.Server.TLSCertFile == "" || c.Server.TLSKeyFile == "" {
			return fmt.Errorf("server.tls_cert_file and server.tls_key_file are required when TLS is enabled without ACME")
		}
	}
	if c.ACME.Enabled && len(c.ACME.Domains) == 0 {
		return fmt.Errorf("acme.domains is required when ACME is enabled")
	}
	if _, err := c.Server.GetReadTimeout(); err != nil {
		return fmt.Errorf("invalid server.read_timeout: %w", err)
	}
	if _, err := c.Server.GetWriteTimeout(); err != nil {
		return fmt.Errorf("invalid server.write_timeout: %w", err)
	}
	if _, err := c.Backend.GetDialTimeout(); err != nil {
		return fmt.Errorf("invalid backend.dial_timeout: %w", err)
	}
	if _, err := c.AuthLimiter.GetInitialDelay(); err != nil {
		return fmt.Errorf("invalid auth_limiter.initial_delay: %w", err)
	}
	if _, err := c.AuthLimiter.GetMaxDelay(); err != nil {
		return fmt.Errorf("invalid auth_limiter.max_delay: %w", err)
	}
	if _, err := c.AuthLimiter.GetWindowDuration(); err != nil {
		return fmt.Errorf("invalid auth_limiter.window_duration: %w", err)
	}
	return nil
}
