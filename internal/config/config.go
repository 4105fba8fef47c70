package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const CredentialEnvVar = "CARBON_API_KEY"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Printers PrintersConfig `yaml:"printers"`
	Source   SourceConfig   `yaml:"source"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PrintersConfig holds the static printer inventory. The first device is
// the default printer.
type PrintersConfig struct {
	Devices         []PrinterConfig `yaml:"devices"`
	DispatchTimeout time.Duration   `yaml:"dispatch_timeout"`
	DevicePath      string          `yaml:"device_path"`
}

type PrinterConfig struct {
	Host        string   `yaml:"host"`
	WorkCenters []string `yaml:"work_centers"`
}

// SourceConfig controls how label content is downloaded when a request
// carries a URL instead of inline ZPL.
type SourceConfig struct {
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	CredentialHeader string        `yaml:"credential_header"`
	CredentialMatch  string        `yaml:"credential_match"`
	CredentialHosts  []string      `yaml:"credential_hosts"`
	// MaxBytes caps a downloaded label body. Zero disables the cap.
	MaxBytes int64 `yaml:"max_bytes"`

	// APIKey only ever comes from the environment.
	APIKey string `yaml:"-"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         4321,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Printers: PrintersConfig{
			DispatchTimeout: 5 * time.Second,
			DevicePath:      "/pstprnt",
		},
		Source: SourceConfig{
			FetchTimeout:     30 * time.Second,
			CredentialHeader: "carbon-key",
			CredentialMatch:  "carbon",
			MaxBytes:         10 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Default() *Config {
	return defaults()
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overlays environment variables on top of the file values.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("LABELRELAY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LABELRELAY_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}

	if v := os.Getenv("LABELRELAY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv("LABELRELAY_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv("LABELRELAY_DISPATCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid LABELRELAY_DISPATCH_TIMEOUT %q: %w", v, err)
		}
		c.Printers.DispatchTimeout = d
	}

	if v := os.Getenv("LABELRELAY_FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid LABELRELAY_FETCH_TIMEOUT %q: %w", v, err)
		}
		c.Source.FetchTimeout = d
	}

	if v := os.Getenv(CredentialEnvVar); v != "" {
		c.Source.APIKey = v
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if len(c.Printers.Devices) == 0 {
		return fmt.Errorf("at least one printer must be configured")
	}

	for i, p := range c.Printers.Devices {
		if p.Host == "" {
			return fmt.Errorf("printer %d: host is required", i)
		}
	}

	if c.Printers.DispatchTimeout <= 0 {
		return fmt.Errorf("dispatch timeout must be positive")
	}

	if c.Printers.DevicePath == "" || c.Printers.DevicePath[0] != '/' {
		return fmt.Errorf("device path must start with '/', got %q", c.Printers.DevicePath)
	}

	if c.Source.FetchTimeout < 0 {
		return fmt.Errorf("fetch timeout must be non-negative")
	}

	if c.Source.MaxBytes < 0 {
		return fmt.Errorf("source max bytes must be non-negative")
	}

	// The response is written only after the download and the device send
	// have both finished, so the write timeout has to outlast both.
	if w := c.Server.WriteTimeout; w != 0 {
		if c.Source.FetchTimeout == 0 {
			return fmt.Errorf("server write timeout %s requires a non-zero fetch timeout", w)
		}
		if budget := c.Source.FetchTimeout + c.Printers.DispatchTimeout; w <= budget {
			return fmt.Errorf("server write timeout %s must exceed fetch timeout plus dispatch timeout (%s)", w, budget)
		}
	}

	if c.Source.CredentialHeader == "" {
		return fmt.Errorf("credential header is required")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}
