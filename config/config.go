package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"
)

// TomlServer configures the HTTP API
type TomlServer struct {
	Host         string        `toml:"host"`
	Port         int           `toml:"port"`
	AllowOrigins string        `toml:"allow_origins"`
	PingInterval time.Duration `toml:"ping_interval"`
}

// TomlDatabase points at the SQLite file
type TomlDatabase struct {
	Path string `toml:"path"`
}

// TomlClient configures how commands reach a running server
type TomlClient struct {
	URL          string        `toml:"url"`
	Timeout      time.Duration `toml:"timeout"`
	MaxRetryTime time.Duration `toml:"max_retry_time"`
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Server    TomlServer   `toml:"server"`
	Database  TomlDatabase `toml:"database"`
	Client    TomlClient   `toml:"client"`
	Languages []string     `toml:"languages"`
}

func DefaultConfig() *TomlConfig {
	return &TomlConfig{
		Server: TomlServer{
			Host:         "0.0.0.0",
			Port:         3000,
			PingInterval: 15 * time.Second,
		},
		Database: TomlDatabase{
			Path: "contentfeed.db",
		},
		Client: TomlClient{
			URL:          "http://localhost:3000",
			Timeout:      10 * time.Second,
			MaxRetryTime: 30 * time.Second,
		},
		Languages: []string{"en", "nb", "nn", "de", "fr", "es"},
	}
}

// LoadConfig reads path on top of the defaults. A missing file, or an empty
// path, yields the defaults.
func LoadConfig(path string) (*TomlConfig, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return config, nil
}

var isoCode = regexp.MustCompile(`^[a-z]{2}$`)

func (c *TomlConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.PingInterval <= 0 {
		return errors.New("server.ping_interval must be positive")
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Client.Timeout <= 0 {
		return errors.New("client.timeout must be positive")
	}
	if c.Client.MaxRetryTime < 0 {
		return errors.New("client.max_retry_time must not be negative")
	}
	for _, lang := range c.Languages {
		if !isoCode.MatchString(lang) {
			return fmt.Errorf("language %q is not a lowercase ISO 639-1 code", lang)
		}
	}
	return nil
}

// Address is the host:port the server listens on
func (c *TomlConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
