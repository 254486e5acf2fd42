// Package config provides YAML-based configuration loading for the link
// client.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	// AppName optional logical name of the application
	AppName string `mapstructure:"app_name"`

	// DataDir base directory for keys and logs
	DataDir string `mapstructure:"data_dir"`

	// Client describes what we announce in the hello message
	Client ClientConfig `mapstructure:"client"`

	// Protocol holds the version negotiation parameters
	Protocol ProtocolConfig `mapstructure:"protocol"`

	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// Identity controls the cryptographic identity behind the client id
	Identity IdentityConfig `mapstructure:"identity"`

	// Channel selects and addresses the peer channel
	Channel ChannelConfig `mapstructure:"channel"`
}

// ClientConfig is the identity block announced in hello.
type ClientConfig struct {
	// ID overrides the identity-derived client id when set
	ID      string `mapstructure:"id"`
	Impl    string `mapstructure:"impl"`
	Version string `mapstructure:"version"`
}

// ProtocolConfig holds the negotiation parameters.
type ProtocolConfig struct {
	Version       string `mapstructure:"version"`
	MinCompatible string `mapstructure:"min_compatible"`
}

// ChannelConfig selects the peer channel implementation.
type ChannelConfig struct {
	// Kind: quic or mem
	Kind string `mapstructure:"kind"`
	// Listen address for inbound sessions; empty disables listening
	Listen string `mapstructure:"listen"`
	// Dial address of the host; empty disables dialing
	Dial string `mapstructure:"dial"`
	// PeerID optional expected id of the dialed host
	PeerID string `mapstructure:"peer_id"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName: "mdai-link",
		DataDir: "./data",
		Client: ClientConfig{
			Impl:    "mydeviceai-link",
			Version: "0.3.0",
		},
		Protocol: ProtocolConfig{
			Version:       "1.0.0",
			MinCompatible: "1.0.0",
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/mdai-link.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Identity: IdentityConfig{Alg: "ed25519"},
		Channel:  ChannelConfig{Kind: "quic"},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix MDAI and `.`/`-` are replaced with `_`.
// Example: MDAI_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MDAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("client.id", cfg.Client.ID)
	v.SetDefault("client.impl", cfg.Client.Impl)
	v.SetDefault("client.version", cfg.Client.Version)
	v.SetDefault("protocol.version", cfg.Protocol.Version)
	v.SetDefault("protocol.min_compatible", cfg.Protocol.MinCompatible)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("identity.alg", cfg.Identity.Alg)
	v.SetDefault("identity.private_key", cfg.Identity.PrivateKey)
	v.SetDefault("identity.private_key_file", cfg.Identity.PrivateKeyFile)
	v.SetDefault("channel.kind", cfg.Channel.Kind)
	v.SetDefault("channel.listen", cfg.Channel.Listen)
	v.SetDefault("channel.dial", cfg.Channel.Dial)
	v.SetDefault("channel.peer_id", cfg.Channel.PeerID)

	if path == "" {
		if envPath := os.Getenv("MDAI_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search common locations with base name `mdai-link`
		v.SetConfigName("mdai-link")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".mdai-link"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var viperConfigFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &viperConfigFileNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if strings.TrimSpace(c.Protocol.Version) == "" {
		return errors.New("protocol.version must not be empty")
	}
	if strings.TrimSpace(c.Protocol.MinCompatible) == "" {
		c.Protocol.MinCompatible = c.Protocol.Version
	}
	c.Channel.Kind = strings.ToLower(strings.TrimSpace(c.Channel.Kind))
	switch c.Channel.Kind {
	case "quic", "mem":
		// ok
	default:
		return fmt.Errorf("invalid channel.kind: %q", c.Channel.Kind)
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
