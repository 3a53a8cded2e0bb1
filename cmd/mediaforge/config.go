package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Optimize OptimizeConfig `mapstructure:"optimize"`
	Dupes    DupesConfig    `mapstructure:"dupes"`
	Vault    VaultConfig    `mapstructure:"vault"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// OptimizeConfig holds encoding parameters for the optimize command.
type OptimizeConfig struct {
	VideoCodec   string `mapstructure:"video_codec"`
	Preset       string `mapstructure:"preset"`
	CRF          string `mapstructure:"crf"`
	AudioCodec   string `mapstructure:"audio_codec"`
	AudioBitrate string `mapstructure:"audio_bitrate"`
	TagValue     string `mapstructure:"tag_value"`
	Workers      int    `mapstructure:"workers"`
	Sniff        bool   `mapstructure:"sniff"`
}

// DupesConfig holds duplicate-finder configuration.
type DupesConfig struct {
	BlockSize int `mapstructure:"block_size"`
}

// VaultConfig holds vault configuration.
type VaultConfig struct {
	Iterations int `mapstructure:"iterations"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.dsn", filepath.Join(xdg.DataHome, "mediaforge", "mediaforge.db"))
	v.SetDefault("docker.host", "")
	v.SetDefault("optimize.video_codec", "libx264")
	v.SetDefault("optimize.preset", "medium")
	v.SetDefault("optimize.crf", "28")
	v.SetDefault("optimize.audio_codec", "aac")
	v.SetDefault("optimize.audio_bitrate", "128k")
	v.SetDefault("optimize.tag_value", "mediaforge_v2")
	v.SetDefault("optimize.workers", 0) // 0 = NumCPU
	v.SetDefault("optimize.sniff", true)
	v.SetDefault("dupes.block_size", 2*1024*1024)
	v.SetDefault("vault.iterations", 480000)

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("MEDIAFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format. Logs go
// to stderr so they never interleave with progress output on stdout.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
