package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Auth       AuthConfig       `koanf:"auth"`
	Downloads  DownloadsConfig  `koanf:"downloads"`
	Extraction ExtractionConfig `koanf:"extraction"`
	Tools      ToolsConfig      `koanf:"tools"`
	Logging    LoggingConfig    `koanf:"logging"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type AuthConfig struct {
	JWTSecret     string `koanf:"jwt_secret"`
	JWTExpiry     string `koanf:"jwt_expiry"`
	AdminUsername string `koanf:"admin_username"`
	AdminPassword string `koanf:"admin_password"`
}

type DownloadsConfig struct {
	Dir           string `koanf:"dir"`
	MaxConcurrent int    `koanf:"max_concurrent"`
	VideoQuality  string `koanf:"video_quality"`
	AudioQuality  string `koanf:"audio_quality"`
}

type ExtractionConfig struct {
	UseGPU        bool   `koanf:"use_gpu"`
	MaxConcurrent int    `koanf:"max_concurrent"`
	DefaultModel  string `koanf:"default_model"`
}

type ToolsConfig struct {
	YtDlpBinary  string `koanf:"ytdlp_binary"`
	DemucsBinary string `koanf:"demucs_binary"`
	FFmpegBinary string `koanf:"ffmpeg_binary"`
}

type LoggingConfig struct {
	Level string `koanf:"level"`
}

// Load reads config from TOML file (if provided) then overlays env vars.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, err
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, err
		}
	}

	// Env vars: ST_SERVER_PORT -> server.port. Empty values are skipped so
	// they never override TOML config.
	if err := k.Load(env.ProviderWithValue("ST_", ".", func(key, value string) (string, interface{}) {
		if value == "" {
			return "", nil
		}
		mapped := strings.Replace(
			strings.ToLower(strings.TrimPrefix(key, "ST_")),
			"_", ".", -1,
		)
		return mapped, value
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if cfg.Downloads.Dir == "" {
		home, _ := os.UserHomeDir()
		cfg.Downloads.Dir = filepath.Join(home, "StemTube", "downloads")
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(filepath.Dir(cfg.Downloads.Dir), "stemtube.db")
	}

	return &cfg, nil
}
