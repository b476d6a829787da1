package app

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/stream"
)

type Config struct {
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	Server struct {
		Addr      string `mapstructure:"addr"`
		RateLimit int    `mapstructure:"rateLimit"`
	} `mapstructure:"server"`

	Store struct {
		Backend string `mapstructure:"backend"`
		SQLite  struct {
			Path string `mapstructure:"path"`
		} `mapstructure:"sqlite"`
		S3 struct {
			Endpoint  string `mapstructure:"endpoint"`
			AccessKey string `mapstructure:"accessKey"`
			SecretKey string `mapstructure:"secretKey"`
			Bucket    string `mapstructure:"bucket"`
			UseSSL    bool   `mapstructure:"useSSL"`
		} `mapstructure:"s3"`
	} `mapstructure:"store"`

	Memory struct {
		MaxTokens            int           `mapstructure:"maxTokens"`
		CompressionThreshold int           `mapstructure:"compressionThreshold"`
		RecentMessages       int           `mapstructure:"recentMessages"`
		SummaryThreshold     int           `mapstructure:"summaryThreshold"`
		MaxMemories          int           `mapstructure:"maxMemories"`
		MaxConversations     int           `mapstructure:"maxConversations"`
		RelevantMemories     int           `mapstructure:"relevantMemories"`
		HookWorkers          int           `mapstructure:"hookWorkers"`
		CleanupInterval      time.Duration `mapstructure:"cleanupInterval"`
	} `mapstructure:"memory"`

	Session struct {
		SweepInterval time.Duration `mapstructure:"sweepInterval"`
		IdleTimeout   time.Duration `mapstructure:"idleTimeout"`
	} `mapstructure:"session"`

	Discovery struct {
		Timeout time.Duration     `mapstructure:"timeout"`
		Servers map[string]string `mapstructure:"servers"`
	} `mapstructure:"discovery"`

	Runner struct {
		Provider string `mapstructure:"provider"`
		Model    string `mapstructure:"model"`
	} `mapstructure:"runner"`

	Agents map[string]stream.AgentConfig `mapstructure:"agents"`
}

/*
DefaultConfig is used for every key the configuration file leaves out.
*/
func DefaultConfig() Config {
	var cfg Config

	cfg.Log.Level = "info"
	cfg.Server.Addr = ":3210"
	cfg.Server.RateLimit = 30
	cfg.Store.Backend = "memory"
	cfg.Store.SQLite.Path = "~/.agentsdk/agentsdk.db"
	cfg.Store.S3.Bucket = "agentsdk"
	cfg.Memory.MaxTokens = 8000
	cfg.Memory.RecentMessages = 20
	cfg.Memory.SummaryThreshold = 50
	cfg.Memory.MaxMemories = 10000
	cfg.Memory.MaxConversations = 1000
	cfg.Memory.RelevantMemories = 5
	cfg.Memory.HookWorkers = 2
	cfg.Memory.CleanupInterval = time.Hour
	cfg.Session.SweepInterval = 30 * time.Minute
	cfg.Session.IdleTimeout = 60 * time.Minute
	cfg.Discovery.Timeout = 30 * time.Second
	cfg.Runner.Provider = "echo"
	cfg.Agents = map[string]stream.AgentConfig{
		"assistant": {
			Instructions: "You are a helpful assistant with long-term memory.",
			ToolLabels:   []string{"memory"},
		},
	}

	return cfg
}

/*
LoadConfig reads the configuration from v on top of DefaultConfig.
*/
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	cfg.Store.SQLite.Path = expandHome(cfg.Store.SQLite.Path)
	return cfg, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()

	if err != nil {
		return path
	}

	return filepath.Join(home, path[2:])
}
