package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"
)

// Config holds settings for the cost analyzer server. Values come from an
// optional YAML file, then flags; flags win. The OpenAI key is env-only
// (OPENAI_API_KEY) so it never lands in a config file or process listing.
type Config struct {
	ListenAddr      string        `yaml:"listen_addr"`
	DBPath          string        `yaml:"db_path"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	OpenAIModel     string        `yaml:"openai_model"`
}

func defaultConfig() *Config {
	return &Config{
		ListenAddr:      ":8080",
		DBPath:          "data.db",
		MaxUploadBytes:  64 << 20,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		OpenAIModel:     openai.GPT4oMini,
	}
}

// parseConfig resolves configuration from args. Exposed with an explicit
// FlagSet so tests can drive it without touching the process arguments.
func parseConfig(fs *flag.FlagSet, args []string) (*Config, error) {
	config := defaultConfig()

	var configFile string
	fs.StringVar(&configFile, "config", "", "Path to optional YAML config file")
	fs.StringVar(&config.ListenAddr, "listen", config.ListenAddr, "Address to listen on")
	fs.StringVar(&config.DBPath, "db", config.DBPath, "Path to the SQLite database file")
	fs.Int64Var(&config.MaxUploadBytes, "max-upload-bytes", config.MaxUploadBytes, "Maximum accepted upload size in bytes")
	fs.DurationVar(&config.ShutdownTimeout, "shutdown-timeout", config.ShutdownTimeout, "Grace period for in-flight requests on shutdown")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "Log level (trace, debug, info, warn, error)")
	fs.StringVar(&config.OpenAIModel, "openai-model", config.OpenAIModel, "Chat model for natural language queries")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if configFile != "" {
		fileConfig := defaultConfig()
		if err := loadConfigFile(configFile, fileConfig); err != nil {
			return nil, err
		}
		// Re-apply flags on top of the file values.
		*config = *fileConfig
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "listen":
				config.ListenAddr = f.Value.String()
			case "db":
				config.DBPath = f.Value.String()
			case "max-upload-bytes":
				if n, err := strconv.ParseInt(f.Value.String(), 10, 64); err == nil {
					config.MaxUploadBytes = n
				}
			case "shutdown-timeout":
				if d, err := time.ParseDuration(f.Value.String()); err == nil {
					config.ShutdownTimeout = d
				}
			case "log-level":
				config.LogLevel = f.Value.String()
			case "openai-model":
				config.OpenAIModel = f.Value.String()
			}
		})
	}

	if config.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("max-upload-bytes must be positive, got %d", config.MaxUploadBytes)
	}
	return config, nil
}

func loadConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}
