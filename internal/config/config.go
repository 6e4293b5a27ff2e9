// Package config loads application settings from config.yaml in the
// data directory, with QUESTLOG_* environment overrides. API keys come
// from the environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is everything the CLI and server need at startup.
type Config struct {
	// DataDir holds the device store files and the sqlite database.
	DataDir string `yaml:"data_dir"`
	// DBFile is the remote-store sqlite path, relative to DataDir
	// unless absolute.
	DBFile string `yaml:"db_file"`
	// Port for `questlog serve`.
	Port int `yaml:"port"`

	// Upstream endpoint overrides, mainly for tests and self-hosted
	// gateways. Empty means the provider default.
	GeminiEndpoint string `yaml:"gemini_endpoint"`
	OpenAIEndpoint string `yaml:"openai_endpoint"`

	// Keys are never written to config.yaml; they load from the
	// environment only.
	GeminiKey string `yaml:"-"`
	OpenAIKey string `yaml:"-"`
}

func defaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir: filepath.Join(home, ".questlog"),
		DBFile:  "questlog.db",
		Port:    8787,
	}
}

// Load reads config.yaml from dataDir (or the default data dir when
// empty), then applies environment overrides. A missing file is not an
// error; defaults apply.
func Load(dataDir string) (Config, error) {
	// .env is optional; ignore a missing file.
	_ = godotenv.Load()

	cfg := defaultConfig()
	if strings.TrimSpace(dataDir) != "" {
		cfg.DataDir = dataDir
	}
	if v := os.Getenv("QUESTLOG_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	b, err := os.ReadFile(filepath.Join(cfg.DataDir, "config.yaml"))
	if err == nil {
		var fileCfg Config
		if err := yaml.Unmarshal(b, &fileCfg); err != nil {
			return Config{}, err
		}
		if fileCfg.DBFile != "" {
			cfg.DBFile = fileCfg.DBFile
		}
		if fileCfg.Port != 0 {
			cfg.Port = fileCfg.Port
		}
		if fileCfg.GeminiEndpoint != "" {
			cfg.GeminiEndpoint = fileCfg.GeminiEndpoint
		}
		if fileCfg.OpenAIEndpoint != "" {
			cfg.OpenAIEndpoint = fileCfg.OpenAIEndpoint
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	if v := os.Getenv("QUESTLOG_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("QUESTLOG_GEMINI_ENDPOINT"); v != "" {
		cfg.GeminiEndpoint = v
	}
	if v := os.Getenv("QUESTLOG_OPENAI_ENDPOINT"); v != "" {
		cfg.OpenAIEndpoint = v
	}
	cfg.GeminiKey = os.Getenv("GEMINI_API_KEY")
	cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	return cfg, nil
}

// DBPath resolves the sqlite path against the data dir.
func (c Config) DBPath() string {
	if filepath.IsAbs(c.DBFile) {
		return c.DBFile
	}
	return filepath.Join(c.DataDir, c.DBFile)
}
