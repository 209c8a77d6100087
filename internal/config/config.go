package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Chat        ChatConfig                `json:"chat"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// ChatConfig tunes the conversation engine.
type ChatConfig struct {
	MaxAttempts           int `json:"max_attempts"`
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`
	DailyMessageLimit     int `json:"daily_message_limit"`
}

const (
	DefaultMaxAttempts           = 5
	DefaultRequestTimeoutSeconds = 60
	DefaultDailyMessageLimit     = 50
)

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("at least one database must be configured")
	}
	// Sqlite DSNs are resolved relative to the config file.
	for name, db := range cfg.Databases {
		if name == "mysql" || db.DSN == "" || filepath.IsAbs(db.DSN) {
			continue
		}
		db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
		cfg.Databases[name] = db
	}

	if cfg.Chat.MaxAttempts <= 0 {
		cfg.Chat.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Chat.RequestTimeoutSeconds <= 0 {
		cfg.Chat.RequestTimeoutSeconds = DefaultRequestTimeoutSeconds
	}
	if cfg.Chat.DailyMessageLimit <= 0 {
		cfg.Chat.DailyMessageLimit = DefaultDailyMessageLimit
	}

	return &cfg, nil
}
