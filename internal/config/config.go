package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	// Store selects the key-value backend: memory, sqlite3, mysql or redis.
	Store         string `json:"store"`
	CollectionKey string `json:"collection_key"`
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
	// PubSub relays change events between processes sharing the backend.
	PubSub bool `json:"pubsub"`
}

const (
	DefaultServerAddress = ":8090"
	DefaultStore         = "sqlite3"
	DefaultCollectionKey = "chats"
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
	cfg.applyDefaults()

	for _, name := range []string{"sqlite", "sqlite3"} {
		dbCfg, ok := cfg.Databases[name]
		if !ok || dbCfg.DSN == "" || dbCfg.DSN == ":memory:" || strings.HasPrefix(dbCfg.DSN, "file:") {
			continue
		}
		if !filepath.IsAbs(dbCfg.DSN) {
			dbCfg.DSN = filepath.Join(filepath.Dir(absPath), dbCfg.DSN)
			cfg.Databases[name] = dbCfg
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected store has the settings it needs.
func (c *Config) Validate() error {
	switch strings.ToLower(c.BasicConfig.Store) {
	case "memory", "redis":
		return nil
	case "sqlite", "sqlite3", "mysql":
		if _, ok := c.Databases[strings.ToLower(c.BasicConfig.Store)]; !ok {
			return fmt.Errorf("database config for %s not found", c.BasicConfig.Store)
		}
		return nil
	default:
		return fmt.Errorf("unsupported store: %s", c.BasicConfig.Store)
	}
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = DefaultServerAddress
	}
	if c.BasicConfig.Store == "" {
		c.BasicConfig.Store = DefaultStore
	}
	if c.BasicConfig.CollectionKey == "" {
		c.BasicConfig.CollectionKey = DefaultCollectionKey
	}
	if c.Databases == nil {
		c.Databases = make(map[string]DatabaseConfig)
	}
}
