package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        int              `json:"port" yaml:"port"`
	JWTSecret   string           `json:"jwt_secret" yaml:"jwt_secret"`
	CORSOrigins []string         `json:"cors_origins" yaml:"cors_origins"`
	LogConfig   logger.LogConfig `json:"log_config" yaml:"log_config"`
	Database    DatabaseConfig   `json:"database" yaml:"database"`
	FileStore   FileStoreConfig  `json:"file_store" yaml:"file_store"`
	Import      ImportConfig     `json:"import" yaml:"import"`
	Notify      NotifyConfig     `json:"notify" yaml:"notify"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"dbname" yaml:"dbname"`
	SSLMode  string `json:"sslmode" yaml:"sslmode"`
}

// FileStoreConfig selects a registered store driver; Data is handed to the
// driver factory untouched.
type FileStoreConfig struct {
	Type string      `json:"type" yaml:"type"`
	Data interface{} `json:"data" yaml:"data"`
}

type ImportConfig struct {
	MaxUploadMB     int64  `json:"max_upload_mb" yaml:"max_upload_mb"`
	Workers         int    `json:"workers" yaml:"workers"`
	TagCacheSize    int    `json:"tag_cache_size" yaml:"tag_cache_size"`
	TagCacheTTL     int64  `json:"tag_cache_ttl_seconds" yaml:"tag_cache_ttl_seconds"`
	StaleAfterMin   int64  `json:"stale_after_minutes" yaml:"stale_after_minutes"`
	ReaperSchedule  string `json:"reaper_schedule" yaml:"reaper_schedule"`
	DefaultNotebook string `json:"default_notebook" yaml:"default_notebook"`
	// UploadCooldownSec throttles POST /imports per owner, 0 disables it.
	UploadCooldownSec int64 `json:"upload_cooldown_seconds" yaml:"upload_cooldown_seconds"`
}

func (c ImportConfig) MaxUploadBytes() int64 {
	return c.MaxUploadMB * 1024 * 1024
}

func (c ImportConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMin) * time.Minute
}

func (c ImportConfig) UploadCooldown() time.Duration {
	return time.Duration(c.UploadCooldownSec) * time.Second
}

func (c ImportConfig) TagCacheDuration() time.Duration {
	return time.Duration(c.TagCacheTTL) * time.Second
}

type NotifyConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	URL        string `json:"url" yaml:"url"`
	Exchange   string `json:"exchange" yaml:"exchange"`
	RoutingKey string `json:"routing_key" yaml:"routing_key"`
	QueueName  string `json:"queue_name" yaml:"queue_name"`
}

const envPrefix = "NOTEIMPORT_"

func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	// a missing .env is fine, values may come from the real environment
	_ = godotenv.Load()
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(envPrefix + "DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv(envPrefix + "JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv(envPrefix + "NOTIFY_URL"); v != "" {
		cfg.Notify.URL = v
	}
	if v := os.Getenv(envPrefix + "PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sPORT: %w", envPrefix, err)
		}
		cfg.Port = port
	}
	return nil
}

func (cfg *Config) normalize() error {
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	cfg.Import.applyDefaults()
	if cfg.Notify.Enabled && cfg.Notify.URL == "" {
		return fmt.Errorf("notify.url is required when notify is enabled")
	}
	if cfg.Notify.Exchange == "" {
		cfg.Notify.Exchange = "noteimport"
	}
	if cfg.Notify.RoutingKey == "" {
		cfg.Notify.RoutingKey = "import.job.finished"
	}
	if cfg.Notify.QueueName == "" {
		cfg.Notify.QueueName = "noteimport.jobs"
	}
	return nil
}

func (c *ImportConfig) applyDefaults() {
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = 200
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.TagCacheSize <= 0 {
		c.TagCacheSize = 4096
	}
	if c.TagCacheTTL <= 0 {
		c.TagCacheTTL = 600
	}
	if c.StaleAfterMin <= 0 {
		c.StaleAfterMin = 120
	}
	if c.ReaperSchedule == "" {
		c.ReaperSchedule = "*/10 * * * *"
	}
	if c.UploadCooldownSec < 0 {
		c.UploadCooldownSec = 0
	}
	if strings.TrimSpace(c.DefaultNotebook) == "" {
		c.DefaultNotebook = "Imported Notes"
	}
}
