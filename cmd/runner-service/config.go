package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"

	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/common/cache"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/common/db"
	commonmw "github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/common/http/middleware"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/common/mq"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/common/storage"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/backend/interp"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/backend/remote"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/queue"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/repository"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/utils/logger"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8086"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 120 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// KafkaConfig holds Kafka producer settings.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	ClientID     string        `yaml:"clientID"`
	RequiredAcks int           `yaml:"requiredAcks"`
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	Compression  string        `yaml:"compression"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// SandboxConfig holds remote sandbox service settings.
type SandboxConfig struct {
	BaseURL    string        `yaml:"baseURL"`
	APIKey     string        `yaml:"apiKey"`
	Timeout    time.Duration `yaml:"timeout"`
	SandboxTTL time.Duration `yaml:"sandboxTTL"`
}

// SubmissionConfig holds orchestrator timeout settings.
type SubmissionConfig struct {
	DefaultTimeout   time.Duration `yaml:"defaultTimeout"`
	AggregateTimeout time.Duration `yaml:"aggregateTimeout"`
}

// ArchiveConfig holds submission source archiving settings.
type ArchiveConfig struct {
	Bucket string `yaml:"bucket"`
}

// RateLimitConfig holds per-route request budgets.
type RateLimitConfig struct {
	Submit commonmw.RateLimitPolicy `yaml:"submit"`
	Query  commonmw.RateLimitPolicy `yaml:"query"`
}

// AppConfig holds runner-service config.
type AppConfig struct {
	Server     ServerConfig                    `yaml:"server"`
	Logger     logger.Config                   `yaml:"logger"`
	Database   db.MySQLConfig                  `yaml:"database"`
	Redis      cache.RedisConfig               `yaml:"redis"`
	MinIO      storage.MinIOConfig             `yaml:"minio"`
	Kafka      KafkaConfig                     `yaml:"kafka"`
	Auth       commonmw.AuthConfig             `yaml:"auth"`
	RateLimit  RateLimitConfig                 `yaml:"rateLimit"`
	Queue      queue.Config                    `yaml:"queue"`
	Interp     interp.Config                   `yaml:"interp"`
	Sandbox    SandboxConfig                   `yaml:"sandbox"`
	Submission SubmissionConfig                `yaml:"submission"`
	Events     repository.EventPublisherConfig `yaml:"events"`
	Archive    ArchiveConfig                   `yaml:"archive"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	applyRedisDefaults(&cfg.Redis)
	if cfg.Interp.ModulePath == "" {
		return nil, fmt.Errorf("interpreter module path is required")
	}
	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("auth secret is required")
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		// Submissions run synchronously inside the request, so the write
		// ceiling must outlast the aggregate submission ceiling.
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Archive.Bucket == "" {
		cfg.Archive.Bucket = cfg.MinIO.Bucket
	}
	if cfg.RateLimit.Submit.Max <= 0 {
		cfg.RateLimit.Submit = commonmw.RateLimitPolicy{Window: time.Minute, Max: 10}
	}
	if cfg.RateLimit.Query.Max <= 0 {
		cfg.RateLimit.Query = commonmw.RateLimitPolicy{Window: time.Minute, Max: 120}
	}
	return &cfg, nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		Compression:  parseCompression(k.Compression),
		DialTimeout:  k.DialTimeout,
		WriteTimeout: k.WriteTimeout,
	}
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

func (s SandboxConfig) toClientConfig() remote.ClientConfig {
	return remote.ClientConfig{
		BaseURL: s.BaseURL,
		APIKey:  s.APIKey,
		Timeout: s.Timeout,
	}
}
