package config

import (
	"bytes"
	_ "embed"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log        LogConfig       `mapstructure:"log"`
	HTTP       HTTPConfig      `mapstructure:"http"`
	MySQL      DatabaseConfig  `mapstructure:"mysql"`
	ClickHouse DatabaseConfig  `mapstructure:"clickhouse"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	Webhook    WebhookConfig   `mapstructure:"webhook"`
	Scheduler  SchedulerConfig `mapstructure:"scheduler"`
	Retention  RetentionConfig `mapstructure:"retention"`
	Breaker    BreakerConfig   `mapstructure:"breaker"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	APIKeys    []APIKeyConfig  `mapstructure:"api_keys"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

// WebhookConfig holds the recognized webhook options
// (USE_CACHE, STORE_EVENTS, EVENTS_RETENTION_DAYS, PAYLOAD_ENCODER) and the retry policy.
type WebhookConfig struct {
	UseCache            bool          `mapstructure:"use_cache"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
	StoreEvents         bool          `mapstructure:"store_events"`
	LedgerMode          string        `mapstructure:"ledger_mode"` // chain | attempt
	EventsRetentionDays int           `mapstructure:"events_retention_days"`
	PayloadEncoder      string        `mapstructure:"payload_encoder"` // json | goccy
	BaseURL             string        `mapstructure:"base_url"`
	UserAgent           string        `mapstructure:"user_agent"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	InitialBackoff      time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff          time.Duration `mapstructure:"max_backoff"`
}

type SchedulerConfig struct {
	Queue        string        `mapstructure:"queue"` // memory | redis
	QueueKey     string        `mapstructure:"queue_key"`
	Embedded     bool          `mapstructure:"embedded"`
	Workers      int           `mapstructure:"workers"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type RetentionConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type BreakerConfig struct {
	FailThreshold int           `mapstructure:"fail_threshold"`
	OpenFor       time.Duration `mapstructure:"open_for"`
}

type RateLimitConfig struct {
	RPS int `mapstructure:"rps"`
}

// APIKeyConfig binds an admin API key to the scope it may manage.
type APIKeyConfig struct {
	Key   string `mapstructure:"key"`
	Scope string `mapstructure:"scope"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (ALW_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (ALW_WEBHOOK_USE_CACHE, ALW_MYSQL_DSN, ...)
	v.SetEnvPrefix("ALW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
