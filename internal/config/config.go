package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TextTTL  time.Duration `yaml:"text_ttl"` // 0 = no expiry
	URLTTL   time.Duration `yaml:"url_ttl"`
}

type MLConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	PredictTimeout time.Duration `yaml:"predict_timeout"`
	RetrainTimeout time.Duration `yaml:"retrain_timeout"`
	ModelType      string        `yaml:"model_type"`
}

// WorkerClassConfig tunes one job class: pool size plus a token bucket that
// caps throughput independent of concurrency.
type WorkerClassConfig struct {
	Concurrency int     `yaml:"concurrency"`
	Rate        float64 `yaml:"rate"` // jobs per second
	Burst       int     `yaml:"burst"`
}

type WorkersConfig struct {
	Text         WorkerClassConfig `yaml:"text"`
	Voice        WorkerClassConfig `yaml:"voice"`
	URL          WorkerClassConfig `yaml:"url"`
	Feedback     WorkerClassConfig `yaml:"feedback"`
	PollInterval time.Duration     `yaml:"poll_interval"`
	DrainTimeout time.Duration     `yaml:"drain_timeout"`
	RetryBackoff time.Duration     `yaml:"retry_backoff"`
}

type FeedbackConfig struct {
	RetrainThreshold int           `yaml:"retrain_threshold"`
	MaxPerDay        int           `yaml:"max_per_day"`       // abuse volume rule
	ConflictWindow   time.Duration `yaml:"conflict_window"`   // abuse conflict rule
	EngagementWindow time.Duration `yaml:"engagement_window"` // quality engagement signal
	SubmitPerMinute  int           `yaml:"submit_per_minute"` // per-owner submit limiter
}

type RetrainConfig struct {
	LockTTL time.Duration `yaml:"lock_ttl"`
}

type AdminConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	ML       MLConfig       `yaml:"ml"`
	Workers  WorkersConfig  `yaml:"workers"`
	Feedback FeedbackConfig `yaml:"feedback"`
	Retrain  RetrainConfig  `yaml:"retrain"`
	Admin    AdminConfig    `yaml:"admin"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	// Dev mode may leave the ML endpoint unset and fall back to the noop
	// client.
	if cfg.ML.BaseURL == "" && !dev {
		return nil, errors.New("ml.base_url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.URLTTL <= 0 {
		cfg.Redis.URLTTL = time.Hour
	}
	if cfg.ML.PredictTimeout <= 0 {
		cfg.ML.PredictTimeout = 30 * time.Second
	}
	if cfg.ML.RetrainTimeout <= 0 {
		cfg.ML.RetrainTimeout = 10 * time.Minute
	}
	if cfg.ML.ModelType == "" {
		cfg.ML.ModelType = "spam"
	}

	defClass := func(c *WorkerClassConfig, concurrency int, rate float64) {
		if c.Concurrency <= 0 {
			c.Concurrency = concurrency
		}
		if c.Rate <= 0 {
			c.Rate = rate
		}
		if c.Burst <= 0 {
			c.Burst = int(c.Rate)
		}
	}
	defClass(&cfg.Workers.Text, 5, 100)
	defClass(&cfg.Workers.Voice, 2, 20)
	defClass(&cfg.Workers.URL, 5, 50)
	defClass(&cfg.Workers.Feedback, 4, 50)
	if cfg.Workers.PollInterval <= 0 {
		cfg.Workers.PollInterval = 500 * time.Millisecond
	}
	if cfg.Workers.DrainTimeout <= 0 {
		cfg.Workers.DrainTimeout = 30 * time.Second
	}
	if cfg.Workers.RetryBackoff <= 0 {
		cfg.Workers.RetryBackoff = 30 * time.Second
	}

	if cfg.Feedback.RetrainThreshold <= 0 {
		cfg.Feedback.RetrainThreshold = 50
	}
	if cfg.Feedback.MaxPerDay <= 0 {
		cfg.Feedback.MaxPerDay = 20
	}
	if cfg.Feedback.ConflictWindow <= 0 {
		cfg.Feedback.ConflictWindow = 7 * 24 * time.Hour
	}
	if cfg.Feedback.EngagementWindow <= 0 {
		cfg.Feedback.EngagementWindow = 30 * 24 * time.Hour
	}
	if cfg.Feedback.SubmitPerMinute <= 0 {
		cfg.Feedback.SubmitPerMinute = 30
	}

	if cfg.Retrain.LockTTL <= 0 {
		cfg.Retrain.LockTTL = 10 * time.Minute
	}
	if cfg.Admin.Port <= 0 {
		cfg.Admin.Port = 8080
	}
}
