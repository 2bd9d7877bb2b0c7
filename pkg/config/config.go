package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full timeline service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Ranking   RankingConfig   `yaml:"ranking"`
	Cache     CacheConfig     `yaml:"cache"`
	Fanout    FanoutConfig    `yaml:"fanout"`
	Filter    FilterConfig    `yaml:"filter"`
	Sources   SourcesConfig   `yaml:"sources"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	DataDir        string        `yaml:"data_dir"` // empty: in-memory note store
}

// RankingConfig names the scoring knobs. The engagement weights and the
// decay half-life are configuration with sane defaults, not constants;
// production values are expected to be tuned per deployment.
type RankingConfig struct {
	LikeWeight     float64       `yaml:"like_weight"`
	RenoteWeight   float64       `yaml:"renote_weight"`
	ReplyWeight    float64       `yaml:"reply_weight"`
	HalfLife       time.Duration `yaml:"half_life"`
	HybridBlend    float64       `yaml:"hybrid_blend"`    // share of the chronological component in hybrid scores
	EngagementNorm float64       `yaml:"engagement_norm"` // weighted sum at which the engagement signal reaches 0.5
}

type CacheConfig struct {
	MaxViewers int           `yaml:"max_viewers"`
	TTL        time.Duration `yaml:"ttl"`
	Disabled   bool          `yaml:"disabled"`
}

type FanoutConfig struct {
	Workers          int `yaml:"workers"`
	QueueSize        int `yaml:"queue_size"`
	BatchSize        int `yaml:"batch_size"`
	FollowerPageSize int `yaml:"follower_page_size"`
}

type FilterConfig struct {
	SeenWindow  int           `yaml:"seen_window"` // per-viewer recently-seen ring size, 0 disables dedup
	GraceWindow time.Duration `yaml:"grace_window"`
}

type SourcesConfig struct {
	AdapterTimeout time.Duration `yaml:"adapter_timeout"`
	FetchLimit     int           `yaml:"fetch_limit"`
	MaxAge         time.Duration `yaml:"max_age"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"` // per viewer, 0 disables limiting
	Burst             int `yaml:"burst"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:     ":8087",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			RequestTimeout: 2 * time.Second,
		},
		Ranking: RankingConfig{
			LikeWeight:     1.0,
			RenoteWeight:   2.0,
			ReplyWeight:    1.5,
			HalfLife:       24 * time.Hour,
			HybridBlend:    0.5,
			EngagementNorm: 10.0,
		},
		Cache: CacheConfig{
			MaxViewers: 10000,
			TTL:        90 * time.Second,
		},
		Fanout: FanoutConfig{
			Workers:          4,
			QueueSize:        1024,
			BatchSize:        64,
			FollowerPageSize: 500,
		},
		Filter: FilterConfig{
			SeenWindow:  256,
			GraceWindow: 5 * time.Minute,
		},
		Sources: SourcesConfig{
			AdapterTimeout: 500 * time.Millisecond,
			FetchLimit:     200,
			MaxAge:         24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 600,
			Burst:             30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise fail silently at runtime.
func (c *Config) Validate() error {
	if c.Ranking.HybridBlend < 0 || c.Ranking.HybridBlend > 1 {
		return fmt.Errorf("ranking.hybrid_blend must be in [0,1], got %v", c.Ranking.HybridBlend)
	}
	if c.Ranking.HalfLife <= 0 {
		return fmt.Errorf("ranking.half_life must be positive, got %v", c.Ranking.HalfLife)
	}
	if c.Ranking.EngagementNorm <= 0 {
		return fmt.Errorf("ranking.engagement_norm must be positive, got %v", c.Ranking.EngagementNorm)
	}
	if c.Cache.MaxViewers <= 0 {
		return fmt.Errorf("cache.max_viewers must be positive, got %d", c.Cache.MaxViewers)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %v", c.Cache.TTL)
	}
	if c.Fanout.Workers <= 0 || c.Fanout.QueueSize <= 0 {
		return fmt.Errorf("fanout.workers and fanout.queue_size must be positive")
	}
	if c.Sources.AdapterTimeout <= 0 {
		return fmt.Errorf("sources.adapter_timeout must be positive, got %v", c.Sources.AdapterTimeout)
	}
	return nil
}
