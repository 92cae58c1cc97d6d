package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"news_ingest/internal/domain"
)

type Config struct {
	Database DatabaseConfig        `yaml:"database"`
	RabbitMQ RabbitMQConfig        `yaml:"rabbitmq"`
	Sync     SyncConfig            `yaml:"sync"`
	Sources  []domain.SourceConfig `yaml:"sources"`
	LogLevel string                `yaml:"log_level"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type SyncConfig struct {
	Interval             time.Duration `yaml:"interval"`
	RunBudget            time.Duration `yaml:"run_budget"`
	SourceConcurrency    int           `yaml:"source_concurrency"`
	ArticleConcurrency   int           `yaml:"article_concurrency"`
	FeedTimeout          time.Duration `yaml:"feed_timeout"`
	ArticleTimeout       time.Duration `yaml:"article_timeout"`
	MaxArticlesPerSource int           `yaml:"max_articles_per_source"`
	MaxSourcesPerRun     int           `yaml:"max_sources_per_run"`
	FetchFullText        bool          `yaml:"fetch_full_text"`
	UserAgent            string        `yaml:"user_agent"`
	TargetChunkBytes     int           `yaml:"target_chunk_bytes"`
	ExtractCacheSize     int           `yaml:"extract_cache_size"`
	ExtractCacheTTL      time.Duration `yaml:"extract_cache_ttl"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 15 * time.Minute
	}
	if c.Sync.RunBudget == 0 {
		c.Sync.RunBudget = 5 * time.Minute
	}
	if c.Sync.SourceConcurrency == 0 {
		c.Sync.SourceConcurrency = 4
	}
	if c.Sync.ArticleConcurrency == 0 {
		c.Sync.ArticleConcurrency = 2
	}
	if c.Sync.FeedTimeout == 0 {
		c.Sync.FeedTimeout = 20 * time.Second
	}
	if c.Sync.ArticleTimeout == 0 {
		c.Sync.ArticleTimeout = 15 * time.Second
	}
	if c.Sync.MaxArticlesPerSource == 0 {
		c.Sync.MaxArticlesPerSource = 50
	}
	if c.Sync.MaxSourcesPerRun == 0 {
		c.Sync.MaxSourcesPerRun = 25
	}
	if c.Sync.UserAgent == "" {
		c.Sync.UserAgent = "NewsIngest/1.0"
	}
	if c.Sync.TargetChunkBytes == 0 {
		c.Sync.TargetChunkBytes = 350 << 10
	}
	if c.Sync.ExtractCacheSize == 0 {
		c.Sync.ExtractCacheSize = 1024
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "news_ingest"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "articles"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "article_events"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
