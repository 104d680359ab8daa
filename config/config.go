package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "sjsage522/hotpostcollector/pkg/errors"
)

// Config represents the application configuration
type Config struct {
	// Listing source
	ListingURL     string
	BaseURL        string
	Provider       string
	UserAgent      string
	AcceptLanguage string
	FetchTimeout   time.Duration

	// Crawler configuration
	CrawlInterval  time.Duration
	RateLimitBlock time.Duration

	// Storage
	DBPath string

	// HTTP API
	HTTPAddr string

	// Memcache configuration, empty disables the rate-limit block cache
	MemcacheAddr string

	// Redis configuration, empty disables new-post notifications
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Environment
	Environment string
}

const (
	defaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultAcceptLanguage = "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"
)

// LoadConfig loads the configuration from environment variables, an optional
// config.yaml in the working directory, and defaults
func LoadConfig() *Config {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing or unreadable file leaves env and defaults in place
	_ = v.ReadInConfig()

	return &Config{
		ListingURL:           v.GetString("LISTING_URL"),
		BaseURL:              v.GetString("BASE_URL"),
		Provider:             v.GetString("PROVIDER"),
		UserAgent:            v.GetString("USER_AGENT"),
		AcceptLanguage:       v.GetString("ACCEPT_LANGUAGE"),
		FetchTimeout:         time.Duration(v.GetInt("FETCH_TIMEOUT_SECONDS")) * time.Second,
		CrawlInterval:        time.Duration(v.GetInt("CRAWL_INTERVAL_SECONDS")) * time.Second,
		RateLimitBlock:       time.Duration(v.GetInt("RATE_LIMIT_BLOCK_SECONDS")) * time.Second,
		DBPath:               v.GetString("DB_PATH"),
		HTTPAddr:             v.GetString("HTTP_ADDR"),
		MemcacheAddr:         v.GetString("MEMCACHE_ADDR"),
		RedisAddr:            v.GetString("REDIS_ADDR"),
		RedisDB:              v.GetInt("REDIS_DB"),
		RedisStream:          v.GetString("REDIS_STREAM"),
		RedisStreamCount:     v.GetInt("REDIS_STREAM_COUNT"),
		RedisStreamMaxLength: v.GetInt("REDIS_STREAM_MAX_LENGTH"),
		Environment:          v.GetString("HOTPOST_ENVIRONMENT"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LISTING_URL", "https://theqoo.net/hot")
	v.SetDefault("BASE_URL", "https://theqoo.net")
	v.SetDefault("PROVIDER", "Theqoo")
	v.SetDefault("USER_AGENT", defaultUserAgent)
	v.SetDefault("ACCEPT_LANGUAGE", defaultAcceptLanguage)
	v.SetDefault("FETCH_TIMEOUT_SECONDS", 10)
	v.SetDefault("CRAWL_INTERVAL_SECONDS", 3600)
	v.SetDefault("RATE_LIMIT_BLOCK_SECONDS", 300)
	v.SetDefault("DB_PATH", "theqoo.db")
	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("MEMCACHE_ADDR", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_STREAM", "hotposts")
	v.SetDefault("REDIS_STREAM_COUNT", 1)
	v.SetDefault("REDIS_STREAM_MAX_LENGTH", 1000)
	v.SetDefault("HOTPOST_ENVIRONMENT", "development")
}

// Validate checks the values the crawler cannot run without
func (c *Config) Validate() error {
	var errs []error
	if c.ListingURL == "" {
		errs = append(errs, errors.New("LISTING_URL must not be empty"))
	}
	if c.BaseURL == "" {
		errs = append(errs, errors.New("BASE_URL must not be empty"))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT_SECONDS must be positive, got %s", c.FetchTimeout))
	}
	if c.CrawlInterval <= 0 {
		errs = append(errs, fmt.Errorf("CRAWL_INTERVAL_SECONDS must be positive, got %s", c.CrawlInterval))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH must not be empty"))
	}
	if c.RedisAddr != "" && c.RedisStreamCount < 1 {
		errs = append(errs, fmt.Errorf("REDIS_STREAM_COUNT must be at least 1, got %d", c.RedisStreamCount))
	}
	if len(errs) == 0 {
		return nil
	}
	return apperrors.NewConfiguration("invalid configuration", errors.Join(errs...))
}
