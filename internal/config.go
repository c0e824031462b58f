package internal

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Graph platform (Instagram)
	IGUserID       string        `mapstructure:"ig_user_id"`
	IGAccessToken  string        `mapstructure:"ig_access_token"`
	GraphBaseURL   string        `mapstructure:"graph_api_base"`
	IGPollInterval time.Duration `mapstructure:"ig_poll_interval"`
	IGPollTimeout  time.Duration `mapstructure:"ig_poll_timeout"`

	// Hosting platform (YouTube)
	YouTubeClientID     string `mapstructure:"youtube_client_id"`
	YouTubeClientSecret string `mapstructure:"youtube_client_secret"`
	YouTubeRefreshToken string `mapstructure:"youtube_refresh_token"`
	YouTubePrivacy      string `mapstructure:"youtube_privacy"`
	YouTubeDailyLimit   int    `mapstructure:"youtube_daily_limit"`

	StagingDir string `mapstructure:"staging_dir"`

	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3Region    string `mapstructure:"s3_region"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`

	TokensPrefix  string `mapstructure:"tokens_prefix"`
	JobsJSONKey   string `mapstructure:"jobs_json_key"` // "jobs.json" - pending publish queue
	ReportsPrefix string `mapstructure:"reports_prefix"`

	ScheduleCron string `mapstructure:"schedule_cron"`
	LogLevel     string `mapstructure:"log_level"`
	ErrorsLog    string `mapstructure:"errors_log"`
}

func LoadConfig() (Config, error) {
	v := viper.New()

	v.SetDefault("ig_user_id", "")
	v.SetDefault("ig_access_token", "")
	v.SetDefault("graph_api_base", "https://graph.facebook.com/v20.0")
	v.SetDefault("ig_poll_interval", 5*time.Second)
	v.SetDefault("ig_poll_timeout", 5*time.Minute)

	v.SetDefault("youtube_client_id", "")
	v.SetDefault("youtube_client_secret", "")
	v.SetDefault("youtube_refresh_token", "")
	v.SetDefault("youtube_privacy", "unlisted")
	v.SetDefault("youtube_daily_limit", 6)

	v.SetDefault("staging_dir", os.TempDir())

	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_region", "")
	v.SetDefault("s3_bucket", "")
	v.SetDefault("s3_access_key", "")
	v.SetDefault("s3_secret_key", "")
	_ = v.BindEnv("s3_access_key", "S3_ACCESS_KEY", "S3_ACCESS_KEY_ID")
	_ = v.BindEnv("s3_secret_key", "S3_SECRET_ACCESS_KEY", "S3_SECRET_ACCESS_KEY_ID")

	v.SetDefault("tokens_prefix", "tokens/")
	v.SetDefault("jobs_json_key", "jobs.json")
	v.SetDefault("reports_prefix", "reports/")

	v.SetDefault("schedule_cron", "0 10,18 * * *")
	v.SetDefault("log_level", "info")
	v.SetDefault("errors_log", "errors.log")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.IGPollInterval <= 0 || cfg.IGPollTimeout <= 0 {
		return cfg, errors.New("IG_POLL_INTERVAL and IG_POLL_TIMEOUT must be positive durations")
	}
	if cfg.YouTubeDailyLimit <= 0 {
		return cfg, errors.New("YOUTUBE_DAILY_LIMIT must be positive")
	}
	if cfg.ScheduleCron == "" {
		return cfg, errors.New("SCHEDULE_CRON is required")
	}
	return cfg, nil
}

// HasS3 reports whether every S3_* setting needed to build a client is present.
func (c Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3Region != "" && c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c Config) HasInstagram() bool {
	return c.IGUserID != "" && c.IGAccessToken != ""
}

func (c Config) HasYouTube() bool {
	return c.YouTubeClientID != "" && c.YouTubeClientSecret != "" && c.YouTubeRefreshToken != ""
}
