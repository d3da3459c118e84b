package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Config struct {
	DatabaseURL string
	HTTPAddr    string

	APIAuthToken   string
	APIRateLimit   int
	APIRateBurst   int
	APICORSOrigins []string

	WorkerConcurrency int
	QueueSize         int
	PollInterval      time.Duration
	StaleScanAfter    time.Duration

	HyperbrowserAPIKey  string
	HyperbrowserBaseURL string
	AgentPollInterval   time.Duration
	AgentRateLimit      float64
	UserAgent           string

	LinkedIn Credentials
	Twitter  Credentials

	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3UseSSL      bool
	ReportsBucket string
}

// Credentials for a platform login. The zero value means "scan unauthenticated".
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Present() bool {
	return c.Username != "" && c.Password != ""
}

// ArchiveEnabled reports whether completed scan reports go to object storage.
func (c Config) ArchiveEnabled() bool {
	return c.S3Endpoint != "" && c.ReportsBucket != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("API_RATE_LIMIT", 10)
	v.SetDefault("API_RATE_BURST", 20)
	v.SetDefault("WORKER_CONCURRENCY", 2)
	v.SetDefault("QUEUE_SIZE", 64)
	v.SetDefault("POLL_INTERVAL", "5s")
	v.SetDefault("STALE_SCAN_AFTER", "30m")
	v.SetDefault("HYPERBROWSER_BASE_URL", "https://app.hyperbrowser.ai")
	v.SetDefault("AGENT_POLL_INTERVAL", "2s")
	v.SetDefault("AGENT_RATE_LIMIT", 5)
	v.SetDefault("BROWSER_USER_AGENT", defaultUserAgent)
	v.SetDefault("S3_USE_SSL", false)
}

// Load reads configuration from the environment. When OPSEC_CONFIG names a
// file it is read first and environment variables override it.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("OPSEC_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		DatabaseURL:         v.GetString("DATABASE_URL"),
		HTTPAddr:            v.GetString("HTTP_ADDR"),
		APIAuthToken:        v.GetString("API_AUTH_TOKEN"),
		APIRateLimit:        v.GetInt("API_RATE_LIMIT"),
		APIRateBurst:        v.GetInt("API_RATE_BURST"),
		APICORSOrigins:      splitList(v.GetString("API_CORS_ORIGINS")),
		WorkerConcurrency:   v.GetInt("WORKER_CONCURRENCY"),
		QueueSize:           v.GetInt("QUEUE_SIZE"),
		PollInterval:        v.GetDuration("POLL_INTERVAL"),
		StaleScanAfter:      v.GetDuration("STALE_SCAN_AFTER"),
		HyperbrowserAPIKey:  v.GetString("HYPERBROWSER_API_KEY"),
		HyperbrowserBaseURL: strings.TrimRight(v.GetString("HYPERBROWSER_BASE_URL"), "/"),
		AgentPollInterval:   v.GetDuration("AGENT_POLL_INTERVAL"),
		AgentRateLimit:      v.GetFloat64("AGENT_RATE_LIMIT"),
		UserAgent:           v.GetString("BROWSER_USER_AGENT"),
		LinkedIn: Credentials{
			Username: v.GetString("LINKEDIN_USERNAME"),
			Password: v.GetString("LINKEDIN_PASSWORD"),
		},
		Twitter: Credentials{
			Username: v.GetString("X_USERNAME"),
			Password: v.GetString("X_PASSWORD"),
		},
		S3Endpoint:    v.GetString("S3_ENDPOINT"),
		S3AccessKey:   v.GetString("S3_ACCESS_KEY"),
		S3SecretKey:   v.GetString("S3_SECRET_KEY"),
		S3UseSSL:      v.GetBool("S3_USE_SSL"),
		ReportsBucket: v.GetString("REPORTS_BUCKET"),
	}
	// quick sanity
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.AgentPollInterval <= 0 {
		cfg.AgentPollInterval = 2 * time.Second
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
