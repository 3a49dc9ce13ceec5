package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable read by Load.
const Prefix = "WAKATIME"

const (
	DefaultCacheDuration = time.Hour
	DefaultStaleRetry    = time.Minute
	defaultEnvFile       = ".env"
)

// Config holds every setting the proxy reads from the environment.
type Config struct {
	CodingActivityURL string `envconfig:"EMBEDDABLE_CODING_ACTIVITY_TABLE" required:"true"`
	LanguagesURL      string `envconfig:"EMBEDDABLE_LANGUAGES_CHART"`

	// Raw millisecond values; parsed lazily so a bad value can be reported per request.
	CacheDurationMs string `envconfig:"CACHE_DURATION"`
	StaleRetryMs    string `envconfig:"STALE_RETRY"`

	ListenAddr   string   `envconfig:"LISTEN_ADDR" default:":8080"`
	LogLevel     string   `envconfig:"LOG_LEVEL" default:"info"`
	RedisURL     string   `envconfig:"REDIS_URL"`
	RedisKey     string   `envconfig:"REDIS_KEY" default:"wakatime:snapshot"`
	AllowOrigins []string `envconfig:"ALLOW_ORIGINS" default:"*"`

	DialTimeout         time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	TransportTimeout    time.Duration `envconfig:"TRANSPORT_TIMEOUT" default:"15s"`
	RequestTimeout      time.Duration `envconfig:"REQUEST_TIMEOUT" default:"20s"`
	IdleConnTimeout     time.Duration `envconfig:"IDLE_CONN_TIMEOUT" default:"90s"`
	MaxIdleConns        int           `envconfig:"MAX_IDLE_CONNS" default:"32"`
	MaxIdleConnsPerHost int           `envconfig:"MAX_IDLE_CONNS_PER_HOST" default:"8"`
}

// Load reads an optional .env file and then populates Config from the environment.
func Load() (Config, error) {
	envFile := os.Getenv(Prefix + "_ENV_FILE")
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if strings.TrimSpace(cfg.CodingActivityURL) == "" {
		return Config{}, fmt.Errorf("%s_EMBEDDABLE_CODING_ACTIVITY_TABLE is empty", Prefix)
	}

	return cfg, nil
}

// CacheDuration returns how long a successful fetch stays fresh.
func (c Config) CacheDuration() (time.Duration, error) {
	d, err := ParseMillis(c.CacheDurationMs, DefaultCacheDuration)
	if err != nil {
		return 0, fmt.Errorf("%s_CACHE_DURATION: %w", Prefix, err)
	}
	return d, nil
}

// StaleRetryDuration returns the forced retry window used after a failed refresh.
// Invalid values fall back to the default.
func (c Config) StaleRetryDuration() time.Duration {
	d, err := ParseMillis(c.StaleRetryMs, DefaultStaleRetry)
	if err != nil {
		return DefaultStaleRetry
	}
	return d
}

// ParseMillis parses a millisecond count. Empty, zero and negative values yield fallback;
// anything that is not a number is an error.
func ParseMillis(raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}

	ms, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return 0, fmt.Errorf("%q is not a valid number", raw)
	}
	if ms <= 0 {
		return fallback, nil
	}

	return time.Duration(ms * float64(time.Millisecond)), nil
}
