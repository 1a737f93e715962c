package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	KafkaBrokers       []string
	KafkaFindingsTopic string
	KafkaEnabled       bool

	// DBPath is the SQLite database holding observations, history, county
	// rollups and saved forecasts.
	DBPath        string
	SaveForecasts bool
	RedisAddr     string
	CacheTTL      time.Duration
	CheckSchedule string
	Preset        string
	Parallelism   int

	// County rollup API configuration. An empty URL reads rollups from the
	// database instead.
	CountyAPIURL     string
	CountyAPITimeout time.Duration
	CountyCacheSize  int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cacheTTL, err := parseDuration("CACHE_TTL", "60s")
	if err != nil {
		return nil, err
	}

	countyTimeout, err := parseDuration("COUNTY_API_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	parallelism, err := parsePositiveInt("QC_PARALLELISM", 1)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaFindingsTopic: sharedcfg.EnvOrDefault("KAFKA_FINDINGS_TOPIC", "qc-findings"),
		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",

		DBPath:        sharedcfg.EnvOrDefault("DB_PATH", "qc.db"),
		SaveForecasts: os.Getenv("SAVE_FORECASTS") == "true",
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		CacheTTL:      cacheTTL,
		CheckSchedule: sharedcfg.EnvOrDefault("CHECK_SCHEDULE", "*/15 * * * *"),
		Preset:        sharedcfg.EnvOrDefault("QC_PRESET", "working"),
		Parallelism:   parallelism,

		CountyAPIURL:     os.Getenv("COUNTY_API_URL"),
		CountyAPITimeout: countyTimeout,
		CountyCacheSize:  parseCountyCacheSize(),
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaFindingsTopic == "" {
			return nil, errors.New("KAFKA_FINDINGS_TOPIC is required")
		}
	}
	if cfg.DBPath == "" {
		return nil, errors.New("DB_PATH is required")
	}
	if _, err := cron.ParseStandard(cfg.CheckSchedule); err != nil {
		return nil, errors.New("invalid CHECK_SCHEDULE")
	}
	switch cfg.Preset {
	case "working", "current", "legacy":
	default:
		return nil, errors.New("invalid QC_PRESET")
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

func parseCountyCacheSize() int {
	if s := os.Getenv("COUNTY_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 100
}
