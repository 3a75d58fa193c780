package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Accident sources.
const (
	SourceFile  = "file"
	SourceKafka = "kafka"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Source tables.
	AccidentsSource string
	AccidentsPath   string
	PopulationPath  string
	SchemaPath      string

	KafkaBrokers        []string
	KafkaAccidentsTopic string
	KafkaIdleTimeout    time.Duration

	// Pipeline feature flags.
	SeriesYearScoped     bool
	DecompositionEnabled bool
	ForecastEnabled      bool
	ForecastHorizon      int
	AnalysisCacheSize    int

	// HTTP edge.
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSOrigins       []string
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	idleTimeout, err := parseDuration("KAFKA_IDLE_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	rateWindow, err := parseDuration("RATE_LIMIT_WINDOW", "1m")
	if err != nil {
		return nil, err
	}

	horizon, err := parseInt("FORECAST_HORIZON", 10)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("ANALYSIS_CACHE_SIZE", 256)
	if err != nil {
		return nil, err
	}
	rateRequests, err := parseInt("RATE_LIMIT_REQUESTS", 120)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		AccidentsSource: strings.ToLower(sharedcfg.EnvOrDefault("ACCIDENTS_SOURCE", SourceFile)),
		AccidentsPath:   sharedcfg.EnvOrDefault("ACCIDENTS_PATH", "data/accidents_by_county.csv"),
		PopulationPath:  sharedcfg.EnvOrDefault("POPULATION_PATH", "data/population_by_county_2019.csv"),
		SchemaPath:      os.Getenv("SCHEMA_PATH"),

		KafkaBrokers:        sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaAccidentsTopic: sharedcfg.EnvOrDefault("KAFKA_ACCIDENTS_TOPIC", "traffic-accidents"),
		KafkaIdleTimeout:    idleTimeout,

		SeriesYearScoped:     parseBool("SERIES_YEAR_SCOPED", true),
		DecompositionEnabled: parseBool("DECOMPOSITION_ENABLED", true),
		ForecastEnabled:      parseBool("FORECAST_ENABLED", true),
		ForecastHorizon:      horizon,
		AnalysisCacheSize:    cacheSize,

		RateLimitRequests: rateRequests,
		RateLimitWindow:   rateWindow,
		CORSOrigins:       splitList(sharedcfg.EnvOrDefault("CORS_ORIGINS", "*")),
	}

	switch cfg.AccidentsSource {
	case SourceFile:
		if cfg.AccidentsPath == "" {
			return nil, errors.New("ACCIDENTS_PATH is required")
		}
	case SourceKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when ACCIDENTS_SOURCE is kafka")
		}
		if cfg.KafkaAccidentsTopic == "" {
			return nil, errors.New("KAFKA_ACCIDENTS_TOPIC is required when ACCIDENTS_SOURCE is kafka")
		}
	default:
		return nil, fmt.Errorf("invalid ACCIDENTS_SOURCE %q: must be %s or %s", cfg.AccidentsSource, SourceFile, SourceKafka)
	}
	if cfg.PopulationPath == "" {
		return nil, errors.New("POPULATION_PATH is required")
	}
	if cfg.ForecastHorizon <= 0 {
		return nil, errors.New("FORECAST_HORIZON must be positive")
	}
	if cfg.AnalysisCacheSize < 0 {
		return nil, errors.New("ANALYSIS_CACHE_SIZE must not be negative")
	}

	return cfg, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return fallback
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
