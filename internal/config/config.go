package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"category-tree/internal/model"
)

type Config struct {
	DatabaseURL      string
	DBMaxConns       int32
	DBMinConns       int32
	StatementTimeout time.Duration
	CommandTimeout   time.Duration
	LogLevel         string
	LogFormat        string
	TreeMaxDepth     int
	BatchSize        int
	BatchConcurrency int
	BatchRate        float64
	WarnChildren     int
	WarnDescendants  int
	TraceExporter    string
	Pushgateway      string
	MetricsJob       string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:       int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:       int32(getInt("DB_MIN_CONNS", 1)),
		StatementTimeout: getDuration("DB_STATEMENT_TIMEOUT", 0),
		CommandTimeout:   getDuration("COMMAND_TIMEOUT", 5*time.Minute),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "pretty")),
		TreeMaxDepth:     getInt("TREE_MAX_DEPTH", 10),
		BatchSize:        getInt("TREE_BATCH_SIZE", 100),
		BatchConcurrency: getInt("TREE_BATCH_CONCURRENCY", 8),
		BatchRate:        getFloat("TREE_BATCH_RATE", 0),
		WarnChildren:     getInt("TREE_WARN_CHILDREN", 100),
		WarnDescendants:  getInt("TREE_WARN_DESCENDANTS", 1000),
		TraceExporter:    strings.ToLower(getEnv("TRACE_EXPORTER", "none")),
		Pushgateway:      getEnv("METRICS_PUSHGATEWAY", ""),
		MetricsJob:       getEnv("METRICS_JOB", "treectl"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}

	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS")
	}

	if c.CommandTimeout <= 0 {
		return fmt.Errorf("COMMAND_TIMEOUT must be positive")
	}

	switch c.LogFormat {
	case "pretty", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be pretty or json")
	}

	if c.TreeMaxDepth < 1 {
		return fmt.Errorf("TREE_MAX_DEPTH must be at least 1")
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("TREE_BATCH_SIZE must be positive")
	}

	if c.BatchConcurrency <= 0 {
		return fmt.Errorf("TREE_BATCH_CONCURRENCY must be positive")
	}

	if c.BatchRate < 0 {
		return fmt.Errorf("TREE_BATCH_RATE cannot be negative")
	}

	if c.WarnChildren <= 0 || c.WarnDescendants <= 0 {
		return fmt.Errorf("TREE_WARN_CHILDREN and TREE_WARN_DESCENDANTS must be positive")
	}

	switch c.TraceExporter {
	case "none", "stdout":
	default:
		return fmt.Errorf("TRACE_EXPORTER must be none or stdout")
	}

	return nil
}

func (c *Config) Limits() model.Limits {
	return model.Limits{
		MaxDepth:         c.TreeMaxDepth,
		BatchSize:        c.BatchSize,
		BatchConcurrency: c.BatchConcurrency,
		BatchRate:        c.BatchRate,
		WarnChildren:     c.WarnChildren,
		WarnDescendants:  c.WarnDescendants,
	}
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}
