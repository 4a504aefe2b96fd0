package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	LogLevel  string
	Server    ServerConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Vector    VectorConfig
	Forecast  ForecastConfig
	Insight   InsightConfig
	Narrative NarrativeConfig
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host        string
	Port        int
	MetricsPort int // Port for Prometheus metrics HTTP server
}

// CacheConfig represents permission decision cache configuration
type CacheConfig struct {
	Enabled    bool
	MaxEntries int
	TTLMinutes int // Time-to-live for cached decisions in minutes
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// VectorConfig represents embedding index configuration
type VectorConfig struct {
	Features []string // Numeric record attributes embedded, in order
	Metric   string   // "cosine" or "euclidean"
}

// ForecastConfig represents forecasting service configuration
type ForecastConfig struct {
	MinHistory int
	Workers    int
}

// InsightConfig represents insight aggregation configuration
type InsightConfig struct {
	TimeoutSeconds int
	DefaultLimit   int
}

// NarrativeConfig represents narrative summary configuration
type NarrativeConfig struct {
	Enabled bool
	APIKey  string
	BaseURL string // OpenAI-compatible endpoint (Groq, OpenAI, local)
	Model   string
}

// findProjectRoot finds the project root directory by looking for go.mod
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up the directory tree until we find go.mod
	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached the root directory
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// ProjectPath resolves a path relative to the project root (the directory
// containing go.mod).
func ProjectPath(rel string) (string, error) {
	root, err := findProjectRoot()
	if err != nil {
		return "", fmt.Errorf("failed to find project root: %w", err)
	}
	return filepath.Join(root, rel), nil
}

// InitConfig initializes viper configuration
// env: environment name (dev, test, prod)
func InitConfig(env string) error {
	if env == "" {
		env = "dev"
	}

	// Find project root
	projectRoot, err := findProjectRoot()
	if err != nil {
		return fmt.Errorf("failed to find project root: %w", err)
	}

	// Set config file name based on environment
	viper.SetConfigName(fmt.Sprintf(".env.%s", env))
	viper.SetConfigType("env")
	viper.AddConfigPath(projectRoot) // Project root

	// Read config file (optional, ignore error if not found)
	_ = viper.ReadInConfig()

	// Environment variables take precedence over config file
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("METRICS_PORT", 9090)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 15432)
	viper.SetDefault("DB_USER", "bluecore")
	viper.SetDefault("DB_NAME", "bluecore_dev")
	viper.SetDefault("DB_SSLMODE", "disable")

	// Cache defaults
	viper.SetDefault("CACHE_ENABLED", true)
	viper.SetDefault("CACHE_MAX_ENTRIES", 10000)
	viper.SetDefault("CACHE_TTL_MINUTES", 5)

	// Vector index defaults
	viper.SetDefault("VECTOR_FEATURES", "unit_price,stock_level,monthly_sales")
	viper.SetDefault("VECTOR_METRIC", "cosine")

	// Forecast defaults
	viper.SetDefault("FORECAST_MIN_HISTORY", 5)
	viper.SetDefault("FORECAST_WORKERS", 4)

	// Insight defaults
	viper.SetDefault("INSIGHT_TIMEOUT_SECONDS", 10)
	viper.SetDefault("INSIGHT_DEFAULT_LIMIT", 20)

	// Narrative defaults (disabled until an API key is supplied)
	viper.SetDefault("NARRATIVE_ENABLED", false)
	viper.SetDefault("NARRATIVE_BASE_URL", "https://api.groq.com/openai/v1")
	viper.SetDefault("NARRATIVE_MODEL", "llama-3.1-8b-instant")

	return nil
}

// Load loads configuration from viper
func Load() (*Config, error) {
	// DB_PASSWORD is required for security
	dbPassword := viper.GetString("DB_PASSWORD")
	if dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required (set via environment variable or .env file)")
	}

	metric := viper.GetString("VECTOR_METRIC")
	if metric != "cosine" && metric != "euclidean" {
		return nil, fmt.Errorf("VECTOR_METRIC must be cosine or euclidean, got %q", metric)
	}

	var features []string
	for _, f := range strings.Split(viper.GetString("VECTOR_FEATURES"), ",") {
		if f = strings.TrimSpace(f); f != "" {
			features = append(features, f)
		}
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("VECTOR_FEATURES must name at least one record attribute")
	}

	config := &Config{
		LogLevel: viper.GetString("LOG_LEVEL"),
		Server: ServerConfig{
			Host:        viper.GetString("SERVER_HOST"),
			Port:        viper.GetInt("SERVER_PORT"),
			MetricsPort: viper.GetInt("METRICS_PORT"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetInt("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: dbPassword,
			Database: viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		Cache: CacheConfig{
			Enabled:    viper.GetBool("CACHE_ENABLED"),
			MaxEntries: viper.GetInt("CACHE_MAX_ENTRIES"),
			TTLMinutes: viper.GetInt("CACHE_TTL_MINUTES"),
		},
		Vector: VectorConfig{
			Features: features,
			Metric:   metric,
		},
		Forecast: ForecastConfig{
			MinHistory: viper.GetInt("FORECAST_MIN_HISTORY"),
			Workers:    viper.GetInt("FORECAST_WORKERS"),
		},
		Insight: InsightConfig{
			TimeoutSeconds: viper.GetInt("INSIGHT_TIMEOUT_SECONDS"),
			DefaultLimit:   viper.GetInt("INSIGHT_DEFAULT_LIMIT"),
		},
		Narrative: NarrativeConfig{
			Enabled: viper.GetBool("NARRATIVE_ENABLED"),
			APIKey:  viper.GetString("NARRATIVE_API_KEY"),
			BaseURL: viper.GetString("NARRATIVE_BASE_URL"),
			Model:   viper.GetString("NARRATIVE_MODEL"),
		},
	}

	return config, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
