package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logger    LoggerConfig
	Security  SecurityConfig
	Dashboard DashboardConfig
	Insight   InsightConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	CSVFile  string
	CacheDir string
}

type LoggerConfig struct {
	Level  string
	Format string
}

type SecurityConfig struct {
	EnableCSRF      bool
	EnableRateLimit bool
	RateLimitRPS    int
	RateLimitBurst  int
	AllowedOrigins  []string
	TrustedProxies  []string
}

type DashboardConfig struct {
	DefaultDateRange      string
	DefaultRegion         string
	DefaultProfitRatioMin int
	DefaultProfitRatioMax int
	// YearAnchor is "dataset" or "clock" and decides what "last-3-years" counts back from.
	YearAnchor string
	// MapStyle is "states" (choropleth) or "points" (per-record coordinates).
	MapStyle string
	// MapTopoJSON is the URL of the US states topojson the choropleth draws.
	MapTopoJSON string
	SessionTTL  time.Duration
}

type InsightConfig struct {
	Provider     string
	Endpoint     string
	Model        string
	Timeout      time.Duration
	PromptsFile  string
	GeminiAPIKey string
}

var yearPattern = regexp.MustCompile(`^\d{4}$`)

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "localhost"),
			Port:            getEnvInt("SERVER_PORT", 8084),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			CSVFile:  getEnvString("CSV_FILE", "data/sample_superstore.csv"),
			CacheDir: getEnvString("CACHE_DIR", ".cache"),
		},
		Logger: LoggerConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
		},
		Security: SecurityConfig{
			EnableCSRF:      getEnvBool("SECURITY_CSRF_ENABLED", true),
			EnableRateLimit: getEnvBool("SECURITY_RATE_LIMIT_ENABLED", true),
			RateLimitRPS:    getEnvInt("SECURITY_RATE_LIMIT_RPS", 100),
			RateLimitBurst:  getEnvInt("SECURITY_RATE_LIMIT_BURST", 20),
			AllowedOrigins:  getEnvStringSlice("SECURITY_ALLOWED_ORIGINS", []string{"http://localhost:8084"}),
			TrustedProxies:  getEnvStringSlice("SECURITY_TRUSTED_PROXIES", []string{"127.0.0.1"}),
		},
		Dashboard: DashboardConfig{
			DefaultDateRange:      getEnvString("DASHBOARD_DATE_RANGE", "all"),
			DefaultRegion:         getEnvString("DASHBOARD_REGION", "all"),
			DefaultProfitRatioMin: getEnvInt("DASHBOARD_PROFIT_RATIO_MIN", -100),
			DefaultProfitRatioMax: getEnvInt("DASHBOARD_PROFIT_RATIO_MAX", 100),
			YearAnchor:            getEnvString("DASHBOARD_YEAR_ANCHOR", "dataset"),
			MapStyle:              getEnvString("DASHBOARD_MAP_STYLE", "states"),
			MapTopoJSON:           getEnvString("DASHBOARD_MAP_TOPOJSON", "https://cdn.jsdelivr.net/npm/vega-datasets@2/data/us-10m.json"),
			SessionTTL:            getEnvDuration("DASHBOARD_SESSION_TTL", 2*time.Hour),
		},
		Insight: InsightConfig{
			Provider:     getEnvString("INSIGHT_PROVIDER", "ollama"),
			Endpoint:     getEnvString("INSIGHT_ENDPOINT", "http://localhost:11434"),
			Model:        getEnvString("INSIGHT_MODEL", ""),
			Timeout:      getEnvDuration("INSIGHT_TIMEOUT", 60*time.Second),
			PromptsFile:  getEnvString("INSIGHT_PROMPTS_FILE", ""),
			GeminiAPIKey: getEnvString("GEMINI_API_KEY", ""),
		},
	}

	if cfg.Insight.Model == "" {
		cfg.Insight.Model = defaultModel(cfg.Insight.Provider)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Database.CSVFile == "" {
		return fmt.Errorf("CSV file path cannot be empty")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	if err := c.Dashboard.validate(); err != nil {
		return err
	}

	validProviders := []string{"ollama", "gemini", "none"}
	if !contains(validProviders, c.Insight.Provider) {
		return fmt.Errorf("invalid insight provider %q, must be one of: %s", c.Insight.Provider, strings.Join(validProviders, ", "))
	}

	if c.Insight.Provider == "gemini" && c.Insight.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when the insight provider is gemini")
	}

	if c.Insight.Timeout <= 0 {
		return fmt.Errorf("insight timeout must be positive")
	}

	return nil
}

func (d DashboardConfig) validate() error {
	if d.DefaultDateRange != "all" && d.DefaultDateRange != "last-3-years" && !yearPattern.MatchString(d.DefaultDateRange) {
		return fmt.Errorf("invalid default date range %q", d.DefaultDateRange)
	}

	if d.DefaultRegion == "" {
		return fmt.Errorf("default region cannot be empty")
	}

	if d.DefaultProfitRatioMin > d.DefaultProfitRatioMax {
		return fmt.Errorf("default profit ratio min %d exceeds max %d", d.DefaultProfitRatioMin, d.DefaultProfitRatioMax)
	}

	validAnchors := []string{"dataset", "clock"}
	if !contains(validAnchors, d.YearAnchor) {
		return fmt.Errorf("invalid year anchor %q, must be one of: %s", d.YearAnchor, strings.Join(validAnchors, ", "))
	}

	validMapStyles := []string{"states", "points"}
	if !contains(validMapStyles, d.MapStyle) {
		return fmt.Errorf("invalid map style %q, must be one of: %s", d.MapStyle, strings.Join(validMapStyles, ", "))
	}

	if d.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}

	return nil
}

// defaultModel is the model used when INSIGHT_MODEL is unset.
func defaultModel(provider string) string {
	if provider == "gemini" {
		return "gemini-2.0-flash"
	}
	return "mistral"
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LogValue logs the configuration without secrets.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("addr", c.Address()),
		slog.String("csv_file", c.Database.CSVFile),
		slog.String("cache_dir", c.Database.CacheDir),
		slog.String("log_level", c.Logger.Level),
		slog.Bool("rate_limit", c.Security.EnableRateLimit),
		slog.String("year_anchor", c.Dashboard.YearAnchor),
		slog.String("map_style", c.Dashboard.MapStyle),
		slog.Duration("session_ttl", c.Dashboard.SessionTTL),
		slog.String("insight_provider", c.Insight.Provider),
		slog.String("insight_model", c.Insight.Model),
		slog.Bool("gemini_key_set", c.Insight.GeminiAPIKey != ""),
	)
}
