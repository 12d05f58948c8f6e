package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Providers ProviderConfig
	LLM       LLMConfig
	Auth      AuthConfig
	Email     EmailConfig
	Scheduler SchedulerConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	StaticDir       string
	AllowedOrigin   string
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig describes how to reach PostgreSQL.
type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MigrationsDir  string
}

// CacheConfig holds the Redis location and per-kind TTLs.
type CacheConfig struct {
	RedisURL string
	TTL      CacheTTLs
}

// CacheTTLs are the expiry windows for each kind of cached market data.
type CacheTTLs struct {
	Quote         time.Duration
	History       time.Duration
	Company       time.Duration
	MarketSummary time.Duration
	News          time.Duration
	Analysis      time.Duration
}

// ProviderConfig holds third-party market data credentials.
type ProviderConfig struct {
	FinnhubKey      string
	AlphaVantageKey string
	PolygonKey      string
	AlpacaKey       string
	AlpacaSecret    string
	TwelveDataKey   string
	NewsAPIKey      string
	SerperKey       string
	Timeout         time.Duration
	QuoteOrder      []string
}

// LLMConfig selects and configures the language model backend.
type LLMConfig struct {
	Provider       string
	GoogleAPIKey   string
	GeminiModel    string
	OpenAIAPIKey   string
	OpenAIModel    string
	AnthropicKey   string
	AnthropicModel string
	Temperature    float32
	MaxTokens      int
	Timeout        time.Duration
}

// AuthConfig holds JWT settings.
type AuthConfig struct {
	JWTSecret     string
	Algorithm     string
	TokenDuration time.Duration
}

// EmailConfig holds SMTP settings for verification mail.
type EmailConfig struct {
	Enabled      bool
	DevMode      bool
	From         string
	FromName     string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPTLS      bool
}

// SchedulerConfig controls background cache warming.
type SchedulerConfig struct {
	PrefetchEnabled  bool
	PrefetchSchedule string
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 0
	defaultShutdownTimeout = 10 * time.Second

	defaultLogFormat = "json"

	defaultMaxConnections = 25
	defaultMigrationsDir  = "./migrations"

	defaultQuoteTTL         = 60 * time.Second
	defaultHistoryTTL       = 300 * time.Second
	defaultCompanyTTL       = 3600 * time.Second
	defaultMarketSummaryTTL = 120 * time.Second
	defaultNewsTTL          = 300 * time.Second
	defaultAnalysisTTL      = 2 * time.Hour

	defaultProviderTimeout = 10 * time.Second
	defaultQuoteOrder      = "yahoo,finnhub,alpha_vantage,polygon,alpaca"

	defaultGeminiModel    = "gemini-2.0-flash"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-haiku-4-5"
	defaultTemperature    = 0.1
	defaultMaxTokens      = 600
	defaultLLMTimeout     = 60 * time.Second

	defaultJWTSecret     = "change-this-secret"
	defaultTokenDuration = 7 * 24 * time.Hour

	defaultSMTPPort         = 587
	defaultPrefetchSchedule = "@every 5m"
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided or invalid. A .env file is loaded first when present.
func Load() (Config, error) {
	loadDotEnv()

	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
			StaticDir:       os.Getenv("STATIC_DIR"),
			AllowedOrigin:   getEnv("CORS_ALLOWED_ORIGIN", "*"),
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			URL:            buildDatabaseURL(),
			MaxConnections: defaultMaxConnections,
			MigrationsDir:  getEnv("MIGRATIONS_DIR", defaultMigrationsDir),
		},
		Cache: CacheConfig{
			RedisURL: buildRedisURL(),
			TTL: CacheTTLs{
				Quote:         defaultQuoteTTL,
				History:       defaultHistoryTTL,
				Company:       defaultCompanyTTL,
				MarketSummary: defaultMarketSummaryTTL,
				News:          defaultNewsTTL,
				Analysis:      defaultAnalysisTTL,
			},
		},
		Providers: ProviderConfig{
			FinnhubKey:      os.Getenv("FINNHUB_API_KEY"),
			AlphaVantageKey: os.Getenv("ALPHA_VANTAGE_API_KEY"),
			PolygonKey:      os.Getenv("POLYGON_API_KEY"),
			AlpacaKey:       os.Getenv("ALPACA_API_KEY"),
			AlpacaSecret:    os.Getenv("ALPACA_SECRET_KEY"),
			TwelveDataKey:   os.Getenv("TWELVE_DATA_API_KEY"),
			NewsAPIKey:      os.Getenv("NEWS_API_KEY"),
			SerperKey:       getEnv("SERPER_API_KEY", os.Getenv("SERPER_KEY")),
			Timeout:         defaultProviderTimeout,
			QuoteOrder:      splitList(getEnv("QUOTE_PROVIDERS", defaultQuoteOrder)),
		},
		LLM: LLMConfig{
			GoogleAPIKey:   os.Getenv("GOOGLE_API_KEY"),
			GeminiModel:    getEnv("GEMINI_MODEL", defaultGeminiModel),
			OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
			OpenAIModel:    getEnv("OPENAI_MODEL", defaultOpenAIModel),
			AnthropicKey:   os.Getenv("ANTHROPIC_API_KEY"),
			AnthropicModel: getEnv("ANTHROPIC_MODEL", defaultAnthropicModel),
			Temperature:    defaultTemperature,
			MaxTokens:      defaultMaxTokens,
			Timeout:        defaultLLMTimeout,
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET_KEY", defaultJWTSecret),
			Algorithm:     getEnv("JWT_ALGORITHM", "HS256"),
			TokenDuration: defaultTokenDuration,
		},
		Email: EmailConfig{
			From:         getEnv("EMAIL_FROM", "noreply@quantinsight.local"),
			FromName:     getEnv("EMAIL_FROM_NAME", "QuantInsight"),
			SMTPHost:     os.Getenv("SMTP_HOST"),
			SMTPPort:     defaultSMTPPort,
			SMTPUsername: os.Getenv("SMTP_USERNAME"),
			SMTPPassword: os.Getenv("SMTP_PASSWORD"),
			SMTPTLS:      true,
		},
		Scheduler: SchedulerConfig{
			PrefetchEnabled:  true,
			PrefetchSchedule: getEnv("PREFETCH_SCHEDULE", defaultPrefetchSchedule),
		},
	}

	durations := []struct {
		key  string
		dest *time.Duration
	}{
		{"SERVER_READ_TIMEOUT_SECONDS", &cfg.Server.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT_SECONDS", &cfg.Server.WriteTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT_SECONDS", &cfg.Server.ShutdownTimeout},
		{"CACHE_TTL_QUOTE_SECONDS", &cfg.Cache.TTL.Quote},
		{"CACHE_TTL_HISTORY_SECONDS", &cfg.Cache.TTL.History},
		{"CACHE_TTL_COMPANY_SECONDS", &cfg.Cache.TTL.Company},
		{"CACHE_TTL_MARKET_SUMMARY_SECONDS", &cfg.Cache.TTL.MarketSummary},
		{"CACHE_TTL_NEWS_SECONDS", &cfg.Cache.TTL.News},
		{"CACHE_TTL_ANALYSIS_SECONDS", &cfg.Cache.TTL.Analysis},
		{"PROVIDER_TIMEOUT_SECONDS", &cfg.Providers.Timeout},
		{"LLM_TIMEOUT_SECONDS", &cfg.LLM.Timeout},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dest = parsed
	}

	if v := os.Getenv("ACCESS_TOKEN_EXPIRE_MINUTES"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes <= 0 {
			return Config{}, fmt.Errorf("invalid ACCESS_TOKEN_EXPIRE_MINUTES: must be a positive integer")
		}
		cfg.Auth.TokenDuration = time.Duration(minutes) * time.Minute
	}

	if cfg.Auth.Algorithm != "HS256" {
		return Config{}, fmt.Errorf("invalid JWT_ALGORITHM: only HS256 is supported")
	}

	if v := os.Getenv("DB_MAX_CONNECTIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid DB_MAX_CONNECTIONS: must be a positive integer")
		}
		cfg.Database.MaxConnections = n
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if err := loadLLM(&cfg.LLM); err != nil {
		return Config{}, err
	}

	if err := loadEmail(&cfg.Email); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("PREFETCH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PREFETCH_ENABLED: %w", err)
		}
		cfg.Scheduler.PrefetchEnabled = enabled
	}

	return cfg, nil
}

func loadLLM(cfg *LLMConfig) error {
	provider := strings.ToLower(os.Getenv("LLM_PROVIDER"))
	if provider == "" {
		provider = "mock"
		if cfg.GoogleAPIKey != "" {
			provider = "gemini"
		}
	}
	switch provider {
	case "gemini", "openai", "anthropic", "mock":
		cfg.Provider = provider
	default:
		return fmt.Errorf("invalid LLM_PROVIDER: must be one of gemini, openai, anthropic, mock")
	}

	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		t, err := strconv.ParseFloat(v, 32)
		if err != nil || t < 0 || t > 2 {
			return fmt.Errorf("invalid LLM_TEMPERATURE: must be between 0 and 2")
		}
		cfg.Temperature = float32(t)
	}

	if v := os.Getenv("LLM_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid LLM_MAX_TOKENS: must be a positive integer")
		}
		cfg.MaxTokens = n
	}
	return nil
}

func loadEmail(cfg *EmailConfig) error {
	bools := []struct {
		key  string
		dest *bool
	}{
		{"EMAIL_ENABLED", &cfg.Enabled},
		{"DEV_MODE", &cfg.DevMode},
		{"SMTP_TLS", &cfg.SMTPTLS},
	}
	for _, b := range bools {
		v := os.Getenv(b.key)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", b.key, err)
		}
		*b.dest = parsed
	}

	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid SMTP_PORT: must be a valid port number")
		}
		cfg.SMTPPort = port
	}
	return nil
}

func loadDotEnv() {
	if path := os.Getenv("ENV_FILE"); path != "" {
		_ = godotenv.Load(path)
		return
	}
	// godotenv never overrides variables that are already set.
	_ = godotenv.Load()
}

// buildDatabaseURL resolves the PostgreSQL DSN for local development, Cloud SQL
// unix sockets, or discrete POSTGRES_* variables, in that order.
func buildDatabaseURL() string {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		return dbURL
	}

	if instance := os.Getenv("INSTANCE_CONNECTION_NAME"); instance != "" {
		socketPath := fmt.Sprintf("/cloudsql/%s", instance)
		user := os.Getenv("DB_USER")
		name := os.Getenv("DB_NAME")
		if password := os.Getenv("DB_PASSWORD"); password != "" {
			return fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable", socketPath, user, password, name)
		}
		// IAM authentication
		return fmt.Sprintf("host=%s user=%s dbname=%s sslmode=disable", socketPath, user, name)
	}

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		getEnv("POSTGRES_USER", "postgres"),
		os.Getenv("POSTGRES_PASSWORD"),
		host,
		getEnv("POSTGRES_PORT", "5432"),
		getEnv("POSTGRES_DB", "quantinsight"),
	)
}

func buildRedisURL() string {
	if u := os.Getenv("REDIS_URL"); u != "" {
		return u
	}
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return ""
	}
	return fmt.Sprintf("redis://%s:%s/%s", host, getEnv("REDIS_PORT", "6379"), getEnv("REDIS_DB", "0"))
}

// RedactDSN masks the password portion of a connection string for logging.
func RedactDSN(dsn string) string {
	if strings.HasPrefix(dsn, "postgresql://") || strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "redis://") {
		parts := strings.SplitN(dsn, "@", 2)
		if len(parts) == 2 {
			userParts := strings.Split(parts[0], ":")
			if len(userParts) >= 3 {
				return userParts[0] + ":" + userParts[1] + ":***@" + parts[1]
			}
		}
		return dsn
	}
	if idx := strings.Index(dsn, "password="); idx >= 0 {
		end := strings.Index(dsn[idx:], " ")
		if end < 0 {
			return dsn[:idx] + "password=***"
		}
		return dsn[:idx] + "password=***" + dsn[idx+end:]
	}
	return dsn
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(strings.ToLower(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
