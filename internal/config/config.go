package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

// Account holds the OAuth 1.0a user-context credentials of one X account.
type Account struct {
	AppKey       string
	AppSecret    string
	AccessToken  string
	AccessSecret string
	UserID       string // resolved through /2/users/me when empty
}

type Config struct {
	// News provider
	NewsProvider   string // newsdata | rss
	NewsAPIKey     string
	NewsAPIBaseURL string
	RequestTimeout time.Duration
	DailyLimit     int
	BudgetReset    string // daily | never
	BudgetTimezone string
	RotationFile   string

	// X accounts
	Accounts       [2]Account
	TwitterBaseURL string

	// Posting policy
	PostInterval time.Duration
	PostedPolicy string // first-account | any | all
	PostMaxRunes int
	PostSuffix   string

	// Follow-up pass
	FollowDelay time.Duration
	FollowDedup bool
	FollowEvery time.Duration

	// Posted title store
	StoreBackend string // memory | file | sqlite | postgres
	StorePath    string
	DatabaseURL  string
	PostedTTL    time.Duration

	// Enrichment
	RecoverTitles bool
	Shortener     string // none | gemini | openai
	GeminiAPIKey  string
	OpenAIAPIKey  string

	// Operator alerts
	TelegramToken  string
	TelegramChatID string

	// App settings
	Debug          bool
	Monitoring     bool
	MonitoringPort string
}

// Load reads the named env files, or .env when present, then the
// environment, applies defaults and validates. Variables already set in
// the environment win over the files.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := FromEnv()
	return cfg, cfg.Validate()
}

// FromEnv builds a Config from the environment without validating it.
func FromEnv() *Config {
	cfg := &Config{
		NewsProvider:   getEnvOrDefault("NEWS_PROVIDER", "newsdata"),
		NewsAPIKey:     os.Getenv("NEWS_API_KEY"),
		NewsAPIBaseURL: getEnvOrDefault("NEWS_API_BASE_URL", "https://newsdata.io"),
		RequestTimeout: getEnvDurationOrDefault("NEWS_REQUEST_TIMEOUT", 10*time.Second),
		DailyLimit:     getEnvIntOrDefault("NEWS_DAILY_LIMIT", 200),
		BudgetReset:    getEnvOrDefault("NEWS_BUDGET_RESET", "daily"),
		BudgetTimezone: getEnvOrDefault("NEWS_BUDGET_TZ", "UTC"),
		RotationFile:   os.Getenv("ROTATION_FILE"),

		TwitterBaseURL: getEnvOrDefault("TWITTER_API_BASE_URL", "https://api.twitter.com"),

		PostInterval: getEnvDurationOrDefault("POST_INTERVAL", 90*time.Minute),
		PostedPolicy: getEnvOrDefault("POSTED_POLICY", "first-account"),
		PostMaxRunes: getEnvIntOrDefault("POST_MAX_LENGTH", 280),
		PostSuffix:   getEnvOrDefault("POST_SUFFIX", "cashapp:$KBKNY"),

		FollowDelay: getEnvDurationOrDefault("FOLLOW_DELAY", time.Hour),
		FollowDedup: getEnvBoolOrDefault("FOLLOW_DEDUP", false),
		FollowEvery: getEnvDurationOrDefault("FOLLOW_RATE", time.Second),

		StoreBackend: getEnvOrDefault("STORE_BACKEND", "memory"),
		StorePath:    os.Getenv("STORE_PATH"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		PostedTTL:    getEnvDurationOrDefault("POSTED_TTL", 0),

		RecoverTitles: getEnvBoolOrDefault("RECOVER_TITLES", false),
		Shortener:     getEnvOrDefault("SHORTENER", "none"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),

		TelegramToken:  os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID: os.Getenv("TELEGRAM_CHAT_ID"),

		Debug:          getEnvBoolOrDefault("DEBUG", false),
		Monitoring:     getEnvBoolOrDefault("ENABLE_HTTP_MONITORING", false),
		MonitoringPort: getEnvOrDefault("MONITORING_PORT", "8080"),
	}

	for i := range cfg.Accounts {
		n := strconv.Itoa(i + 1)
		cfg.Accounts[i] = Account{
			AppKey:       os.Getenv("TWITTER_APP_KEY" + n),
			AppSecret:    os.Getenv("TWITTER_APP_SECRET" + n),
			AccessToken:  os.Getenv("TWITTER_ACCESS_TOKEN" + n),
			AccessSecret: os.Getenv("TWITTER_ACCESS_SECRET" + n),
			UserID:       os.Getenv("TWITTER_USER_ID" + n),
		}
	}

	if cfg.StorePath == "" {
		cfg.StorePath = DefaultStorePath(cfg.StoreBackend)
	}

	return cfg
}

// DefaultStorePath places durable stores under the XDG state directory.
func DefaultStorePath(backend string) string {
	name := "posted.json"
	if backend == "sqlite" {
		name = "posted.db"
	}
	return filepath.Join(xdg.StateHome, "newsbot", name)
}

// Location resolves BudgetTimezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.BudgetTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// Validate reports every problem at once rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []error

	switch c.NewsProvider {
	case "newsdata":
		if c.NewsAPIKey == "" {
			errs = append(errs, errors.New("NEWS_API_KEY is required"))
		}
	case "rss":
		if c.RotationFile == "" {
			errs = append(errs, errors.New("ROTATION_FILE is required for NEWS_PROVIDER=rss"))
		}
	default:
		errs = append(errs, fmt.Errorf("NEWS_PROVIDER must be 'newsdata' or 'rss', got %q", c.NewsProvider))
	}

	if c.DailyLimit <= 0 {
		errs = append(errs, errors.New("NEWS_DAILY_LIMIT must be positive"))
	}
	if c.BudgetReset != "daily" && c.BudgetReset != "never" {
		errs = append(errs, errors.New("NEWS_BUDGET_RESET must be 'daily' or 'never'"))
	}
	if _, err := time.LoadLocation(c.BudgetTimezone); err != nil {
		errs = append(errs, fmt.Errorf("NEWS_BUDGET_TZ: %w", err))
	}

	for i, a := range c.Accounts {
		n := i + 1
		if a.AppKey == "" || a.AppSecret == "" || a.AccessToken == "" || a.AccessSecret == "" {
			errs = append(errs, fmt.Errorf("TWITTER_APP_KEY%d, TWITTER_APP_SECRET%d, TWITTER_ACCESS_TOKEN%d and TWITTER_ACCESS_SECRET%d are required", n, n, n, n))
		}
	}

	switch c.PostedPolicy {
	case "first-account", "any", "all":
	default:
		errs = append(errs, errors.New("POSTED_POLICY must be 'first-account', 'any' or 'all'"))
	}
	if c.PostInterval <= 0 {
		errs = append(errs, errors.New("POST_INTERVAL must be positive"))
	}
	if c.PostMaxRunes <= 0 {
		errs = append(errs, errors.New("POST_MAX_LENGTH must be positive"))
	}

	switch c.StoreBackend {
	case "memory", "file", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for STORE_BACKEND=postgres"))
		}
	default:
		errs = append(errs, errors.New("STORE_BACKEND must be 'memory', 'file', 'sqlite' or 'postgres'"))
	}

	switch c.Shortener {
	case "none":
	case "gemini":
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for SHORTENER=gemini"))
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for SHORTENER=openai"))
		}
	default:
		errs = append(errs, errors.New("SHORTENER must be 'none', 'gemini' or 'openai'"))
	}

	if (c.TelegramToken == "") != (c.TelegramChatID == "") {
		errs = append(errs, errors.New("TELEGRAM_TOKEN and TELEGRAM_CHAT_ID must be set together"))
	}

	return errors.Join(errs...)
}
