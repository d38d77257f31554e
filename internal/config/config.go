package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	BackendFile      = "file"
	BackendFirestore = "firestore"
	BackendRedis     = "redis"
)

type Config struct {
	Port string

	HubSpotToken             string
	HubSpotBaseURL           string
	HubSpotListID            string
	HubSpotProcessedProperty string
	HubSpotPipelineID        string
	HubSpotDealStageID       string
	HubSpotDealCurrency      string
	HubSpotRequestsPerSecond float64
	HubSpotMaxPages          int

	ApifyToken      string
	ApifyBaseURL    string
	ApifyActorID    string
	ApifyBatchSize  int
	ApifyBatchDelay time.Duration
	Actor           ActorInput

	MaxProfilesPerDay int
	RateLimitBackend  string
	RateLimitFile     string
	RateLimitLocation *time.Location

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ProjectID                string
	FirestoreCredentialsFile string
	MaxStoredRuns            int

	ScrapeIntervalMinutes int
	SchedulerLocation     *time.Location
	RunOnStartup          bool
	RunTimeout            time.Duration

	DiscordWebhookURL string

	LogLevel slog.Level
	LogDir   string
}

// ActorInput mirrors the scraping actor's input options.
type ActorInput struct {
	MaxPosts          int
	IncludeQuotePosts bool
	IncludeReposts    bool
	ScrapeReactions   bool
	MaxReactions      int
	ScrapeComments    bool
	MaxComments       int
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:                     getEnv("PORT", "8080"),
		HubSpotToken:             os.Getenv("HUBSPOT_TOKEN"),
		HubSpotBaseURL:           strings.TrimRight(getEnv("HUBSPOT_BASE_URL", "https://api.hubapi.com"), "/"),
		HubSpotListID:            getEnv("HUBSPOT_LIST_ID", "5557"),
		HubSpotProcessedProperty: getEnv("HUBSPOT_PROCESSED_PROPERTY", "scrapeado_linkedin"),
		HubSpotPipelineID:        os.Getenv("HUBSPOT_PIPELINE_ID"),
		HubSpotDealStageID:       os.Getenv("HUBSPOT_DEAL_STAGE_ID"),
		HubSpotDealCurrency:      getEnv("HUBSPOT_DEAL_CURRENCY", "MXN"),
		ApifyToken:               os.Getenv("APIFY_API_TOKEN"),
		ApifyBaseURL:             strings.TrimRight(getEnv("APIFY_BASE_URL", "https://api.apify.com"), "/"),
		ApifyActorID:             getEnv("APIFY_ACTOR_ID", "A3cAPGpwBEG8RJwse"),
		RateLimitBackend:         strings.ToLower(getEnv("RATE_LIMIT_BACKEND", BackendFile)),
		RateLimitFile:            getEnv("RATE_LIMIT_FILE", "data/rate-limit.json"),
		RedisAddr:                getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		ProjectID:                os.Getenv("GOOGLE_CLOUD_PROJECT"),
		FirestoreCredentialsFile: os.Getenv("FIRESTORE_CREDENTIALS_FILE"),
		DiscordWebhookURL:        os.Getenv("DISCORD_WEBHOOK_URL"),
		LogDir:                   getEnv("LOG_DIR", "data/logs"),
	}

	if cfg.HubSpotToken == "" {
		slog.Warn("HUBSPOT_TOKEN not set, profile source and deal sink are unavailable")
	}
	if cfg.ApifyToken == "" {
		slog.Warn("APIFY_API_TOKEN not set, extraction is unavailable")
	}
	if cfg.DiscordWebhookURL == "" {
		slog.Info("DISCORD_WEBHOOK_URL not set, run reports will be skipped")
	}

	var err error
	if cfg.HubSpotRequestsPerSecond, err = getFloat("HUBSPOT_REQUESTS_PER_SECOND", 9); err != nil {
		return nil, err
	}
	if cfg.HubSpotMaxPages, err = getInt("HUBSPOT_MAX_PAGES", 150); err != nil {
		return nil, err
	}
	if cfg.ApifyBatchSize, err = getInt("APIFY_BATCH_SIZE", 10); err != nil {
		return nil, err
	}
	if cfg.ApifyBatchSize < 1 {
		return nil, fmt.Errorf("invalid APIFY_BATCH_SIZE %d: must be at least 1", cfg.ApifyBatchSize)
	}
	if cfg.ApifyBatchDelay, err = getDuration("APIFY_BATCH_DELAY", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.Actor, err = loadActorInput(); err != nil {
		return nil, err
	}
	if cfg.MaxProfilesPerDay, err = getInt("MAX_PROFILES_PER_DAY", 50); err != nil {
		return nil, err
	}
	if cfg.MaxProfilesPerDay < 0 {
		return nil, fmt.Errorf("invalid MAX_PROFILES_PER_DAY %d: must not be negative", cfg.MaxProfilesPerDay)
	}
	switch cfg.RateLimitBackend {
	case BackendFile, BackendRedis:
	case BackendFirestore:
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("RATE_LIMIT_BACKEND=firestore requires GOOGLE_CLOUD_PROJECT")
		}
	default:
		return nil, fmt.Errorf("invalid RATE_LIMIT_BACKEND %q (use file, firestore or redis)", cfg.RateLimitBackend)
	}
	if cfg.RateLimitLocation, err = getLocation("RATE_LIMIT_TIMEZONE", "UTC"); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.MaxStoredRuns, err = getInt("MAX_STORED_RUNS", 500); err != nil {
		return nil, err
	}
	if cfg.ScrapeIntervalMinutes, err = getInt("SCRAPE_INTERVAL_MINUTES", 0); err != nil {
		return nil, err
	}
	if cfg.SchedulerLocation, err = getLocation("SCHEDULER_TIMEZONE", "America/New_York"); err != nil {
		return nil, err
	}
	if cfg.RunOnStartup, err = getBool("RUN_ON_STARTUP", true); err != nil {
		return nil, err
	}
	if cfg.RunTimeout, err = getDuration("RUN_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RunTimeout <= 0 {
		return nil, fmt.Errorf("invalid RUN_TIMEOUT %s: must be positive", cfg.RunTimeout)
	}
	if cfg.LogLevel, err = getLevel("LOG_LEVEL", slog.LevelInfo); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadActorInput() (ActorInput, error) {
	var in ActorInput
	var err error
	if in.MaxPosts, err = getInt("MAX_POSTS", 5); err != nil {
		return in, err
	}
	if in.IncludeQuotePosts, err = getBool("INCLUDE_QUOTE_POSTS", true); err != nil {
		return in, err
	}
	if in.IncludeReposts, err = getBool("INCLUDE_REPOSTS", false); err != nil {
		return in, err
	}
	if in.ScrapeReactions, err = getBool("SCRAPE_REACTIONS", false); err != nil {
		return in, err
	}
	if in.MaxReactions, err = getInt("MAX_REACTIONS", 5); err != nil {
		return in, err
	}
	if in.ScrapeComments, err = getBool("SCRAPE_COMMENTS", false); err != nil {
		return in, err
	}
	if in.MaxComments, err = getInt("MAX_COMMENTS", 5); err != nil {
		return in, err
	}
	return in, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}

func getLocation(key, fallback string) (*time.Location, error) {
	name := getEnv(key, fallback)
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, name, err)
	}
	return loc, nil
}

func getLevel(key string, fallback slog.Level) (slog.Level, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(v))); err != nil {
		return fallback, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return level, nil
}
