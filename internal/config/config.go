package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Exchange API
	ExchangeBaseURL string
	ExchangeWSURL   string
	ExchangeAPIKey  string

	// Risk
	RiskLimitsPath string
	BankrollCents  int64

	// Signal timing
	DebounceSeconds int
	RunThresholds   []int

	// Breakers
	StalenessTimeout time.Duration
	LatencyCeiling   time.Duration
	WatchdogTimeout  time.Duration

	// Feed webhook server
	FeedAddr string

	// Persistence
	StorePath string

	// Status feed
	StatusFeedAddr string

	// Alerts
	DiscordWebhookURL string

	// Telemetry
	LogLevel string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ExchangeBaseURL: envStr("EXCHANGE_BASE_URL", "https://trading-api.example.com"),
		ExchangeWSURL:   envStr("EXCHANGE_WS_URL", "wss://trading-api.example.com/ws"),
		ExchangeAPIKey:  envStr("EXCHANGE_API_KEY", ""),

		RiskLimitsPath: envStr("RISK_LIMITS_PATH", "internal/config/risk_limits.yaml"),
		BankrollCents:  int64(envInt("BANKROLL_CENTS", 500000)),

		// Markets stay unsettled for a stretch after a scoring run; hold
		// new signals until the book has had time to reprice.
		DebounceSeconds: envInt("SIGNAL_DEBOUNCE_SEC", 12),
		RunThresholds:   []int{8, 10, 15},

		StalenessTimeout: time.Duration(envInt("FEED_STALENESS_SEC", 90)) * time.Second,
		LatencyCeiling:   time.Duration(envInt("DECISION_LATENCY_CEILING_MS", 250)) * time.Millisecond,
		WatchdogTimeout:  time.Duration(envInt("WATCHDOG_TIMEOUT_SEC", 30)) * time.Second,

		FeedAddr: envStr("FEED_ADDR", "127.0.0.1:8090"),

		StorePath: envStr("STORE_PATH", "data/courtside.db"),

		StatusFeedAddr: envStr("STATUS_FEED_ADDR", "127.0.0.1:8099"),

		DiscordWebhookURL: envStr("DISCORD_WEBHOOK_URL", ""),

		LogLevel: envStr("LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
