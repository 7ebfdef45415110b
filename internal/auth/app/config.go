package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer         string // Issuer claim for session tokens (default: walletgate)
	ExpectedDomain string // Optional: pin the sign-in message audience to a fixed host
	BaseURL        string // Public base URL used in verification links (default: http://localhost:8080)
	DatabaseFile   string // Path to SQLite database file (default: ./walletgate.db)
	SecretFile     string // Optional: path to file holding the server private key (tokens + link hashes)

	EthereumRPC         string // Optional: Ethereum JSON-RPC provider URL for name resolution
	EnableENSValidation bool   // Verify claimed ENS names against the chain (default: false)

	AllowRegistration        bool // Provision accounts for unknown wallets (default: true)
	RequireEmailVerification bool // Park new registrations behind email confirmation (default: false)
	RequireUsername          bool // Force a username choice when no ENS name is verified (default: false)

	SMTPAddr string // Optional: SMTP relay host:port; mail is logged when unset
	SMTPFrom string // Sender address for verification mail

	NonceTTL   time.Duration // Challenge lifetime (default: 5m)
	MessageTTL time.Duration // Max age of messages without an explicit expiry (default: 10m)
	SessionTTL time.Duration // Session token lifetime (default: 24h)
	PendingTTL time.Duration // Lifetime of parked sign-in attempts (default: 1h)
	LinkTTL    time.Duration // Verification link redemption window (default: 24h)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	AbandonedRetention   time.Duration // Retention for never-activated placeholder accounts (default: 168h)
}

func LoadConfig() Config {
	return Config{
		Issuer:         getEnvOrDefault("SIWE_ISSUER", "walletgate"),
		ExpectedDomain: os.Getenv("SIWE_EXPECTED_DOMAIN"),
		BaseURL:        getEnvOrDefault("SIWE_BASE_URL", "http://localhost:8080"),
		DatabaseFile:   getEnvOrDefault("SIWE_DATABASE_FILE", "walletgate.db"),
		SecretFile:     os.Getenv("SIWE_PRIVATE_KEY_FILE"),

		EthereumRPC:         os.Getenv("SIWE_ETH_PROVIDER_URL"),
		EnableENSValidation: getEnvBoolOrDefault("SIWE_ENABLE_ENS_VALIDATION", false),

		AllowRegistration:        getEnvBoolOrDefault("SIWE_ALLOW_REGISTRATION", true),
		RequireEmailVerification: getEnvBoolOrDefault("SIWE_REQUIRE_EMAIL_VERIFICATION", false),
		RequireUsername:          getEnvBoolOrDefault("SIWE_REQUIRE_ENS_OR_USERNAME", false),

		SMTPAddr: os.Getenv("SMTP_ADDR"),
		SMTPFrom: getEnvOrDefault("SMTP_FROM", "no-reply@localhost"),

		NonceTTL:   getEnvDurationOrDefault("SIWE_NONCE_TTL", 5*time.Minute),
		MessageTTL: getEnvDurationOrDefault("SIWE_MESSAGE_TTL", 10*time.Minute),
		SessionTTL: getEnvDurationOrDefault("SIWE_SESSION_TIMEOUT", 24*time.Hour),
		PendingTTL: getEnvDurationOrDefault("SIWE_PENDING_TTL", time.Hour),
		LinkTTL:    getEnvDurationOrDefault("SIWE_LINK_TIMEOUT", 24*time.Hour),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
		AbandonedRetention:   getEnvDurationOrDefault("SIWE_ABANDONED_RETENTION", 7*24*time.Hour),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
