package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for our application
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Session / lock configuration
	Session SessionConfig

	// Payment adapters
	STK    STKConfig
	Hosted HostedConfig

	// Messaging platform
	Messaging MessagingConfig

	// Ticket delivery fan-out (spec §4.8)
	Kafka KafkaConfig

	// Logging
	LogLevel string

	// MaxQuantity bounds a single booking's ticket count (spec §6).
	MaxQuantity int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string
}

// SessionConfig governs the conversation Session Store TTL (spec §4.2), set
// by SESSION_TTL. It does not govern Lock Registry TTLs: the conversation
// controller acquires its quantity-step lock with a fixed 10-minute TTL.
type SessionConfig struct {
	TTL time.Duration
}

// STKConfig holds Mobile-STK payment adapter credentials (spec §4.5).
type STKConfig struct {
	PublishableKey string
	SecretKey      string
	IsTest         bool
}

// HostedConfig holds Hosted-Redirect payment adapter credentials (spec §4.6).
type HostedConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	CallbackURL    string
}

// MessagingConfig holds the outbound messaging-platform credentials (spec §6)
// and the inbound webhook verification secret.
type MessagingConfig struct {
	BaseURL     string
	AccessToken string
	PhoneID     string
	VerifyToken string
	BotPhone    string
}

// KafkaConfig holds the broker list for the Ticket Issuer's delivery topic
// (spec §4.8).
type KafkaConfig struct {
	Brokers []string
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		// Server configuration
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		// Database configuration
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "ticketconcierge_db"),
			User:     getEnv("DB_USER", "ticketconcierge_user"),
			Password: getEnv("DB_PASSWORD", "ticketconcierge_password"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},

		// Redis configuration
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},

		// Session Store TTL in seconds (the lock TTL is not read from here)
		Session: SessionConfig{
			TTL: getDurationEnvSeconds("SESSION_TTL", 600*time.Second),
		},

		STK: STKConfig{
			PublishableKey: getEnv("STK_PUBLISHABLE_KEY", ""),
			SecretKey:      getEnv("STK_SECRET_KEY", ""),
			IsTest:         getBoolEnv("STK_IS_TEST", true),
		},

		Hosted: HostedConfig{
			BaseURL:        getEnv("HOSTED_BASE_URL", ""),
			ConsumerKey:    getEnv("HOSTED_CONSUMER_KEY", ""),
			ConsumerSecret: getEnv("HOSTED_CONSUMER_SECRET", ""),
			CallbackURL:    getEnv("HOSTED_CALLBACK_URL", ""),
		},

		Messaging: MessagingConfig{
			BaseURL:     getEnv("MESSAGING_BASE_URL", "https://graph.facebook.com/v19.0"),
			AccessToken: getEnv("MESSAGING_ACCESS_TOKEN", ""),
			PhoneID:     getEnv("MESSAGING_PHONE_ID", ""),
			VerifyToken: getEnv("MESSAGING_VERIFY_TOKEN", ""),
			BotPhone:    getEnv("BOT_PHONE", ""),
		},

		Kafka: KafkaConfig{
			Brokers: getSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		},

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		MaxQuantity: getIntEnv("MAX_QUANTITY", 5),
	}

	// Build composite values
	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getDurationEnvSeconds gets an environment variable as seconds (int) and converts to time.Duration
func getDurationEnvSeconds(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// getSliceEnv gets a comma-separated environment variable with a fallback value
func getSliceEnv(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}
