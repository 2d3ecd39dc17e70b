package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	MQNone     = "none"
	MQRabbitMQ = "rabbitmq"
	MQPubSub   = "pubsub"
)

type Config struct {
	Env        string
	LogLevel   string
	ServerPort int
	CORSOrigin string
	Database   DatabaseConfig
	Mongo      MongoConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	MQ         MQConfig
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type MongoConfig struct {
	URI      string
	Database string
}

type AuthConfig struct {
	JWTSecret        string
	TokenTTL         time.Duration
	BcryptCost       int
	AllowAdminSignup bool
}

// RateLimitConfig mirrors the per-IP windows applied to the /api tree.
type RateLimitConfig struct {
	Enabled        bool
	Window         time.Duration
	Max            int
	AuthWindow     time.Duration
	AuthMax        int
	RegisterWindow time.Duration
	RegisterMax    int
}

type MQConfig struct {
	Backend         string
	SecurityChannel string
	RabbitMQ        RabbitMQConfig
	PubSub          PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	PrefetchCount   int
	QueueDurable    bool
	QueueAutoDelete bool
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

// Debug reports whether internal error details may be returned to clients.
func (c Config) Debug() bool {
	return c.Env == EnvDevelopment
}

func LoadConfig() Config {
	if env := os.Getenv("ENV"); env == "dev" || env == EnvDevelopment {
		godotenv.Load()
	}

	env := getEnv("ENV", EnvProduction)
	if env == "dev" {
		env = EnvDevelopment
	}

	mongoURI := getEnv("MONGODB_URI", "mongodb://localhost:27017/express-api")

	return Config{
		Env:        env,
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		ServerPort: getEnvInt("SERVER_PORT", getEnvInt("PORT", 8080)),
		CORSOrigin: getEnv("CORS_ORIGIN", "*"),
		Database: DatabaseConfig{
			Driver:   strings.ToLower(getEnv("DB_DRIVER", DriverMongo)),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "userapi"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "userapi"),
			UseSSL:   getEnvBool("DB_USE_SSL", false),
		},
		Mongo: MongoConfig{
			URI:      mongoURI,
			Database: getEnv("MONGODB_DATABASE", mongoDatabaseFromURI(mongoURI)),
		},
		Auth: AuthConfig{
			JWTSecret:        strings.TrimSpace(getEnv("JWT_SECRET", "")),
			TokenTTL:         getEnvDuration("JWT_EXPIRES_IN", 7*24*time.Hour),
			BcryptCost:       getEnvInt("BCRYPT_COST", 12),
			AllowAdminSignup: getEnvBool("ALLOW_ADMIN_SIGNUP", false),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			Window:         getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
			Max:            getEnvInt("RATE_LIMIT_MAX", 100),
			AuthWindow:     getEnvDuration("AUTH_RATE_LIMIT_WINDOW", 15*time.Minute),
			AuthMax:        getEnvInt("AUTH_RATE_LIMIT_MAX", 5),
			RegisterWindow: getEnvDuration("REGISTER_RATE_LIMIT_WINDOW", time.Hour),
			RegisterMax:    getEnvInt("REGISTER_RATE_LIMIT_MAX", 3),
		},
		MQ: MQConfig{
			Backend:         strings.ToLower(getEnv("MQ_BACKEND", MQNone)),
			SecurityChannel: getEnv("SECURITY_EVENTS_CHANNEL", "security-events"),
			RabbitMQ: RabbitMQConfig{
				URL:             getEnv("RABBITMQ_URL", ""),
				PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
				QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
				QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			},
			PubSub: PubSubConfig{
				ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
				CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
				SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
			},
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.Atoi(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("15m") and whole days ("7d").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// ParseDuration extends time.ParseDuration with a "d" suffix for days.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(raw)
}

func mongoDatabaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "userapi"
	}
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return "userapi"
	}
	return name
}
