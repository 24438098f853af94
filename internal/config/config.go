// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported DB_TYPE values
const (
	DBMongo    = "mongo"
	DBPostgres = "postgres"
	DBMemory   = "memory"
)

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Port           int
	Host           string
	MetricsEnabled bool
	RequestTimeout time.Duration
	PageSize       int
	SearchLimit    int
	MaxUploadBytes int64
}

// DatabaseConfig holds database configuration settings
type DatabaseConfig struct {
	Type       string // "mongo", "postgres" or "memory"
	URI        string
	Name       string // Mongo database name
	Host       string
	Port       int
	User       string
	Password   string
	SSLMode    string
	CASRetries int
}

// AuthConfig holds identity provider settings
type AuthConfig struct {
	JWTSecret  string
	SessionTTL time.Duration
	CookieName string
}

// RedisConfig configures the optional cross-instance event relay.
// An empty Addr disables the relay.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config holds the complete application configuration
type Config struct {
	Server         *ServerConfig
	Database       *DatabaseConfig
	Auth           *AuthConfig
	Redis          *RedisConfig
	AllowedOrigins []string
	Debug          bool
}

// DefaultConfig provides default server settings
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Port:           8080,
		Host:           "0.0.0.0",
		MetricsEnabled: true,
		RequestTimeout: 5 * time.Second,
		PageSize:       10,
		SearchLimit:    10,
		MaxUploadBytes: 10 << 20,
	}
}

// DefaultDatabaseConfig provides default database settings
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Type:       DBMongo,
		URI:        "mongodb://localhost:27017",
		Name:       "gator_overflow",
		Port:       5432,
		SSLMode:    "require",
		CASRetries: 5,
	}
}

// DefaultAuthConfig provides default identity settings
func DefaultAuthConfig() *AuthConfig {
	return &AuthConfig{
		JWTSecret:  "gatoroverflow_secret_key_should_be_loaded_from_env",
		SessionTTL: 24 * time.Hour,
		CookieName: "gator_session",
	}
}

// LoadConfig loads configuration from environment variables and applies defaults
func LoadConfig() (*Config, error) {
	// Try to load .env file from multiple possible locations
	envLocations := []string{
		".env",       // Current directory
		"../../.env", // Project root when running from cmd/engine
		filepath.Join(os.Getenv("GOPATH"), "src/gator-overflow/.env"),
	}
	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			break
		}
	}

	serverConfig := DefaultConfig()

	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", portStr, err)
		}
		serverConfig.Port = port
	}

	if host := os.Getenv("HOST"); host != "" {
		serverConfig.Host = host
	}

	if metricsEnabled := os.Getenv("METRICS_ENABLED"); metricsEnabled != "" {
		serverConfig.MetricsEnabled = metricsEnabled == "true"
	}

	var err error
	if serverConfig.RequestTimeout, err = durationFromEnv("REQUEST_TIMEOUT", serverConfig.RequestTimeout); err != nil {
		return nil, err
	}
	if serverConfig.PageSize, err = positiveIntFromEnv("PAGE_SIZE", serverConfig.PageSize); err != nil {
		return nil, err
	}
	if serverConfig.SearchLimit, err = positiveIntFromEnv("SEARCH_LIMIT", serverConfig.SearchLimit); err != nil {
		return nil, err
	}
	maxUpload, err := positiveIntFromEnv("MAX_UPLOAD_BYTES", int(serverConfig.MaxUploadBytes))
	if err != nil {
		return nil, err
	}
	serverConfig.MaxUploadBytes = int64(maxUpload)

	dbConfig, err := loadDatabaseConfig()
	if err != nil {
		return nil, err
	}

	authConfig := DefaultAuthConfig()
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		authConfig.JWTSecret = secret
	} else {
		log.Println("Warning: JWT_SECRET not set, using the built-in development secret")
	}
	if authConfig.SessionTTL, err = durationFromEnv("SESSION_TTL", authConfig.SessionTTL); err != nil {
		return nil, err
	}
	authConfig.CookieName = getEnvOrDefault("SESSION_COOKIE", authConfig.CookieName)

	redisConfig := &RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
	}
	if raw := os.Getenv("REDIS_DB"); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		redisConfig.DB = db
	}

	config := &Config{
		Server:         serverConfig,
		Database:       dbConfig,
		Auth:           authConfig,
		Redis:          redisConfig,
		AllowedOrigins: []string{"*"},
		Debug:          false,
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = strings.Split(origins, ",")
	}

	if debug := os.Getenv("DEBUG"); debug == "true" {
		config.Debug = true
	}

	return config, nil
}

func loadDatabaseConfig() (*DatabaseConfig, error) {
	dbConfig := DefaultDatabaseConfig()

	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		dbConfig.Type = strings.ToLower(dbType)
	}

	retries, err := positiveIntFromEnv("STORE_CAS_RETRIES", dbConfig.CASRetries)
	if err != nil {
		return nil, err
	}
	dbConfig.CASRetries = retries

	switch dbConfig.Type {
	case DBMongo:
		dbConfig.URI = getEnvOrDefault("MONGO_URI", dbConfig.URI)
		dbConfig.Name = getEnvOrDefault("MONGO_DB", dbConfig.Name)

	case DBPostgres:
		// Prioritize DATABASE_URL if provided
		if uri := os.Getenv("DATABASE_URL"); uri != "" {
			dbConfig.URI = uri
			dbConfig.SSLMode = getSSLModeFromURI(uri)
			break
		}

		dbConfig.Host = getEnvOrDefault("DB_HOST", "localhost")
		if portStr := os.Getenv("DB_PORT"); portStr != "" {
			if port, err := strconv.Atoi(portStr); err == nil {
				dbConfig.Port = port
			}
		}

		dbConfig.User = os.Getenv("DB_USER")
		if dbConfig.User == "" {
			return nil, fmt.Errorf("DB_USER environment variable is required when DB_TYPE is postgres and DATABASE_URL is not set")
		}
		dbConfig.Password = os.Getenv("DB_PASSWORD")
		if dbConfig.Password == "" {
			return nil, fmt.Errorf("DB_PASSWORD environment variable is required when DB_TYPE is postgres and DATABASE_URL is not set")
		}
		dbConfig.Name = getEnvOrDefault("DB_NAME", "postgres")
		dbConfig.SSLMode = getEnvOrDefault("DB_SSL_MODE", "require")

		dbConfig.URI = fmt.Sprintf(
			"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
			dbConfig.User,
			dbConfig.Password,
			dbConfig.Host,
			dbConfig.Port,
			dbConfig.Name,
			dbConfig.SSLMode,
		)

	case DBMemory:
		log.Println("Warning: DB_TYPE=memory, nothing will survive a restart")

	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q (want %s, %s or %s)", dbConfig.Type, DBMongo, DBPostgres, DBMemory)
	}

	return dbConfig, nil
}

// Helper function to get environment variable with default fallback
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func positiveIntFromEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, raw)
	}
	return v, nil
}

func durationFromEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, raw)
	}
	return d, nil
}

// Helper function to extract sslmode from a DSN, defaults to "require"
func getSSLModeFromURI(uri string) string {
	parts := strings.SplitN(uri, "?", 2)
	if len(parts) == 2 {
		for _, param := range strings.Split(parts[1], "&") {
			kv := strings.SplitN(param, "=", 2)
			if len(kv) == 2 && kv[0] == "sslmode" {
				return kv[1]
			}
		}
	}
	return "require"
}
