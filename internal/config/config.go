package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	DriverCouchDB = "couchdb"
	DriverSQLite  = "sqlite"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	WebSocket WebSocketConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Logging   LoggingConfig
	Cleanup   CleanupConfig
	MQTT      MQTTConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string

	// SQLite only.
	Path        string
	WALMode     bool
	BusyTimeout int
}

type JWTConfig struct {
	Secret                 string
	Expiration             time.Duration
	RefreshTokenExpiration time.Duration
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxConnPerUser  int
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Enabled           bool
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// CleanupConfig drives the stale device sweep.
type CleanupConfig struct {
	Enabled    bool
	Schedule   string
	StaleAfter time.Duration
	Timeout    time.Duration
}

type MQTTConfig struct {
	Enabled     bool
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         int
}

func Load() (*Config, error) {
	godotenv.Load()

	jwtExp, err := getEnvAsDuration("JWT_EXPIRATION", "15m")
	if err != nil {
		return nil, err
	}

	refreshExp, err := getEnvAsDuration("REFRESH_TOKEN_EXPIRATION", "168h")
	if err != nil {
		return nil, err
	}

	staleAfter, err := getEnvAsDuration("CLEANUP_STALE_AFTER", "24h")
	if err != nil {
		return nil, err
	}

	cleanupTimeout, err := getEnvAsDuration("CLEANUP_TIMEOUT", "5m")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "3000"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Driver:      strings.ToLower(getEnv("DB_DRIVER", DriverCouchDB)),
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5984"),
			User:        getEnv("DB_USER", "admin"),
			Password:    getEnv("DB_PASSWORD", "password"),
			Name:        getEnv("DB_NAME", "devicehub"),
			Path:        getEnv("DB_PATH", "./data/devicehub.db"),
			WALMode:     getEnvAsBool("DB_WAL_MODE", true),
			BusyTimeout: getEnvAsInt("DB_BUSY_TIMEOUT", 5),
		},
		JWT: JWTConfig{
			Secret:                 getEnv("JWT_SECRET", "dev-secret-change-in-production"),
			Expiration:             jwtExp,
			RefreshTokenExpiration: refreshExp,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 1024),
			MaxMessageSize:  int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 4096)),
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
			PingPeriod:      54 * time.Second,
			MaxConnPerUser:  getEnvAsInt("WS_MAX_CONN_PER_USER", 5),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 100),
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PATCH,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Cleanup: CleanupConfig{
			Enabled:    getEnvAsBool("CLEANUP_ENABLED", true),
			Schedule:   getEnv("CLEANUP_SCHEDULE", "0 * * * *"),
			StaleAfter: staleAfter,
			Timeout:    cleanupTimeout,
		},
		MQTT: MQTTConfig{
			Enabled:     getEnvAsBool("MQTT_ENABLED", false),
			BrokerURL:   getEnv("MQTT_BROKER_URL", "tcp://localhost:1883"),
			ClientID:    getEnv("MQTT_CLIENT_ID", "device-hub-server"),
			Username:    getEnv("MQTT_USERNAME", ""),
			Password:    getEnv("MQTT_PASSWORD", ""),
			TopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "devicehub"),
			QoS:         getEnvAsInt("MQTT_QOS", 1),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverCouchDB, DriverSQLite:
	default:
		return fmt.Errorf("invalid DB_DRIVER %q: must be %q or %q", c.Database.Driver, DriverCouchDB, DriverSQLite)
	}

	if _, err := cron.ParseStandard(c.Cleanup.Schedule); err != nil {
		return fmt.Errorf("invalid CLEANUP_SCHEDULE: %w", err)
	}

	if c.Cleanup.StaleAfter <= 0 {
		return fmt.Errorf("invalid CLEANUP_STALE_AFTER: must be positive")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid MQTT_QOS: must be 0, 1 or 2")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
