package config

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds application configuration from environment.
type Config struct {
	HTTPPort        string
	DatabaseDriver  string
	DatabaseURL     string
	DBPoolSize      int
	DBEnsureSchema  bool
	RedisURL        string // empty disables the list cache
	RedisPoolSize   int
	CacheTTL        int      // seconds
	KafkaBrokers    []string // empty disables change events
	KafkaTopic      string
	KafkaPartitions int
	KafkaGroupID    string
	LogLevel        string
}

var (
	cfg     *Config
	cfgOnce sync.Once
)

// Get returns the application config (loads once from env).
func Get() *Config {
	cfgOnce.Do(func() {
		cfg = Load()
	})
	return cfg
}

// Load reads the configuration from the current environment.
func Load() *Config {
	c := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		DatabaseDriver:  strings.ToLower(getEnv("DATABASE_DRIVER", DriverPostgres)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		DBPoolSize:      getIntEnv("DB_POOL_SIZE", 25),
		DBEnsureSchema:  getBoolEnv("DB_ENSURE_SCHEMA", true),
		RedisURL:        os.Getenv("REDIS_URL"),
		RedisPoolSize:   getIntEnv("REDIS_POOL_SIZE", 50),
		CacheTTL:        getIntEnv("CACHE_TTL_SEC", 300),
		KafkaBrokers:    getSliceEnv("KAFKA_BROKERS"),
		KafkaTopic:      getEnv("KAFKA_TODO_TOPIC", "todo-events"),
		KafkaPartitions: getIntEnv("KAFKA_PARTITIONS", 4),
		KafkaGroupID:    getEnv("KAFKA_GROUP_ID", "todo-cache-invalidator"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
	if c.DatabaseURL == "" && c.DatabaseDriver == DriverPostgres {
		c.DatabaseURL = postgresURLFromParts()
	}
	return c
}

// postgresURLFromParts assembles a DSN from DB_HOST, DB_PORT, DB_USER,
// DB_PASSWORD and DB_NAME. Returns "" when DB_HOST is unset.
func postgresURLFromParts() string {
	host := os.Getenv("DB_HOST")
	if host == "" {
		return ""
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(host, getEnv("DB_PORT", "5432")),
		Path:     "/" + os.Getenv("DB_NAME"),
		RawQuery: "sslmode=" + getEnv("DB_SSLMODE", "disable"),
	}
	if user := os.Getenv("DB_USER"); user != "" {
		if pw, ok := os.LookupEnv("DB_PASSWORD"); ok {
			u.User = url.UserPassword(user, pw)
		} else {
			u.User = url.User(user)
		}
	}
	return u.String()
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getSliceEnv(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
