package configs

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Origin   OriginConfig
	Cache    CacheConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Control  ControlConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	TLSCertFile  string
	TLSKeyFile   string
}

type OriginConfig struct {
	// Public is the origin clients see; only its URLs are intercepted.
	Public *url.URL
	// Upstream serves the site itself.
	Upstream *url.URL
	// Timeout bounds upstream requests; zero leaves them to the transport.
	Timeout time.Duration
}

type CacheBackend string

const (
	BackendMemory   CacheBackend = "memory"
	BackendRedis    CacheBackend = "redis"
	BackendPostgres CacheBackend = "postgres"
)

type CacheConfig struct {
	Backend               CacheBackend
	Prefix                string
	Manifest              []string
	FallbackOnServerError bool
	SkipWaitingOnInstall  bool
	// CompressThreshold is the body size from which stored entries are zstd-compressed.
	CompressThreshold int
}

type RedisConfig struct {
	Host         string
	Port         string
	Password     string
	DB           int
	ClusterAddrs []string
	KeyPrefix    string
	// Pool and timeout settings
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	DSN            string
	MigrationsPath string
	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type ControlConfig struct {
	// JWTSecret signs bearer tokens for the control API. Empty disables the protected routes.
	JWTSecret string
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	public, err := getURLEnv("PUBLIC_ORIGIN", "http://localhost:8080")
	if err != nil {
		return nil, err
	}
	upstream, err := getURLEnv("UPSTREAM_URL", "http://localhost:3000")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			TLSCertFile:  getEnv("TLS_CERT_FILE", ""),
			TLSKeyFile:   getEnv("TLS_KEY_FILE", ""),
		},
		Origin: OriginConfig{
			Public:   public,
			Upstream: upstream,
			Timeout:  getDurationEnv("UPSTREAM_TIMEOUT", 0),
		},
		Cache: CacheConfig{
			Backend:               CacheBackend(strings.ToLower(getEnv("CACHE_BACKEND", string(BackendMemory)))),
			Prefix:                getEnv("CACHE_PREFIX", "energy-monitor"),
			Manifest:              getListEnv("CACHE_MANIFEST", nil),
			FallbackOnServerError: getBoolEnv("CACHE_FALLBACK_ON_SERVER_ERROR", false),
			SkipWaitingOnInstall:  getBoolEnv("CACHE_SKIP_WAITING", true),
			CompressThreshold:     getIntEnv("CACHE_COMPRESS_THRESHOLD", 4096),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			ClusterAddrs: getListEnv("REDIS_CLUSTER_ADDRS", nil),
			KeyPrefix:    getEnv("REDIS_KEY_PREFIX", "offlinecache"),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolTimeout:  getDurationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
			IdleTimeout:  getDurationEnv("REDIS_IDLE_TIMEOUT", 5*time.Minute),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "offline_cache"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MigrationsPath:  getEnv("DB_MIGRATIONS_PATH", "./migrations"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Control: ControlConfig{
			JWTSecret: getEnv("CONTROL_JWT_SECRET", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	switch cfg.Cache.Backend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return nil, fmt.Errorf("unsupported CACHE_BACKEND %q", cfg.Cache.Backend)
	}

	// Build database DSN
	cfg.Database.DSN = fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.SSLMode,
	)

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getListEnv splits a comma separated value, dropping blanks.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getURLEnv(key, defaultValue string) (*url.URL, error) {
	raw := getEnv(key, defaultValue)
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid %s: %q must be an absolute URL", key, raw)
	}
	return u, nil
}
