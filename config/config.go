package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Realtime RealtimeConfig
	Cache    CacheConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis
// entirely: room broadcast stays instance-local and the result cache falls
// back to memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RealtimeConfig holds connection-manager timing settings.
type RealtimeConfig struct {
	HeartbeatTimeout   time.Duration
	LivenessInterval   time.Duration
	MonitoringInterval time.Duration
	PingInterval       time.Duration
	PongWait           time.Duration
	SendBuffer         int
	ReadLimitBytes     int64
}

// CacheConfig holds analysis-result cache settings.
type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Realtime: RealtimeConfig{
			HeartbeatTimeout:   getEnvDuration("HEARTBEAT_TIMEOUT_SEC", 90),
			LivenessInterval:   getEnvDuration("LIVENESS_SWEEP_SEC", 30),
			MonitoringInterval: getEnvDuration("MONITORING_PUSH_SEC", 10),
			PingInterval:       getEnvDuration("PING_INTERVAL_SEC", 30),
			PongWait:           getEnvDuration("PONG_WAIT_SEC", 60),
			SendBuffer:         getEnvInt("SEND_BUFFER", 256),
			ReadLimitBytes:     int64(getEnvInt("READ_LIMIT_BYTES", 512*1024)),
		},
		Cache: CacheConfig{
			TTL:        getEnvDuration("CACHE_TTL_SEC", 300),
			MaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 1000),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallbackSec int) time.Duration {
	return time.Duration(getEnvInt(key, fallbackSec)) * time.Second
}
