package config

import (
	"os"
	"strconv"
)

// RemoteConfig selects and addresses the remote document store backing the
// sync engine.
type RemoteConfig struct {
	// Backend is "postgres" or "http".
	Backend string `yaml:"backend"`
	// URL is the base URL of the HTTP backend.
	URL string `yaml:"url"`
}

// DBConfig configures the postgres backend of the remote document store.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// MQConfig configures the settlement-event exchange.
type MQConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig configures the local snapshot cache and the dedup locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port string `yaml:"port"`
}

// OverrideDBFromEnv applies DB_* environment overrides.
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

// OverrideMQFromEnv applies the MQ_URL environment override.
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
}

// OverrideRedisFromEnv applies REDIS_* environment overrides.
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideRemoteFromEnv applies REMOTE_* environment overrides.
func OverrideRemoteFromEnv(cfg *RemoteConfig) {
	if backend := os.Getenv("REMOTE_BACKEND"); backend != "" {
		cfg.Backend = backend
	}
	if url := os.Getenv("REMOTE_URL"); url != "" {
		cfg.URL = url
	}
}

// OverrideServerFromEnv applies the SERVER_PORT environment override.
func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
}
