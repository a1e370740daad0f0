// Package cache provides the shared Redis client used as the fast cache
// for credential verification, session tokens, and rate-limiter state.
package cache

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns a configuration suitable for local development
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// LoadRedisConfigFromEnv loads Redis configuration from environment variables
func LoadRedisConfigFromEnv() *RedisConfig {
	config := DefaultRedisConfig()

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		config.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		config.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			config.DB = db
		}
	}
	if v := os.Getenv("REDIS_POOL_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil && size > 0 {
			config.PoolSize = size
		}
	}

	return config
}

// Validate checks the configuration for obvious mistakes
func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("redis address is required")
	}
	if c.DB < 0 {
		return errors.New("redis db must be non-negative")
	}
	if c.PoolSize <= 0 {
		return errors.New("redis pool size must be positive")
	}
	return nil
}
