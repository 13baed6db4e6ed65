package gatekit

import (
	"encoding/base64"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Connections holds the external endpoints read from the environment.
// The engine never dials these itself: the embedder uses them to build
// the bun, redis, and amqp clients handed to the builder.
type Connections struct {
	DatabaseURL string
	RedisAddr   string
	AMQPURL     string
}

// LoadEnvConnections loads .env files (if any exist at the given paths)
// and reads DATABASE_URL, REDIS_ADDR and AMQP_URL. Unset variables come
// back empty; the embedder decides which backends are mandatory.
func LoadEnvConnections(paths ...string) (Connections, error) {
	if err := loadDotenv(paths); err != nil {
		return Connections{}, err
	}
	return Connections{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		AMQPURL:     os.Getenv("AMQP_URL"),
	}, nil
}

// LoadEnvConfig loads .env files (if any exist at the given paths) and
// overlays GATEKIT_* environment variables on top of the default config.
// Unset variables leave the default untouched; malformed values are the
// only error cause besides an unreadable .env file.
func LoadEnvConfig(paths ...string) (Config, error) {
	if err := loadDotenv(paths); err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()

	if v := os.Getenv("GATEKIT_JWT_SIGNING_METHOD"); v != "" {
		cfg.JWT.SigningMethod = v
	}
	if v := os.Getenv("GATEKIT_JWT_ISSUER"); v != "" {
		cfg.JWT.Issuer = v
	}
	if v := os.Getenv("GATEKIT_JWT_PRIVATE_KEY"); v != "" {
		key, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return Config{}, err
		}
		cfg.JWT.PrivateKey = key
	}
	if v := os.Getenv("GATEKIT_JWT_PUBLIC_KEY"); v != "" {
		key, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return Config{}, err
		}
		cfg.JWT.PublicKey = key
	}

	var err error
	if cfg.JWT.AccessTTL, err = envDuration("GATEKIT_JWT_ACCESS_TTL", cfg.JWT.AccessTTL); err != nil {
		return Config{}, err
	}
	if cfg.JWT.RefreshTTL, err = envDuration("GATEKIT_JWT_REFRESH_TTL", cfg.JWT.RefreshTTL); err != nil {
		return Config{}, err
	}
	if cfg.Session.TTL, err = envDuration("GATEKIT_SESSION_TTL", cfg.Session.TTL); err != nil {
		return Config{}, err
	}
	if cfg.Device.BlockThreshold, err = envInt("GATEKIT_DEVICE_BLOCK_THRESHOLD", cfg.Device.BlockThreshold); err != nil {
		return Config{}, err
	}
	if cfg.Audit.Enabled, err = envBool("GATEKIT_AUDIT_ENABLED", cfg.Audit.Enabled); err != nil {
		return Config{}, err
	}
	if cfg.Metrics.Enabled, err = envBool("GATEKIT_METRICS_ENABLED", cfg.Metrics.Enabled); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadDotenv(paths []string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return err
		}
	}
	return nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	return time.ParseDuration(v)
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}
