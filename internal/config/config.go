package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	InMemory          bool          `mapstructure:"IN_MEMORY"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	EncryptionKey     string        `mapstructure:"ENCRYPTION_KEY"`
	JWTSecret         string        `mapstructure:"JWT_SECRET"`
	JWTTTLMinutes     int           `mapstructure:"JWT_TTL_MINUTES"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	StreamIdleTimeout time.Duration `mapstructure:"STREAM_IDLE_TIMEOUT"`
	StreamSendTimeout time.Duration `mapstructure:"STREAM_SEND_TIMEOUT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("IN_MEMORY", false)
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("JWT_TTL_MINUTES", 60)
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("STREAM_IDLE_TIMEOUT", 30*time.Minute)
	v.SetDefault("STREAM_SEND_TIMEOUT", 5*time.Second)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("IN_MEMORY")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("ENCRYPTION_KEY")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("JWT_TTL_MINUTES")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("STREAM_IDLE_TIMEOUT")
	v.BindEnv("STREAM_SEND_TIMEOUT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" && !cfg.InMemory {
		return nil, fmt.Errorf("DATABASE_URL is required (or set IN_MEMORY=true)")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Unauthenticated requests are granted doctor access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// JWTTTL returns the access token lifetime.
func (c *Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLMinutes) * time.Minute
}

// Validate checks that the configuration is safe to run. In production the
// encryption key is mandatory: without it, ciphertext written by a previous
// process would become permanently undecryptable after a restart. When a key
// is supplied in any mode it must be a valid 64-character hex string encoding
// a 32-byte AES-256 key.
func (c *Config) Validate() error {
	if c.IsProduction() && c.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required in production")
	}
	if c.EncryptionKey != "" {
		keyBytes, err := hex.DecodeString(c.EncryptionKey)
		if err != nil {
			return fmt.Errorf("ENCRYPTION_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
		}
	}

	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}

	if c.JWTTTLMinutes <= 0 {
		return fmt.Errorf("JWT_TTL_MINUTES must be positive, got %d", c.JWTTTLMinutes)
	}

	if c.StreamSendTimeout <= 0 {
		return fmt.Errorf("STREAM_SEND_TIMEOUT must be positive, got %s", c.StreamSendTimeout)
	}

	// A zero idle timeout would make the stream hub's reaper treat every
	// subscriber as idle and drop it on the first tick.
	if c.StreamIdleTimeout <= 0 {
		return fmt.Errorf("STREAM_IDLE_TIMEOUT must be positive, got %s", c.StreamIdleTimeout)
	}

	return nil
}
