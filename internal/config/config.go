package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	GeminiAPIKey        string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel         string        `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	TranslationTemp     float32       `envconfig:"TRANSLATION_TEMPERATURE" default:"0.6"`
	TranslationAttempts int           `envconfig:"TRANSLATION_ATTEMPTS" default:"3"`
	TranslationTimeout  time.Duration `envconfig:"TRANSLATION_TIMEOUT" default:"20s"`
	TranslationCacheTTL time.Duration `envconfig:"TRANSLATION_CACHE_TTL" default:"24h"`
	RedisURL            string        `envconfig:"REDIS_URL"`
	StoreDriver         string        `envconfig:"STORE_DRIVER" default:"memory"`
	DatabaseURL         string        `envconfig:"DATABASE_URL" default:"polyglot_chat.db"`
	HTTPPort            string        `envconfig:"HTTP_PORT" default:"8080"`
	LogLevel            string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat           string        `envconfig:"LOG_FORMAT" default:"console"`
	JWTSecret           string        `envconfig:"JWT_SECRET"`
	TokenTTL            time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
}

var AppConfig Config

// LoadConfig reads .env (when present) and the process environment into AppConfig.
// It reports whether a .env file was found so the caller can log it once logging is up.
func LoadConfig() (bool, error) {
	dotenvFound := godotenv.Load() == nil

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return dotenvFound, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return dotenvFound, err
	}

	AppConfig = cfg
	return dotenvFound, nil
}

// RequireServerSecrets checks the secrets only the HTTP server needs, so
// offline tasks such as a user import run without them.
func (c Config) RequireServerSecrets() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	return nil
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("STORE_DRIVER must be \"memory\" or \"sqlite\", got %q", c.StoreDriver)
	}
	if c.TranslationAttempts < 1 {
		return fmt.Errorf("TRANSLATION_ATTEMPTS must be at least 1, got %d", c.TranslationAttempts)
	}
	return nil
}
