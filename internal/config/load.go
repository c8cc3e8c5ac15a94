package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and optionally a
// config file. Environment variables take precedence over values from the
// config file. Returns a populated Config struct or an error if
// loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file: config.yaml in the working directory.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// A missing config file is fine; env vars alone can carry the config.
	}

	// Environment variables: DOCFORGE_SERVER_PORT, DOCFORGE_DATABASE_URL, etc.
	v.SetEnvPrefix("DOCFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only surfaces keys viper already knows about during
	// Unmarshal, so keys without defaults must be bound explicitly.
	for _, key := range []string{
		"database.url",
		"llm.gemini_api_key",
		"object_store.endpoint",
		"object_store.access_key",
		"object_store.secret_key",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers default values so that only secrets and connection
// details have to be provided explicitly.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("llm.model_name", "gemini-2.0-flash")

	v.SetDefault("object_store.bucket", "docforge-artifacts")
	v.SetDefault("object_store.use_ssl", false)

	v.SetDefault("scheduler.stage_concurrency", 4)
	v.SetDefault("scheduler.batch_concurrency", 3)
	v.SetDefault("scheduler.max_running_batches", 1)
	v.SetDefault("scheduler.document_stale_age", 30*time.Minute)
	v.SetDefault("scheduler.batch_stale_age", 2*time.Hour)
	v.SetDefault("scheduler.retention", 7*24*time.Hour)
	v.SetDefault("scheduler.sweep_interval", 5*time.Minute)
}
