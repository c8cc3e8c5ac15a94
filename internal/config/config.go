package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"       validate:"required"`
	Database    DatabaseConfig    `mapstructure:"database"     validate:"required"`
	LLM         LLMConfig         `mapstructure:"llm"          validate:"required"`
	ObjectStore ObjectStoreConfig `mapstructure:"object_store" validate:"required"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"    validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// LLMConfig contains all settings for the AI content generator.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name"     validate:"required"`
}

// ObjectStoreConfig contains settings for the artifact object store.
type ObjectStoreConfig struct {
	Endpoint  string `mapstructure:"endpoint"   validate:"required"`
	AccessKey string `mapstructure:"access_key" validate:"required"`
	SecretKey string `mapstructure:"secret_key" validate:"required"`
	Bucket    string `mapstructure:"bucket"     validate:"required"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// SchedulerConfig contains the tunables of the task orchestration core.
type SchedulerConfig struct {
	// StageConcurrency bounds how many document stages run at once
	// within a single pipeline.
	StageConcurrency int `mapstructure:"stage_concurrency" validate:"required,gte=1"`

	// BatchConcurrency bounds how many batch items run at once
	// within a single batch.
	BatchConcurrency int `mapstructure:"batch_concurrency" validate:"required,gte=1"`

	// MaxRunningBatches caps the number of batches executing concurrently
	// across the whole process. Submissions beyond the cap are rejected,
	// not queued.
	MaxRunningBatches int `mapstructure:"max_running_batches" validate:"required,gte=1"`

	// DocumentStaleAge is how long a document task may stay running before
	// the periodic sweep declares it timed out.
	DocumentStaleAge time.Duration `mapstructure:"document_stale_age" validate:"required"`

	// BatchStaleAge is the equivalent threshold for batch tasks and their
	// items. Batches are slower in aggregate, so this is typically larger.
	BatchStaleAge time.Duration `mapstructure:"batch_stale_age" validate:"required"`

	// Retention is how long terminal rows are kept before the sweep
	// hard-deletes them.
	Retention time.Duration `mapstructure:"retention" validate:"required"`

	// SweepInterval is how often the periodic self-healing sweep runs.
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"required"`
}
