// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Provider identifies a completion API backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// AIConfig holds settings for the completion API.
type AIConfig struct {
	// Provider selects the backend: openai, anthropic, or gemini.
	Provider Provider `json:"provider" yaml:"provider" mapstructure:"provider" validate:"oneof=openai anthropic gemini"`

	// Model is the model identifier (e.g. "gpt-3.5-turbo").
	Model string `json:"model" yaml:"model" mapstructure:"model" validate:"required"`

	// APIKey is the authentication key. Usually supplied through .secrets/
	// or the environment rather than the config file.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the OpenAI-compatible endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url" validate:"omitempty,url"`

	// Timeout bounds a single completion request (default 60s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`

	// MaxTokens caps the completion length (default 2048).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens" validate:"gt=0"`

	// Temperature is the sampling temperature. Nil leaves the provider default.
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" mapstructure:"temperature" validate:"omitempty,gte=0,lte=2"`

	// MaxRetries is the number of extra attempts per record after a failed
	// extraction (default 0: a failed record is skipped immediately).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0"`

	// RateLimitRetries is the number of retries on HTTP 429 for the OpenAI
	// backend (default 0).
	RateLimitRetries int `json:"rate_limit_retries" yaml:"rate_limit_retries" mapstructure:"rate_limit_retries" validate:"gte=0"`
}

// SourceConfig names the input collections and the JSON keys of a record.
type SourceConfig struct {
	// Inputs are JSON array files (local paths or s3:// URIs), concatenated in order.
	Inputs []string `json:"inputs" yaml:"inputs" mapstructure:"inputs"`

	// IDField is the JSON key holding the record identifier (default "identifier").
	IDField string `json:"id_field" yaml:"id_field" mapstructure:"id_field" validate:"required"`

	// TextField is the JSON key of the primary text (default "text").
	TextField string `json:"text_field" yaml:"text_field" mapstructure:"text_field" validate:"required"`

	// AffiliationField is the JSON key of the affiliation text (default "affiliation").
	AffiliationField string `json:"affiliation_field" yaml:"affiliation_field" mapstructure:"affiliation_field" validate:"required"`
}

// CheckpointConfig holds settings for the result collection output.
type CheckpointConfig struct {
	// Output is the destination of the result collection (path or s3:// URI).
	Output string `json:"output" yaml:"output" mapstructure:"output"`

	// Every is the number of processed records between flushes (default 100).
	Every int `json:"every" yaml:"every" mapstructure:"every" validate:"gt=0"`

	// IDKey is the key the identifier is written under in each result.
	// Empty means the source IDField.
	IDKey string `json:"id_key,omitempty" yaml:"id_key,omitempty" mapstructure:"id_key"`
}

// StorageConfig holds settings for s3:// locations.
type StorageConfig struct {
	Region    string `json:"region" yaml:"region" mapstructure:"region"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" mapstructure:"endpoint" validate:"omitempty,url"`
	AccessKey string `json:"access_key,omitempty" yaml:"access_key,omitempty" mapstructure:"access_key"`
	SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty" mapstructure:"secret_key"`
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error (default info).
	Level string `json:"level" yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`

	// File, when set, receives logs through a rotating writer instead of stderr.
	File string `json:"file,omitempty" yaml:"file,omitempty" mapstructure:"file"`

	// MaxSizeMB is the size at which the log file rotates (default 50).
	MaxSizeMB int `json:"max_size_mb" yaml:"max_size_mb" mapstructure:"max_size_mb" validate:"gte=0"`

	// MaxBackups is the number of rotated files kept (default 3).
	MaxBackups int `json:"max_backups" yaml:"max_backups" mapstructure:"max_backups" validate:"gte=0"`
}

// MergePolicy decides how a resume run combines prior and new results.
type MergePolicy string

const (
	// MergeAppend concatenates prior and new results, keeping duplicates.
	MergeAppend MergePolicy = "append"

	// MergeReplace lets a new result replace prior results with the same identifier.
	MergeReplace MergePolicy = "replace"
)

// Config groups all settings for one invocation.
type Config struct {
	AI         AIConfig         `json:"ai" yaml:"ai" mapstructure:"ai"`
	Source     SourceConfig     `json:"source" yaml:"source" mapstructure:"source"`
	Checkpoint CheckpointConfig `json:"checkpoint" yaml:"checkpoint" mapstructure:"checkpoint"`
	Storage    StorageConfig    `json:"storage" yaml:"storage" mapstructure:"storage"`
	Log        LogConfig        `json:"log" yaml:"log" mapstructure:"log"`

	// Template is a built-in template name or a YAML template file path.
	Template string `json:"template" yaml:"template" mapstructure:"template" validate:"required"`

	// Ledger is the SQLite run ledger path. Empty disables the ledger.
	Ledger string `json:"ledger,omitempty" yaml:"ledger,omitempty" mapstructure:"ledger"`

	// Merge is the resume merge policy (default append).
	Merge MergePolicy `json:"merge" yaml:"merge" mapstructure:"merge" validate:"oneof=append replace"`
}

// ResultIDKey returns the key results are tagged with.
func (c Config) ResultIDKey() string {
	if c.Checkpoint.IDKey != "" {
		return c.Checkpoint.IDKey
	}
	return c.Source.IDField
}
