// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pdiddy/pubmed-extract/internal/llm"
	"github.com/pdiddy/pubmed-extract/pkg/types"
)

func setDefaults() {
	viper.SetDefault("ai.provider", string(types.ProviderOpenAI))
	viper.SetDefault("ai.model", "")
	viper.SetDefault("ai.api_key", "")
	viper.SetDefault("ai.base_url", "")
	viper.SetDefault("ai.timeout", 60*time.Second)
	viper.SetDefault("ai.max_tokens", 2048)
	viper.SetDefault("ai.max_retries", 0)
	viper.SetDefault("ai.rate_limit_retries", 0)
	// No default: an unset temperature leaves the provider default.
	_ = viper.BindEnv("ai.temperature", "PUBMED_EXTRACT_AI_TEMPERATURE")

	viper.SetDefault("source.inputs", []string{})
	viper.SetDefault("source.id_field", "identifier")
	viper.SetDefault("source.text_field", "text")
	viper.SetDefault("source.affiliation_field", "affiliation")

	viper.SetDefault("checkpoint.output", "")
	viper.SetDefault("checkpoint.every", 100)
	viper.SetDefault("checkpoint.id_key", "")

	viper.SetDefault("storage.region", "")
	viper.SetDefault("storage.endpoint", "")
	viper.SetDefault("storage.access_key", "")
	viper.SetDefault("storage.secret_key", "")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "")
	viper.SetDefault("log.max_size_mb", 50)
	viper.SetDefault("log.max_backups", 3)

	viper.SetDefault("template", "exposures")
	viper.SetDefault("ledger", "")
	viper.SetDefault("merge", string(types.MergeAppend))
}

// bindFlags binds the named flags of cmd to config keys. Binding happens
// per invocation because several commands share a key.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for flag, key := range keys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			return fmt.Errorf("internal: no flag %q on %s", flag, cmd.Name())
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// rootFlagKeys maps persistent flags to config keys.
var rootFlagKeys = map[string]string{
	"log-level": "log.level",
	"log-file":  "log.file",
}

// loadConfig decodes and validates the effective configuration.
func loadConfig() (types.Config, error) {
	var cfg types.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decoding configuration: %w", err)
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = llm.DefaultModel(cfg.AI.Provider)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return types.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the structured logger. With a log file the output goes
// through a rotating writer, which the returned function closes.
func newLogger(cfg types.LogConfig, stderr io.Writer) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	w := stderr
	closeFn := func() {}
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		w = lj
		closeFn = func() { _ = lj.Close() }
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closeFn, nil
}

// setup binds flags, loads the configuration and installs the logger. The
// returned function releases the log file.
func setup(cmd *cobra.Command, keys map[string]string) (types.Config, *slog.Logger, func(), error) {
	if err := bindFlags(cmd, rootFlagKeys); err != nil {
		return types.Config{}, nil, nil, err
	}
	if err := bindFlags(cmd, keys); err != nil {
		return types.Config{}, nil, nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return types.Config{}, nil, nil, err
	}
	logger, closeLog, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return types.Config{}, nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, closeLog, nil
}
