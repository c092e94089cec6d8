// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys from a directory of plain-text files and
// from a .env file. Each file in the directory represents one secret: the
// filename is the key name and the file contents (trimmed) are the value.
//
// Supported key files: openai-api-key, anthropic-api-key, gemini-api-key,
// aws-access-key-id, aws-secret-access-key.
package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/pdiddy/pubmed-extract/pkg/types"
)

// ErrNoAPIKey is returned when no source provides a provider's key.
var ErrNoAPIKey = errors.New("no API key configured")

// Secrets maps key names to values.
type Secrets map[string]string

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files produce a warning but do not abort.
func Load(dir string) (Secrets, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Secrets{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(Secrets)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("could not read secret", "name", name, "error", err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// LoadEnv loads a .env file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// KeyFile returns the secrets file name holding the provider's API key.
func KeyFile(p types.Provider) string {
	switch p {
	case types.ProviderAnthropic:
		return "anthropic-api-key"
	case types.ProviderGemini:
		return "gemini-api-key"
	default:
		return "openai-api-key"
	}
}

// EnvVar returns the environment variable conventionally holding the
// provider's API key.
func EnvVar(p types.Provider) string {
	switch p {
	case types.ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case types.ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

// APIKey resolves the provider's key. An explicit (config) value wins, then
// the provider's environment variable, then the secrets file.
func (s Secrets) APIKey(p types.Provider, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if v := strings.TrimSpace(os.Getenv(EnvVar(p))); v != "" {
		return v, nil
	}
	if v := s[KeyFile(p)]; v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w for %s: set ai.api_key, %s, or .secrets/%s", ErrNoAPIKey, p, EnvVar(p), KeyFile(p))
}
