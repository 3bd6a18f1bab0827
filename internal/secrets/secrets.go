// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads credentials from a directory of plain-text files.
// Each file is one secret: the filename is the key name and the trimmed
// contents are the value.
//
// Supported key files: openai-api-key, redis-password.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/pdiddy/analog-engine/internal/logging"
	"github.com/pdiddy/analog-engine/pkg/types"
)

// Key file names.
const (
	OpenAIAPIKey  = "openai-api-key"
	RedisPassword = "redis-password"
)

// Load reads all files in dir and returns a map of filename to trimmed
// contents. A missing directory yields an empty map. Unreadable files are
// logged and skipped.
func Load(fs afero.Fs, dir string, logger *zap.Logger) (map[string]string, error) {
	log := logging.OrNop(logger)
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := afero.ReadFile(fs, filepath.Join(dir, name))
		if err != nil {
			log.Warn("could not read secret", zap.String("name", name), zap.Error(err))
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Apply copies secrets into cfg where the config leaves them empty. Values
// from the config file or environment win.
func Apply(s map[string]string, cfg *types.PipelineConfig) {
	if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider == types.ProviderOpenAI {
		cfg.Embedding.APIKey = s[OpenAIAPIKey]
	}
	if cfg.Embedding.RedisPassword == "" {
		cfg.Embedding.RedisPassword = s[RedisPassword]
	}
}
