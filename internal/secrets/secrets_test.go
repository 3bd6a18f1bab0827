// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/analog-engine/pkg/types"
)

const dir = "/secrets"

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, fs afero.Fs)
		want  map[string]string
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T, fs afero.Fs) {
				writeFile(t, fs, OpenAIAPIKey, "  sk_abc123  \n")
				writeFile(t, fs, RedisPassword, "hunter2\n")
			},
			want: map[string]string{
				OpenAIAPIKey:  "sk_abc123",
				RedisPassword: "hunter2",
			},
		},
		{
			name:  "returns empty map for nonexistent directory",
			setup: func(t *testing.T, fs afero.Fs) {},
			want:  map[string]string{},
		},
		{
			name: "skips empty files",
			setup: func(t *testing.T, fs afero.Fs) {
				writeFile(t, fs, OpenAIAPIKey, "valid-key")
				writeFile(t, fs, "empty-key", "")
				writeFile(t, fs, "whitespace-only", "   \n\t  ")
			},
			want: map[string]string{OpenAIAPIKey: "valid-key"},
		},
		{
			name: "skips dotfiles",
			setup: func(t *testing.T, fs afero.Fs) {
				writeFile(t, fs, ".gitkeep", "")
				writeFile(t, fs, ".hidden-key", "secret")
				writeFile(t, fs, RedisPassword, "pw")
			},
			want: map[string]string{RedisPassword: "pw"},
		},
		{
			name: "skips subdirectories",
			setup: func(t *testing.T, fs afero.Fs) {
				writeFile(t, fs, OpenAIAPIKey, "sk_123")
				require.NoError(t, fs.MkdirAll(filepath.Join(dir, "subdir"), 0o755))
			},
			want: map[string]string{OpenAIAPIKey: "sk_123"},
		},
		{
			name: "returns empty map for empty directory",
			setup: func(t *testing.T, fs afero.Fs) {
				require.NoError(t, fs.MkdirAll(dir, 0o755))
			},
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			tt.setup(t, fs)
			got, err := Load(fs, dir, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApply(t *testing.T) {
	s := map[string]string{OpenAIAPIKey: "sk_file", RedisPassword: "pw_file"}

	t.Run("fills empty openai key", func(t *testing.T) {
		cfg := types.DefaultPipelineConfig()
		cfg.Embedding.Provider = types.ProviderOpenAI
		Apply(s, &cfg)
		assert.Equal(t, "sk_file", cfg.Embedding.APIKey)
		assert.Equal(t, "pw_file", cfg.Embedding.RedisPassword)
	})

	t.Run("configured values win", func(t *testing.T) {
		cfg := types.DefaultPipelineConfig()
		cfg.Embedding.Provider = types.ProviderOpenAI
		cfg.Embedding.APIKey = "sk_env"
		cfg.Embedding.RedisPassword = "pw_env"
		Apply(s, &cfg)
		assert.Equal(t, "sk_env", cfg.Embedding.APIKey)
		assert.Equal(t, "pw_env", cfg.Embedding.RedisPassword)
	})

	t.Run("local providers get no api key", func(t *testing.T) {
		cfg := types.DefaultPipelineConfig()
		Apply(s, &cfg)
		assert.Empty(t, cfg.Embedding.APIKey)
	})
}

func writeFile(t *testing.T, fs afero.Fs, name, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, name), []byte(content), 0o644))
}
