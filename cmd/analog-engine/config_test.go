// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/analog-engine/pkg/types"
)

func newViper() *viper.Viper {
	v := viper.New()
	configureEnv(v)
	return v
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(newViper())
	require.NoError(t, err)
	assert.Equal(t, types.DefaultPipelineConfig(), cfg)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ANALOG_ENGINE_MATCH_MIN_CONFIDENCE", "0.6")
	t.Setenv("ANALOG_ENGINE_MATCH_WEIGHTS_TEXT_SIMILARITY", "0.7")
	t.Setenv("ANALOG_ENGINE_EMBEDDING_TIMEOUT", "5s")
	t.Setenv("ANALOG_ENGINE_EMBEDDING_API_KEY", "sk_env")

	cfg, err := loadConfig(newViper())
	require.NoError(t, err)
	assert.Equal(t, 0.6, cfg.Match.MinConfidence)
	assert.Equal(t, 0.7, cfg.Match.Weights.TextSimilarity)
	assert.Equal(t, 5*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, "sk_env", cfg.Embedding.APIKey)
}

func TestLoadConfig_File(t *testing.T) {
	v := newViper()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
match:
  scope: canonical
  workers: 8
dedup:
  registry_path: /tmp/pairs.json
`)))

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, types.ScopeCanonical, cfg.Match.Scope)
	assert.Equal(t, 8, cfg.Match.Workers)
	assert.Equal(t, "/tmp/pairs.json", cfg.Dedup.RegistryPath)
	assert.Equal(t, 0.35, cfg.Match.MinConfidence, "unset keys keep their defaults")
}

func TestLoadConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"confidence above one", map[string]string{"ANALOG_ENGINE_MATCH_MIN_CONFIDENCE": "1.5"}, "MinConfidence"},
		{"unknown scope", map[string]string{"ANALOG_ENGINE_MATCH_SCOPE": "nearby"}, "Scope"},
		{"unknown provider", map[string]string{"ANALOG_ENGINE_EMBEDDING_PROVIDER": "word2vec"}, "Provider"},
		{"tei without url", map[string]string{"ANALOG_ENGINE_EMBEDDING_PROVIDER": "tei"}, "base_url"},
		{"redis without addr", map[string]string{"ANALOG_ENGINE_EMBEDDING_CACHE": "redis"}, "redis_addr"},
		{"zero weights", map[string]string{
			"ANALOG_ENGINE_MATCH_WEIGHTS_TEXT_SIMILARITY":  "0",
			"ANALOG_ENGINE_MATCH_WEIGHTS_DOMAIN_DISTANCE":  "0",
			"ANALOG_ENGINE_MATCH_WEIGHTS_MATH_CONTENT":     "0",
			"ANALOG_ENGINE_MATCH_WEIGHTS_STRUCTURAL_DEPTH": "0",
		}, "weights"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, val := range tt.env {
				t.Setenv(k, val)
			}
			_, err := loadConfig(newViper())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBindCommandFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	cmd.Flags().Float64("min-confidence", 0, "")
	bindFlag(cmd, "match.min_confidence", "min-confidence")
	require.NoError(t, cmd.Flags().Set("min-confidence", "0.5"))

	v := newViper()
	require.NoError(t, bindCommandFlags(v, cmd))
	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Match.MinConfidence)
}
