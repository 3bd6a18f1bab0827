// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/analog-engine/pkg/types"
)

const envPrefix = "ANALOG_ENGINE"

var validate = validator.New()

// configureEnv maps ANALOG_ENGINE_MATCH_MIN_CONFIDENCE style variables onto
// nested keys. AutomaticEnv only sees keys viper already knows, so every
// default is registered and the secret-bearing keys are bound explicitly.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v, types.DefaultPipelineConfig()); err != nil {
		panic(err)
	}
	for _, key := range []string{"embedding.api_key", "embedding.redis_password", "embedding.redis_addr"} {
		_ = v.BindEnv(key)
	}
}

// setDefaults registers every field of cfg as a viper default under its
// dotted key.
func setDefaults(v *viper.Viper, cfg types.PipelineConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("decoding default config: %w", err)
	}
	flatten("", tree, v.SetDefault)
	return nil
}

func flatten(prefix string, tree map[string]any, set func(string, any)) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			flatten(key, sub, set)
			continue
		}
		set(key, val)
	}
}

// loadConfig decodes the merged defaults, config file, environment and
// flags, then validates the result.
func loadConfig(v *viper.Viper) (types.PipelineConfig, error) {
	cfg := types.DefaultPipelineConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg types.PipelineConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	w := cfg.Match.Weights
	if sum := w.TextSimilarity + w.DomainDistance + w.MathContent + w.StructuralDepth; sum <= 0 {
		return fmt.Errorf("invalid config: match weights sum to %v", sum)
	}
	if cfg.Embedding.Provider == types.ProviderTEI && cfg.Embedding.BaseURL == "" {
		return fmt.Errorf("invalid config: embedding.base_url is required for the tei provider")
	}
	if cfg.Embedding.Cache == types.CacheRedis && cfg.Embedding.RedisAddr == "" {
		return fmt.Errorf("invalid config: embedding.redis_addr is required for the redis cache")
	}
	return nil
}

// flagKeyAnnotation marks a command flag as an override for a config key.
const flagKeyAnnotation = "analog-engine/config-key"

// bindFlag declares that flag on cmd overrides key. The binding is made by
// bindCommandFlags for the command that actually runs, so several commands
// can override the same key.
func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := cmd.Flags().SetAnnotation(flag, flagKeyAnnotation, []string{key}); err != nil {
		panic(err)
	}
}

func bindCommandFlags(v *viper.Viper, cmd *cobra.Command) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if keys := f.Annotations[flagKeyAnnotation]; len(keys) > 0 && err == nil {
			err = v.BindPFlag(keys[0], f)
		}
	})
	return err
}
