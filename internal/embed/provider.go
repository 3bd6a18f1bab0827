// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	ollamaEmbed "github.com/cloudwego/eino-ext/components/embedding/ollama"
	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
	"go.uber.org/zap"

	"github.com/pdiddy/analog-engine/internal/httputil"
	"github.com/pdiddy/analog-engine/internal/logging"
	"github.com/pdiddy/analog-engine/pkg/types"
)

// DefaultOllamaURL is used when no base URL is configured for ollama.
const DefaultOllamaURL = "http://localhost:11434"

// NewProvider builds the embedder named by cfg.Provider.
func NewProvider(ctx context.Context, cfg types.EmbeddingConfig, logger *zap.Logger) (embedding.Embedder, error) {
	switch cfg.Provider {
	case types.ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		return ollamaEmbed.NewEmbedder(ctx, &ollamaEmbed.EmbeddingConfig{
			BaseURL: baseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})

	case types.ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embedding provider requires an API key")
		}
		return openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})

	case types.ProviderTEI:
		return NewTEI(TEIConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			UserAgent:  cfg.UserAgent,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		}, logger)

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}
}

// TEIConfig configures a Text Embeddings Inference client.
type TEIConfig struct {
	BaseURL    string
	Model      string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
}

// TEI is an embedder for Text Embeddings Inference servers using their
// native /embed endpoint. A 503 while the model loads is retried.
type TEI struct {
	cfg    TEIConfig
	client *http.Client
	log    *zap.Logger
}

// NewTEI returns a TEI client.
func NewTEI(cfg TEIConfig, logger *zap.Logger) (*TEI, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("TEI base URL is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &TEI{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logging.OrNop(logger).Named("tei"),
	}, nil
}

type teiRequest struct {
	Inputs    []string `json:"inputs"`
	Truncate  bool     `json:"truncate"`
	Normalize bool     `json:"normalize"`
}

// EmbedStrings implements embedding.Embedder.
func (t *TEI) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out [][]float64
	err := httputil.PostJSON(ctx, t.client, t.cfg.BaseURL+"/embed", t.cfg.UserAgent,
		teiRequest{Inputs: texts, Truncate: true, Normalize: true}, &out, t.cfg.MaxRetries, t.log)
	if err != nil {
		return nil, fmt.Errorf("TEI embedding: %w", err)
	}
	return out, nil
}

var _ embedding.Embedder = (*TEI)(nil)
