package retrieval

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/sashabaranov/go-openai"
)

const (
	DefaultOllamaURL        = "http://localhost:11434"
	DefaultOllamaModel      = "nomic-embed-text"
	DefaultOpenAIEmbedModel = string(openai.SmallEmbedding3)
)

// NewEmbeddingFunc builds the embedding function named by cfg.
func NewEmbeddingFunc(cfg model.RetrievalConfig) (chromem.EmbeddingFunc, error) {
	switch strings.ToLower(cfg.EmbeddingProvider) {
	case "", "ollama":
		modelName := cfg.EmbeddingModel
		if modelName == "" {
			modelName = DefaultOllamaModel
		}
		return chromem.NewEmbeddingFuncOllama(modelName, ollamaAPIURL(cfg.EmbeddingBaseURL)), nil

	case "openai":
		if cfg.EmbeddingAPIKey == "" {
			return nil, fmt.Errorf("openai embeddings: API key is required")
		}
		modelName := cfg.EmbeddingModel
		if modelName == "" {
			modelName = DefaultOpenAIEmbedModel
		}
		return newOpenAIEmbeddingFunc(cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL, modelName), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.EmbeddingProvider)
	}
}

// ollamaAPIURL returns the Ollama API root chromem expects (".../api").
func ollamaAPIURL(baseURL string) string {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(baseURL, "/api") {
		baseURL += "/api"
	}
	return baseURL
}

func newOpenAIEmbeddingFunc(apiKey, baseURL, modelName string) chromem.EmbeddingFunc {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	client := openai.NewClientWithConfig(clientConfig)

	return func(ctx context.Context, text string) ([]float32, error) {
		resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(modelName),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embeddings: %w", err)
		}
		if len(resp.Data) == 0 {
			return nil, fmt.Errorf("openai embeddings: empty response")
		}
		return resp.Data[0].Embedding, nil
	}
}
