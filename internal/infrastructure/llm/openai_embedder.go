package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"SafeMap/internal/config"
	"SafeMap/internal/ports"
)

const defaultDimensions = 1536

// OpenAIEmbedder implements ports.Embedder against OpenAI-compatible embedding APIs.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	logger     *slog.Logger
}

var _ ports.Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder builds an embedder from configuration.
func NewOpenAIEmbedder(cfg config.OpenAIConfig, logger *slog.Logger) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai embedder: api key is not set")
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	logger.Info("initializing openai embedder", "model", model)

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      model,
		dimensions: cfg.Dimensions,
		logger:     logger,
	}, nil
}

// Model implements ports.Embedder.
func (e *OpenAIEmbedder) Model() string { return e.model }

// Embed requests vectors for all non-empty texts in one call; empty texts get zero vectors.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	var (
		inputs []string
		slots  []int
	)
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		inputs = append(inputs, text)
		slots = append(slots, i)
	}

	dim := e.dimensions
	if len(inputs) > 0 {
		req := openai.EmbeddingRequest{
			Input: inputs,
			Model: openai.EmbeddingModel(e.model),
		}
		if e.dimensions > 0 {
			req.Dimensions = e.dimensions
		}

		resp, err := e.client.CreateEmbeddings(ctx, req)
		if err != nil {
			e.logger.Error("openai embeddings call failed", "error", err)
			return nil, fmt.Errorf("create embeddings: %w", err)
		}
		if len(resp.Data) != len(inputs) {
			return nil, fmt.Errorf("create embeddings: got %d vectors for %d texts", len(resp.Data), len(inputs))
		}

		for _, item := range resp.Data {
			if item.Index < 0 || item.Index >= len(slots) {
				return nil, fmt.Errorf("create embeddings: index %d out of range", item.Index)
			}
			out[slots[item.Index]] = item.Embedding
			if dim <= 0 {
				dim = len(item.Embedding)
			}
		}
	}

	if dim <= 0 {
		dim = defaultDimensions
	}
	for i := range out {
		if out[i] == nil {
			out[i] = make([]float32, dim)
		}
	}
	return out, nil
}
