package provider

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/starford/laguz/internal/models"
)

// OpenAI adapts an OpenAI-compatible endpoint (OpenAI, Ollama, vLLM, ...)
// to the Embedder and VisionDescriber contracts.
type OpenAI struct {
	embedLLM    *openai.LLM
	visionLLM   *openai.LLM
	callTimeout time.Duration
	logger      *slog.Logger
}

// OpenAIConfig configures the OpenAI-compatible provider.
type OpenAIConfig struct {
	BaseURL        string
	Token          string
	EmbeddingModel string
	VisionModel    string
	CallTimeout    time.Duration
}

// NewOpenAI creates a provider speaking the OpenAI API.
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) (*OpenAI, error) {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 2 * time.Minute
	}
	common := []openai.Option{}
	if cfg.BaseURL != "" {
		common = append(common, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Token != "" {
		common = append(common, openai.WithToken(cfg.Token))
	}

	embedLLM, err := openai.New(append(common, openai.WithEmbeddingModel(cfg.EmbeddingModel))...)
	if err != nil {
		return nil, fmt.Errorf("provider: init embedding client: %w", err)
	}
	visionLLM, err := openai.New(append(common, openai.WithModel(cfg.VisionModel))...)
	if err != nil {
		return nil, fmt.Errorf("provider: init vision client: %w", err)
	}
	return &OpenAI{
		embedLLM:    embedLLM,
		visionLLM:   visionLLM,
		callTimeout: cfg.CallTimeout,
		logger:      logger,
	}, nil
}

// Embed returns one vector per input text, in input order.
func (p *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	vecs, err := p.embedLLM.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("provider: embed batch of %d: %w", len(texts), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("provider: embed returned %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

// Describe returns one description per image. A failed image yields the
// placeholder description instead of failing the batch.
func (p *OpenAI) Describe(ctx context.Context, images []models.ImageRef) ([]string, error) {
	out := make([]string, len(images))
	for i, img := range images {
		desc, err := p.describeOne(ctx, img)
		if err != nil {
			p.logger.Warn("provider: describe failed",
				slog.String("image", img.Source),
				slog.String("error", err.Error()))
			out[i] = PlaceholderDescription
			continue
		}
		out[i] = desc
	}
	return out, nil
}

func (p *OpenAI) describeOne(ctx context.Context, img models.ImageRef) (string, error) {
	if len(img.Data) == 0 {
		return "", fmt.Errorf("provider: no image data for %s", img.Source)
	}
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	mimeType := mime.TypeByExtension(filepath.Ext(img.Source))
	if mimeType == "" {
		mimeType = "image/png"
	}
	resp, err := p.visionLLM.GenerateContent(ctx, []llms.MessageContent{
		{
			Role: schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.BinaryPart(mimeType, img.Data),
				llms.TextPart("Describe this image concisely for a search index. Mention any visible text."),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("provider: vision call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("provider: vision returned no choices")
	}
	return resp.Choices[0].Content, nil
}
