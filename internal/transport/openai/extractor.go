package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/gosexpert/tagvec/internal/domain"
	"github.com/gosexpert/tagvec/internal/metrics"
)

const extractSystemPrompt = "You are an expert in analyzing project and construction documentation. " +
	"You extract document titles and keyword tags from page excerpts."

const extractUserPrompt = `Analyze the document page excerpts below and perform two tasks.

1. EXTRACT THE DOCUMENT TITLE:
   - Find the main title or heading (usually on the first page).
   - It may be a document type (e.g. "Пояснительная записка", "Архитектурные решения") or a project name.
   - If a volume number is present (e.g. "Том 1"), include it in the title.

2. EXTRACT KEYWORDS:
   - Pick 5 to 15 keywords or phrases characterizing the document.
   - Include technical terms, work types, sections, system names, organizations, standards and locations when mentioned.
   - Do NOT include generic words like "document", "page" or "project" without context.

Return ONLY a JSON object, no explanations or formatting:
{"title": "document title or type", "keywords": ["keyword 1", "keyword 2"]}

Document excerpts:
%s`

// Extractor asks an OpenAI-compatible chat model for the title and keyword
// tags of a document. Implements domain.TagExtractor.
type Extractor struct {
	client      *openai.Client
	model       string
	temperature float32
	logger      *zap.Logger
}

// ExtractorConfig holds LLM extraction settings.
type ExtractorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Logger      *zap.Logger
}

// NewExtractor creates an LLM tag extractor.
func NewExtractor(cfg *ExtractorConfig) *Extractor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Extractor{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		logger:      logger,
	}
}

// ExtractTags sends the document text to the chat model and parses the JSON reply.
func (e *Extractor) ExtractTags(ctx context.Context, text string) (domain.TagExtraction, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: e.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(extractUserPrompt, text)},
		},
	})
	if err != nil {
		metrics.ExtractionRequestsTotal.WithLabelValues(e.model, "error").Inc()
		return domain.TagExtraction{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		metrics.ExtractionRequestsTotal.WithLabelValues(e.model, "error").Inc()
		return domain.TagExtraction{}, fmt.Errorf("empty extraction response")
	}

	content := resp.Choices[0].Message.Content
	e.logger.Debug("extraction response",
		zap.String("model", e.model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	result, err := parseTagJSON(content)
	if err != nil {
		metrics.ExtractionRequestsTotal.WithLabelValues(e.model, "error").Inc()
		return domain.TagExtraction{}, err
	}

	metrics.ExtractionRequestsTotal.WithLabelValues(e.model, "success").Inc()
	return result, nil
}

// parseTagJSON parses the model reply into a TagExtraction. Models often wrap
// JSON in code fences or prose despite instructions, so the parser cuts out
// the first balanced-looking object before unmarshalling.
func parseTagJSON(content string) (domain.TagExtraction, error) {
	raw := extractJSONObject(content)
	if raw == "" {
		return domain.TagExtraction{}, fmt.Errorf("no JSON object in extraction response")
	}

	var parsed struct {
		Title    string   `json:"title"`
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return domain.TagExtraction{}, fmt.Errorf("extraction returned invalid JSON: %w", err)
	}

	keywords := parsed.Keywords[:0]
	for _, k := range parsed.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}

	return domain.TagExtraction{
		Title:    strings.TrimSpace(parsed.Title),
		Keywords: keywords,
	}, nil
}

// extractJSONObject returns the substring from the first '{' to the last '}'.
func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
