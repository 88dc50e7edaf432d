package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"

	"github.com/pulsefeed/pulse/internal/models"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 60 * time.Second

	// DefaultMaxItems caps the number of items requested from the model
	DefaultMaxItems = 10

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"
)

// feedItemsSchema is the strict JSON schema the model must produce.
// Mirrors models.GeneratedItem plus per-entry signal readings; nullable
// optional fields keep strict mode happy while letting the decoder drop
// nulls.
var feedItemsSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"items", "signals"},
	"properties": map[string]any{
		"signals": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"entry_id", "key", "value", "confidence"},
				"properties": map[string]any{
					"entry_id":   map[string]any{"type": "integer"},
					"key":        map[string]any{"type": "string", "enum": []string{"actionability", "habit_likelihood", "energy"}},
					"value":      map[string]any{"type": "number", "minimum": 0, "maximum": 1},
					"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
				},
			},
		},
		"items": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required": []string{
					"id", "type", "content", "urgency", "importance",
					"priority_score", "related_commitment_id", "related_task_key",
					"dedup_key", "time_of_day",
				},
				"properties": map[string]any{
					"id":      map[string]any{"type": "string"},
					"type":    map[string]any{"type": "string", "enum": []string{"task", "reminder", "nudge", "potential_commitment"}},
					"content": map[string]any{"type": "string"},
					"urgency": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
					"importance": map[string]any{
						"type": "number", "minimum": 0, "maximum": 1,
					},
					"priority_score":        map[string]any{"type": []string{"number", "null"}},
					"related_commitment_id": map[string]any{"type": []string{"integer", "null"}},
					"related_task_key":      map[string]any{"type": []string{"string", "null"}},
					"dedup_key":             map[string]any{"type": []string{"string", "null"}},
					"time_of_day":           map[string]any{"type": []string{"string", "null"}},
				},
			},
		},
	},
}

// OpenAIProvider implements the Provider interface using OpenAI's API.
// Prompts are sent prefix-as-system, suffix-as-user so the provider's
// prompt cache can reuse the frozen prefix across regenerations.
type OpenAIProvider struct {
	client    openai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey string, model string) *OpenAIProvider {
	return NewOpenAIProviderWithLogger(apiKey, DefaultOpenAIBaseURL, model, nil, false)
}

// NewOpenAIProviderWithLogger creates a new OpenAI provider with logger support
func NewOpenAIProviderWithLogger(apiKey string, baseURL string, model string, logger *zap.Logger, debugMode bool) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	httpClient := &http.Client{
		Timeout: DefaultTimeout,
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	)

	return &OpenAIProvider{
		client:    client,
		model:     model,
		logger:    logger,
		debugMode: debugMode,
	}
}

// Model returns the configured model name
func (p *OpenAIProvider) Model() string {
	return p.model
}

// GenerateFeed produces feed items from an assembled prompt. Deterministic
// sampling (temperature 0, top-p 1) keeps regeneration output stable for
// a given prompt, which also stabilizes downstream dedup behavior.
func (p *OpenAIProvider) GenerateFeed(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	maxItems := req.MaxItems
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(req.Prefix),
		openai.UserMessage(req.Suffix),
	}
	if len(req.ExpectedItemIDs) > 0 {
		// Rephrase mode: the model may only phrase the known candidates,
		// so the response id set is checkable against the input.
		messages = append(messages, openai.UserMessage(
			"Rephrase only the provided candidate items. Use exactly these item ids and no others: "+
				strings.Join(req.ExpectedItemIDs, ", ")))
	}

	apiReq := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(p.model),
		Messages:    messages,
		Temperature: openai.Float(0),
		TopP:        openai.Float(1),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "feed_items",
					Strict: openai.Bool(true),
					Schema: feedItemsSchema,
				},
			},
		},
	}

	requestID := ExtractRequestID(ctx)
	userIDStr := ExtractUserID(ctx)

	if p.logger != nil && p.debugMode {
		p.logger.Debug("llm_api_request",
			zap.String("operation", "generate_feed"),
			zap.String("model", p.model),
			zap.Int("prefix_length", len(req.Prefix)),
			zap.Int("suffix_length", len(req.Suffix)),
			zap.String("suffix_preview", SanitizePrompt(req.Suffix, true)),
			zap.String("user_id", userIDStr),
			zap.String("request_id", requestID),
		)
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, apiReq)
	latency := time.Since(start)
	if err != nil {
		if p.logger != nil && p.debugMode {
			p.logger.Debug("llm_api_error",
				zap.String("operation", "generate_feed"),
				zap.String("model", p.model),
				zap.Error(err),
				zap.String("user_id", userIDStr),
				zap.String("request_id", requestID),
				zap.Duration("latency", latency),
			)
		}
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("failed to generate feed: %w", apiErr)
		}
		return nil, fmt.Errorf("failed to generate feed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New(ErrNoChoicesInResponse)
	}

	content := resp.Choices[0].Message.Content

	if p.logger != nil && p.debugMode {
		p.logger.Debug("llm_api_response",
			zap.String("operation", "generate_feed"),
			zap.String("model", p.model),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", SanitizeResponse(content, true)),
			zap.String("user_id", userIDStr),
			zap.String("request_id", requestID),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}

	items, signals, err := parseFeedResponse(content, maxItems)
	if err != nil {
		return nil, err
	}

	return &GenerateResult{
		Items:   items,
		Signals: signals,
		Usage: models.Usage{
			InputTokens:     int(resp.Usage.PromptTokens),
			OutputTokens:    int(resp.Usage.CompletionTokens),
			CacheReadTokens: int(resp.Usage.PromptTokensDetails.CachedTokens),
			// OpenAI caches transparently and reports reads only
			CacheCreationTokens: 0,
		},
	}, nil
}

// parseFeedResponse decodes the model output into items and signal
// readings. Anything that does not parse as the declared shape is a
// schema violation for the caller's retry/fallback logic. A missing
// signals array is tolerated as empty; signals are advisory.
func parseFeedResponse(content string, maxItems int) ([]models.GeneratedItem, []models.SignalReading, error) {
	var payload struct {
		Items   []models.GeneratedItem `json:"items"`
		Signals []models.SignalReading `json:"signals"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if payload.Items == nil {
		return nil, nil, fmt.Errorf("%w: missing items array", ErrSchemaViolation)
	}
	if len(payload.Items) > maxItems {
		payload.Items = payload.Items[:maxItems]
	}
	return payload.Items, payload.Signals, nil
}

// RegisterOpenAI registers the OpenAI provider with the registry
func RegisterOpenAI(registry *ProviderRegistry, logger *zap.Logger, debugMode bool) {
	registry.Register("openai", func(config map[string]string) (Provider, error) {
		apiKey, ok := config["api_key"]
		if !ok || apiKey == "" {
			return nil, fmt.Errorf("openai api_key is required")
		}

		return NewOpenAIProviderWithLogger(apiKey, config["base_url"], config["model"], logger, debugMode), nil
	})
}
