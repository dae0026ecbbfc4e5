package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"triage/internal/apperr"
	"triage/internal/config"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
)

// OpenAIGateway talks to an OpenAI-compatible API. The primary provider is the
// configured endpoint; the OpenAI platform serves as fallback when a fallback
// key is set. A model may name its own endpoint, which gets a client derived
// from the primary configuration.
type OpenAIGateway struct {
	primary       *openai.Client
	primaryConfig openai.ClientConfig
	fallback      *openai.Client
	fallbackModel string
	embedModel    openai.EmbeddingModel
	timeout       time.Duration
	cb            *gobreaker.CircuitBreaker
	logger        zerolog.Logger

	mu        sync.Mutex
	endpoints map[string]*openai.Client
}

// NewOpenAIGateway creates the gateway from process configuration
func NewOpenAIGateway(cfg *config.Config, logger zerolog.Logger) (*OpenAIGateway, error) {
	if cfg.OpenAIKey == "" && cfg.OpenAIFallbackKey == "" {
		return nil, fmt.Errorf("no completion provider configured: set OPENAI_API_KEY or OPENAI_FALLBACK_API_KEY")
	}

	var primary openai.ClientConfig
	var fallback *openai.Client
	switch {
	case cfg.OpenAIKey != "":
		primary = openai.DefaultConfig(cfg.OpenAIKey)
		if cfg.OpenAIBaseURL != "" {
			primary.BaseURL = cfg.OpenAIBaseURL
		}
		logger.Info().Str("base_url", primary.BaseURL).Msg("Primary completion provider configured")
		if cfg.OpenAIFallbackKey != "" {
			fallback = openai.NewClient(cfg.OpenAIFallbackKey)
			logger.Info().Msg("Fallback completion provider: OpenAI platform")
		}
	default:
		primary = openai.DefaultConfig(cfg.OpenAIFallbackKey)
		logger.Info().Msg("Primary completion provider: OpenAI platform")
	}

	g := NewOpenAIGatewayWithConfig(primary, cfg.EmbeddingModel, cfg.OpenAITimeoutDuration(), logger)
	g.fallback = fallback
	return g, nil
}

// NewOpenAIGatewayWithConfig wires a single provider, without fallback
func NewOpenAIGatewayWithConfig(oc openai.ClientConfig, embedModel string, timeout time.Duration, logger zerolog.Logger) *OpenAIGateway {
	logger = logger.With().Str("component", "llm").Logger()
	return &OpenAIGateway{
		primary:       openai.NewClientWithConfig(oc),
		primaryConfig: oc,
		fallbackModel: openai.GPT4oMini,
		embedModel:    openai.EmbeddingModel(embedModel),
		timeout:       timeout,
		cb:            newBreaker("llm-completion", logger),
		logger:        logger,
		endpoints:     make(map[string]*openai.Client),
	}
}

// completionsPath is appended to the base URL by the client itself
const completionsPath = "chat/completions"

// resolveBaseURL maps a model endpoint to the API base URL it designates. An
// absolute URL replaces the primary base, a relative path is joined onto it.
// A trailing chat/completions is dropped. "" means the primary base.
func resolveBaseURL(base, endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid model endpoint %q: %w", endpoint, err)
	}

	var resolved string
	if u.IsAbs() {
		resolved = strings.TrimSuffix(strings.TrimRight(endpoint, "/"), "/"+completionsPath)
	} else {
		rel := strings.TrimSuffix(strings.Trim(endpoint, "/"), completionsPath)
		rel = strings.Trim(rel, "/")
		if rel == "" {
			return "", nil
		}
		resolved = strings.TrimRight(base, "/") + "/" + rel
	}
	if resolved == strings.TrimRight(base, "/") {
		return "", nil
	}
	return resolved, nil
}

// clientFor returns the client serving endpoint, creating it on first use
func (g *OpenAIGateway) clientFor(endpoint string) (*openai.Client, error) {
	baseURL, err := resolveBaseURL(g.primaryConfig.BaseURL, endpoint)
	if err != nil {
		return nil, apperr.InvalidState("%v", err)
	}
	if baseURL == "" {
		return g.primary, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.endpoints[baseURL]; ok {
		return c, nil
	}
	oc := g.primaryConfig
	oc.BaseURL = baseURL
	c := openai.NewClientWithConfig(oc)
	g.endpoints[baseURL] = c
	g.logger.Info().Str("base_url", baseURL).Msg("Model endpoint client created")
	return c, nil
}

// requestModel pins a dated snapshot when the catalogue names a version,
// e.g. gpt-4o-mini + 2024-07-18. "latest" keeps the alias.
func requestModel(m ModelConfig) string {
	v := strings.TrimSpace(m.Version)
	if v == "" || strings.EqualFold(v, "latest") || strings.HasSuffix(m.Model, "-"+v) {
		return m.Model
	}
	return m.Model + "-" + v
}

func newBreaker(name string, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})
}

// Complete sends prompt as a single user message
func (g *OpenAIGateway) Complete(ctx context.Context, prompt string, model ModelConfig) (*Completion, error) {
	client, err := g.clientFor(model.Endpoint)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: requestModel(model),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   model.MaxTokens,
		Temperature: model.Temperature,
	}

	out, err := g.cb.Execute(func() (interface{}, error) {
		return g.createChatCompletion(ctx, client, req)
	})
	if err != nil {
		return nil, classify(err)
	}

	resp := out.(*openai.ChatCompletionResponse)
	c := &Completion{
		Usage: Usage{
			InputTextTokens:  resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		RequestID:    resp.ID,
		ModelVersion: resp.Model,
	}
	for _, choice := range resp.Choices {
		c.Alternatives = append(c.Alternatives, Alternative{
			Text:   choice.Message.Content,
			Status: string(choice.FinishReason),
		})
	}
	return c, nil
}

func (g *OpenAIGateway) createChatCompletion(ctx context.Context, client *openai.Client, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil && g.fallback != nil && ctx.Err() == nil {
		g.logger.Warn().Err(err).Msg("Primary completion failed, trying fallback")
		req.Model = g.fallbackModel
		resp, err = g.fallback.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("both providers failed: %w", err)
		}
		g.logger.Info().Msg("Fallback completion succeeded")
	} else if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Embed generates embeddings for texts
func (g *OpenAIGateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := openai.EmbeddingRequest{Input: texts, Model: g.embedModel}
	resp, err := g.primary.CreateEmbeddings(ctx, req)
	if err != nil && g.fallback != nil && ctx.Err() == nil {
		g.logger.Warn().Err(err).Msg("Primary embeddings failed, trying fallback")
		req.Model = openai.SmallEmbedding3
		resp, err = g.fallback.CreateEmbeddings(ctx, req)
	}
	if err != nil {
		return nil, classify(err)
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		embeddings[i] = data.Embedding
	}
	return embeddings, nil
}

// classify maps provider errors to retryable upstream errors
func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	ue := apperr.Upstream(err, "completion service call failed")
	switch {
	case status == http.StatusTooManyRequests:
		ue.WithDetail("reason", "rate_limit")
	case errors.Is(err, context.DeadlineExceeded):
		ue.WithDetail("reason", "timeout")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		ue.WithDetail("reason", "circuit_open")
	default:
		ue.WithDetail("reason", "error")
	}
	if status != 0 {
		ue.WithDetail("http_status", status)
	}
	return ue
}
