package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"mailmind/internal/config"
	apperrors "mailmind/internal/errors"
	"mailmind/internal/models"
)

// ChatCompleter is the slice of the OpenAI client the fallback client
// needs. *openai.Client satisfies it; tests inject fakes.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Request is a backend-independent completion request.
type Request struct {
	Messages    []models.ConversationTurn
	MaxTokens   int
	Temperature float32
	JSONOnly    bool // constrain the response to a single JSON object
}

// Result is a completed invocation.
type Result struct {
	Content      string
	ModelUsed    string
	UsedFallback bool
	TokensUsed   int // passed through from the backend, never estimated
}

// Client tries a primary model then an ordered fallback chain, with
// bounded retry-with-backoff per model.
type Client struct {
	registry   *Registry
	backends   map[string]ChatCompleter
	retryCount int
	backoff    Backoff
	log        zerolog.Logger
}

// NewClient builds the fallback client with one OpenAI-protocol backend
// per configured provider.
func NewClient(cfg *config.Config, registry *Registry, logger zerolog.Logger) *Client {
	backends := make(map[string]ChatCompleter)
	if cfg.OpenAIKey != "" {
		backends[BackendOpenAI] = openai.NewClient(cfg.OpenAIKey)
	}
	if cfg.GroqAPIKey != "" {
		gc := openai.DefaultConfig(cfg.GroqAPIKey)
		gc.BaseURL = cfg.GroqBaseURL
		backends[BackendGroq] = openai.NewClientWithConfig(gc)
	}
	if cfg.OpenRouterAPIKey != "" {
		oc := openai.DefaultConfig(cfg.OpenRouterAPIKey)
		oc.BaseURL = cfg.OpenRouterBaseURL
		backends[BackendOpenRouter] = openai.NewClientWithConfig(oc)
	}

	return &Client{
		registry:   registry,
		backends:   backends,
		retryCount: cfg.LLMRetryCount,
		backoff: Backoff{
			Base: time.Duration(cfg.LLMBackoffBaseMS) * time.Millisecond,
			Max:  time.Duration(cfg.LLMBackoffMaxMS) * time.Millisecond,
		},
		log: logger.With().Str("component", "llm").Logger(),
	}
}

// NewClientWithBackends wires explicit backends, used by tests and by
// callers that manage their own transports.
func NewClientWithBackends(registry *Registry, backends map[string]ChatCompleter, retryCount int, backoff Backoff, logger zerolog.Logger) *Client {
	return &Client{
		registry:   registry,
		backends:   backends,
		retryCount: retryCount,
		backoff:    backoff,
		log:        logger,
	}
}

// Registry exposes the model registry behind this client.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Invoke tries primaryID then each fallback id in order. Ids absent from
// the registry are skipped without an attempt. Exhausting the whole
// chain fails with AllModelsExhausted carrying the last error.
func (c *Client) Invoke(ctx context.Context, primaryID string, req Request, fallbackIDs []string) (*Result, error) {
	chain := append([]string{primaryID}, fallbackIDs...)

	var lastErr error
	for i, id := range chain {
		desc, ok := c.registry.Lookup(id)
		if !ok {
			c.log.Warn().Str("model", id).Msg("Model not in registry, skipping")
			continue
		}
		backend, ok := c.backends[desc.Backend]
		if !ok {
			c.log.Warn().Str("model", id).Str("backend", desc.Backend).Msg("Backend not configured, skipping")
			continue
		}

		var resp openai.ChatCompletionResponse
		err := Retry(ctx, c.retryCount, c.backoff, func(ctx context.Context) error {
			var attemptErr error
			resp, attemptErr = backend.CreateChatCompletion(ctx, c.buildRequest(desc, req))
			if attemptErr != nil {
				return attemptErr
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("model %s returned no choices", id)
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn().Err(err).Str("model", id).Int("attempts", c.retryCount).Msg("Model failed, trying next in chain")
			lastErr = err
			continue
		}

		if i > 0 {
			c.log.Info().Str("model", id).Msg("Fallback model succeeded")
		}
		return &Result{
			Content:      resp.Choices[0].Message.Content,
			ModelUsed:    id,
			UsedFallback: i > 0,
			TokensUsed:   resp.Usage.TotalTokens,
		}, nil
	}

	// An empty chain or all-unknown ids lands here with lastErr nil;
	// that is still service-unavailable, not silent success.
	return nil, apperrors.Wrap(apperrors.KindAllModelsExhausted, "all models in chain failed or were unknown", lastErr)
}

func (c *Client) buildRequest(desc models.ModelDescriptor, req Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, turn := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}

	out := openai.ChatCompletionRequest{
		Model:       desc.Name,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSONOnly {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return out
}
