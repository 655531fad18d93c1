package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "mailmind/internal/errors"
	"mailmind/internal/models"
)

// fakeBackend scripts per-model responses and counts attempts.
type fakeBackend struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]error
	content  string
	tokens   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls:    make(map[string]int),
		failures: make(map[string]error),
		content:  "ok",
	}
}

func (f *fakeBackend) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.Model]++
	if err, ok := f.failures[req.Model]; ok {
		return openai.ChatCompletionResponse{}, err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.content}},
		},
		Usage: openai.Usage{TotalTokens: f.tokens},
	}, nil
}

func (f *fakeBackend) attempts(model string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[model]
}

func newTestClient(t *testing.T, backend ChatCompleter) *Client {
	t.Helper()
	registry, err := NewRegistry([]models.ModelDescriptor{
		{ID: "primary", Name: "primary-wire", Backend: BackendOpenAI, ContextWindow: 8192, Default: true},
		{ID: "fallback-a", Name: "fallback-a-wire", Backend: BackendOpenAI, ContextWindow: 8192},
		{ID: "fallback-b", Name: "fallback-b-wire", Backend: BackendOpenAI, ContextWindow: 8192},
		{ID: "llama-x", Name: "llama-x-wire", Backend: BackendOpenAI, ContextWindow: 8192},
	})
	require.NoError(t, err)

	return NewClientWithBackends(
		registry,
		map[string]ChatCompleter{BackendOpenAI: backend},
		3,
		Backoff{Base: time.Millisecond, Max: time.Millisecond},
		zerolog.Nop(),
	)
}

func chatReq() Request {
	return Request{
		Messages: []models.ConversationTurn{{Role: models.RoleUser, Content: "hi"}},
	}
}

func TestInvoke_PrimarySucceeds(t *testing.T) {
	backend := newFakeBackend()
	backend.tokens = 42
	client := newTestClient(t, backend)

	res, err := client.Invoke(context.Background(), "primary", chatReq(), []string{"fallback-a"})
	require.NoError(t, err)

	assert.Equal(t, "primary", res.ModelUsed)
	assert.False(t, res.UsedFallback)
	assert.Equal(t, 42, res.TokensUsed)
	assert.Equal(t, 1, backend.attempts("primary-wire"))
	assert.Zero(t, backend.attempts("fallback-a-wire"))
}

func TestInvoke_FallbackOrdering(t *testing.T) {
	backend := newFakeBackend()
	backend.failures["primary-wire"] = errors.New("rate limited")
	backend.failures["fallback-a-wire"] = errors.New("timeout")
	client := newTestClient(t, backend)

	res, err := client.Invoke(context.Background(), "primary", chatReq(), []string{"fallback-a", "fallback-b"})
	require.NoError(t, err)

	assert.Equal(t, "fallback-b", res.ModelUsed)
	assert.True(t, res.UsedFallback)
	// Each failed model is attempted exactly retryCount times
	assert.Equal(t, 3, backend.attempts("primary-wire"))
	assert.Equal(t, 3, backend.attempts("fallback-a-wire"))
	assert.Equal(t, 1, backend.attempts("fallback-b-wire"))
}

func TestInvoke_UnknownPrimarySkippedWithoutRetry(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend)

	res, err := client.Invoke(context.Background(), "ghost-model", chatReq(), []string{"llama-x"})
	require.NoError(t, err)

	assert.Equal(t, "llama-x", res.ModelUsed)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, 1, backend.attempts("llama-x-wire"))
}

func TestInvoke_AllModelsExhausted(t *testing.T) {
	backend := newFakeBackend()
	lastErr := errors.New("backend down")
	backend.failures["primary-wire"] = errors.New("first down")
	backend.failures["fallback-a-wire"] = lastErr
	client := newTestClient(t, backend)

	_, err := client.Invoke(context.Background(), "primary", chatReq(), []string{"fallback-a"})
	require.Error(t, err)

	assert.True(t, apperrors.Is(err, apperrors.KindAllModelsExhausted))
	// The last cause stays attached
	assert.ErrorIs(t, err, lastErr)
}

func TestInvoke_UnknownPrimaryEmptyChain(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend)

	_, err := client.Invoke(context.Background(), "ghost-model", chatReq(), nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindAllModelsExhausted))
}

func TestInvoke_JSONOnlyRequestShape(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend)

	req := client.buildRequest(models.ModelDescriptor{Name: "primary-wire"}, Request{
		Messages: []models.ConversationTurn{{Role: models.RoleSystem, Content: "sys"}},
		JSONOnly: true,
	})

	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
}
