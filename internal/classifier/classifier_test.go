package classifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailmind/internal/cache"
	apperrors "mailmind/internal/errors"
	"mailmind/internal/llm"
	"mailmind/internal/models"
)

type fakeInvoker struct {
	mu       sync.Mutex
	calls    int
	byPrompt map[string]string // substring of user prompt -> JSON verdict
	err      error
}

func (f *fakeInvoker) Invoke(_ context.Context, _ string, req llm.Request, _ []string) (*llm.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	prompt := req.Messages[len(req.Messages)-1].Content
	for sub, verdict := range f.byPrompt {
		if sub != "" && strings.Contains(prompt, sub) {
			return &llm.Result{Content: verdict, ModelUsed: "gpt-4o"}, nil
		}
	}
	return &llm.Result{Content: `{"score": 80, "is_important": true}`, ModelUsed: "gpt-4o"}, nil
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestRanker(t *testing.T, inv invoker) *Ranker {
	t.Helper()
	registry, err := llm.NewRegistry(llm.DefaultDescriptors())
	require.NoError(t, err)
	return &Ranker{
		llm:          inv,
		registry:     registry,
		cache:        cache.New(),
		ttl:          time.Hour,
		concurrency:  4,
		baseKeywords: []string{"urgent", "deadline", "invoice"},
		log:          zerolog.Nop(),
		now:          func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC) },
	}
}

func testMessage(id, subject, body string, age time.Duration) models.Message {
	base := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	return models.Message{
		ID:      id,
		Subject: subject,
		Body:    body,
		Date:    base.Add(-age),
	}
}

func TestRankInvalidTimeRange(t *testing.T) {
	ranker := newTestRanker(t, &fakeInvoker{})
	_, err := ranker.Rank(context.Background(), "u1", nil, nil, TimeRange("fortnightly"))
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidTimeRange, apperrors.KindOf(err))
}

func TestRankNoKeywordMatchSkipsModel(t *testing.T) {
	inv := &fakeInvoker{}
	ranker := newTestRanker(t, inv)

	msgs := []models.Message{
		testMessage("m1", "Lunch on Friday?", "Thinking tacos.", time.Hour),
		testMessage("m2", "Newsletter #42", "This week in gardening.", 2*time.Hour),
	}
	out, err := ranker.Rank(context.Background(), "u1", msgs, nil, RangeDaily)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, inv.callCount(), "keyword misses must never invoke a model")
}

func TestRankScoresKeywordMatches(t *testing.T) {
	inv := &fakeInvoker{byPrompt: map[string]string{
		"Invoice overdue": `{"score": 92, "is_important": true}`,
		"deadline moved":  `{"score": 75, "is_important": true}`,
	}}
	ranker := newTestRanker(t, inv)

	msgs := []models.Message{
		testMessage("m1", "Invoice overdue", "Please pay invoice #9 now.", time.Hour),
		testMessage("m2", "Project deadline moved", "The deadline is tomorrow.", 2*time.Hour),
		testMessage("m3", "Cat pictures", "So fluffy.", time.Hour),
	}
	out, err := ranker.Rank(context.Background(), "u1", msgs, nil, RangeDaily)
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, "m1", out[0].ID, "highest score first")
	assert.Equal(t, 92, out[0].Score)
	assert.Equal(t, "m2", out[1].ID)
	assert.Equal(t, 2, inv.callCount())
}

func TestRankCachesVerdicts(t *testing.T) {
	inv := &fakeInvoker{}
	ranker := newTestRanker(t, inv)

	msgs := []models.Message{
		testMessage("m1", "Urgent: server down", "All hands.", time.Hour),
	}
	_, err := ranker.Rank(context.Background(), "u1", msgs, nil, RangeDaily)
	require.NoError(t, err)
	_, err = ranker.Rank(context.Background(), "u1", msgs, nil, RangeDaily)
	require.NoError(t, err)

	assert.Equal(t, 1, inv.callCount(), "second pass must be served from cache")
}

func TestRankDegradesOnModelFailure(t *testing.T) {
	inv := &fakeInvoker{err: fmt.Errorf("backend down")}
	ranker := newTestRanker(t, inv)

	msgs := []models.Message{
		testMessage("m1", "Urgent: contract", "Sign by deadline.", time.Hour),
	}
	out, err := ranker.Rank(context.Background(), "u1", msgs, nil, RangeDaily)
	require.NoError(t, err, "scoring failure must not fail the ranking")
	assert.Empty(t, out, "degraded verdict is never important")

	// The degraded verdict is cached like any other.
	cached, ok := ranker.cache.Get(scoreKey("u1", "m1", RangeDaily))
	require.True(t, ok)
	assert.Equal(t, degradedScore, cached)
}

func TestRankDropsMessagesOutsideWindow(t *testing.T) {
	inv := &fakeInvoker{}
	ranker := newTestRanker(t, inv)

	msgs := []models.Message{
		testMessage("old", "Urgent: ancient history", "deadline long past", 48*time.Hour),
	}
	out, err := ranker.Rank(context.Background(), "u1", msgs, nil, RangeDaily)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, inv.callCount())
}

func TestRankExtraKeywords(t *testing.T) {
	inv := &fakeInvoker{byPrompt: map[string]string{
		"standup": `{"score": 71, "is_important": true}`,
	}}
	ranker := newTestRanker(t, inv)

	msgs := []models.Message{
		testMessage("m1", "standup moved to 11", "See you there.", time.Hour),
	}
	out, err := ranker.Rank(context.Background(), "u1", msgs, []string{"Standup"}, RangeDaily)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "m1", out[0].ID)
}
