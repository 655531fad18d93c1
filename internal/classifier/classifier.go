// Package classifier scores mailbox messages for importance. A cheap
// keyword prefilter decides which messages are worth a model call; only
// keyword matches are scored by the model, in parallel, and every
// verdict is cached per (message, time range) so repeated requests
// within the TTL never re-invoke a model.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mailmind/internal/cache"
	"mailmind/internal/config"
	apperrors "mailmind/internal/errors"
	"mailmind/internal/llm"
	"mailmind/internal/models"
)

// TimeRange names a lookback window for the importance view.
type TimeRange string

const (
	RangeDaily   TimeRange = "daily"
	RangeWeekly  TimeRange = "weekly"
	RangeMonthly TimeRange = "monthly"
)

// degradedScore is the verdict recorded when model scoring fails; the
// message stays visible in the ranked list's input but is never marked
// important on a guess.
var degradedScore = models.ImportanceScore{Score: 25, IsImportant: false}

// Window returns the start of the lookback window ending at now.
func (r TimeRange) Window(now time.Time) (time.Time, error) {
	switch r {
	case RangeDaily:
		return now.AddDate(0, 0, -1), nil
	case RangeWeekly:
		return now.AddDate(0, 0, -7), nil
	case RangeMonthly:
		return now.AddDate(0, -1, 0), nil
	default:
		return time.Time{}, apperrors.Newf(apperrors.KindInvalidTimeRange, "unsupported time range %q", string(r))
	}
}

// invoker is the model-call seam; *llm.Client satisfies it.
type invoker interface {
	Invoke(ctx context.Context, primaryID string, req llm.Request, fallbackIDs []string) (*llm.Result, error)
}

// Ranker classifies and orders messages by importance.
type Ranker struct {
	llm          invoker
	registry     *llm.Registry
	cache        *cache.Cache
	ttl          time.Duration
	concurrency  int
	baseKeywords []string
	log          zerolog.Logger
	now          func() time.Time
}

// NewRanker builds the classifier over the fallback model client.
func NewRanker(cfg *config.Config, client *llm.Client, scoreCache *cache.Cache, logger zerolog.Logger) *Ranker {
	return &Ranker{
		llm:          client,
		registry:     client.Registry(),
		cache:        scoreCache,
		ttl:          time.Duration(cfg.ImportanceCacheTTLMin) * time.Minute,
		concurrency:  cfg.ClassifierConcurrency,
		baseKeywords: cfg.ImportantKeywordList(),
		log:          logger.With().Str("component", "classifier").Logger(),
		now:          time.Now,
	}
}

// Rank scores the given messages for one user and returns only the
// important ones, highest score first. Messages outside the time range
// window are dropped before any scoring work.
func (r *Ranker) Rank(ctx context.Context, userID string, messages []models.Message, extraKeywords []string, timeRange TimeRange) ([]models.ScoredMessage, error) {
	now := r.now().UTC()
	windowStart, err := timeRange.Window(now)
	if err != nil {
		return nil, err
	}

	keywords := r.mergedKeywords(extraKeywords)

	var scored []models.ScoredMessage
	var toScore []models.Message
	for _, msg := range messages {
		if msg.Date.Before(windowStart) || msg.Date.After(now) {
			continue
		}

		key := scoreKey(userID, msg.ID, timeRange)
		if cached, ok := r.cache.Get(key); ok {
			if score, ok := cached.(models.ImportanceScore); ok {
				scored = append(scored, scoredMessage(msg, score))
				continue
			}
		}

		if !matchesKeywords(msg, keywords) {
			// No keyword hit means no model call; the zero verdict is
			// cached so the next request skips the prefilter too.
			score := models.ImportanceScore{}
			r.cache.Set(key, score, r.ttl)
			scored = append(scored, scoredMessage(msg, score))
			continue
		}
		toScore = append(toScore, msg)
	}

	if len(toScore) > 0 {
		modelScored, err := r.scoreParallel(ctx, userID, toScore, timeRange)
		if err != nil {
			return nil, err
		}
		scored = append(scored, modelScored...)
	}

	important := make([]models.ScoredMessage, 0, len(scored))
	for _, s := range scored {
		if s.IsImportant {
			important = append(important, s)
		}
	}
	sort.SliceStable(important, func(i, j int) bool {
		return important[i].Score > important[j].Score
	})
	return important, nil
}

func (r *Ranker) mergedKeywords(extra []string) []string {
	out := make([]string, 0, len(r.baseKeywords)+len(extra))
	out = append(out, r.baseKeywords...)
	for _, k := range extra {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// matchesKeywords reports whether any keyword appears in the subject,
// snippet or body. Case-insensitive containment, nothing fancier; the
// model does the real judging.
func matchesKeywords(msg models.Message, keywords []string) bool {
	haystack := strings.ToLower(msg.Subject + "\n" + msg.Snippet + "\n" + msg.Body)
	for _, k := range keywords {
		if strings.Contains(haystack, k) {
			return true
		}
	}
	return false
}

// scoreParallel runs model scoring over the keyword matches with bounded
// concurrency. Scoring failures degrade that message to a conservative
// verdict instead of failing the whole ranking.
func (r *Ranker) scoreParallel(ctx context.Context, userID string, messages []models.Message, timeRange TimeRange) ([]models.ScoredMessage, error) {
	results := make([]models.ScoredMessage, len(messages))

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(r.concurrency)
	for i, msg := range messages {
		i, msg := i, msg
		grp.Go(func() error {
			if grpCtx.Err() != nil {
				return grpCtx.Err()
			}
			score := r.scoreOne(grpCtx, msg)
			r.cache.Set(scoreKey(userID, msg.ID, timeRange), score, r.ttl)
			results[i] = scoredMessage(msg, score)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Ranker) scoreOne(ctx context.Context, msg models.Message) models.ImportanceScore {
	req := llm.Request{
		Messages: []models.ConversationTurn{
			{Role: models.RoleSystem, Content: scoringSystemPrompt},
			{Role: models.RoleUser, Content: scoringUserPrompt(msg)},
		},
		MaxTokens:   64,
		Temperature: 0,
		JSONOnly:    true,
	}

	result, err := r.llm.Invoke(ctx, r.registry.Default().ID, req, r.registry.FallbacksFor(r.registry.Default().ID))
	if err != nil {
		r.log.Warn().Err(err).Str("message_id", msg.ID).Msg("Importance scoring failed, degrading")
		return degradedScore
	}

	var verdict models.ImportanceScore
	if err := json.Unmarshal([]byte(strings.TrimSpace(result.Content)), &verdict); err != nil {
		r.log.Warn().Err(err).Str("message_id", msg.ID).Msg("Importance verdict unparsable, degrading")
		return degradedScore
	}
	if verdict.Score < 0 {
		verdict.Score = 0
	}
	if verdict.Score > 100 {
		verdict.Score = 100
	}
	return verdict
}

const scoringSystemPrompt = `You rate how important an email is to its recipient. ` +
	`Respond with a single JSON object: {"score": <0-100>, "is_important": <bool>}. ` +
	`Score 70 or above means the email needs attention soon. No prose.`

func scoringUserPrompt(msg models.Message) string {
	body := msg.Body
	const maxBody = 2000
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return fmt.Sprintf("From: %s\nSubject: %s\nDate: %s\n\n%s",
		msg.From, msg.Subject, msg.Date.Format(time.RFC1123Z), body)
}

func scoreKey(userID, messageID string, timeRange TimeRange) string {
	return fmt.Sprintf("importance:%s:%s:%s", userID, messageID, timeRange)
}

func scoredMessage(msg models.Message, score models.ImportanceScore) models.ScoredMessage {
	return models.ScoredMessage{
		Message:     msg,
		Score:       score.Score,
		IsImportant: score.IsImportant,
	}
}
