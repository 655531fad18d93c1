// Package orchestrator turns conversation turns into mailbox actions.
// It owns the draft confirmation state machine: a turn either talks to
// the model, confirms or amends a pending draft, or addresses a stored
// draft by recency. Nothing is ever sent without an explicit
// confirmation turn.
package orchestrator

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mailmind/internal/classifier"
	apperrors "mailmind/internal/errors"
	"mailmind/internal/llm"
	"mailmind/internal/models"
	"mailmind/internal/provider"
	"mailmind/internal/store"
)

const clarificationText = "I'm not sure what you'd like me to do. Could you rephrase that?"

// fetchPageSize bounds the candidate set handed to the importance
// ranker.
const fetchPageSize = 50

// confirmPhrases are the normalized turns that release a pending draft.
var confirmPhrases = map[string]bool{
	"confirm":  true,
	"yes":      true,
	"send":     true,
	"send it":  true,
	"proceed":  true,
	"go ahead": true,
	"ok":       true,
	"okay":     true,
}

// cancelPhrases drop a pending draft.
var cancelPhrases = map[string]bool{
	"cancel":     true,
	"no":         true,
	"discard":    true,
	"never mind": true,
	"nevermind":  true,
	"don't send": true,
	"dont send":  true,
}

// amendVerbs signal the user wants the pending draft rewritten rather
// than sent or discarded.
var amendVerbs = []string{"change", "adjust", "modify", "edit", "update", "rewrite", "revise", "shorten", "instead", "make it"}

var sendDraftRe = regexp.MustCompile(`^(?:please )?send draft (\d+)$`)

// invoker is the model-call seam; *llm.Client satisfies it.
type invoker interface {
	Invoke(ctx context.Context, primaryID string, req llm.Request, fallbackIDs []string) (*llm.Result, error)
}

// MailboxFactory builds the provider adapter for an account.
// *provider.Factory satisfies it.
type MailboxFactory interface {
	Mailbox(account *models.Account) (provider.Mailbox, error)
}

// Ranker scores messages for importance. *classifier.Ranker satisfies
// it.
type Ranker interface {
	Rank(ctx context.Context, userID string, messages []models.Message, extraKeywords []string, timeRange classifier.TimeRange) ([]models.ScoredMessage, error)
}

// DraftCache holds the single live draft per user. Last write wins.
type DraftCache interface {
	Get(userID string) (*models.PendingDraft, bool)
	Put(draft *models.PendingDraft)
	Remove(userID string)
}

type memoryDraftCache struct {
	mu     sync.RWMutex
	drafts map[string]*models.PendingDraft
}

// NewMemoryDraftCache returns the in-process draft cache.
func NewMemoryDraftCache() DraftCache {
	return &memoryDraftCache{drafts: make(map[string]*models.PendingDraft)}
}

func (c *memoryDraftCache) Get(userID string) (*models.PendingDraft, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.drafts[userID]
	return d, ok
}

func (c *memoryDraftCache) Put(draft *models.PendingDraft) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drafts[draft.UserID] = draft
}

func (c *memoryDraftCache) Remove(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.drafts, userID)
}

// Orchestrator wires the model client, provider adapters, classifier
// and stores behind the chat surface.
type Orchestrator struct {
	llm            invoker
	registry       *llm.Registry
	accounts       store.AccountStore
	drafts         store.DraftStore
	liveDrafts     DraftCache
	conversations  store.ConversationStore
	mailboxes      MailboxFactory
	ranker         Ranker
	tools          *toolRegistry
	historyLimit   int
	draftListLimit int
	log            zerolog.Logger
	now            func() time.Time
}

// Options carries the orchestrator's collaborators. Drafts and
// Conversations may be nil when no database is configured; the live
// draft cache then carries the whole draft state.
type Options struct {
	LLM            *llm.Client
	Accounts       store.AccountStore
	Drafts         store.DraftStore
	Conversations  store.ConversationStore
	Mailboxes      MailboxFactory
	Ranker         Ranker
	HistoryLimit   int
	DraftListLimit int
	Logger         zerolog.Logger
}

// New builds the orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		llm:            opts.LLM,
		registry:       opts.LLM.Registry(),
		accounts:       opts.Accounts,
		drafts:         opts.Drafts,
		liveDrafts:     NewMemoryDraftCache(),
		conversations:  opts.Conversations,
		mailboxes:      opts.Mailboxes,
		ranker:         opts.Ranker,
		tools:          newToolRegistry(),
		historyLimit:   opts.HistoryLimit,
		draftListLimit: opts.DraftListLimit,
		log:            opts.Logger.With().Str("component", "orchestrator").Logger(),
		now:            time.Now,
	}
}

// Chat handles one conversation turn.
func (o *Orchestrator) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, apperrors.New(apperrors.KindMissingParameter, "user_id is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, apperrors.New(apperrors.KindMissingParameter, "message is required")
	}

	normalized := normalizeTurn(req.Message)

	if m := sendDraftRe.FindStringSubmatch(normalized); m != nil {
		n, _ := strconv.Atoi(m[1])
		return o.sendNthDraft(ctx, req.UserID, n)
	}

	if draft, ok := o.liveDrafts.Get(req.UserID); ok {
		switch {
		case confirmPhrases[normalized]:
			return o.sendPending(ctx, req.UserID, draft)
		case cancelPhrases[normalized]:
			o.discardDrafts(ctx, req.UserID)
			return o.respond(ctx, req, &models.ChatResponse{Response: "Discarded the draft."})
		case hasAmendVerb(normalized):
			return o.amendDraft(ctx, req, draft)
		}
		// Anything else is an unrelated turn; the draft stays pending.
	}

	return o.dispatch(ctx, req)
}

func normalizeTurn(message string) string {
	s := strings.ToLower(strings.TrimSpace(message))
	return strings.TrimRight(s, ".!?")
}

func hasAmendVerb(normalized string) bool {
	for _, verb := range amendVerbs {
		if strings.Contains(normalized, verb) {
			return true
		}
	}
	return false
}

// dispatch runs the model over the bounded history and acts on the
// decoded intent.
func (o *Orchestrator) dispatch(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	history, err := o.history(ctx, req)
	if err != nil {
		return nil, err
	}

	turns := make([]models.ConversationTurn, 0, len(history)+2)
	turns = append(turns, models.ConversationTurn{Role: models.RoleSystem, Content: o.systemPrompt(req.MailboxSummary)})
	turns = append(turns, history...)
	turns = append(turns, models.ConversationTurn{Role: models.RoleUser, Content: req.Message})

	primary := req.ModelID
	if primary == "" {
		primary = o.registry.Default().ID
	}
	result, err := o.llm.Invoke(ctx, primary, llm.Request{
		Messages:    turns,
		Temperature: 0.2,
		JSONOnly:    true,
	}, o.registry.FallbacksFor(primary))
	if err != nil {
		return nil, err
	}

	resp := &models.ChatResponse{
		ModelUsed:    result.ModelUsed,
		UsedFallback: result.UsedFallback,
		TokenCount:   result.TokensUsed,
	}

	intent := DecodeIntent(result.Content)
	switch intent.Kind {
	case IntentAction:
		toolRes, known, err := o.runTool(ctx, req.UserID, intent.Action, intent.Params)
		if err != nil {
			return nil, err
		}
		if !known {
			o.log.Warn().Str("action", intent.Action).Msg("Model requested unknown tool")
			resp.Response = clarificationText
			break
		}
		resp.Response = toolRes.Text
		resp.Data = toolRes.Data
	case IntentData:
		resp.Response = intent.Message
		resp.Data = intent.Data
	case IntentChat:
		resp.Response = intent.Message
	default:
		resp.Response = clarificationText
	}

	return o.respond(ctx, req, resp)
}

// history returns the turns to prompt with: the request's inline
// conversation when present, otherwise the stored recent history. Both
// are bounded, oldest dropped first.
func (o *Orchestrator) history(ctx context.Context, req models.ChatRequest) ([]models.ConversationTurn, error) {
	if len(req.Conversation) > 0 {
		return models.BoundTurns(req.Conversation, o.historyLimit), nil
	}
	if o.conversations == nil {
		return nil, nil
	}
	turns, err := o.conversations.Recent(ctx, req.UserID, o.historyLimit)
	if err != nil {
		o.log.Warn().Err(err).Str("user_id", req.UserID).Msg("Failed to load conversation history")
		return nil, nil
	}
	return turns, nil
}

// respond persists the turn pair and hands the response back.
func (o *Orchestrator) respond(ctx context.Context, req models.ChatRequest, resp *models.ChatResponse) (*models.ChatResponse, error) {
	if o.conversations != nil {
		if err := o.conversations.SaveTurn(ctx, req.UserID, models.RoleUser, req.Message); err != nil {
			o.log.Warn().Err(err).Msg("Failed to save user turn")
		}
		if err := o.conversations.SaveTurn(ctx, req.UserID, models.RoleAssistant, resp.Response); err != nil {
			o.log.Warn().Err(err).Msg("Failed to save assistant turn")
		}
	}
	return resp, nil
}

// runTool builds the tool environment lazily and dispatches one action.
func (o *Orchestrator) runTool(ctx context.Context, userID, action string, params map[string]any) (*ToolResult, bool, error) {
	account, err := o.accounts.Get(ctx, userID)
	if err != nil {
		return nil, true, err
	}
	mailbox, err := o.mailboxes.Mailbox(account)
	if err != nil {
		return nil, true, err
	}

	env := &toolEnv{
		userID:  userID,
		account: account,
		mailbox: mailbox,
		stage: func(ctx context.Context, recipient, subject, body string) (*models.PendingDraft, error) {
			return o.stageDraft(ctx, userID, recipient, subject, body)
		},
		rank: func(ctx context.Context, timeRange classifier.TimeRange) ([]models.ScoredMessage, error) {
			scored, _, err := o.rankImportant(ctx, account, mailbox, timeRange, "", nil)
			return scored, err
		},
		summarize: func(ctx context.Context, msg *models.Message) (string, error) {
			return o.summarizeMessage(ctx, msg)
		},
	}
	return o.tools.dispatch(ctx, env, action, params)
}

// stageDraft records a new pending draft as the user's live draft and
// mirrors it durably.
func (o *Orchestrator) stageDraft(ctx context.Context, userID, recipient, subject, body string) (*models.PendingDraft, error) {
	draft := &models.PendingDraft{
		ID:        uuid.New().String(),
		UserID:    userID,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		CreatedAt: o.now().UTC(),
	}
	if o.drafts != nil {
		if err := o.drafts.Create(ctx, draft); err != nil {
			return nil, err
		}
	}
	o.liveDrafts.Put(draft)
	o.log.Info().Str("user_id", userID).Str("draft_id", draft.ID).Str("recipient", recipient).Msg("Draft staged")
	return draft, nil
}

// sendPending sends a confirmed draft and clears all draft state for
// the user.
func (o *Orchestrator) sendPending(ctx context.Context, userID string, draft *models.PendingDraft) (*models.ChatResponse, error) {
	account, err := o.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	mailbox, err := o.mailboxes.Mailbox(account)
	if err != nil {
		return nil, err
	}

	id, err := mailbox.Send(ctx, models.OutgoingMessage{
		To:      []string{draft.Recipient},
		Subject: draft.Subject,
		Body:    draft.Body,
	})
	if err != nil {
		return nil, err
	}
	o.discardDrafts(ctx, userID)
	o.log.Info().Str("user_id", userID).Str("draft_id", draft.ID).Str("message_id", id).Msg("Draft sent")

	return &models.ChatResponse{
		Response: "Sent the email to " + draft.Recipient + ".",
		Data:     map[string]any{"message_id": id},
	}, nil
}

// sendNthDraft sends the Nth most recent stored draft; N is 1-based
// with 1 the most recent.
func (o *Orchestrator) sendNthDraft(ctx context.Context, userID string, n int) (*models.ChatResponse, error) {
	if o.drafts == nil {
		return &models.ChatResponse{Response: "There are no stored drafts to send."}, nil
	}
	drafts, err := o.drafts.ListByUser(ctx, userID, o.draftListLimit)
	if err != nil {
		return nil, err
	}
	if n < 1 || n > len(drafts) {
		return &models.ChatResponse{
			Response: "You have " + strconv.Itoa(len(drafts)) + " stored drafts; draft " + strconv.Itoa(n) + " does not exist.",
		}, nil
	}
	draft := drafts[n-1]
	return o.sendPending(ctx, userID, &draft)
}

func (o *Orchestrator) discardDrafts(ctx context.Context, userID string) {
	o.liveDrafts.Remove(userID)
	if o.drafts != nil {
		if err := o.drafts.DeleteByUser(ctx, userID); err != nil {
			o.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to clear stored drafts")
		}
	}
}

// amendDraft asks the model to rewrite the pending draft per the user's
// instruction and restages the result. The old draft stays live if the
// rewrite fails.
func (o *Orchestrator) amendDraft(ctx context.Context, req models.ChatRequest, draft *models.PendingDraft) (*models.ChatResponse, error) {
	primary := req.ModelID
	if primary == "" {
		primary = o.registry.Default().ID
	}
	result, err := o.llm.Invoke(ctx, primary, llm.Request{
		Messages: []models.ConversationTurn{
			{Role: models.RoleUser, Content: amendPrompt(draft.Recipient, draft.Subject, draft.Body, req.Message)},
		},
		Temperature: 0.2,
		JSONOnly:    true,
	}, o.registry.FallbacksFor(primary))
	if err != nil {
		return nil, err
	}

	var revised struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(strings.TrimSpace(result.Content))), &revised); err != nil || revised.Body == "" {
		o.log.Warn().Err(err).Msg("Draft amendment unparsable, keeping current draft")
		return o.respond(ctx, req, &models.ChatResponse{
			Response:     "I couldn't apply that change. The draft is unchanged; tell me again what to adjust.",
			ModelUsed:    result.ModelUsed,
			UsedFallback: result.UsedFallback,
			TokenCount:   result.TokensUsed,
		})
	}
	if revised.To == "" {
		revised.To = draft.Recipient
	}
	if revised.Subject == "" {
		revised.Subject = draft.Subject
	}

	updated, err := o.stageDraft(ctx, req.UserID, revised.To, revised.Subject, revised.Body)
	if err != nil {
		return nil, err
	}
	return o.respond(ctx, req, &models.ChatResponse{
		Response: "Updated the draft to " + updated.Recipient + " with subject \"" + updated.Subject + "\":\n\n" + updated.Body +
			"\n\nReply \"confirm\" to send it, or tell me what to change.",
		ModelUsed:    result.ModelUsed,
		UsedFallback: result.UsedFallback,
		TokenCount:   result.TokensUsed,
		Data:         updated,
	})
}

// summarizeMessage produces a short plain-text summary of one email.
func (o *Orchestrator) summarizeMessage(ctx context.Context, msg *models.Message) (string, error) {
	result, err := o.llm.Invoke(ctx, o.registry.Default().ID, llm.Request{
		Messages: []models.ConversationTurn{
			{Role: models.RoleSystem, Content: "Summarize the email in at most three sentences of plain text. No preamble."},
			{Role: models.RoleUser, Content: summarizeUserPrompt(msg)},
		},
		MaxTokens:   200,
		Temperature: 0.2,
	}, o.registry.FallbacksFor(o.registry.Default().ID))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Content), nil
}

// rankImportant fetches the candidate window and ranks it. The extra
// keywords join the account's configured set for this call only. The
// fetch page's cursor is passed through so the caller can continue the
// window on the next request.
func (o *Orchestrator) rankImportant(ctx context.Context, account *models.Account, mailbox provider.Mailbox, timeRange classifier.TimeRange, pageToken string, extraKeywords []string) ([]models.ScoredMessage, string, error) {
	windowStart, err := timeRange.Window(o.now().UTC())
	if err != nil {
		return nil, "", err
	}
	page, err := mailbox.Fetch(ctx, provider.FilterSpec{
		After:      windowStart,
		MaxResults: fetchPageSize,
		PageToken:  pageToken,
	})
	if err != nil {
		return nil, "", err
	}
	keywords := append(append([]string{}, account.Keywords...), extraKeywords...)
	scored, err := o.ranker.Rank(ctx, account.UserID, page.Messages, keywords, timeRange)
	if err != nil {
		return nil, "", err
	}
	return scored, page.NextPageToken, nil
}

// FetchImportant serves the important-emails view outside the chat
// loop.
func (o *Orchestrator) FetchImportant(ctx context.Context, userID string, keywords []string, timeRange classifier.TimeRange, pageToken string) (*models.ImportantEmailsResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.New(apperrors.KindMissingParameter, "user_id is required")
	}
	account, err := o.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	mailbox, err := o.mailboxes.Mailbox(account)
	if err != nil {
		return nil, err
	}
	scored, nextPageToken, err := o.rankImportant(ctx, account, mailbox, timeRange, pageToken, keywords)
	if err != nil {
		return nil, err
	}
	return &models.ImportantEmailsResponse{Messages: scored, NextPageToken: nextPageToken}, nil
}
