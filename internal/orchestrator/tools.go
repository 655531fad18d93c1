package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mailmind/internal/classifier"
	apperrors "mailmind/internal/errors"
	"mailmind/internal/models"
	"mailmind/internal/provider"
)

// toolEnv is everything a tool invocation may touch. Staging a draft
// and ranking importance go through callbacks so tools stay free of
// orchestrator internals.
type toolEnv struct {
	userID    string
	account   *models.Account
	mailbox   provider.Mailbox
	stage     func(ctx context.Context, recipient, subject, body string) (*models.PendingDraft, error)
	rank      func(ctx context.Context, timeRange classifier.TimeRange) ([]models.ScoredMessage, error)
	summarize func(ctx context.Context, msg *models.Message) (string, error)
}

// ToolResult is what a tool hands back: text for the user plus optional
// structured data.
type ToolResult struct {
	Text string
	Data any
}

// Tool is one dispatchable mailbox operation.
type Tool struct {
	Name        string
	Description string
	Run         func(ctx context.Context, env *toolEnv, params map[string]any) (*ToolResult, error)
}

// toolRegistry maps action names to tools, preserving registration
// order for prompt construction.
type toolRegistry struct {
	byName  map[string]*Tool
	ordered []*Tool
}

func (r *toolRegistry) register(t *Tool) {
	r.byName[t.Name] = t
	r.ordered = append(r.ordered, t)
}

// dispatch runs the named tool. An unknown action is the model's fault,
// not the user's; it reads as an unrecognized intent upstream.
func (r *toolRegistry) dispatch(ctx context.Context, env *toolEnv, action string, params map[string]any) (*ToolResult, bool, error) {
	tool, ok := r.byName[action]
	if !ok {
		return nil, false, nil
	}
	res, err := tool.Run(ctx, env, params)
	return res, true, err
}

// stringParam extracts a required string parameter.
func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", apperrors.Newf(apperrors.KindMissingParameter, "missing required parameter %q", key)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", apperrors.Newf(apperrors.KindMissingParameter, "parameter %q must be a non-empty string", key)
	}
	return strings.TrimSpace(s), nil
}

func optStringParam(params map[string]any, key string) string {
	if s, ok := params[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func optBoolParam(params map[string]any, key string, def bool) bool {
	if b, ok := params[key].(bool); ok {
		return b
	}
	return def
}

func optIntParam(params map[string]any, key string) int64 {
	switch v := params[key].(type) {
	case float64: // JSON numbers decode to float64
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}

// parseFilter maps tool params onto a FilterSpec. Dates accept either a
// bare day or full RFC 3339.
func parseFilter(params map[string]any) (provider.FilterSpec, error) {
	spec := provider.FilterSpec{
		View:       provider.View(optStringParam(params, "filter")),
		Query:      optStringParam(params, "query"),
		MaxResults: optIntParam(params, "max_results"),
		PageToken:  optStringParam(params, "page_token"),
	}
	var err error
	if spec.After, err = parseDateParam(params, "after"); err != nil {
		return spec, err
	}
	if spec.Before, err = parseDateParam(params, "before"); err != nil {
		return spec, err
	}
	return spec, spec.Validate()
}

func parseDateParam(params map[string]any, key string) (time.Time, error) {
	raw := optStringParam(params, key)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperrors.Newf(apperrors.KindInvalidFilter, "unparsable %s date %q", key, raw)
}

func newToolRegistry() *toolRegistry {
	r := &toolRegistry{byName: make(map[string]*Tool)}

	r.register(&Tool{
		Name:        "fetch_emails",
		Description: "List emails. Params: filter (all|unread|starred|sent|drafts|important), query, after, before, max_results, page_token.",
		Run: func(ctx context.Context, env *toolEnv, params map[string]any) (*ToolResult, error) {
			spec, err := parseFilter(params)
			if err != nil {
				return nil, err
			}
			page, err := env.mailbox.Fetch(ctx, spec)
			if err != nil {
				return nil, err
			}
			return &ToolResult{
				Text: fmt.Sprintf("Found %d emails.", len(page.Messages)),
				Data: page,
			}, nil
		},
	})

	r.register(&Tool{
		Name:        "search_emails",
		Description: "Full-text search. Params: query (required), filter, max_results.",
		Run: func(ctx context.Context, env *toolEnv, params map[string]any) (*ToolResult, error) {
			if _, err := stringParam(params, "query"); err != nil {
				return nil, err
			}
			spec, err := parseFilter(params)
			if err != nil {
				return nil, err
			}
			page, err := env.mailbox.Fetch(ctx, spec)
			if err != nil {
				return nil, err
			}
			return &ToolResult{
				Text: fmt.Sprintf("Found %d emails matching %q.", len(page.Messages), spec.Query),
				Data: page,
			}, nil
		},
	})

	r.register(&Tool{
		Name:        "count_emails",
		Description: "Count emails matching a filter. Params: filter, query, after, before.",
		Run: func(ctx context.Context, env *toolEnv, params map[string]any) (*ToolResult, error) {
			spec, err := parseFilter(params)
			if err != nil {
				return nil, err
			}
			// Count one full page; the page size bounds the answer the
			// same way the fetch view does.
			page, err := env.mailbox.Fetch(ctx, spec)
			if err != nil {
				return nil, err
			}
			n := len(page.Messages)
			text := fmt.Sprintf("You have %d %s emails.", n, spec.View)
			if spec.View == "" || spec.View == provider.ViewAll {
				text = fmt.Sprintf("You have %d emails.", n)
			}
			if page.NextPageToken != "" {
				text = fmt.Sprintf("You have at least %d emails.", n)
			}
			return &ToolResult{Text: text, Data: map[string]any{"count": n, "more": page.NextPageToken != ""}}, nil
		},
	})

	r.register(&Tool{
		Name:        "read_email",
		Description: "Read one email in full. Params: message_id (required).",
		Run: func(ctx context.Context, env *toolEnv, params map[string]any) (*ToolResult, error) {
			id, err := stringParam(params, "message_id")
			if err != nil {
				return nil, err
			}
			msg, err := env.mailbox.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			return &ToolResult{
				Text: fmt.Sprintf("Email from %s: %s", msg.From, msg.Subject),
				Data: msg,
			}, nil
		},
	})

	stageDraft := func(ctx context.Context, env *toolEnv, params map[string]any) (*ToolResult, error) {
		to, err := stringParam(params, "to")
		if err != nil {
			return nil, err
		}
		body, err := stringParam(params, "body")
		if err != nil {
			return nil, err
		}
		draft, err := env.stage(ctx, to, optStringParam(params, "subject"), body)
		if err != nil {
			return nil, err
		}
		return &ToolResult{
			Text: fmt.Sprintf("I've drafted an email to %s with subject %q:\n\n%s\n\nReply \"confirm\" to send it, or tell me what to change.", draft.Recipient, draft.Subject, draft.Body),
			Data: draft,
		}, nil
	}

	r.register(&Tool{
		Name:        "draft_email",
		Description: "Draft an email for user confirmation. Params: to (required), subject, body (required).",
		Run:         stageDraft,
	})

	// send_email stages exactly like draft_email. Nothing leaves the
	// mailbox without an explicit confirmation turn.
	r.register(&Tool{
		Name:        "send_email",
		Description: "Prepare an email to send; the user must confirm before anything is sent. Params: to (required), subject, body (required).",
		Run:         stageDraft,
	})

	r.register(&Tool{
		Name:        "reply_email",
		Description: "Draft a reply to an email for user confirmation. Params: message_id (required), body (required).",
		Run: func(ctx context.Context, env *toolEnv, params map[string]any) (*ToolResult, error) {
			id, err := stringParam(params, "message_id")
			if err != nil {
				return nil, err
			}
			body, err := stringParam(params, "body")
			if err != nil {
				return nil, err
			}
			original, err := env.mailbox.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			subject := original.Subject
			if !strings.HasPrefix(strings.ToLower(subject), "re:") {
				subject = "Re: " + subject
			}
			draft, err := env.stage(ctx, original.From, subject, body)
			if err != nil {
				return nil, err
			}
			return &ToolResult{
				Text: fmt.Sprintf("I've drafted a reply to %s:\n\n%s\n\nReply \"confirm\" to send it, or tell me what to change.", draft.Recipient, draft.Body),
				Data: draft,
			}, nil
		},
	})

	r.register(&Tool{
		Name:        "summarize_email",
		Description: "Summarize one email. Params: message_id (required).",
		Run: func(ctx context.Context, env *toolEnv, params map[string]any) (*ToolResult, error) {
			id, err := stringParam(params, "message_id")
			if err != nil {
				return nil, err
			}
			msg, err := env.mailbox.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			summary, err := env.summarize(ctx, msg)
			if err != nil {
				return nil, err
			}
			return &ToolResult{Text: summary, Data: map[string]any{"message_id": msg.ID, "summary": summary}}, nil
		},
	})

	r.register(&Tool{
		Name:        "delete_email",
		Description: "Move an email to trash. Params: message_id (required).",
		Run: func(ctx context.Context, env *toolEnv, params map[string]any) (*ToolResult, error) {
			id, err := stringParam(params, "message_id")
			if err != nil {
				return nil, err
			}
			if err := env.mailbox.Trash(ctx, id); err != nil {
				return nil, err
			}
			return &ToolResult{Text: "Moved the email to trash."}, nil
		},
	})

	r.register(&Tool{
		Name:        "mark_read",
		Description: "Mark an email read or unread. Params: message_id (required), read (default true).",
		Run: func(ctx context.Context, env *toolEnv, params map[string]any) (*ToolResult, error) {
			id, err := stringParam(params, "message_id")
			if err != nil {
				return nil, err
			}
			read := optBoolParam(params, "read", true)
			if err := env.mailbox.MarkRead(ctx, id, read); err != nil {
				return nil, err
			}
			if read {
				return &ToolResult{Text: "Marked the email as read."}, nil
			}
			return &ToolResult{Text: "Marked the email as unread."}, nil
		},
	})

	r.register(&Tool{
		Name:        "list_attachments",
		Description: "List an email's attachments. Params: message_id (required).",
		Run: func(ctx context.Context, env *toolEnv, params map[string]any) (*ToolResult, error) {
			id, err := stringParam(params, "message_id")
			if err != nil {
				return nil, err
			}
			infos, err := env.mailbox.ListAttachments(ctx, id)
			if err != nil {
				return nil, err
			}
			return &ToolResult{
				Text: fmt.Sprintf("The email has %d attachments.", len(infos)),
				Data: infos,
			}, nil
		},
	})

	r.register(&Tool{
		Name:        "important_emails",
		Description: "Rank recent emails by importance. Params: time_range (daily|weekly|monthly, default daily).",
		Run: func(ctx context.Context, env *toolEnv, params map[string]any) (*ToolResult, error) {
			timeRange := classifier.TimeRange(optStringParam(params, "time_range"))
			if timeRange == "" {
				timeRange = classifier.RangeDaily
			}
			scored, err := env.rank(ctx, timeRange)
			if err != nil {
				return nil, err
			}
			return &ToolResult{
				Text: fmt.Sprintf("Found %d important emails in the %s window.", len(scored), timeRange),
				Data: scored,
			}, nil
		},
	})

	return r
}
