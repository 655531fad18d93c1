package orchestrator

import (
	"encoding/json"
	"strings"
)

// IntentKind discriminates what a model reply asks the orchestrator to
// do.
type IntentKind int

const (
	// IntentUnrecognized is any reply that fits none of the known shapes.
	IntentUnrecognized IntentKind = iota
	// IntentAction requests a mailbox tool invocation.
	IntentAction
	// IntentData carries structured data plus display text.
	IntentData
	// IntentChat is plain conversational text.
	IntentChat
)

// Intent is the decoded form of one model reply. Exactly one of the
// variants is populated, matching Kind.
type Intent struct {
	Kind    IntentKind
	Action  string
	Params  map[string]any
	Message string
	Data    any
}

// intentProbe is the union of every reply shape the system prompt
// allows. Decoding probes the fields rather than trusting the model to
// emit exactly one.
type intentProbe struct {
	Action  string          `json:"action"`
	Params  map[string]any  `json:"params"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Chat    string          `json:"chat"`
}

// DecodeIntent parses a model reply into an Intent. Code fences are
// stripped first since models wrap JSON in them despite instructions.
// Anything unparsable or empty decodes to IntentUnrecognized rather
// than an error; the caller owns the clarification turn.
func DecodeIntent(raw string) Intent {
	text := stripCodeFence(strings.TrimSpace(raw))
	if text == "" {
		return Intent{Kind: IntentUnrecognized}
	}

	var probe intentProbe
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		// Non-JSON output from a chat-tuned model is conversational text.
		if !strings.HasPrefix(text, "{") {
			return Intent{Kind: IntentChat, Message: text}
		}
		return Intent{Kind: IntentUnrecognized}
	}

	switch {
	case probe.Action != "":
		params := probe.Params
		if params == nil {
			params = map[string]any{}
		}
		return Intent{Kind: IntentAction, Action: probe.Action, Params: params}
	case len(probe.Data) > 0 && string(probe.Data) != "null":
		var data any
		if err := json.Unmarshal(probe.Data, &data); err != nil {
			return Intent{Kind: IntentUnrecognized}
		}
		return Intent{Kind: IntentData, Message: probe.Message, Data: data}
	case probe.Chat != "":
		return Intent{Kind: IntentChat, Message: probe.Chat}
	case probe.Message != "":
		return Intent{Kind: IntentChat, Message: probe.Message}
	default:
		return Intent{Kind: IntentUnrecognized}
	}
}

// stripCodeFence removes a surrounding markdown code fence, with or
// without a language tag.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop the language tag line, like "json".
		first := strings.TrimSpace(s[:i])
		if first == "" || !strings.ContainsAny(first, "{}") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
