package orchestrator

import (
	"fmt"
	"strings"

	"mailmind/internal/models"
)

// systemPrompt instructs the model to answer in exactly one of the
// reply shapes DecodeIntent understands.
func (o *Orchestrator) systemPrompt(mailboxSummary string) string {
	var b strings.Builder
	b.WriteString("You are an email assistant. You manage the user's mailbox through tools.\n\n")
	b.WriteString("Respond with a single JSON object in exactly one of these shapes:\n")
	b.WriteString(`1. {"action": "<tool>", "params": {...}} to run a mailbox tool.` + "\n")
	b.WriteString(`2. {"data": <structured result>, "message": "<text for the user>"} to present data.` + "\n")
	b.WriteString(`3. {"chat": "<text>"} for plain conversation.` + "\n\n")
	b.WriteString("Available tools:\n")
	for _, tool := range o.tools.ordered {
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name, tool.Description)
	}
	b.WriteString("\nNever claim an email was sent. Sending always requires the user to confirm a draft first.\n")
	b.WriteString("No prose outside the JSON object.\n")
	if mailboxSummary != "" {
		b.WriteString("\nMailbox summary:\n")
		b.WriteString(mailboxSummary)
		b.WriteString("\n")
	}
	return b.String()
}

// summarizeUserPrompt formats one email for summarization, with the
// body bounded.
func summarizeUserPrompt(msg *models.Message) string {
	body := msg.Body
	const maxBody = 4000
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return fmt.Sprintf("From: %s\nSubject: %s\n\n%s", msg.From, msg.Subject, body)
}

// amendPrompt asks the model to rewrite a pending draft per the user's
// instruction, keeping the same JSON contract as draft_email params.
func amendPrompt(recipient, subject, body, instruction string) string {
	return fmt.Sprintf(
		"Revise this email draft per the user's instruction. Respond with a single JSON object "+
			`{"to": "...", "subject": "...", "body": "..."} and nothing else.`+
			"\n\nCurrent draft:\nTo: %s\nSubject: %s\n\n%s\n\nInstruction: %s",
		recipient, subject, body, instruction)
}
