// Package escalate hands low-confidence outcomes to a human reviewer.
package escalate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNotConfigured is returned by escalators missing required settings.
var ErrNotConfigured = errors.New("escalation not configured")

// Ticket is the payload handed to the reviewer.
type Ticket struct {
	Prompt         string   `json:"prompt"`
	UserContext    string   `json:"user_context"`
	TaskType       string   `json:"task_type,omitempty"`
	Model          string   `json:"model,omitempty"`
	Provider       string   `json:"provider,omitempty"`
	ResponseText   string   `json:"response_text,omitempty"`
	ProvidersTried []string `json:"providers_tried,omitempty"`
	Error          string   `json:"error,omitempty"`
	Confidence     float64  `json:"confidence"`
	Threshold      float64  `json:"threshold"`
	Step           int      `json:"step"`
}

// Fingerprint identifies the ticket by user context and prompt so the
// tracker can collapse duplicates.
func (t Ticket) Fingerprint() string {
	sum := sha256.Sum256([]byte(t.UserContext + "\x00" + t.Prompt))
	return hex.EncodeToString(sum[:8])
}

// Title returns a short issue title.
func (t Ticket) Title() string {
	p := strings.Join(strings.Fields(t.Prompt), " ")
	if r := []rune(p); len(r) > 60 {
		p = string(r[:60]) + "..."
	}
	return fmt.Sprintf("[review] confidence %.2f: %s", t.Confidence, p)
}

// Body renders the ticket as markdown.
func (t Ticket) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Confidence **%.2f** is below the threshold %.2f at step %d.\n\n", t.Confidence, t.Threshold, t.Step)
	fmt.Fprintf(&b, "- user context: `%s`\n", t.UserContext)
	if t.TaskType != "" {
		fmt.Fprintf(&b, "- task type: `%s`\n", t.TaskType)
	}
	if t.Model != "" {
		fmt.Fprintf(&b, "- model: `%s` (%s)\n", t.Model, t.Provider)
	}
	if len(t.ProvidersTried) > 0 {
		fmt.Fprintf(&b, "- providers tried: %s\n", strings.Join(t.ProvidersTried, " → "))
	}
	if t.Error != "" {
		fmt.Fprintf(&b, "- error: `%s`\n", t.Error)
	}
	fmt.Fprintf(&b, "\n### Prompt\n\n```\n%s\n```\n", t.Prompt)
	if t.ResponseText != "" {
		fmt.Fprintf(&b, "\n### Response\n\n```\n%s\n```\n", t.ResponseText)
	}
	fmt.Fprintf(&b, "\n<!-- fingerprint: %s -->\n", t.Fingerprint())
	return b.String()
}

// Escalator creates a trackable ticket and returns its URL.
type Escalator interface {
	Escalate(ctx context.Context, t Ticket) (string, error)
}

// Func adapts a function to Escalator.
type Func func(ctx context.Context, t Ticket) (string, error)

// Escalate calls f.
func (f Func) Escalate(ctx context.Context, t Ticket) (string, error) {
	return f(ctx, t)
}

// Log records tickets in the log only. It returns no URL.
type Log struct {
	Logger zerolog.Logger
}

// Escalate logs the ticket at warn level.
func (l Log) Escalate(_ context.Context, t Ticket) (string, error) {
	l.Logger.Warn().
		Str("fingerprint", t.Fingerprint()).
		Str("user_context", t.UserContext).
		Float64("confidence", t.Confidence).
		Str("model", t.Model).
		Str("error", t.Error).
		Msg("escalated for human review")
	return "", nil
}
