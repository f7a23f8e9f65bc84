// Package llm defines the completion client the chat session talks to, with
// an OpenAI-compatible implementation and an offline echo client.
package llm

import (
	"context"
	"time"

	"github.com/go-go-golems/forkchat/pkg/messages"
)

type Options struct {
	Model       string
	Temperature *float64
	MaxTokens   int
}

type Response struct {
	Text         string    `json:"text"`
	Model        string    `json:"model,omitempty"`
	InputTokens  int       `json:"inputTokens,omitempty"`
	OutputTokens int       `json:"outputTokens,omitempty"`
	UsageTokens  int       `json:"usageTokens,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Client completes a validated message sequence. Implementations do not retry.
type Client interface {
	Complete(ctx context.Context, msgs []messages.Message, opts Options) (*Response, error)
}
