// Package chain assembles a system prompt, inherited history and a new user
// input into a ready-to-send message chain, with metadata describing it.
package chain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/forkchat/pkg/messages"
)

// TokenCounter estimates the token footprint of a message chain.
type TokenCounter interface {
	CountMessages(msgs []messages.Message) (int, error)
}

type Metadata struct {
	TotalMessages       int       `json:"totalMessages"`
	HasSystemPrompt     bool      `json:"hasSystemPrompt"`
	ParentHistoryLength int       `json:"parentHistoryLength"`
	CreatedAt           time.Time `json:"createdAt"`
	EstimatedTokens     int       `json:"estimatedTokens,omitempty"`
}

type Chain struct {
	Messages []messages.Message `json:"messages"`
	Metadata Metadata           `json:"metadata"`
}

type options struct {
	counter TokenCounter
	now     func() time.Time
}

type Option func(*options)

func WithTokenCounter(counter TokenCounter) Option {
	return func(o *options) {
		o.counter = counter
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// BuildChain orders the chain as system prompt, inherited history, new input.
// The new input is required.
func BuildChain(systemPrompt string, history []messages.Exchange, newInput string, opts ...Option) (*Chain, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if strings.TrimSpace(newInput) == "" {
		return nil, errors.Wrap(messages.ErrInvalidContent, "chain requires a new user input")
	}

	msgs := messages.BuildMessages(history, newInput, systemPrompt)
	historyMsgs := messages.ExchangesToMessages(history)

	ret := &Chain{
		Messages: msgs,
		Metadata: Metadata{
			TotalMessages:       len(msgs),
			HasSystemPrompt:     len(msgs) > 0 && msgs[0].Role == messages.RoleSystem,
			ParentHistoryLength: len(historyMsgs),
			CreatedAt:           o.now(),
		},
	}

	if o.counter != nil {
		n, err := o.counter.CountMessages(msgs)
		if err != nil {
			log.Warn().Err(err).Msg("could not estimate chain tokens")
		} else {
			ret.Metadata.EstimatedTokens = n
		}
	}

	log.Debug().
		Int("total_messages", ret.Metadata.TotalMessages).
		Bool("has_system_prompt", ret.Metadata.HasSystemPrompt).
		Int("parent_history_length", ret.Metadata.ParentHistoryLength).
		Msg("built conversation chain")

	return ret, nil
}

// Validate runs ValidateChain on the chain's messages.
func (c *Chain) Validate() messages.ValidationResult {
	if c == nil {
		return ValidateChain(nil)
	}
	return ValidateChain(c.Messages)
}
