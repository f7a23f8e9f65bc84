package llm

import (
	"context"
	"time"

	"github.com/go-go-golems/forkchat/pkg/messages"
)

const EchoModel = "echo"

// EchoClient answers with the last user message. It is used offline and in tests.
type EchoClient struct {
	Prefix string
	Now    func() time.Time
}

var _ Client = (*EchoClient)(nil)

func NewEchoClient() *EchoClient {
	return &EchoClient{Now: time.Now}
}

func (e *EchoClient) Complete(ctx context.Context, msgs []messages.Message, opts Options) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := ""
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == messages.RoleUser {
			text = msgs[i].Text()
			break
		}
	}

	model := opts.Model
	if model == "" {
		model = EchoModel
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return &Response{
		Text:         e.Prefix + text,
		Model:        model,
		InputTokens:  len(msgs),
		OutputTokens: 1,
		UsageTokens:  len(msgs) + 1,
		Timestamp:    now(),
	}, nil
}
