// Package tokens estimates token counts of message chains with a tiktoken codec.
package tokens

import (
	"strings"

	"github.com/go-go-golems/forkchat/pkg/messages"
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

// Per-message overhead of the chat format, as counted for the gpt-3.5/4 family.
const (
	tokensPerMessage = 3
	tokensPerReply   = 3
)

type Counter struct {
	codec tokenizer.Codec
}

// NewCounter picks the codec for model, falling back to cl100k_base when the
// model is empty or unknown to the tokenizer.
func NewCounter(model string) (*Counter, error) {
	if model = strings.TrimSpace(model); model != "" {
		if c, err := tokenizer.ForModel(tokenizer.Model(model)); err == nil {
			return &Counter{codec: c}, nil
		}
	}
	return NewCounterForEncoding(string(tokenizer.Cl100kBase))
}

func NewCounterForEncoding(encoding string) (*Counter, error) {
	c, err := tokenizer.Get(tokenizer.Encoding(encoding))
	if err != nil {
		return nil, errors.Wrapf(err, "could not load tokenizer encoding %s", encoding)
	}
	return &Counter{codec: c}, nil
}

func (c *Counter) Count(text string) (int, error) {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0, errors.Wrap(err, "could not encode text")
	}
	return len(ids), nil
}

// CountMessages estimates the prompt size of msgs including role markers.
func (c *Counter) CountMessages(msgs []messages.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	total := tokensPerReply
	for _, m := range msgs {
		n, err := c.Count(string(m.Role))
		if err != nil {
			return 0, err
		}
		total += tokensPerMessage + n
		for _, block := range m.Content {
			n, err := c.Count(block.Text)
			if err != nil {
				return 0, err
			}
			total += n
		}
	}
	return total, nil
}
