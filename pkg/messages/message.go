// Package messages turns prompt/response exchanges into the ordered, role-tagged
// message sequence sent to a language model, and validates such sequences.
package messages

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrInvalidContent   = errors.New("invalid message content")
	ErrValidationFailed = errors.New("message validation failed")
)

const ContentTypeText = "text"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

type TextBlock struct {
	Type string `json:"type" yaml:"type"`
	Text string `json:"text" yaml:"text"`
}

type Message struct {
	Role    Role        `json:"role" yaml:"role"`
	Content []TextBlock `json:"content" yaml:"content"`
}

// Text returns the concatenated text of all content blocks.
func (m Message) Text() string {
	parts := make([]string, 0, len(m.Content))
	for _, b := range m.Content {
		parts = append(parts, b.Text)
	}
	return strings.Join(parts, "\n")
}

// NewMessage builds a single-block text message. The text is trimmed and must
// not be empty.
func NewMessage(role Role, text string) (Message, error) {
	if !role.IsValid() {
		return Message{}, errors.Wrapf(ErrInvalidContent, "unknown role %q", role)
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Message{}, errors.Wrapf(ErrInvalidContent, "empty %s message", role)
	}
	return Message{
		Role:    role,
		Content: []TextBlock{{Type: ContentTypeText, Text: trimmed}},
	}, nil
}

// Exchange is one prompt/response pair of conversation history.
type Exchange struct {
	UserText      string `json:"userText" yaml:"userText"`
	AssistantText string `json:"assistantText,omitempty" yaml:"assistantText,omitempty"`
}

type exchangeAlias struct {
	UserText      *string `json:"userText"`
	Prompt        *string `json:"prompt"`
	AssistantText *string `json:"assistantText"`
	Response      *string `json:"response"`
}

// UnmarshalJSON accepts both the current field names and the legacy
// prompt/response names.
func (e *Exchange) UnmarshalJSON(data []byte) error {
	var a exchangeAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = Exchange{}
	switch {
	case a.UserText != nil:
		e.UserText = *a.UserText
	case a.Prompt != nil:
		e.UserText = *a.Prompt
	}
	switch {
	case a.AssistantText != nil:
		e.AssistantText = *a.AssistantText
	case a.Response != nil:
		e.AssistantText = *a.Response
	}
	return nil
}
