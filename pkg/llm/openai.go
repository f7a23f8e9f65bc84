package llm

import (
	"context"
	"strings"
	"time"

	"github.com/go-go-golems/forkchat/pkg/messages"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

const DefaultOpenAIModel = go_openai.GPT3Dot5Turbo

type OpenAIClient struct {
	client       *go_openai.Client
	defaultModel string
}

var _ Client = (*OpenAIClient)(nil)

type OpenAIOption func(*OpenAIClient)

func WithDefaultModel(model string) OpenAIOption {
	return func(c *OpenAIClient) {
		if strings.TrimSpace(model) != "" {
			c.defaultModel = model
		}
	}
}

// NewOpenAIClient talks to the OpenAI chat completions API, or any compatible
// server when baseURL is set.
func NewOpenAIClient(apiKey string, baseURL string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("no API key for openai")
	}
	config := go_openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	ret := &OpenAIClient{
		client:       go_openai.NewClientWithConfig(config),
		defaultModel: DefaultOpenAIModel,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, msgs []messages.Message, opts Options) (*Response, error) {
	model := opts.Model
	if model == "" {
		model = c.defaultModel
	}
	req := go_openai.ChatCompletionRequest{
		Model:     model,
		Messages:  ToOpenAIMessages(msgs),
		MaxTokens: opts.MaxTokens,
	}
	if opts.Temperature != nil {
		req.Temperature = float32(*opts.Temperature)
	}

	log.Debug().
		Str("model", model).
		Int("messages", len(req.Messages)).
		Msg("sending chat completion request")

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	ret := &Response{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		UsageTokens:  resp.Usage.TotalTokens,
		Timestamp:    time.Now(),
	}
	if ret.Model == "" {
		ret.Model = model
	}
	if resp.Created > 0 {
		ret.Timestamp = time.Unix(resp.Created, 0)
	}
	return ret, nil
}

func ToOpenAIMessages(msgs []messages.Message) []go_openai.ChatCompletionMessage {
	ret := make([]go_openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		ret = append(ret, go_openai.ChatCompletionMessage{
			Role:    toOpenAIRole(m.Role),
			Content: m.Text(),
		})
	}
	return ret
}

func toOpenAIRole(role messages.Role) string {
	switch role {
	case messages.RoleSystem:
		return go_openai.ChatMessageRoleSystem
	case messages.RoleAssistant:
		return go_openai.ChatMessageRoleAssistant
	case messages.RoleUser:
		return go_openai.ChatMessageRoleUser
	default:
		return string(role)
	}
}
