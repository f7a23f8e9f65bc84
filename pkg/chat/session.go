// Package chat drives one exchange end to end: store the prompt, resolve the
// context it runs in, call the model and write the answer back.
package chat

import (
	"context"
	"strings"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/helpers"
	"github.com/go-go-golems/forkchat/pkg/llm"
	"github.com/go-go-golems/forkchat/pkg/messages"
	"github.com/go-go-golems/forkchat/pkg/templates"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Session struct {
	store     *conversation.Store
	client    llm.Client
	templates templates.Provider
	defaults  llm.Options
}

type Option func(*Session)

func WithTemplates(p templates.Provider) Option {
	return func(s *Session) {
		s.templates = p
	}
}

// WithDefaults sets model options used when a call leaves them blank.
func WithDefaults(opts llm.Options) Option {
	return func(s *Session) {
		s.defaults = opts
	}
}

func NewSession(store *conversation.Store, client llm.Client, options ...Option) *Session {
	ret := &Session{
		store:  store,
		client: client,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// Ask appends prompt to the main thread and answers it.
func (s *Session) Ask(ctx context.Context, prompt string, opts llm.Options) (*conversation.Node, error) {
	opts = s.withDefaults(opts)
	n, err := s.store.AddConversation(ctx, prompt, "", initialMetadata(opts))
	if err != nil {
		return n, err
	}
	return s.complete(ctx, n, opts)
}

// Branch opens a branch under parentID and answers its first prompt. For
// personality branches the system prompt comes from templateID.
func (s *Session) Branch(ctx context.Context, parentID conversation.NodeID, branchType conversation.BranchType, templateID string, prompt string, opts llm.Options) (*conversation.Node, error) {
	systemPrompt := ""
	if strings.TrimSpace(templateID) != "" {
		t, err := templates.Lookup(ctx, s.templates, templateID)
		if err != nil {
			return nil, err
		}
		systemPrompt = t.Text
	}
	h, err := s.store.CreateBranch(parentID, branchType, systemPrompt)
	if err != nil {
		return nil, err
	}
	return s.AskBranch(ctx, h, prompt, opts)
}

// AskBranch materializes a planned branch with its first prompt and answers it.
func (s *Session) AskBranch(ctx context.Context, h conversation.BranchHandle, prompt string, opts llm.Options) (*conversation.Node, error) {
	opts = s.withDefaults(opts)
	n, err := s.store.StartBranch(ctx, h, prompt, "", initialMetadata(opts))
	if err != nil {
		return n, err
	}
	return s.complete(ctx, n, opts)
}

// Continue appends prompt to the branch branchNodeID belongs to and answers it.
func (s *Session) Continue(ctx context.Context, branchNodeID conversation.NodeID, prompt string, opts llm.Options) (*conversation.Node, error) {
	opts = s.withDefaults(opts)
	n, err := s.store.AddConversationToBranch(ctx, branchNodeID, prompt, "", initialMetadata(opts))
	if err != nil {
		return n, err
	}
	return s.complete(ctx, n, opts)
}

// Regenerate asks the model again for an existing node, typically one that
// ended in error.
func (s *Session) Regenerate(ctx context.Context, id conversation.NodeID, opts llm.Options) (*conversation.Node, error) {
	opts = s.withDefaults(opts)
	patch := conversation.Patch{
		Status:   helpers.Ptr(conversation.StatusProcessing),
		Response: helpers.Ptr(""),
	}
	if opts.Model != "" {
		patch.Model = helpers.Ptr(opts.Model)
	}
	n, err := s.store.UpdateConversation(ctx, id, patch)
	if err != nil {
		return n, err
	}
	return s.complete(ctx, n, opts)
}

func (s *Session) complete(ctx context.Context, n *conversation.Node, opts llm.Options) (*conversation.Node, error) {
	history, systemPrompt, err := s.store.HistoryFor(n.ID)
	if err != nil {
		return n, err
	}
	if answered := answeredExchanges(history); len(answered) != len(history) {
		log.Debug().
			Str("display_number", n.DisplayNumber.String()).
			Int("skipped", len(history)-len(answered)).
			Msg("leaving unanswered exchanges out of the request")
		history = answered
	}

	msgs := messages.BuildMessages(history, n.Prompt, systemPrompt)
	if res := messages.ValidateMessages(msgs); !res.Valid {
		verr := res.Err()
		log.Warn().
			Str("display_number", n.DisplayNumber.String()).
			Int("issues", len(res.Errors)).
			Msg("refusing to send invalid message sequence")
		return s.fail(ctx, n, verr)
	}

	log.Debug().
		Str("display_number", n.DisplayNumber.String()).
		Int("messages", len(msgs)).
		Bool("system_prompt", systemPrompt != "").
		Msg("requesting completion")

	resp, err := s.client.Complete(ctx, msgs, opts)
	if err != nil {
		return s.fail(ctx, n, errors.Wrapf(err, "completion for %s failed", n.DisplayNumber))
	}

	patch := conversation.Patch{
		Response: &resp.Text,
		Status:   helpers.Ptr(conversation.StatusComplete),
		Usage: &conversation.Usage{
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			TotalTokens:  resp.UsageTokens,
		},
	}
	if resp.Model != "" {
		patch.Model = &resp.Model
	}
	return s.store.UpdateConversation(ctx, n.ID, patch)
}

// fail marks n as errored and returns cause.
func (s *Session) fail(ctx context.Context, n *conversation.Node, cause error) (*conversation.Node, error) {
	updated, err := s.store.UpdateConversation(ctx, n.ID, conversation.Patch{
		Status: helpers.Ptr(conversation.StatusError),
		Extra:  map[string]interface{}{"error": cause.Error()},
	})
	if err != nil {
		log.Error().Err(err).Str("id", n.ID.String()).Msg("could not record failed completion")
		return n, cause
	}
	return updated, cause
}

// answeredExchanges drops exchanges that never got a response, such as
// ancestors whose completion failed. Those stay in the store with status
// error until they are regenerated.
func answeredExchanges(history []messages.Exchange) []messages.Exchange {
	ret := make([]messages.Exchange, 0, len(history))
	for _, ex := range history {
		if strings.TrimSpace(ex.UserText) == "" || strings.TrimSpace(ex.AssistantText) == "" {
			continue
		}
		ret = append(ret, ex)
	}
	return ret
}

func (s *Session) withDefaults(opts llm.Options) llm.Options {
	if opts.Model == "" {
		opts.Model = s.defaults.Model
	}
	if opts.Temperature == nil {
		opts.Temperature = s.defaults.Temperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = s.defaults.MaxTokens
	}
	return opts
}

func initialMetadata(opts llm.Options) conversation.Metadata {
	return conversation.Metadata{
		Model:       opts.Model,
		Temperature: helpers.Deref(opts.Temperature, 0),
	}
}
