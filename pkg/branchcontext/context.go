// Package branchcontext decides what a new branch starts from: which earlier
// exchanges it inherits and which system prompt it runs under.
package branchcontext

import (
	"context"
	"strings"

	"github.com/go-go-golems/forkchat/pkg/chain"
	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/messages"
	"github.com/go-go-golems/forkchat/pkg/templates"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Context struct {
	History      []messages.Exchange `json:"history"`
	SystemPrompt string              `json:"systemPrompt"`
}

type Builder struct {
	store        *conversation.Store
	templates    templates.Provider
	chainOptions []chain.Option
}

func NewBuilder(store *conversation.Store, provider templates.Provider, opts ...chain.Option) *Builder {
	return &Builder{
		store:        store,
		templates:    provider,
		chainOptions: opts,
	}
}

// CreateBranchContext collects the history up to and including anchor, along
// the parent links from the root. A nil anchor starts from nothing. A blank
// templateID means no system prompt.
func (b *Builder) CreateBranchContext(ctx context.Context, anchor *conversation.NodeID, templateID string) (Context, error) {
	ret := Context{History: []messages.Exchange{}}

	if anchor != nil {
		if _, err := b.store.Get(*anchor); err != nil {
			return Context{}, err
		}
		ret.History = b.store.ExtractHistory(anchor.String())
	}

	prompt, err := b.templateText(ctx, templateID)
	if err != nil {
		return Context{}, err
	}
	ret.SystemPrompt = prompt

	log.Debug().
		Bool("anchored", anchor != nil).
		Str("template", templateID).
		Int("history", len(ret.History)).
		Msg("created branch context")

	return ret, nil
}

// ForBranchType applies the inheritance rule of a branch type on top of
// CreateBranchContext: virgin branches get neither history nor prompt,
// personality branches only the prompt, knowledge branches both.
func (b *Builder) ForBranchType(ctx context.Context, branchType conversation.BranchType, anchor *conversation.NodeID, templateID string) (Context, error) {
	switch branchType {
	case conversation.BranchTypeVirgin:
		return Context{History: []messages.Exchange{}}, nil
	case conversation.BranchTypePersonality:
		return b.CreateBranchContext(ctx, nil, templateID)
	case conversation.BranchTypeKnowledge, conversation.BranchTypeNone:
		return b.CreateBranchContext(ctx, anchor, templateID)
	default:
		return Context{}, errors.Wrapf(conversation.ErrInvalidBranchType, "unknown branch type %q", branchType)
	}
}

// BuildContextChain turns a branch context and the user's input into a
// message chain ready for the model.
func (b *Builder) BuildContextChain(ctx context.Context, anchor *conversation.NodeID, templateID string, userInput string) (*chain.Chain, error) {
	c, err := b.CreateBranchContext(ctx, anchor, templateID)
	if err != nil {
		return nil, err
	}
	return chain.BuildChain(c.SystemPrompt, c.History, userInput, b.chainOptions...)
}

func (b *Builder) templateText(ctx context.Context, templateID string) (string, error) {
	templateID = strings.TrimSpace(templateID)
	if templateID == "" {
		return "", nil
	}
	t, err := templates.Lookup(ctx, b.templates, templateID)
	if err != nil {
		return "", err
	}
	return t.Text, nil
}
