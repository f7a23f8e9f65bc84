package branchcontext

import (
	"context"
	"testing"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/messages"
	"github.com/go-go-golems/forkchat/pkg/templates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *conversation.Store
	builder *Builder
	n0, n1  *conversation.Node
	branch  *conversation.Node
}

func newFixture(t *testing.T) *fixture {
	ctx := context.Background()
	s := conversation.NewStore()
	require.NoError(t, s.Open(ctx))

	n0, err := s.AddConversation(ctx, "What is Go?", "A language.", conversation.Metadata{})
	require.NoError(t, err)
	n1, err := s.AddConversation(ctx, "Who made it?", "Google.", conversation.Metadata{})
	require.NoError(t, err)
	h, err := s.CreateBranch(n0.ID, conversation.BranchTypeKnowledge, "")
	require.NoError(t, err)
	b, err := s.StartBranch(ctx, h, "Is it fast?", "Yes.", conversation.Metadata{})
	require.NoError(t, err)

	p := templates.NewMemoryProvider(&templates.Template{ID: "pirate", Text: "You are a pirate."})
	return &fixture{store: s, builder: NewBuilder(s, p), n0: n0, n1: n1, branch: b}
}

func userTexts(history []messages.Exchange) []string {
	ret := []string{}
	for _, e := range history {
		ret = append(ret, e.UserText)
	}
	return ret
}

func TestCreateBranchContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.builder.CreateBranchContext(ctx, nil, "pirate")
	require.NoError(t, err)
	assert.Empty(t, c.History)
	assert.NotNil(t, c.History)
	assert.Equal(t, "You are a pirate.", c.SystemPrompt)

	c, err = f.builder.CreateBranchContext(ctx, &f.n1.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"What is Go?", "Who made it?"}, userTexts(c.History))
	assert.Empty(t, c.SystemPrompt)

	c, err = f.builder.CreateBranchContext(ctx, &f.branch.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"What is Go?", "Is it fast?"}, userTexts(c.History))
	assert.Equal(t, "Yes.", c.History[1].AssistantText)
}

func TestCreateBranchContextErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	missing := conversation.NewNodeID()
	_, err := f.builder.CreateBranchContext(ctx, &missing, "")
	require.ErrorIs(t, err, conversation.ErrNotFound)

	_, err = f.builder.CreateBranchContext(ctx, &f.n0.ID, "ghost")
	require.ErrorIs(t, err, templates.ErrTemplateNotFound)

	noTemplates := NewBuilder(f.store, nil)
	_, err = noTemplates.CreateBranchContext(ctx, nil, "pirate")
	require.ErrorIs(t, err, templates.ErrTemplateNotFound)
}

func TestForBranchType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		branchType conversation.BranchType
		wantUsers  []string
		wantPrompt string
	}{
		{"virgin", conversation.BranchTypeVirgin, []string{}, ""},
		{"personality", conversation.BranchTypePersonality, []string{}, "You are a pirate."},
		{"knowledge", conversation.BranchTypeKnowledge, []string{"What is Go?", "Who made it?"}, "You are a pirate."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := f.builder.ForBranchType(ctx, tt.branchType, &f.n1.ID, "pirate")
			require.NoError(t, err)
			assert.Equal(t, tt.wantUsers, userTexts(c.History))
			assert.Equal(t, tt.wantPrompt, c.SystemPrompt)
		})
	}

	_, err := f.builder.ForBranchType(ctx, conversation.BranchType("sideways"), nil, "")
	require.ErrorIs(t, err, conversation.ErrInvalidBranchType)
}

func TestBuildContextChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.builder.BuildContextChain(ctx, &f.n1.ID, "pirate", "And then?")
	require.NoError(t, err)
	require.Len(t, c.Messages, 6)
	assert.Equal(t, messages.RoleSystem, c.Messages[0].Role)
	assert.Equal(t, "And then?", c.Messages[5].Text())
	assert.True(t, c.Metadata.HasSystemPrompt)
	assert.Equal(t, 4, c.Metadata.ParentHistoryLength)
	assert.True(t, c.Validate().Valid)

	_, err = f.builder.BuildContextChain(ctx, nil, "", "  ")
	require.ErrorIs(t, err, messages.ErrInvalidContent)
}
