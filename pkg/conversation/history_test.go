package conversation

import (
	"context"
	"testing"

	"github.com/go-go-golems/forkchat/pkg/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prompts(history []messages.Exchange) []string {
	ret := make([]string, 0, len(history))
	for _, e := range history {
		ret = append(ret, e.UserText)
	}
	return ret
}

// forkedStore builds 0 -> 0.1.0 -> 0.1.1 with 1 added to the main thread
// after the branch.
func forkedStore(t *testing.T) (*Store, map[string]*Node) {
	s, _ := newTestStore(t)
	n0 := addMain(t, s, "first", "one")
	b := startBranch(t, s, n0, BranchTypeKnowledge, "side")
	b1 := continueBranch(t, s, b, "side again")
	n1 := addMain(t, s, "second", "two")
	return s, map[string]*Node{"0": n0, "0.1.0": b, "0.1.1": b1, "1": n1}
}

func TestExtractConversationHistoryMain(t *testing.T) {
	s, _ := forkedStore(t)
	nodes := s.AllConversationsWithBranches()

	first := ExtractConversationHistory(nodes, MainThreadID)
	assert.Equal(t, []string{"first", "side", "side again"}, prompts(first))

	same := ExtractConversationHistoryWith(nodes, MainThreadID, WalkPreferSameThread)
	assert.Equal(t, []string{"first", "second"}, prompts(same))
	assert.Equal(t, "two", same[1].AssistantText)

	assert.Equal(t, prompts(first), prompts(s.ExtractHistory(MainThreadID)))
}

func TestExtractConversationHistoryByReference(t *testing.T) {
	s, byDN := forkedStore(t)
	nodes := s.AllConversationsWithBranches()

	byID := ExtractConversationHistory(nodes, byDN["0.1.1"].ID.String())
	assert.Equal(t, []string{"first", "side", "side again"}, prompts(byID))

	byNumber := ExtractConversationHistory(nodes, "1")
	assert.Equal(t, []string{"first", "second"}, prompts(byNumber))

	assert.Empty(t, ExtractConversationHistory(nodes, NewNodeID().String()))
	assert.Empty(t, ExtractConversationHistory(nodes, "7"))
	assert.Empty(t, ExtractConversationHistory(nodes, "not a ref"))
	assert.Empty(t, ExtractConversationHistory(nil, MainThreadID))
}

func TestHistoryForBranchTypes(t *testing.T) {
	s, _ := newTestStore(t)
	n0 := addMain(t, s, "first", "one")
	n1 := addMain(t, s, "second", "two")

	knowledge := startBranch(t, s, n1, BranchTypeKnowledge, "k")
	k1 := continueBranch(t, s, knowledge, "k again")
	virgin := startBranch(t, s, n1, BranchTypeVirgin, "v")
	v1 := continueBranch(t, s, virgin, "v again")

	h, err := s.CreateBranch(n1.ID, BranchTypePersonality, "Speak like a pirate.")
	require.NoError(t, err)
	personality, err := s.StartBranch(context.Background(), h, "p", "arr", Metadata{})
	require.NoError(t, err)
	p1 := continueBranch(t, s, personality, "p again")

	history, sys, err := s.HistoryFor(n1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, prompts(history))
	assert.Empty(t, sys)

	history, sys, err = s.HistoryFor(k1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "k"}, prompts(history))
	assert.Empty(t, sys)

	history, _, err = s.HistoryFor(virgin.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	history, _, err = s.HistoryFor(v1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"v"}, prompts(history))

	history, sys, err = s.HistoryFor(p1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"p"}, prompts(history))
	assert.Equal(t, "Speak like a pirate.", sys)

	history, _, err = s.HistoryFor(n0.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, _, err = s.HistoryFor(NewNodeID())
	require.ErrorIs(t, err, ErrNotFound)
}
