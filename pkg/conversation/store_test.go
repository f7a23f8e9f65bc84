package conversation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/forkchat/pkg/helpers"
)

func TestAddConversationNumbersMainThread(t *testing.T) {
	s, blob := newTestStore(t)

	var nodes []*Node
	for i := 0; i < 12; i++ {
		nodes = append(nodes, addMain(t, s, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)))
	}

	for i, n := range nodes {
		assert.Equal(t, DisplayNumber{i}, n.DisplayNumber)
		assert.Equal(t, BranchTypeNone, n.BranchType)
		assert.Equal(t, 0, n.Depth)
		if i == 0 {
			assert.Nil(t, n.ParentID)
		} else {
			require.NotNil(t, n.ParentID)
			assert.Equal(t, nodes[i-1].ID, *n.ParentID)
		}
	}
	assert.Equal(t, 12, blob.saves)
	assert.Len(t, s.MainThread(), 12)
}

func TestAddConversationStatusDefaults(t *testing.T) {
	s, _ := newTestStore(t)

	answered := addMain(t, s, "Hi", "Hello")
	assert.Equal(t, StatusReady, answered.Status)

	pending := addMain(t, s, "Still thinking?", "")
	assert.Equal(t, StatusProcessing, pending.Status)

	_, err := s.AddConversation(context.Background(), "  ", "", Metadata{})
	require.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestUpdateConversation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	n := addMain(t, s, "Hi", "")
	temp := 0.3
	updated, err := s.UpdateConversation(ctx, n.ID, Patch{
		Response:    helpers.Ptr("Hello"),
		Status:      helpers.Ptr(StatusComplete),
		Model:       helpers.Ptr("gpt-4o-mini"),
		Temperature: &temp,
		Usage:       &Usage{InputTokens: 3, OutputTokens: 2, TotalTokens: 5},
		Extra:       map[string]interface{}{"finish_reason": "stop"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", updated.Response)
	assert.Equal(t, StatusComplete, updated.Status)
	assert.Equal(t, "gpt-4o-mini", updated.Metadata.Model)
	assert.Equal(t, 5, updated.Metadata.Usage.TotalTokens)
	assert.Equal(t, "stop", updated.Metadata.Extra["finish_reason"])
	assert.True(t, updated.UpdatedAt.After(n.UpdatedAt))

	_, err = s.UpdateConversation(ctx, NewNodeID(), Patch{Response: helpers.Ptr("x")})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.UpdateConversation(ctx, n.ID, Patch{Status: helpers.Ptr(Status("done"))})
	require.ErrorIs(t, err, ErrInvalidStatus)

	got, err := s.Get(n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, got.Status)
}

func TestReturnedNodesAreCopies(t *testing.T) {
	s, _ := newTestStore(t)
	n := addMain(t, s, "Hi", "Hello")
	n.Prompt = "mutated"

	got, err := s.Get(n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hi", got.Prompt)
}

func TestResolve(t *testing.T) {
	s, _ := newTestStore(t)
	root := addMain(t, s, "Hi", "Hello")
	b := startBranch(t, s, root, BranchTypeKnowledge, "Why?")

	got, err := s.Resolve("0.1.0")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	got, err = s.Resolve(root.ID.String())
	require.NoError(t, err)
	assert.Equal(t, root.ID, got.ID)

	_, err = s.Resolve("9")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Resolve("not-a-node")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPersistenceRoundTrip(t *testing.T) {
	s, blob := newTestStore(t)
	ctx := context.Background()

	n0 := addMain(t, s, "Hi", "Hello")
	n1 := addMain(t, s, "Next", "Sure")
	b1 := startBranch(t, s, n0, BranchTypeKnowledge, "Detail")
	b1b := continueBranch(t, s, b1, "More detail")
	nested := startBranch(t, s, b1, BranchTypeVirgin, "Fresh start")
	_ = startBranch(t, s, n1, BranchTypePersonality, "Pirate?")
	_, err := s.MergeNodes(ctx, b1b.ID, n1.ID)
	require.NoError(t, err)

	before := s.AllConversationsWithBranches()

	reloaded := NewStore(WithBlobStore(blob))
	require.NoError(t, reloaded.Open(ctx))
	after := reloaded.AllConversationsWithBranches()

	assert.Equal(t, displayNumbers(before), displayNumbers(after))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].ParentID, after[i].ParentID)
		assert.Equal(t, before[i].Seq, after[i].Seq)
		assert.True(t, before[i].CreatedAt.Equal(after[i].CreatedAt))
	}
	assert.True(t, reloaded.IsThreadMerged(b1.DisplayNumber))
	assert.Len(t, reloaded.MergeLog(), 1)
	assert.Len(t, reloaded.BranchChildren(b1.ID), 1)
	assert.Equal(t, nested.ID, reloaded.BranchChildren(b1.ID)[0].ID)

	next, err := reloaded.AddConversation(ctx, "After reload", "", Metadata{})
	require.NoError(t, err)
	assert.Equal(t, "2", next.DisplayNumber.String())
	assert.Greater(t, next.Seq, before[len(before)-1].Seq)

	h, err := reloaded.CreateBranch(n0.ID, BranchTypeKnowledge, "")
	require.NoError(t, err)
	assert.Equal(t, "0.2.0", h.PlannedDisplayNumber.String())
}

func TestStateShape(t *testing.T) {
	s, blob := newTestStore(t)
	n0 := addMain(t, s, "Hi", "Hello")
	_ = startBranch(t, s, n0, BranchTypeKnowledge, "Why?")

	st, err := DecodeState(blob.data)
	require.NoError(t, err)
	require.Len(t, st.Nodes, 2)
	assert.Equal(t, st.Nodes[0].Key, st.Nodes[0].Value.ID)
	assert.Equal(t, []NodeID{n0.ID}, st.MainThread)
	require.Len(t, st.Branches, 1)
	assert.Equal(t, n0.ID, st.Branches[0].Key)
	assert.Equal(t, int64(2), st.Counter)
	assert.Empty(t, st.MergedBranchPrefixes)

	assert.Contains(t, string(blob.data), `"nodes":[["`+n0.ID.String()+`",{`)
	assert.Contains(t, string(blob.data), `"displayNumber":"0.1.0"`)
}

func TestCleanedBranchIndexIsNotReusedAfterReopen(t *testing.T) {
	s, blob := newTestStore(t)
	ctx := context.Background()
	n0 := addMain(t, s, "Hi", "Hello")
	b := startBranch(t, s, n0, BranchTypeKnowledge, "Why?")

	st, err := DecodeState(blob.data)
	require.NoError(t, err)
	assert.Equal(t, []string{"0.1."}, st.UsedThreads)
	for _, p := range st.Nodes {
		if p.Key == b.ID {
			p.Value.Prompt = ""
		}
	}
	blob.data, err = EncodeState(st)
	require.NoError(t, err)

	s = NewStore(WithBlobStore(blob))
	require.NoError(t, s.Open(ctx))
	removed, err := s.CleanupEmptyThreads(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	reopened := NewStore(WithBlobStore(blob))
	require.NoError(t, reopened.Open(ctx))
	assert.Equal(t, 1, reopened.Len())
	h, err := reopened.CreateBranch(n0.ID, BranchTypeKnowledge, "")
	require.NoError(t, err)
	assert.Equal(t, "0.2.0", h.PlannedDisplayNumber.String())
}

func TestOpenRejectsDuplicateDisplayNumbers(t *testing.T) {
	s, blob := newTestStore(t)
	addMain(t, s, "Hi", "Hello")
	addMain(t, s, "Again", "Hello")

	st, err := DecodeState(blob.data)
	require.NoError(t, err)
	st.Nodes[1].Value.DisplayNumber = DisplayNumber{0}
	blob.data, err = EncodeState(st)
	require.NoError(t, err)

	reloaded := NewStore(WithBlobStore(blob))
	require.ErrorIs(t, reloaded.Open(context.Background()), ErrInvalidState)
	assert.Equal(t, 0, reloaded.Len())
}

func TestPersistFailureKeepsMutation(t *testing.T) {
	s, blob := newTestStore(t)
	blob.err = errDiskFull

	n, err := s.AddConversation(context.Background(), "Hi", "Hello", Metadata{})
	require.ErrorIs(t, err, ErrPersist)
	require.ErrorIs(t, err, errDiskFull)
	require.NotNil(t, n)
	assert.Equal(t, 1, s.Len())
}

func TestReset(t *testing.T) {
	s, blob := newTestStore(t)
	addMain(t, s, "Hi", "Hello")
	require.NoError(t, s.Reset(context.Background()))
	assert.Equal(t, 0, s.Len())

	reloaded := NewStore(WithBlobStore(blob))
	require.NoError(t, reloaded.Open(context.Background()))
	assert.Equal(t, 0, reloaded.Len())

	n := addMain(t, s, "Fresh", "")
	assert.Equal(t, "0", n.DisplayNumber.String())
}

func TestCleanupEmptyThreads(t *testing.T) {
	s, blob := newTestStore(t)
	ctx := context.Background()
	n0 := addMain(t, s, "Hi", "Hello")
	n1 := addMain(t, s, "Second", "Ok")
	b := startBranch(t, s, n1, BranchTypeKnowledge, "Branch q")
	b2 := continueBranch(t, s, b, "Branch q2")
	n2 := addMain(t, s, "Third", "Ok")

	// Blank prompts can only come from older persisted state.
	st, err := DecodeState(blob.data)
	require.NoError(t, err)
	for _, p := range st.Nodes {
		if p.Key == n1.ID || p.Key == b.ID {
			p.Value.Prompt = " "
		}
	}
	blob.data, err = EncodeState(st)
	require.NoError(t, err)
	s = NewStore(WithBlobStore(blob))
	require.NoError(t, s.Open(ctx))

	removed, err := s.CleanupEmptyThreads(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"0", "1.1.1", "2"}, displayNumbers(s.AllConversationsWithBranches()))

	got, err := s.Get(b2.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, n0.ID, *got.ParentID)

	got, err = s.Get(n2.ID)
	require.NoError(t, err)
	assert.Equal(t, n0.ID, *got.ParentID)

	next := addMain(t, s, "Fourth", "")
	assert.Equal(t, "3", next.DisplayNumber.String())

	removed, err = s.CleanupEmptyThreads(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestListenerReceivesEvents(t *testing.T) {
	var events []Event
	s, _ := newTestStore(t, WithListener(ListenerFunc(func(e Event) {
		events = append(events, e)
	})))
	ctx := context.Background()

	n0 := addMain(t, s, "Hi", "")
	_, err := s.UpdateConversation(ctx, n0.ID, Patch{Status: helpers.Ptr(StatusComplete)})
	require.NoError(t, err)
	b := startBranch(t, s, n0, BranchTypeKnowledge, "Why?")
	_, err = s.MergeNodes(ctx, b.ID, n0.ID)
	require.NoError(t, err)

	types := make([]EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []EventType{EventNodeCreated, EventNodeUpdated, EventBranchMaterialized, EventThreadMerged}, types)
	assert.Equal(t, StatusComplete, events[1].Status)
	require.NotNil(t, events[3].Merge)
	assert.Equal(t, "0.1.0", events[3].DisplayNumber)
}
