package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanMergeNodes(t *testing.T) {
	s, _ := newTestStore(t)
	n0 := addMain(t, s, "Hi", "Hello")
	n1 := addMain(t, s, "How are you?", "Fine")
	b := startBranch(t, s, n0, BranchTypeKnowledge, "side")
	b1 := continueBranch(t, s, b, "side again")
	nested := startBranch(t, s, b1, BranchTypeVirgin, "deep")
	other := startBranch(t, s, n1, BranchTypeKnowledge, "other side")

	tests := []struct {
		name   string
		source NodeID
		target NodeID
		want   bool
	}{
		{"branch end into main end", b1.ID, n1.ID, true},
		{"branch end into earlier main node", b1.ID, n0.ID, false},
		{"non end source", b.ID, n1.ID, false},
		{"self", b1.ID, b1.ID, false},
		{"same level branches", b1.ID, other.ID, true},
		{"nested into shallower branch", nested.ID, other.ID, true},
		{"shallower into nested branch", other.ID, nested.ID, false},
		{"missing source", NewNodeID(), n1.ID, false},
		{"missing target", b1.ID, NewNodeID(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.CanMergeNodes(tt.source, tt.target))
		})
	}
}

func TestMergeNodesErrors(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	n0 := addMain(t, s, "Hi", "Hello")
	b := startBranch(t, s, n0, BranchTypeKnowledge, "side")
	b1 := continueBranch(t, s, b, "side again")

	_, err := s.MergeNodes(ctx, b.ID, n0.ID)
	require.ErrorIs(t, err, ErrInvalidMerge)
	var mergeErr *InvalidMergeError
	require.ErrorAs(t, err, &mergeErr)
	assert.Equal(t, "0.1.0", mergeErr.Source)
	assert.Equal(t, "0", mergeErr.Target)
	assert.Contains(t, mergeErr.Reason, "source is not an end node")

	_, err = s.MergeNodes(ctx, NewNodeID(), n0.ID)
	require.ErrorIs(t, err, ErrInvalidMerge)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.MergeNodes(ctx, b1.ID, NewNodeID())
	require.ErrorIs(t, err, ErrInvalidMerge)
	require.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, s.MergeLog())
	assert.False(t, s.IsThreadMerged(b1.DisplayNumber))
}

func TestMergeNodesRecordsMerge(t *testing.T) {
	s, blob := newTestStore(t)
	ctx := context.Background()
	n0 := addMain(t, s, "Hi", "Hello")
	b := startBranch(t, s, n0, BranchTypeKnowledge, "side")
	b1 := continueBranch(t, s, b, "side again")

	rec, err := s.MergeNodes(ctx, b1.ID, n0.ID)
	require.NoError(t, err)
	assert.False(t, rec.ID.IsNull())
	assert.Equal(t, b1.ID, rec.SourceID)
	assert.Equal(t, n0.ID, rec.TargetID)
	assert.Equal(t, "0.1.1", rec.SourceDisplayNumber.String())
	assert.Equal(t, "0", rec.TargetDisplayNumber.String())
	assert.False(t, rec.MergedAt.IsZero())

	log := s.MergeLog()
	require.Len(t, log, 1)
	assert.Equal(t, rec.ID, log[0].ID)

	// a merge is a record; the graph itself is unchanged
	assert.Equal(t, 3, s.Len())
	got, err := s.Get(b1.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, *got.ParentID)

	reopened := NewStore(WithBlobStore(blob))
	require.NoError(t, reopened.Open(ctx))
	assert.True(t, reopened.IsThreadMerged(b.DisplayNumber))
	require.Len(t, reopened.MergeLog(), 1)
	assert.Equal(t, rec.SourceID, reopened.MergeLog()[0].SourceID)
}

func TestMergeNodesRejectsDuplicates(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	n0 := addMain(t, s, "Hi", "Hello")
	b := startBranch(t, s, n0, BranchTypeKnowledge, "side")
	other := startBranch(t, s, n0, BranchTypeKnowledge, "other")

	_, err := s.MergeNodes(ctx, b.ID, n0.ID)
	require.NoError(t, err)

	assert.True(t, s.CanMergeNodes(b.ID, other.ID), "structural check ignores the merge log")
	_, err = s.MergeNodes(ctx, b.ID, other.ID)
	require.ErrorIs(t, err, ErrInvalidMerge)
	assert.Len(t, s.MergeLog(), 1)
}
