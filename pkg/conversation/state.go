package conversation

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// Pair serializes as a two-element JSON array, [key, value].
type Pair[K any, V any] struct {
	Key   K
	Value V
}

func (p Pair[K, V]) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{p.Key, p.Value})
}

func (p *Pair[K, V]) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return errors.Errorf("expected [key, value] pair, got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.Key); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &p.Value)
}

// State is the serialized form of a Store, handed to the BlobStore after
// every mutation.
type State struct {
	Nodes                []Pair[NodeID, *Node]       `json:"nodes"`
	MainThread           []NodeID                    `json:"mainThread"`
	Branches             []Pair[NodeID, []NodeID]    `json:"branches"`
	MergedBranchPrefixes []string                    `json:"mergedBranchPrefixes"`
	MergeLog             []Pair[NodeID, MergeRecord] `json:"mergeLog"`
	Counter              int64                       `json:"counter"`
	// UsedThreads lists every thread key ever materialized, so that branch
	// indexes freed by cleanup are not handed out again.
	UsedThreads []string `json:"usedThreads,omitempty"`
}

func EncodeState(st *State) ([]byte, error) {
	b, err := json.Marshal(st)
	if err != nil {
		return nil, errors.Wrap(err, "encode conversation state")
	}
	return b, nil
}

func DecodeState(data []byte) (*State, error) {
	st := &State{}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, errors.Wrap(err, "decode conversation state")
	}
	return st, nil
}

func (s *Store) snapshotLocked() *State {
	st := &State{
		Nodes:                make([]Pair[NodeID, *Node], 0, len(s.nodes)),
		MainThread:           append([]NodeID{}, s.mainThread...),
		Branches:             make([]Pair[NodeID, []NodeID], 0, len(s.branchChildren)),
		MergedBranchPrefixes: make([]string, 0, len(s.mergedPrefixes)),
		MergeLog:             make([]Pair[NodeID, MergeRecord], 0, len(s.mergeLog)),
		Counter:              s.counter,
	}

	for _, n := range s.sortedNodesLocked() {
		st.Nodes = append(st.Nodes, Pair[NodeID, *Node]{Key: n.ID, Value: n})
	}

	parents := make([]NodeID, 0, len(s.branchChildren))
	for p := range s.branchChildren {
		parents = append(parents, p)
	}
	sort.Slice(parents, func(i, j int) bool { return s.seqOf(parents[i]) < s.seqOf(parents[j]) })
	for _, p := range parents {
		st.Branches = append(st.Branches, Pair[NodeID, []NodeID]{Key: p, Value: append([]NodeID{}, s.branchChildren[p]...)})
	}

	for prefix := range s.mergedPrefixes {
		st.MergedBranchPrefixes = append(st.MergedBranchPrefixes, prefix)
	}
	sort.Strings(st.MergedBranchPrefixes)

	for key := range s.usedThreads {
		st.UsedThreads = append(st.UsedThreads, key)
	}
	sort.Strings(st.UsedThreads)

	for src, rec := range s.mergeLog {
		st.MergeLog = append(st.MergeLog, Pair[NodeID, MergeRecord]{Key: src, Value: rec})
	}
	sort.Slice(st.MergeLog, func(i, j int) bool {
		a, b := st.MergeLog[i].Value, st.MergeLog[j].Value
		if !a.MergedAt.Equal(b.MergedAt) {
			return a.MergedAt.Before(b.MergedAt)
		}
		return a.ID.String() < b.ID.String()
	})

	return st
}

// restoreLocked replaces the store contents with st after checking the
// structural invariants.
func (s *Store) restoreLocked(st *State) error {
	s.clearLocked()
	if st == nil {
		return nil
	}

	for _, p := range st.Nodes {
		n := p.Value
		if n == nil {
			return errors.Wrapf(ErrInvalidState, "node %s has no body", p.Key)
		}
		if n.ID.IsNull() {
			n.ID = p.Key
		}
		if n.ID != p.Key {
			return errors.Wrapf(ErrInvalidState, "node key %s does not match id %s", p.Key, n.ID)
		}
		if n.DisplayNumber.IsZero() {
			return errors.Wrapf(ErrInvalidState, "node %s has no display number", n.ID)
		}
		key := n.DisplayNumber.String()
		if other, ok := s.byDisplay[key]; ok {
			return errors.Wrapf(ErrInvalidState, "display number %s used by %s and %s", key, other, n.ID)
		}
		s.insertLocked(n)
		if n.Seq > s.counter {
			s.counter = n.Seq
		}
	}

	for _, n := range s.nodes {
		if n.HasParent() {
			if _, ok := s.nodes[*n.ParentID]; !ok {
				return errors.Wrapf(ErrInvalidState, "node %s references missing parent %s", n.ID, n.ParentID)
			}
		}
	}

	for _, id := range st.MainThread {
		if _, ok := s.nodes[id]; !ok {
			return errors.Wrapf(ErrInvalidState, "main thread references missing node %s", id)
		}
		s.mainThread = append(s.mainThread, id)
	}

	for _, p := range st.Branches {
		s.branchChildren[p.Key] = append([]NodeID{}, p.Value...)
	}
	for _, prefix := range st.MergedBranchPrefixes {
		s.mergedPrefixes[prefix] = struct{}{}
	}
	for _, p := range st.MergeLog {
		s.mergeLog[p.Key] = p.Value
	}
	for _, key := range st.UsedThreads {
		s.usedThreads[key] = struct{}{}
	}
	if st.Counter > s.counter {
		s.counter = st.Counter
	}
	return nil
}
