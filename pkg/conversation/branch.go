package conversation

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// CreateBranch plans a new branch under parentID. Nothing is stored until
// StartBranch receives the first prompt, so abandoned branches leave no trace.
// The system prompt is only kept for personality branches.
func (s *Store) CreateBranch(parentID NodeID, branchType BranchType, systemPrompt string) (BranchHandle, error) {
	if !branchType.IsBranch() {
		return BranchHandle{}, errors.Wrapf(ErrInvalidBranchType, "cannot branch with type %q", branchType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.nodes[parentID]
	if !ok {
		return BranchHandle{}, notFound(parentID)
	}
	if err := s.checkOpenLocked(parent); err != nil {
		return BranchHandle{}, err
	}

	h := BranchHandle{
		ParentID:             parentID,
		PlannedDisplayNumber: s.nextBranchNumberLocked(parent.DisplayNumber),
		BranchType:           branchType,
		Depth:                parent.Depth + 1,
	}
	if branchType == BranchTypePersonality {
		h.SystemPrompt = strings.TrimSpace(systemPrompt)
	}

	s.logger.Debug().
		Str("parent", parent.DisplayNumber.String()).
		Str("planned", h.PlannedDisplayNumber.String()).
		Str("branch_type", string(branchType)).
		Msg("planned branch")

	return h, nil
}

// StartBranch materializes a planned branch with its first exchange. If the
// planned number was taken in the meantime, the next free one is taken.
func (s *Store) StartBranch(ctx context.Context, h BranchHandle, prompt string, response string, meta Metadata) (*Node, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	if !h.BranchType.IsBranch() {
		return nil, errors.Wrapf(ErrInvalidBranchType, "cannot branch with type %q", h.BranchType)
	}

	s.mu.Lock()
	parent, ok := s.nodes[h.ParentID]
	if !ok {
		s.mu.Unlock()
		return nil, notFound(h.ParentID)
	}
	if err := s.checkOpenLocked(parent); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	dn := h.PlannedDisplayNumber
	if !s.isFreeBranchLocked(parent.DisplayNumber, dn) {
		replanned := s.nextBranchNumberLocked(parent.DisplayNumber)
		s.logger.Debug().
			Str("planned", dn.String()).
			Str("replanned", replanned.String()).
			Msg("planned branch number was taken, picked the next free one")
		dn = replanned
	}

	n := s.newNodeLocked(dn, prompt, response, meta)
	pid := parent.ID
	n.ParentID = &pid
	n.BranchType = h.BranchType
	n.Depth = parent.Depth + 1
	if h.BranchType == BranchTypePersonality {
		n.SystemPrompt = h.SystemPrompt
	}
	s.insertLocked(n)
	s.branchChildren[pid] = append(s.branchChildren[pid], n.ID)

	s.logger.Debug().
		Str("id", n.ID.String()).
		Str("display_number", n.DisplayNumber.String()).
		Str("branch_type", string(n.BranchType)).
		Int("depth", n.Depth).
		Msg("materialized branch")

	err := s.persistLocked(ctx)
	ret := n.Clone()
	s.mu.Unlock()

	s.emit(nodeEvent(EventBranchMaterialized, ret, ret.CreatedAt))
	return ret, err
}

// AddConversationToBranch continues the branch that branchNodeID belongs to.
// The new node follows the branch's current end node. A branch root that has
// no prompt yet is filled in place instead.
func (s *Store) AddConversationToBranch(ctx context.Context, branchNodeID NodeID, prompt string, response string, meta Metadata) (*Node, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	s.mu.Lock()
	anchor, ok := s.nodes[branchNodeID]
	if !ok {
		s.mu.Unlock()
		return nil, notFound(branchNodeID)
	}
	if !anchor.DisplayNumber.IsBranch() {
		s.mu.Unlock()
		return nil, errors.Errorf("node %s is on the main thread, use AddConversation", anchor.DisplayNumber)
	}
	if err := s.checkOpenLocked(anchor); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	thread := s.threadLocked(anchor.DisplayNumber.ThreadPrefix())
	root := thread[0]

	var n *Node
	evt := EventNodeCreated
	if len(thread) == 1 && strings.TrimSpace(root.Prompt) == "" {
		n = root.Clone()
		n.Prompt = prompt
		n.Response = response
		n.Metadata = meta
		n.Status = StatusProcessing
		if strings.TrimSpace(response) != "" {
			n.Status = StatusReady
		}
		n.UpdatedAt = s.now()
		s.nodes[n.ID] = n
		evt = EventBranchMaterialized
	} else {
		end := thread[len(thread)-1]
		dn := end.DisplayNumber.Next()
		if _, taken := s.byDisplay[dn.String()]; taken {
			s.mu.Unlock()
			return nil, errors.Wrapf(ErrInvalidState, "display number %s already exists", dn)
		}
		n = s.newNodeLocked(dn, prompt, response, meta)
		eid := end.ID
		n.ParentID = &eid
		n.BranchType = root.BranchType
		n.Depth = end.Depth
		s.insertLocked(n)
	}

	s.logger.Debug().
		Str("id", n.ID.String()).
		Str("display_number", n.DisplayNumber.String()).
		Msg("added conversation to branch")

	err := s.persistLocked(ctx)
	ret := n.Clone()
	s.mu.Unlock()

	s.emit(nodeEvent(evt, ret, ret.UpdatedAt))
	return ret, err
}

// checkOpenLocked fails when n sits inside a branch whose prefix was closed
// by a merge. Nested branches share the prefix of their top-level branch.
func (s *Store) checkOpenLocked(n *Node) error {
	if !n.DisplayNumber.IsBranch() {
		return nil
	}
	prefix := n.DisplayNumber.BranchPrefix()
	if _, merged := s.mergedPrefixes[prefix]; merged {
		return &ThreadMergedError{Prefix: prefix}
	}
	return nil
}

// nextBranchNumberLocked tries parent.1.0, parent.2.0, … for the first branch
// index whose thread has never been used. Past maxBranchIndex it falls back to
// a timestamp index.
func (s *Store) nextBranchNumberLocked(parent DisplayNumber) DisplayNumber {
	for i := 1; i <= s.maxBranchIndex; i++ {
		candidate := parent.Branch(i)
		if s.isFreeBranchLocked(parent, candidate) {
			return candidate
		}
	}

	index := int(s.now().UnixMilli())
	candidate := parent.Branch(index)
	for !s.isFreeBranchLocked(parent, candidate) {
		index++
		candidate = parent.Branch(index)
	}
	s.logger.Warn().
		Str("parent", parent.String()).
		Int("max_index", s.maxBranchIndex).
		Str("display_number", candidate.String()).
		Msg("branch indexes exhausted, using timestamp index")
	return candidate
}

func (s *Store) isFreeBranchLocked(parent DisplayNumber, candidate DisplayNumber) bool {
	if len(candidate) != len(parent)+2 || candidate.Position() != 0 {
		return false
	}
	for i, v := range parent {
		if candidate[i] != v {
			return false
		}
	}
	if _, taken := s.byDisplay[candidate.String()]; taken {
		return false
	}
	_, used := s.usedThreads[candidate.ThreadKey()]
	return !used
}
