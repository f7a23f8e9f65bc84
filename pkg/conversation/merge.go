package conversation

import (
	"context"
	"sort"
)

// CanMergeNodes reports whether source may be closed into target: both exist
// and are end nodes, they differ, and target is on the main thread or at most
// as deeply nested as source.
func (s *Store) CanMergeNodes(source NodeID, target NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkMergeLocked(source, target) == nil
}

// MergeNodes records that source's branch continues into target and closes the
// source thread for further continuations.
func (s *Store) MergeNodes(ctx context.Context, source NodeID, target NodeID) (MergeRecord, error) {
	s.mu.Lock()
	if err := s.checkMergeLocked(source, target); err != nil {
		s.mu.Unlock()
		return MergeRecord{}, err
	}
	src, tgt := s.nodes[source], s.nodes[target]

	prefix := src.DisplayNumber.BranchPrefix()
	if _, ok := s.mergeLog[source]; ok {
		s.mu.Unlock()
		return MergeRecord{}, s.mergeError(src, tgt, "source was already merged")
	}
	if _, ok := s.mergedPrefixes[prefix]; ok {
		s.mu.Unlock()
		return MergeRecord{}, s.mergeError(src, tgt, "source thread "+prefix+" is already merged")
	}

	rec := MergeRecord{
		ID:                  NewNodeID(),
		SourceID:            src.ID,
		TargetID:            tgt.ID,
		SourceDisplayNumber: src.DisplayNumber.clone(),
		TargetDisplayNumber: tgt.DisplayNumber.clone(),
		MergedAt:            s.now(),
	}
	s.mergeLog[source] = rec
	s.mergedPrefixes[prefix] = struct{}{}

	s.logger.Info().
		Str("source", src.DisplayNumber.String()).
		Str("target", tgt.DisplayNumber.String()).
		Str("prefix", prefix).
		Msg("merged thread")

	err := s.persistLocked(ctx)
	s.mu.Unlock()

	r := rec
	s.emit(Event{
		Type:          EventThreadMerged,
		NodeID:        rec.SourceID,
		DisplayNumber: rec.SourceDisplayNumber.String(),
		Merge:         &r,
		Time:          rec.MergedAt,
	})
	return rec, err
}

// IsThreadMerged reports whether the thread of dn was closed by a merge.
func (s *Store) IsThreadMerged(dn DisplayNumber) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.mergedPrefixes[dn.BranchPrefix()]
	return ok
}

// MergeLog returns all merge records, oldest first.
func (s *Store) MergeLog() []MergeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]MergeRecord, 0, len(s.mergeLog))
	for _, rec := range s.mergeLog {
		ret = append(ret, rec)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].MergedAt.Before(ret[j].MergedAt) })
	return ret
}

func (s *Store) checkMergeLocked(source NodeID, target NodeID) error {
	src, ok := s.nodes[source]
	if !ok {
		return &InvalidMergeError{Source: source.String(), Target: target.String(), Reason: "source does not exist", Cause: notFound(source)}
	}
	tgt, ok := s.nodes[target]
	if !ok {
		return &InvalidMergeError{Source: source.String(), Target: target.String(), Reason: "target does not exist", Cause: notFound(target)}
	}
	if source == target {
		return s.mergeError(src, tgt, "cannot merge a node into itself")
	}
	if !s.isEndNodeLocked(src) {
		return s.mergeError(src, tgt, "source is not an end node")
	}
	if !s.isEndNodeLocked(tgt) {
		return s.mergeError(src, tgt, "target is not an end node")
	}
	srcLevel := src.DisplayNumber.HierarchyLevel()
	tgtLevel := tgt.DisplayNumber.HierarchyLevel()
	if tgtLevel != 0 && tgtLevel > srcLevel {
		return s.mergeError(src, tgt, "target is nested deeper than source")
	}
	return nil
}

func (s *Store) mergeError(src *Node, tgt *Node, reason string) error {
	return &InvalidMergeError{
		Source: src.DisplayNumber.String(),
		Target: tgt.DisplayNumber.String(),
		Reason: reason,
	}
}
