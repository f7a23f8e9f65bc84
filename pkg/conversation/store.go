// Package conversation keeps a branching conversation history: a main thread of
// prompt/response exchanges plus nested branches, each node addressed by a
// hierarchical display number.
//
// The Store owns every node. It numbers main-thread nodes 0, 1, 2, …, creates
// branches lazily (a BranchHandle becomes a node with its first prompt),
// records merges that close a branch into the main thread or an equal or
// shallower branch, and extracts the exchange history to send to a model for
// any point in the tree.
//
// All methods are safe for concurrent use; mutations are serialized by a
// single mutex and written through to the configured BlobStore.
package conversation

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultMaxBranchIndex = 1000

// BlobStore persists the serialized store state.
type BlobStore interface {
	Save(ctx context.Context, data []byte) error
	// Load returns nil data when nothing has been saved yet.
	Load(ctx context.Context) ([]byte, error)
}

type Store struct {
	mu sync.Mutex

	nodes          map[NodeID]*Node
	byDisplay      map[string]NodeID
	usedThreads    map[string]struct{}
	mainThread     []NodeID
	branchChildren map[NodeID][]NodeID
	mergedPrefixes map[string]struct{}
	mergeLog       map[NodeID]MergeRecord
	counter        int64

	blob           BlobStore
	listener       Listener
	logger         zerolog.Logger
	now            func() time.Time
	maxBranchIndex int
}

type StoreOption func(*Store)

func WithBlobStore(b BlobStore) StoreOption {
	return func(s *Store) {
		s.blob = b
	}
}

func WithListener(l Listener) StoreOption {
	return func(s *Store) {
		s.listener = l
	}
}

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

func WithMaxBranchIndex(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxBranchIndex = n
		}
	}
}

func NewStore(options ...StoreOption) *Store {
	ret := &Store{
		logger:         log.Logger,
		now:            time.Now,
		maxBranchIndex: DefaultMaxBranchIndex,
	}
	ret.clearLocked()
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Open loads the persisted state, if any. It is called once at startup.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blob == nil {
		return nil
	}
	data, err := s.blob.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "load conversation state")
	}
	if len(data) == 0 {
		s.logger.Debug().Msg("no persisted conversation state")
		return nil
	}
	st, err := DecodeState(data)
	if err != nil {
		return err
	}
	if err := s.restoreLocked(st); err != nil {
		s.clearLocked()
		return err
	}
	s.logger.Debug().
		Int("nodes", len(s.nodes)).
		Int("main_thread", len(s.mainThread)).
		Int("merged_threads", len(s.mergedPrefixes)).
		Msg("loaded conversation state")
	return nil
}

// Reset drops every node, branch and merge record and persists the empty state.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.clearLocked()
	err := s.persistLocked(ctx)
	at := s.now()
	s.mu.Unlock()

	s.emit(Event{Type: EventStoreReset, Time: at})
	return err
}

// Snapshot returns a copy of the serializable state of the store.
func (s *Store) Snapshot() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.snapshotLocked()
	for i := range st.Nodes {
		st.Nodes[i].Value = st.Nodes[i].Value.Clone()
	}
	return st
}

// AddConversation appends an exchange to the main thread. A node with a
// response starts out ready; one without is processing until the response
// arrives through UpdateConversation.
func (s *Store) AddConversation(ctx context.Context, prompt string, response string, meta Metadata) (*Node, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	s.mu.Lock()
	next := 0
	var parent *NodeID
	if len(s.mainThread) > 0 {
		last := s.nodes[s.mainThread[len(s.mainThread)-1]]
		next = last.DisplayNumber.Position() + 1
		id := last.ID
		parent = &id
	}

	n := s.newNodeLocked(DisplayNumber{next}, prompt, response, meta)
	n.ParentID = parent
	n.BranchType = BranchTypeNone
	s.insertLocked(n)
	s.mainThread = append(s.mainThread, n.ID)

	s.logger.Debug().
		Str("id", n.ID.String()).
		Str("display_number", n.DisplayNumber.String()).
		Str("status", string(n.Status)).
		Msg("added main thread conversation")

	err := s.persistLocked(ctx)
	ret := n.Clone()
	s.mu.Unlock()

	s.emit(nodeEvent(EventNodeCreated, ret, ret.CreatedAt))
	return ret, err
}

// UpdateConversation fills in response, status or metadata of an existing node.
func (s *Store) UpdateConversation(ctx context.Context, id NodeID, patch Patch) (*Node, error) {
	s.mu.Lock()
	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return nil, notFound(id)
	}
	updated := n.Clone()
	if err := patch.apply(updated); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	updated.UpdatedAt = s.now()
	s.nodes[id] = updated

	s.logger.Debug().
		Str("id", id.String()).
		Str("display_number", updated.DisplayNumber.String()).
		Str("status", string(updated.Status)).
		Msg("updated conversation")

	err := s.persistLocked(ctx)
	ret := updated.Clone()
	s.mu.Unlock()

	s.emit(nodeEvent(EventNodeUpdated, ret, ret.UpdatedAt))
	return ret, err
}

func (s *Store) Get(id NodeID) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, notFound(id)
	}
	return n.Clone(), nil
}

func (s *Store) GetByDisplayNumber(dn DisplayNumber) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodeByDisplayLocked(dn)
	if !ok {
		return nil, notFound(dn)
	}
	return n.Clone(), nil
}

// Resolve looks a node up by node id or display number string.
func (s *Store) Resolve(ref string) (*Node, error) {
	ref = strings.TrimSpace(ref)
	if id, err := ParseNodeID(ref); err == nil {
		return s.Get(id)
	}
	dn, err := ParseDisplayNumber(ref)
	if err != nil {
		return nil, &NotFoundError{Ref: ref}
	}
	return s.GetByDisplayNumber(dn)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// MainThread returns the main thread nodes in order.
func (s *Store) MainThread() []*Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]*Node, 0, len(s.mainThread))
	for _, id := range s.mainThread {
		ret = append(ret, s.nodes[id].Clone())
	}
	return ret
}

// BranchChildren returns the branch roots created from parentID, in creation order.
func (s *Store) BranchChildren(parentID NodeID) []*Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.branchChildren[parentID]
	ret := make([]*Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := s.nodes[id]; ok {
			ret = append(ret, n.Clone())
		}
	}
	return ret
}

// AllConversationsWithBranches returns every node in hierarchical display
// number order.
func (s *Store) AllConversationsWithBranches() []*Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := s.sortedNodesLocked()
	ret := make([]*Node, 0, len(sorted))
	for _, n := range sorted {
		ret = append(ret, n.Clone())
	}
	return ret
}

// HierarchyLevel returns the branch nesting level of a node.
func (s *Store) HierarchyLevel(id NodeID) (int, error) {
	n, err := s.Get(id)
	if err != nil {
		return 0, err
	}
	return n.DisplayNumber.HierarchyLevel(), nil
}

// IsEndNode reports whether no later node continues id within its thread.
func (s *Store) IsEndNode(id NodeID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return false, notFound(id)
	}
	return s.isEndNodeLocked(n), nil
}

// GetBranchThread returns the nodes of the thread dn belongs to, ordered by
// position. For a main thread number it returns the main thread.
func (s *Store) GetBranchThread(dn DisplayNumber) []*Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread := s.threadLocked(dn.ThreadPrefix())
	ret := make([]*Node, 0, len(thread))
	for _, n := range thread {
		ret = append(ret, n.Clone())
	}
	return ret
}

// CleanupEmptyThreads removes nodes with a blank prompt. Children of a removed
// node are re-attached to its parent. It returns the number of removed nodes.
func (s *Store) CleanupEmptyThreads(ctx context.Context) (int, error) {
	s.mu.Lock()

	var removed []*Node
	for _, n := range s.sortedNodesLocked() {
		if strings.TrimSpace(n.Prompt) == "" {
			removed = append(removed, n)
		}
	}
	if len(removed) == 0 {
		s.mu.Unlock()
		return 0, nil
	}

	// deepest first, so that re-parenting chains through consecutive removals
	for i := len(removed) - 1; i >= 0; i-- {
		s.removeLocked(removed[i])
	}

	s.logger.Info().Int("removed", len(removed)).Msg("cleaned up empty conversation nodes")

	err := s.persistLocked(ctx)
	at := s.now()
	s.mu.Unlock()

	s.emit(Event{Type: EventStoreCleaned, Removed: len(removed), Time: at})
	return len(removed), err
}

func (s *Store) removeLocked(n *Node) {
	for _, other := range s.nodes {
		if other.HasParent() && *other.ParentID == n.ID {
			if n.HasParent() {
				p := *n.ParentID
				other.ParentID = &p
			} else {
				other.ParentID = nil
			}
		}
	}

	if kids, ok := s.branchChildren[n.ID]; ok {
		if n.HasParent() {
			s.branchChildren[*n.ParentID] = append(s.branchChildren[*n.ParentID], kids...)
		}
		delete(s.branchChildren, n.ID)
	}
	for parent, kids := range s.branchChildren {
		s.branchChildren[parent] = removeID(kids, n.ID)
		if len(s.branchChildren[parent]) == 0 {
			delete(s.branchChildren, parent)
		}
	}

	s.mainThread = removeID(s.mainThread, n.ID)
	delete(s.byDisplay, n.DisplayNumber.String())
	delete(s.mergeLog, n.ID)
	delete(s.nodes, n.ID)
}

func removeID(ids []NodeID, id NodeID) []NodeID {
	ret := ids[:0]
	for _, v := range ids {
		if v != id {
			ret = append(ret, v)
		}
	}
	return ret
}

func (s *Store) clearLocked() {
	s.nodes = map[NodeID]*Node{}
	s.byDisplay = map[string]NodeID{}
	s.usedThreads = map[string]struct{}{}
	s.mainThread = nil
	s.branchChildren = map[NodeID][]NodeID{}
	s.mergedPrefixes = map[string]struct{}{}
	s.mergeLog = map[NodeID]MergeRecord{}
	s.counter = 0
}

func (s *Store) newNodeLocked(dn DisplayNumber, prompt string, response string, meta Metadata) *Node {
	s.counter++
	now := s.now()
	status := StatusProcessing
	if strings.TrimSpace(response) != "" {
		status = StatusReady
	}
	return &Node{
		ID:            NewNodeID(),
		DisplayNumber: dn,
		Prompt:        prompt,
		Response:      response,
		Status:        status,
		Metadata:      meta,
		Seq:           s.counter,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *Store) insertLocked(n *Node) {
	s.nodes[n.ID] = n
	s.byDisplay[n.DisplayNumber.String()] = n.ID
	if n.DisplayNumber.IsBranch() {
		s.usedThreads[n.DisplayNumber.ThreadKey()] = struct{}{}
	}
}

func (s *Store) nodeByDisplayLocked(dn DisplayNumber) (*Node, bool) {
	id, ok := s.byDisplay[dn.String()]
	if !ok {
		return nil, false
	}
	n, ok := s.nodes[id]
	return n, ok
}

func (s *Store) seqOf(id NodeID) int64 {
	if n, ok := s.nodes[id]; ok {
		return n.Seq
	}
	return 0
}

func (s *Store) sortedNodesLocked() []*Node {
	ret := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		ret = append(ret, n)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].DisplayNumber.Compare(ret[j].DisplayNumber) < 0
	})
	return ret
}

// threadLocked returns the members of a thread ordered by position; a nil
// prefix selects the main thread.
func (s *Store) threadLocked(prefix DisplayNumber) []*Node {
	if len(prefix) == 0 {
		ret := make([]*Node, 0, len(s.mainThread))
		for _, id := range s.mainThread {
			ret = append(ret, s.nodes[id])
		}
		return ret
	}
	var ret []*Node
	for _, n := range s.nodes {
		if n.DisplayNumber.InThread(prefix) {
			ret = append(ret, n)
		}
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].DisplayNumber.Position() < ret[j].DisplayNumber.Position()
	})
	return ret
}

func (s *Store) isEndNodeLocked(n *Node) bool {
	thread := s.threadLocked(n.DisplayNumber.ThreadPrefix())
	if len(thread) == 0 {
		return false
	}
	return thread[len(thread)-1].ID == n.ID
}

func (s *Store) persistLocked(ctx context.Context) error {
	if s.blob == nil {
		return nil
	}
	data, err := EncodeState(s.snapshotLocked())
	if err != nil {
		return &persistError{err: err}
	}
	if err := s.blob.Save(ctx, data); err != nil {
		s.logger.Error().Err(err).Msg("could not persist conversation state")
		return &persistError{err: err}
	}
	return nil
}

func (s *Store) emit(e Event) {
	if s.listener == nil {
		return
	}
	s.listener.OnEvent(e)
}

type persistError struct {
	err error
}

func (e *persistError) Error() string { return ErrPersist.Error() + ": " + e.err.Error() }

func (e *persistError) Unwrap() error { return e.err }

func (e *persistError) Is(target error) bool { return target == ErrPersist }
