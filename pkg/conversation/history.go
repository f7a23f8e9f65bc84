package conversation

import (
	"sort"
	"strings"

	"github.com/go-go-golems/forkchat/pkg/messages"
)

// MainThreadID selects the forward walk from the root in ExtractConversationHistory.
const MainThreadID = "main"

// WalkPolicy decides which child the forward walk from the root follows when
// a node has more than one continuation.
type WalkPolicy int

const (
	// WalkFirstFound follows the earliest created child, whatever thread it
	// belongs to. Other children are not included.
	WalkFirstFound WalkPolicy = iota
	// WalkPreferSameThread follows a child in the current thread when there is
	// one, and falls back to WalkFirstFound.
	WalkPreferSameThread
)

// ExtractConversationHistory returns the exchanges along one path of nodes.
// With MainThreadID it walks forward from the root following single
// continuations (first found on forks); with a node id or display number it
// walks parent links from that node back to the root.
func ExtractConversationHistory(nodes []*Node, threadID string) []messages.Exchange {
	return ExtractConversationHistoryWith(nodes, threadID, WalkFirstFound)
}

func ExtractConversationHistoryWith(nodes []*Node, threadID string, policy WalkPolicy) []messages.Exchange {
	t := newNodeTree(nodes)

	var path []*Node
	if strings.TrimSpace(threadID) == MainThreadID {
		path = t.leftMostThread(policy)
	} else {
		n, ok := t.resolve(threadID)
		if !ok {
			return []messages.Exchange{}
		}
		path = t.threadTo(n)
	}

	ret := make([]messages.Exchange, 0, len(path))
	for _, n := range path {
		ret = append(ret, n.Exchange())
	}
	return ret
}

// ExtractHistory runs ExtractConversationHistory over the whole store.
func (s *Store) ExtractHistory(threadID string) []messages.Exchange {
	return ExtractConversationHistory(s.AllConversationsWithBranches(), threadID)
}

// HistoryFor returns the exchanges that precede id in its conversation, along
// with the system prompt in effect. Walking up from id, knowledge branches
// inherit their ancestors, virgin branches stop at their root, and personality
// branches stop at their root and contribute its system prompt.
func (s *Store) HistoryFor(id NodeID) ([]messages.Exchange, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, "", notFound(id)
	}

	var ancestors []*Node
	systemPrompt := ""
	seen := map[NodeID]bool{n.ID: true}
	cur := n
	for {
		if cur.IsBranchRoot() {
			stop := false
			switch cur.BranchType {
			case BranchTypeVirgin:
				stop = true
			case BranchTypePersonality:
				systemPrompt = cur.SystemPrompt
				stop = true
			case BranchTypeKnowledge, BranchTypeNone:
			}
			if stop {
				break
			}
		}
		if !cur.HasParent() {
			break
		}
		parent, ok := s.nodes[*cur.ParentID]
		if !ok || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		ancestors = append(ancestors, parent)
		cur = parent
	}

	history := make([]messages.Exchange, 0, len(ancestors))
	for i := len(ancestors) - 1; i >= 0; i-- {
		history = append(history, ancestors[i].Exchange())
	}
	return history, systemPrompt, nil
}

type nodeTree struct {
	byID      map[NodeID]*Node
	byDisplay map[string]*Node
	children  map[NodeID][]*Node
	roots     []*Node
}

func newNodeTree(nodes []*Node) *nodeTree {
	t := &nodeTree{
		byID:      make(map[NodeID]*Node, len(nodes)),
		byDisplay: make(map[string]*Node, len(nodes)),
		children:  map[NodeID][]*Node{},
	}
	for _, n := range nodes {
		if n == nil {
			continue
		}
		t.byID[n.ID] = n
		t.byDisplay[n.DisplayNumber.String()] = n
	}
	for _, n := range t.byID {
		if n.HasParent() {
			if _, ok := t.byID[*n.ParentID]; ok {
				t.children[*n.ParentID] = append(t.children[*n.ParentID], n)
				continue
			}
		}
		if !n.HasParent() {
			t.roots = append(t.roots, n)
		}
	}
	for id := range t.children {
		sortBySeq(t.children[id])
	}
	sortBySeq(t.roots)
	return t
}

func sortBySeq(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Seq != nodes[j].Seq {
			return nodes[i].Seq < nodes[j].Seq
		}
		return nodes[i].DisplayNumber.Compare(nodes[j].DisplayNumber) < 0
	})
}

func (t *nodeTree) resolve(ref string) (*Node, bool) {
	ref = strings.TrimSpace(ref)
	if id, err := ParseNodeID(ref); err == nil {
		n, ok := t.byID[id]
		return n, ok
	}
	dn, err := ParseDisplayNumber(ref)
	if err != nil {
		return nil, false
	}
	n, ok := t.byDisplay[dn.String()]
	return n, ok
}

// threadTo walks parent links from n to the root and returns the path root first.
func (t *nodeTree) threadTo(n *Node) []*Node {
	var thread []*Node
	seen := map[NodeID]bool{}
	for n != nil && !seen[n.ID] {
		seen[n.ID] = true
		thread = append(thread, n)
		if !n.HasParent() {
			break
		}
		n = t.byID[*n.ParentID]
	}
	for i, j := 0, len(thread)-1; i < j; i, j = i+1, j-1 {
		thread[i], thread[j] = thread[j], thread[i]
	}
	return thread
}

// leftMostThread walks forward from the root, picking one child per node.
func (t *nodeTree) leftMostThread(policy WalkPolicy) []*Node {
	if len(t.roots) == 0 {
		return nil
	}
	var thread []*Node
	seen := map[NodeID]bool{}
	n := t.roots[0]
	for n != nil && !seen[n.ID] {
		seen[n.ID] = true
		thread = append(thread, n)
		n = t.pickChild(n, policy)
	}
	return thread
}

func (t *nodeTree) pickChild(n *Node, policy WalkPolicy) *Node {
	kids := t.children[n.ID]
	if len(kids) == 0 {
		return nil
	}
	if policy == WalkPreferSameThread {
		prefix := n.DisplayNumber.ThreadPrefix()
		for _, k := range kids {
			if k.DisplayNumber.InThread(prefix) {
				return k
			}
		}
	}
	return kids[0]
}
