package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memBlob struct {
	mu    sync.Mutex
	data  []byte
	saves int
	err   error
}

func (m *memBlob) Save(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

func (m *memBlob) Load(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

var errDiskFull = errors.New("disk full")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T, opts ...StoreOption) (*Store, *memBlob) {
	t.Helper()
	blob := &memBlob{}
	all := append([]StoreOption{WithBlobStore(blob), WithClock(newFakeClock().Now)}, opts...)
	s := NewStore(all...)
	require.NoError(t, s.Open(context.Background()))
	return s, blob
}

func addMain(t *testing.T, s *Store, prompt, response string) *Node {
	t.Helper()
	n, err := s.AddConversation(context.Background(), prompt, response, Metadata{})
	require.NoError(t, err)
	return n
}

func startBranch(t *testing.T, s *Store, parent *Node, bt BranchType, prompt string) *Node {
	t.Helper()
	h, err := s.CreateBranch(parent.ID, bt, "")
	require.NoError(t, err)
	n, err := s.StartBranch(context.Background(), h, prompt, "answer to "+prompt, Metadata{})
	require.NoError(t, err)
	return n
}

func continueBranch(t *testing.T, s *Store, branchNode *Node, prompt string) *Node {
	t.Helper()
	n, err := s.AddConversationToBranch(context.Background(), branchNode.ID, prompt, "answer to "+prompt, Metadata{})
	require.NoError(t, err)
	return n
}

func displayNumbers(nodes []*Node) []string {
	ret := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ret = append(ret, n.DisplayNumber.String())
	}
	return ret
}
