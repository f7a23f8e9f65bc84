package conversation

import (
	"strings"
	"time"

	"github.com/go-go-golems/forkchat/pkg/messages"
	clone "github.com/huandu/go-clone"
	"github.com/pkg/errors"
)

// BranchType is the context-inheritance policy of a branch.
type BranchType string

const (
	BranchTypeNone        BranchType = "none"
	BranchTypeVirgin      BranchType = "virgin"
	BranchTypePersonality BranchType = "personality"
	BranchTypeKnowledge   BranchType = "knowledge"
)

func ParseBranchType(s string) (BranchType, error) {
	bt := BranchType(strings.ToLower(strings.TrimSpace(s)))
	switch bt {
	case BranchTypeNone, BranchTypeVirgin, BranchTypePersonality, BranchTypeKnowledge:
		return bt, nil
	}
	return "", errors.Wrapf(ErrInvalidBranchType, "%q", s)
}

// IsBranch is true for the three policies a branch can be created with.
func (b BranchType) IsBranch() bool {
	switch b {
	case BranchTypeVirgin, BranchTypePersonality, BranchTypeKnowledge:
		return true
	case BranchTypeNone:
		return false
	}
	return false
}

type Status string

const (
	StatusReady      Status = "ready"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusReady, StatusProcessing, StatusComplete, StatusError:
		return st, nil
	}
	return "", errors.Wrapf(ErrInvalidStatus, "%q", s)
}

type Usage struct {
	InputTokens  int `json:"inputTokens,omitempty" yaml:"inputTokens,omitempty"`
	OutputTokens int `json:"outputTokens,omitempty" yaml:"outputTokens,omitempty"`
	TotalTokens  int `json:"totalTokens,omitempty" yaml:"totalTokens,omitempty"`
}

// Metadata is carried along with a node but never interpreted by the store.
type Metadata struct {
	Model       string                 `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature float64                `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	Usage       Usage                  `json:"usage,omitempty" yaml:"usage,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Node is one prompt/response exchange.
type Node struct {
	ID            NodeID        `json:"id" yaml:"id"`
	DisplayNumber DisplayNumber `json:"displayNumber" yaml:"displayNumber"`
	Prompt        string        `json:"prompt" yaml:"prompt"`
	Response      string        `json:"response" yaml:"response"`
	ParentID      *NodeID       `json:"parentId" yaml:"parentId"`
	BranchType    BranchType    `json:"branchType" yaml:"branchType"`
	Depth         int           `json:"depth" yaml:"depth"`
	Status        Status        `json:"status" yaml:"status"`
	SystemPrompt  string        `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
	Metadata      Metadata      `json:"metadata" yaml:"metadata"`
	Seq           int64         `json:"seq" yaml:"seq"`
	CreatedAt     time.Time     `json:"createdAt" yaml:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt" yaml:"updatedAt"`
}

func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	return clone.Clone(n).(*Node)
}

func (n *Node) HasParent() bool {
	return n.ParentID != nil && !n.ParentID.IsNull()
}

// IsBranchRoot is true for the first node of a branch.
func (n *Node) IsBranchRoot() bool {
	return n.DisplayNumber.IsBranch() && n.DisplayNumber.Position() == 0
}

func (n *Node) Exchange() messages.Exchange {
	return messages.Exchange{UserText: n.Prompt, AssistantText: n.Response}
}

// BranchHandle is a planned branch that has not received its first prompt yet.
// It is never stored; StartBranch turns it into a node.
type BranchHandle struct {
	ParentID             NodeID        `json:"parentId"`
	PlannedDisplayNumber DisplayNumber `json:"plannedDisplayNumber"`
	BranchType           BranchType    `json:"branchType"`
	Depth                int           `json:"depth"`
	SystemPrompt         string        `json:"systemPrompt,omitempty"`
}

type MergeRecord struct {
	ID                  NodeID        `json:"id"`
	SourceID            NodeID        `json:"sourceId"`
	TargetID            NodeID        `json:"targetId"`
	SourceDisplayNumber DisplayNumber `json:"sourceDisplayNumber"`
	TargetDisplayNumber DisplayNumber `json:"targetDisplayNumber"`
	MergedAt            time.Time     `json:"mergedAt"`
}

// Patch lists the fields UpdateConversation may fill in. Nil fields are left
// untouched; Extra is merged key by key.
type Patch struct {
	Response    *string
	Status      *Status
	Model       *string
	Temperature *float64
	Usage       *Usage
	Extra       map[string]interface{}
}

func (p Patch) apply(n *Node) error {
	if p.Status != nil {
		st, err := ParseStatus(string(*p.Status))
		if err != nil {
			return err
		}
		n.Status = st
	}
	if p.Response != nil {
		n.Response = *p.Response
	}
	if p.Model != nil {
		n.Metadata.Model = *p.Model
	}
	if p.Temperature != nil {
		n.Metadata.Temperature = *p.Temperature
	}
	if p.Usage != nil {
		n.Metadata.Usage = *p.Usage
	}
	if len(p.Extra) > 0 {
		if n.Metadata.Extra == nil {
			n.Metadata.Extra = map[string]interface{}{}
		}
		for k, v := range p.Extra {
			n.Metadata.Extra[k] = v
		}
	}
	return nil
}
