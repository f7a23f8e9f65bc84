package conversation

import "time"

type EventType string

const (
	EventNodeCreated        EventType = "node.created"
	EventNodeUpdated        EventType = "node.updated"
	EventBranchMaterialized EventType = "branch.materialized"
	EventThreadMerged       EventType = "thread.merged"
	EventStoreCleaned       EventType = "store.cleaned"
	EventStoreReset         EventType = "store.reset"
)

// Event describes a completed store mutation.
type Event struct {
	Type          EventType    `json:"type"`
	NodeID        NodeID       `json:"nodeId,omitempty"`
	DisplayNumber string       `json:"displayNumber,omitempty"`
	Status        Status       `json:"status,omitempty"`
	Merge         *MergeRecord `json:"merge,omitempty"`
	Removed       int          `json:"removed,omitempty"`
	Time          time.Time    `json:"time"`
}

// Listener is notified after each mutation, outside the store lock.
type Listener interface {
	OnEvent(e Event)
}

type ListenerFunc func(e Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }

func nodeEvent(t EventType, n *Node, at time.Time) Event {
	return Event{
		Type:          t,
		NodeID:        n.ID,
		DisplayNumber: n.DisplayNumber.String(),
		Status:        n.Status,
		Time:          at,
	}
}
