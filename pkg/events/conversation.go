package events

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/forkchat/pkg/conversation"
)

// Listener publishes store events as JSON watermill messages. Publish errors
// are logged, they never fail the store mutation.
type Listener struct {
	publisher message.Publisher
	topic     string
}

var _ conversation.Listener = (*Listener)(nil)

func NewListener(publisher message.Publisher, topic string) *Listener {
	if topic == "" {
		topic = TopicConversation
	}
	return &Listener{publisher: publisher, topic: topic}
}

func (l *Listener) OnEvent(e conversation.Event) {
	if err := l.Publish(e); err != nil {
		log.Warn().Err(err).Str("type", string(e.Type)).Msg("failed to publish conversation event")
	}
}

func (l *Listener) Publish(e conversation.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "could not marshal event")
	}
	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.Metadata.Set("type", string(e.Type))
	return l.publisher.Publish(l.topic, msg)
}

func NewEventFromJSON(b []byte) (conversation.Event, error) {
	var e conversation.Event
	if err := json.Unmarshal(b, &e); err != nil {
		return conversation.Event{}, errors.Wrap(err, "could not parse conversation event")
	}
	if e.Type == "" {
		return conversation.Event{}, errors.New("conversation event has no type")
	}
	return e, nil
}

// HandlerFunc adapts a typed callback into a router handler. Malformed
// payloads are logged and dropped.
func HandlerFunc(f func(conversation.Event) error) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		e, err := NewEventFromJSON(msg.Payload)
		if err != nil {
			log.Error().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed conversation event")
			return nil
		}
		return f(e)
	}
}

// Printer writes one line per event to w.
func Printer(w io.Writer) func(conversation.Event) error {
	return func(e conversation.Event) error {
		line := fmt.Sprintf("[%s] %s", e.Type, e.DisplayNumber)
		if e.Status != "" {
			line += " status=" + string(e.Status)
		}
		if e.Merge != nil {
			line += fmt.Sprintf(" %s -> %s", e.Merge.SourceDisplayNumber, e.Merge.TargetDisplayNumber)
		}
		if e.Removed > 0 {
			line += fmt.Sprintf(" removed=%d", e.Removed)
		}
		_, err := fmt.Fprintln(w, line)
		return err
	}
}
