package messages

import "strings"

// BuildMessages assembles the message sequence for a model call:
// an optional system message, then one user/assistant pair per exchange, then
// the new user input. Blank system prompts, blank inputs and blank history
// texts are skipped.
func BuildMessages(history []Exchange, newInput string, systemPrompt string) []Message {
	ret := make([]Message, 0, 2*len(history)+2)

	if m, ok := textMessage(RoleSystem, systemPrompt); ok {
		ret = append(ret, m)
	}

	for _, ex := range history {
		if m, ok := textMessage(RoleUser, ex.UserText); ok {
			ret = append(ret, m)
		}
		if m, ok := textMessage(RoleAssistant, ex.AssistantText); ok {
			ret = append(ret, m)
		}
	}

	if m, ok := textMessage(RoleUser, newInput); ok {
		ret = append(ret, m)
	}

	return ret
}

// ExchangesToMessages converts history alone, without system prompt or new input.
func ExchangesToMessages(history []Exchange) []Message {
	return BuildMessages(history, "", "")
}

func textMessage(role Role, text string) (Message, bool) {
	if strings.TrimSpace(text) == "" {
		return Message{}, false
	}
	m, err := NewMessage(role, text)
	if err != nil {
		return Message{}, false
	}
	return m, true
}
