package chain

import "github.com/go-go-golems/forkchat/pkg/messages"

// ValidateChain checks that a chain is sendable: it is not empty, an optional
// system message leads, user and assistant messages alternate, and the chain
// ends on a user message.
func ValidateChain(msgs []messages.Message) messages.ValidationResult {
	res := messages.ValidationResult{Valid: true, Errors: []messages.Issue{}}

	if len(msgs) == 0 {
		res.Valid = false
		res.Errors = append(res.Errors, messages.Issue{Index: -1, Message: "chain is empty"})
		return res
	}

	for i, m := range msgs {
		if m.Role == messages.RoleSystem && i != 0 {
			res.Valid = false
			res.Errors = append(res.Errors, messages.Issue{Index: i, Message: "system message must lead the chain"})
		}
	}

	res.Merge(messages.CheckAlternation(msgs))

	last := len(msgs) - 1
	if msgs[last].Role != messages.RoleUser {
		res.Valid = false
		res.Errors = append(res.Errors, messages.Issue{Index: last, Message: "chain must end with a user message"})
	}

	return res
}
