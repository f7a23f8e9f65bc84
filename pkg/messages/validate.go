package messages

import (
	"fmt"
	"strings"
)

// Issue is a single structural problem found in a message sequence.
type Issue struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Index < 0 {
		return i.Message
	}
	return fmt.Sprintf("message %d: %s", i.Index, i.Message)
}

// ValidationResult collects every problem found; validation never stops at the
// first issue.
type ValidationResult struct {
	Valid  bool    `json:"valid"`
	Errors []Issue `json:"errors"`
}

func (r *ValidationResult) add(index int, format string, args ...interface{}) {
	r.Errors = append(r.Errors, Issue{Index: index, Message: fmt.Sprintf(format, args...)})
	r.Valid = false
}

// Merge appends the issues of other to r.
func (r *ValidationResult) Merge(other ValidationResult) {
	for _, issue := range other.Errors {
		r.Errors = append(r.Errors, issue)
		r.Valid = false
	}
}

// Err returns nil for a valid result, and a *ValidationError otherwise.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Issues: r.Errors}
}

// ValidationError wraps the issues of a failed validation so callers can abort
// a model call with an error value.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return ErrValidationFailed.Error()
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	return fmt.Sprintf("%s: %s", ErrValidationFailed, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }

// ValidateMessages checks roles, content blocks, system message placement and
// user/assistant alternation. The input is not modified.
func ValidateMessages(msgs []Message) ValidationResult {
	res := ValidationResult{Valid: true, Errors: []Issue{}}

	systemSeen := false
	for i, m := range msgs {
		checkStructure(&res, i, m)

		if m.Role == RoleSystem {
			if i != 0 {
				res.add(i, "system message must be the first message")
			}
			if systemSeen {
				res.add(i, "only one system message is allowed")
			}
			systemSeen = true
		}
	}

	res.Merge(CheckAlternation(msgs))
	return res
}

func checkStructure(res *ValidationResult, i int, m Message) {
	if !m.Role.IsValid() {
		res.add(i, "invalid role %q", m.Role)
	}
	if len(m.Content) == 0 {
		res.add(i, "content must contain at least one block")
		return
	}
	for j, b := range m.Content {
		if strings.TrimSpace(b.Type) == "" {
			res.add(i, "content block %d has no type", j)
		}
		if strings.TrimSpace(b.Text) == "" {
			res.add(i, "content block %d has no text", j)
		}
	}
}

// CheckAlternation verifies that, after any system messages, user and
// assistant messages alternate: no two user messages in a row, and every
// assistant message answers a pending user message.
func CheckAlternation(msgs []Message) ValidationResult {
	res := ValidationResult{Valid: true, Errors: []Issue{}}

	pendingUser := false
	for i, m := range msgs {
		switch m.Role {
		case RoleUser:
			if pendingUser {
				res.add(i, "user message follows an unanswered user message")
			}
			pendingUser = true
		case RoleAssistant:
			if !pendingUser {
				res.add(i, "assistant message is not preceded by a user message")
			}
			pendingUser = false
		case RoleSystem:
		}
	}

	return res
}
