package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateMessagesValidSequence(t *testing.T) {
	msgs := BuildMessages([]Exchange{{UserText: "Q1", AssistantText: "A1"}}, "Q2", "SYS")
	res := ValidateMessages(msgs)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.NoError(t, res.Err())
}

func TestValidateMessagesDoubleUser(t *testing.T) {
	msgs := []Message{mustMessage(t, RoleUser, "Q1"), mustMessage(t, RoleUser, "Q2")}
	res := ValidateMessages(msgs)
	require.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Index)

	err := res.Err()
	require.ErrorIs(t, err, ErrValidationFailed)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Issues, 1)
}

func TestValidateMessagesCollectsAllIssues(t *testing.T) {
	msgs := []Message{
		mustMessage(t, RoleAssistant, "A0"),
		mustMessage(t, RoleSystem, "late system"),
		{Role: Role("bot"), Content: []TextBlock{{Type: ContentTypeText, Text: "x"}}},
		{Role: RoleUser},
	}
	before := append([]Message(nil), msgs...)

	res := ValidateMessages(msgs)
	require.False(t, res.Valid)

	indexes := map[int]int{}
	for _, issue := range res.Errors {
		indexes[issue.Index]++
	}
	assert.Equal(t, 1, indexes[0], "assistant without user")
	assert.Equal(t, 1, indexes[1], "system not first")
	assert.Equal(t, 1, indexes[2], "invalid role")
	assert.Equal(t, 1, indexes[3], "empty content")
	assert.Equal(t, before, msgs)
}

func TestValidateMessagesDuplicateSystem(t *testing.T) {
	msgs := []Message{
		mustMessage(t, RoleSystem, "one"),
		mustMessage(t, RoleSystem, "two"),
		mustMessage(t, RoleUser, "hi"),
	}
	res := ValidateMessages(msgs)
	require.False(t, res.Valid)
	require.Len(t, res.Errors, 2)
	for _, issue := range res.Errors {
		assert.Equal(t, 1, issue.Index)
	}
}

func TestValidateMessagesEmptyBlock(t *testing.T) {
	msgs := []Message{{Role: RoleUser, Content: []TextBlock{{Type: "", Text: " "}}}}
	res := ValidateMessages(msgs)
	require.False(t, res.Valid)
	assert.Len(t, res.Errors, 2)
}
