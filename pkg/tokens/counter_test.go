package tokens

import (
	"testing"

	"github.com/go-go-golems/forkchat/pkg/chain"
	"github.com/go-go-golems/forkchat/pkg/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterCount(t *testing.T) {
	c, err := NewCounter("")
	require.NoError(t, err)

	n, err := c.Count("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	short, err := c.Count("hello")
	require.NoError(t, err)
	long, err := c.Count("hello there, how is the weather in the mountains today?")
	require.NoError(t, err)
	assert.Greater(t, short, 0)
	assert.Greater(t, long, short)
}

func TestNewCounterUnknownModelFallsBack(t *testing.T) {
	c, err := NewCounter("definitely-not-a-model")
	require.NoError(t, err)
	n, err := c.Count("hello")
	require.NoError(t, err)
	assert.Greater(t, n, 0)

	_, err = NewCounterForEncoding("no_such_encoding")
	require.Error(t, err)
}

func TestCountMessages(t *testing.T) {
	c, err := NewCounter("gpt-4")
	require.NoError(t, err)

	empty, err := c.CountMessages(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty)

	one := messages.BuildMessages(nil, "What is Go?", "")
	two := messages.BuildMessages(nil, "What is Go?", "You are terse.")

	n1, err := c.CountMessages(one)
	require.NoError(t, err)
	n2, err := c.CountMessages(two)
	require.NoError(t, err)
	assert.Greater(t, n1, tokensPerMessage+tokensPerReply)
	assert.Greater(t, n2, n1)
}

func TestCounterFeedsChainMetadata(t *testing.T) {
	c, err := NewCounter("")
	require.NoError(t, err)

	ch, err := chain.BuildChain("You are terse.", []messages.Exchange{
		{UserText: "Hi", AssistantText: "Hello"},
	}, "What now?", chain.WithTokenCounter(c))
	require.NoError(t, err)

	want, err := c.CountMessages(ch.Messages)
	require.NoError(t, err)
	assert.Equal(t, want, ch.Metadata.EstimatedTokens)
}
