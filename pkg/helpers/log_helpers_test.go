package helpers

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	var ret []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		ret = append(ret, m)
	}
	return ret
}

func TestWatermillZerologAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.TraceLevel)
	a := NewWatermill(logger).With(watermill.LogFields{"topic": "conversation"})

	a.Info("subscribed", watermill.LogFields{"subscriber": 1})
	a.Error("publish failed", errors.New("closed"), nil)
	a.Trace("tick", nil)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)

	assert.Equal(t, "debug", lines[0]["level"], "info is downgraded to debug")
	assert.Equal(t, "subscribed", lines[0]["message"])
	assert.Equal(t, "conversation", lines[0]["topic"])
	assert.EqualValues(t, 1, lines[0]["subscriber"])

	assert.Equal(t, "error", lines[1]["level"])
	assert.Equal(t, "closed", lines[1]["error"])

	assert.Equal(t, "trace", lines[2]["level"])
}
