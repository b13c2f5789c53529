package audit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordWritesPrefixedJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf)

	err := l.Record(EventPromotion, "promote", "cand-1", map[string]interface{}{
		"action": "parameter-override-written",
	})
	require.NoError(t, err)

	line := buf.String()
	require.True(t, strings.HasPrefix(line, "AUDIT: "))

	var event Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "AUDIT: ")), &event))
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, EventPromotion, event.Type)
	assert.Equal(t, "promote", event.Action)
	assert.Equal(t, "cand-1", event.Resource)
	assert.False(t, event.Timestamp.IsZero())
	assert.Equal(t, "parameter-override-written", event.Metadata["action"])
}

func TestEventIDsUnique(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf)
	require.NoError(t, l.Record(EventLedger, "append", "run_ledger", nil))
	require.NoError(t, l.Record(EventLedger, "append", "run_ledger", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[0], "AUDIT: ")), &first))
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "AUDIT: ")), &second))
	assert.NotEqual(t, first.ID, second.ID)
}

func TestNopDiscards(t *testing.T) {
	assert.NoError(t, Nop{}.Record(EventSandbox, "run", "cand-1", nil))
}
