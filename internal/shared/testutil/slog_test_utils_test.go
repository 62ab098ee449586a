package testutil

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedSlogHandler(t *testing.T) {
	logger, handler := NewTestLogger(t)
	component := logger.With("component", "heartbeat")

	component.Warn("heartbeat period clamped", slog.String("process_id", "P1"))
	logger.Info("plain")

	require.Equal(t, 2, handler.Count())
	AssertLogContains(t, handler, slog.LevelWarn, "clamped")
	AssertLogAttr(t, handler, "component", "heartbeat")
	AssertLogAttr(t, handler, "process_id", "P1")
	AssertNoErrors(t, handler)

	assert.True(t, handler.ContainsText("P1"))
	assert.False(t, handler.ContainsText("P2"))
	assert.NotContains(t, handler.GetRecords()[1].Attrs, "component")
}

func TestFixturesAreValidJSON(t *testing.T) {
	for _, doc := range []string{
		ValidationDocument(false, "NO_MACHINE", "fingerprint is not activated", "L1"),
		ValidationDocument(false, "NOT_FOUND", "does not exist", ""),
		MachineDocument("M1", "fp-1", "L1"),
		ProcessDocument("P1", "42", "M1", 60),
		ErrorDocument("Unauthorized", "must be authenticated", "TOKEN_INVALID"),
	} {
		assert.True(t, json.Valid([]byte(doc)), doc)
	}
}
