package client

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedEvent struct {
	event string
	data  string
}

func collectSSE(t *testing.T, stream string) []capturedEvent {
	t.Helper()
	var got []capturedEvent
	err := readSSE(strings.NewReader(stream), func(event string, data []byte) {
		got = append(got, capturedEvent{event, string(data)})
	})
	require.Equal(t, io.EOF, err)
	return got
}

func TestReadSSEParsesEvents(t *testing.T) {
	stream := "event: file-update\ndata: {\"id\":\"f1\"}\n\n" +
		"event: file-deleted\ndata: {\"id\":\"f1\"}\n\n"

	got := collectSSE(t, stream)
	require.Len(t, got, 2)
	assert.Equal(t, capturedEvent{"file-update", `{"id":"f1"}`}, got[0])
	assert.Equal(t, capturedEvent{"file-deleted", `{"id":"f1"}`}, got[1])
}

func TestReadSSEMultilineData(t *testing.T) {
	stream := "event: file-update\ndata: line one\ndata: line two\n\n"

	got := collectSSE(t, stream)
	require.Len(t, got, 1)
	assert.Equal(t, "line one\nline two", got[0].data)
}

func TestReadSSEIgnoresComments(t *testing.T) {
	stream := ": keep-alive\n\nevent: heartbeat\ndata: {\"ts\":1}\n\n: another\n"

	got := collectSSE(t, stream)
	require.Len(t, got, 1)
	assert.Equal(t, "heartbeat", got[0].event)
}

func TestReadSSEFlushesUnterminatedEvent(t *testing.T) {
	// stream cut mid-event: the trailing partial event is still delivered
	got := collectSSE(t, "event: file-update\ndata: {\"id\":\"f9\"}\n")
	require.Len(t, got, 1)
	assert.Equal(t, `{"id":"f9"}`, got[0].data)
}

func TestReadSSEEmptyStream(t *testing.T) {
	assert.Empty(t, collectSSE(t, ""))
}
