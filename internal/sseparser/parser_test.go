package sseparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(t *testing.T, p *Parser, data []byte, chunkSize int) []Event {
	t.Helper()
	var all []Event
	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		evs, err := p.Feed(data[i:end])
		require.NoError(t, err)
		all = append(all, evs...)
	}
	flushed, err := p.Flush()
	require.NoError(t, err)
	return append(all, flushed...)
}

func TestParserByteSplitInvariance(t *testing.T) {
	data := []byte("event: message_start\ndata: {\"type\":\"message_start\"}\n\ndata: {\"type\":\"ping\"}\n\ndata: [DONE]\n\n")

	big := feedAll(t, New(), data, len(data))
	small := feedAll(t, New(), data, 1)

	require.Equal(t, len(big), len(small))
	for i := range big {
		assert.Equal(t, big[i], small[i])
	}
	require.Len(t, big, 3)
	assert.Equal(t, EventData, big[0].Kind)
	assert.Equal(t, `{"type":"message_start"}`, big[0].Payload)
	assert.Equal(t, EventDone, big[2].Kind)
}

func TestParserIgnoresCommentsAndEventLines(t *testing.T) {
	p := New()
	evs, err := p.Feed([]byte(":keep-alive\nevent: ping\ndata: {\"a\":1}\n"))
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, `{"a":1}`, evs[0].Payload)
}

func TestParserRawJSONWithoutDataPrefix(t *testing.T) {
	p := New()
	evs, err := p.Feed([]byte("{\"type\":\"candidate\"}\n"))
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, `{"type":"candidate"}`, evs[0].Payload)
}

func TestParserFlushUnterminatedTrailingData(t *testing.T) {
	p := New()
	evs, err := p.Feed([]byte("data: {\"partial\":true}"))
	require.NoError(t, err)
	assert.Empty(t, evs)

	flushed, err := p.Flush()
	require.NoError(t, err)
	require.Len(t, flushed, 1)
	assert.Equal(t, `{"partial":true}`, flushed[0].Payload)
}

func TestParserInfiniteLoopGuard(t *testing.T) {
	p := New()
	var lastErr error
	for i := 0; i < 150; i++ {
		_, err := p.Feed([]byte("data: {\"same\":true}\n"))
		if err != nil {
			lastErr = err
			break
		}
	}
	require.Error(t, lastErr)
	assert.Contains(t, lastErr.Error(), "100 times")
}

func TestParserRepeatGuardResetsOnDifferentPayload(t *testing.T) {
	p := New()
	for i := 0; i < 99; i++ {
		_, err := p.Feed([]byte("data: {\"same\":true}\n"))
		require.NoError(t, err)
	}
	_, err := p.Feed([]byte("data: {\"different\":true}\n"))
	require.NoError(t, err)
	for i := 0; i < 99; i++ {
		_, err := p.Feed([]byte("data: {\"same\":true}\n"))
		require.NoError(t, err)
	}
}
