package lavalink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateEvent(t *testing.T) {
	f := newPlayerFixture(t, ModeQueue)
	cur := testTrack("a", 1000)
	f.player.current = cur

	ev, ok := translateEvent(f.player, &inbound{Type: "TrackEndEvent", Reason: "REPLACED"})
	require.True(t, ok)
	end := ev.(TrackEndEvent)
	assert.Same(t, cur, end.Track)
	assert.Same(t, f.player, end.Player)
	assert.False(t, end.Finished())

	ev, ok = translateEvent(f.player, &inbound{Type: "TrackStuckEvent", ThresholdMs: 5000})
	require.True(t, ok)
	assert.Equal(t, int64(5000), ev.(TrackStuckEvent).ThresholdMs)

	ev, ok = translateEvent(f.player, &inbound{Type: "TrackExceptionEvent", Error: "boom"})
	require.True(t, ok)
	assert.Equal(t, "boom", ev.(TrackExceptionEvent).Error)

	msg := &inbound{Type: "TrackExceptionEvent"}
	msg.Exception = &struct {
		Message  string `json:"message"`
		Severity string `json:"severity"`
	}{Message: "video unavailable", Severity: "COMMON"}
	ev, ok = translateEvent(f.player, msg)
	require.True(t, ok)
	assert.Equal(t, "video unavailable", ev.(TrackExceptionEvent).Error)

	ev, ok = translateEvent(f.player, &inbound{Type: "WebSocketClosedEvent", Code: 4006, Reason: "session invalid", ByRemote: true})
	require.True(t, ok)
	assert.Equal(t, WebSocketClosedEvent{Player: f.player, Code: 4006, Reason: "session invalid", ByRemote: true}, ev)

	_, ok = translateEvent(f.player, &inbound{Type: "SomethingNew"})
	assert.False(t, ok)
}

func TestTerminal(t *testing.T) {
	assert.True(t, terminal(TrackEndEvent{Reason: "FINISHED"}))
	assert.True(t, terminal(TrackEndEvent{Reason: "finished"}))
	assert.False(t, terminal(TrackEndEvent{Reason: "REPLACED"}))
	assert.False(t, terminal(TrackEndEvent{Reason: "STOPPED"}))
	assert.True(t, terminal(TrackStuckEvent{}))
	assert.True(t, terminal(TrackExceptionEvent{}))
	assert.False(t, terminal(WebSocketClosedEvent{}))
	assert.False(t, terminal(PlayerUpdateEvent{}))
}
