package lavalink

import "strings"

// Event is the closed set of events produced by the client. Consumers match
// on the concrete type with a type switch.
type Event interface {
	event()
}

// Raw event types sent by the node.
const (
	eventTrackEnd       = "TrackEndEvent"
	eventTrackStuck     = "TrackStuckEvent"
	eventTrackException = "TrackExceptionEvent"
	eventSocketClosed   = "WebSocketClosedEvent"
)

// ReasonFinished is the track end reason reported when a track played to
// completion.
const ReasonFinished = "FINISHED"

// TrackEndEvent is emitted by the node when a track stops playing.
type TrackEndEvent struct {
	Player *Player
	Track  *Track
	Reason string
}

// Finished reports whether the track played to completion.
func (e TrackEndEvent) Finished() bool {
	return strings.EqualFold(e.Reason, ReasonFinished)
}

// TrackStuckEvent is emitted when the node stops receiving frames for a track.
type TrackStuckEvent struct {
	Player      *Player
	Track       *Track
	ThresholdMs int64
}

// TrackExceptionEvent is emitted when the node fails to play a track.
type TrackExceptionEvent struct {
	Player *Player
	Track  *Track
	Error  string
}

// WebSocketClosedEvent is emitted when the node's voice connection to the
// voice server is closed.
type WebSocketClosedEvent struct {
	Player   *Player
	Code     int
	Reason   string
	ByRemote bool
}

// TrackStartEvent is emitted locally when a player starts a track.
type TrackStartEvent struct {
	Player *Player
	Track  *Track
}

// QueueEndEvent is emitted when a player is asked to advance with an empty queue.
type QueueEndEvent struct {
	Player *Player
}

// PlayerUpdateEvent is emitted after a playerUpdate message was applied.
type PlayerUpdateEvent struct {
	Player    *Player
	Position  int64
	Timestamp int64
}

// NodeChangedEvent is emitted after a player moved to another node.
type NodeChangedEvent struct {
	Player *Player
	Old    *Node
	New    *Node
}

// NodeConnectedEvent is emitted when a node connection becomes live.
type NodeConnectedEvent struct {
	Node *Node
}

// NodeDisconnectedEvent is emitted when a node connection is lost.
type NodeDisconnectedEvent struct {
	Node   *Node
	Code   int
	Reason string
}

func (TrackEndEvent) event()         {}
func (TrackStuckEvent) event()       {}
func (TrackExceptionEvent) event()   {}
func (WebSocketClosedEvent) event()  {}
func (TrackStartEvent) event()       {}
func (QueueEndEvent) event()         {}
func (PlayerUpdateEvent) event()     {}
func (NodeChangedEvent) event()      {}
func (NodeConnectedEvent) event()    {}
func (NodeDisconnectedEvent) event() {}

// translateEvent maps a raw event message to a typed event. The second return
// value is false for unknown types.
func translateEvent(p *Player, msg *inbound) (Event, bool) {
	switch msg.Type {
	case eventTrackEnd:
		return TrackEndEvent{Player: p, Track: p.Current(), Reason: msg.Reason}, true
	case eventTrackStuck:
		return TrackStuckEvent{Player: p, Track: p.Current(), ThresholdMs: msg.ThresholdMs}, true
	case eventTrackException:
		desc := msg.Error
		if desc == "" && msg.Exception != nil {
			desc = msg.Exception.Message
		}
		return TrackExceptionEvent{Player: p, Track: p.Current(), Error: desc}, true
	case eventSocketClosed:
		return WebSocketClosedEvent{Player: p, Code: msg.Code, Reason: msg.Reason, ByRemote: msg.ByRemote}, true
	default:
		return nil, false
	}
}

// terminal reports whether e ends the current track from the player's
// point of view.
func terminal(e Event) bool {
	switch ev := e.(type) {
	case TrackStuckEvent, TrackExceptionEvent:
		return true
	case TrackEndEvent:
		return ev.Finished()
	default:
		return false
	}
}
