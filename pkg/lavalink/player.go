package lavalink

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultVolume  = 100
	MaxVolume      = 1000 // enforced by the node, not locally
	EqualizerBands = 15
	MinGain        = -0.25
	MaxGain        = 1.0
)

// Mode selects how a player reacts when a track ends.
type Mode int

const (
	// ModeQueue keeps a queue and advances to the next track automatically.
	ModeQueue Mode = iota
	// ModeBasic has no queue; a finished track simply clears the current one.
	ModeBasic
)

func (m Mode) String() string {
	switch m {
	case ModeQueue:
		return "queue"
	case ModeBasic:
		return "basic"
	default:
		return "unknown"
	}
}

// VoiceSession pairs the voice session id with the voice server payload.
// Both halves are required before a voiceUpdate is sent to the node.
type VoiceSession struct {
	SessionID string
	Event     map[string]any
}

func (v VoiceSession) complete() bool {
	return v.SessionID != "" && v.Event != nil
}

func (v VoiceSession) empty() bool {
	return v.SessionID == "" && v.Event == nil
}

// PlayOptions tune a play command. Zero values mean "use the node's default".
type PlayOptions struct {
	StartTime int64 // ms offset to start at
	EndTime   int64 // ms offset to stop at
	NoReplace bool  // ignore the command if something is already playing
}

// Player holds the playback state of one guild and issues commands to the
// node it is currently bound to. Commands update local state optimistically;
// the node does not acknowledge them.
type Player struct {
	guildID  string
	mode     Mode
	log      zerolog.Logger
	dispatch func(Event)
	clock    func() time.Time
	intn     func(int) int

	mu           sync.Mutex
	node         *Node
	originalNode *Node // node the player was failed over from
	channelID    string
	voice        VoiceSession
	paused       bool
	volume       int
	equalizer    [EqualizerBands]float64
	current      *Track
	lastUpdate   time.Time
	lastPosition int64
	nodeTime     int64
	queue        *Queue // nil in ModeBasic
	data         *Store[string, any]
}

func newPlayer(guildID string, node *Node, mode Mode, cfg *Config, dispatch func(Event)) *Player {
	p := &Player{
		guildID:  guildID,
		mode:     mode,
		log:      cfg.Logger.With().Str("guild", guildID).Logger(),
		dispatch: dispatch,
		clock:    cfg.Clock,
		intn:     cfg.Rand,
		node:     node,
		volume:   DefaultVolume,
		data:     NewStore[string, any](),
	}
	if mode == ModeQueue {
		p.queue = &Queue{}
	}
	return p
}

func (p *Player) GuildID() string { return p.guildID }
func (p *Player) Mode() Mode      { return p.mode }

// Node returns the node the player currently sends commands to.
func (p *Player) Node() *Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.node
}

// Current returns the current track, or nil.
func (p *Player) Current() *Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Equalizer returns a copy of the 15 band gains.
func (p *Player) Equalizer() [EqualizerBands]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.equalizer
}

// ChannelID returns the voice channel the bot is in for this guild.
func (p *Player) ChannelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channelID
}

// IsConnected reports whether the bot is in a voice channel.
func (p *Player) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channelID != ""
}

// IsPlaying reports whether the player is connected and has a current track.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playingLocked()
}

func (p *Player) playingLocked() bool {
	return p.channelID != "" && p.current != nil
}

// Position returns the estimated playback position in milliseconds, derived
// from the last position reported by the node plus the time elapsed since.
// It never exceeds the current track's duration.
func (p *Player) Position() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() int64 {
	if !p.playingLocked() {
		return 0
	}
	if p.paused {
		return min(p.lastPosition, p.current.Duration)
	}
	elapsed := p.clock().Sub(p.lastUpdate).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return min(p.lastPosition+elapsed, p.current.Duration)
}

// Play starts track. With a nil track, a queue player takes the next track
// from its queue (and emits QueueEndEvent when the queue is empty); a basic
// player returns ErrNoTrack.
func (p *Player) Play(track *Track, opts PlayOptions) error {
	p.mu.Lock()

	if track == nil && p.queue == nil {
		p.mu.Unlock()
		return ErrNoTrack
	}

	repeat := p.queue != nil && p.queue.repeat && p.current != nil

	pick := -1
	if track == nil {
		n := p.queue.Len()
		if repeat {
			n++
		}
		if n == 0 {
			p.resetAnchorsLocked(0)
			err := p.stopLocked()
			p.mu.Unlock()
			p.log.Debug().Msg("Queue is empty, nothing to play")
			p.dispatch(QueueEndEvent{Player: p})
			return err
		}
		pick = 0
		if p.queue.shuffle {
			pick = p.intn(n)
		}
		if pick < p.queue.Len() {
			track = p.queue.tracks[pick]
		} else {
			track = p.current
		}
	}

	if err := validateTimes(track, opts); err != nil {
		p.mu.Unlock()
		return err
	}

	if repeat {
		p.queue.push(p.current)
	}
	if pick >= 0 {
		p.queue.removeAt(pick)
	}

	p.resetAnchorsLocked(opts.StartTime)
	p.current = track
	err := p.sendLocked(playMessage{
		Op:        opPlay,
		GuildID:   p.guildID,
		Track:     track.Encoded,
		StartTime: opts.StartTime,
		EndTime:   opts.EndTime,
		NoReplace: opts.NoReplace,
	})
	p.mu.Unlock()

	p.log.Debug().Str("title", track.Title).Int64("start", opts.StartTime).Msg("Playing track")
	p.dispatch(TrackStartEvent{Player: p, Track: track})
	return err
}

// PlayNext is Play(nil, PlayOptions{}).
func (p *Player) PlayNext() error {
	return p.Play(nil, PlayOptions{})
}

func validateTimes(t *Track, opts PlayOptions) error {
	if opts.StartTime != 0 && (opts.StartTime < 0 || opts.StartTime > t.Duration) {
		return &TimeRangeError{Field: "startTime", Value: opts.StartTime, Duration: t.Duration}
	}
	if opts.EndTime != 0 && (opts.EndTime < 0 || opts.EndTime > t.Duration) {
		return &TimeRangeError{Field: "endTime", Value: opts.EndTime, Duration: t.Duration}
	}
	return nil
}

func (p *Player) resetAnchorsLocked(position int64) {
	p.lastUpdate = p.clock()
	p.lastPosition = position
	p.nodeTime = 0
	p.paused = false
}

// Stop stops playback and clears the current track.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

func (p *Player) stopLocked() error {
	err := p.sendLocked(guildMessage{Op: opStop, GuildID: p.guildID})
	p.current = nil
	return err
}

func (p *Player) SetPause(pause bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pause && !p.paused {
		// freeze the estimate at the moment of pausing
		p.lastPosition = p.positionLocked()
		p.lastUpdate = p.clock()
	} else if !pause && p.paused {
		p.lastUpdate = p.clock()
	}
	err := p.sendLocked(pauseMessage{Op: opPause, GuildID: p.guildID, Pause: pause})
	p.paused = pause
	return err
}

// SetVolume sends the new volume and stores it. The node caps it at MaxVolume.
func (p *Player) SetVolume(volume int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.sendLocked(volumeMessage{Op: opVolume, GuildID: p.guildID, Volume: volume})
	p.volume = volume
	return err
}

// SeekTo asks the node to jump to position (ms). Local anchors are corrected
// by the next playerUpdate.
func (p *Player) SeekTo(position int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sendLocked(seekMessage{Op: opSeek, GuildID: p.guildID, Position: position})
}

// SetGains updates several equalizer bands in one command. Gains are clamped
// to [MinGain, MaxGain]. If any band is out of range nothing is changed.
func (p *Player) SetGains(gains ...Band) error {
	update := make([]Band, 0, len(gains))
	for _, g := range gains {
		if g.Band < 0 || g.Band >= EqualizerBands {
			return &BandError{Band: g.Band}
		}
		update = append(update, Band{Band: g.Band, Gain: clampGain(g.Gain)})
	}
	if len(update) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range update {
		p.equalizer[b.Band] = b.Gain
	}
	return p.sendLocked(equalizerMessage{Op: opEqualizer, GuildID: p.guildID, Bands: update})
}

// SetGain updates a single equalizer band.
func (p *Player) SetGain(band int, gain float64) error {
	return p.SetGains(Band{Band: band, Gain: gain})
}

// ResetEqualizer sets every band back to 0.
func (p *Player) ResetEqualizer() error {
	bands := make([]Band, EqualizerBands)
	for i := range bands {
		bands[i] = Band{Band: i}
	}
	return p.SetGains(bands...)
}

func clampGain(g float64) float64 {
	return max(min(g, MaxGain), MinGain)
}

// VoiceServerUpdate merges the voice server payload into the voice session.
func (p *Player) VoiceServerUpdate(event map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voice.Event = event
	p.sendVoiceUpdateLocked()
}

// VoiceStateUpdate merges the bot's own voice state. An empty channelID
// means the bot left voice: the voice session is dropped and nothing is sent.
func (p *Player) VoiceStateUpdate(sessionID, channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voice.SessionID = sessionID
	p.channelID = channelID

	if channelID == "" {
		p.voice = VoiceSession{}
		return
	}
	p.sendVoiceUpdateLocked()
}

func (p *Player) sendVoiceUpdateLocked() {
	if !p.voice.complete() {
		return
	}
	_ = p.sendLocked(voiceUpdateMessage{
		Op:        opVoiceUpdate,
		GuildID:   p.guildID,
		SessionID: p.voice.SessionID,
		Event:     p.voice.Event,
	})
}

// Store saves caller-defined data on the player.
func (p *Player) Store(key string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Set(key, value)
}

// Fetch returns stored data for key, or def.
func (p *Player) Fetch(key string, def any) any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data.Get(key, def)
}

// Delete removes stored data for key.
func (p *Player) Delete(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Delete(key)
}

// Cleanup clears the queue and stored data.
func (p *Player) Cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue != nil {
		p.queue.clear()
	}
	p.data.Clear()
}

// updateState applies a playerUpdate from the node.
func (p *Player) updateState(position, nodeTime int64) {
	p.mu.Lock()
	p.lastUpdate = p.clock()
	p.lastPosition = position
	p.nodeTime = nodeTime
	p.mu.Unlock()

	p.dispatch(PlayerUpdateEvent{Player: p, Position: position, Timestamp: nodeTime})
}

// handleEvent reacts to a translated node event.
func (p *Player) handleEvent(e Event) {
	if !terminal(e) {
		return
	}

	if p.mode == ModeBasic {
		p.mu.Lock()
		p.current = nil
		p.mu.Unlock()
		return
	}

	if err := p.PlayNext(); err != nil {
		p.log.Error().Err(err).Msg("Failed to advance queue")
	}
}

func (p *Player) sendLocked(v any) error {
	if p.node == nil {
		return ErrNoAvailableNode
	}
	if err := p.node.Send(v); err != nil {
		p.log.Error().Err(err).Msg("Failed to send command")
		return err
	}
	return nil
}
