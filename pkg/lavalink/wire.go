package lavalink

// Outbound ops.
const (
	opPlay              = "play"
	opStop              = "stop"
	opPause             = "pause"
	opSeek              = "seek"
	opVolume            = "volume"
	opEqualizer         = "equalizer"
	opVoiceUpdate       = "voiceUpdate"
	opDestroy           = "destroy"
	opConfigureResuming = "configureResuming"
)

// Inbound ops.
const (
	opStats        = "stats"
	opPlayerUpdate = "playerUpdate"
	opEvent        = "event"
)

type playMessage struct {
	Op        string `json:"op"`
	GuildID   string `json:"guildId"`
	Track     string `json:"track"`
	StartTime int64  `json:"startTime,omitempty"`
	EndTime   int64  `json:"endTime,omitempty"`
	NoReplace bool   `json:"noReplace,omitempty"`
}

type guildMessage struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId"`
}

type pauseMessage struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId"`
	Pause   bool   `json:"pause"`
}

type seekMessage struct {
	Op       string `json:"op"`
	GuildID  string `json:"guildId"`
	Position int64  `json:"position"`
}

type volumeMessage struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId"`
	Volume  int    `json:"volume"`
}

// Band is one equalizer entry as sent to the node.
type Band struct {
	Band int     `json:"band"`
	Gain float64 `json:"gain"`
}

type equalizerMessage struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId"`
	Bands   []Band `json:"bands"`
}

type voiceUpdateMessage struct {
	Op        string         `json:"op"`
	GuildID   string         `json:"guildId"`
	SessionID string         `json:"sessionId"`
	Event     map[string]any `json:"event"`
}

type configureResumingMessage struct {
	Op      string `json:"op"`
	Key     string `json:"key"`
	Timeout int    `json:"timeout"`
}

// inbound is the envelope every node message is first decoded into.
type inbound struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId"`

	// playerUpdate
	State *struct {
		Position int64 `json:"position"`
		Time     int64 `json:"time"`
	} `json:"state"`

	// event
	Type        string `json:"type"`
	Reason      string `json:"reason"`
	ThresholdMs int64  `json:"thresholdMs"`
	Error       string `json:"error"`
	Exception   *struct {
		Message  string `json:"message"`
		Severity string `json:"severity"`
	} `json:"exception"`
	Code     int  `json:"code"`
	ByRemote bool `json:"byRemote"`
}
