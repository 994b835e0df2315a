package player

// Message types on the player websocket.
const (
	TypeDeliver   = "deliver"
	TypePause     = "pause"
	TypeResume    = "resume"
	TypeSetVolume = "setVolume"
	TypePing      = "ping"

	TypeEnded = "ended"
	TypePong  = "pong"
	TypeReady = "ready"
)

// Delivery is one file handed to the player. The player echoes PlaybackID when it finishes.
type Delivery struct {
	PlaybackID string
	Path       string
	Title      string
}

// AudioURL is where the player fetches the delivered file.
func (d Delivery) AudioURL() string {
	return "/audio?v=" + d.PlaybackID
}

// --- Outgoing messages (server → player) ---

// DeliverMessage tells the player to load and start a new file.
type DeliverMessage struct {
	Type       string `json:"type"` // "deliver"
	PlaybackID string `json:"playbackId"`
	URL        string `json:"url"`
	Title      string `json:"title"`
}

// VolumeMessage sets the player volume in percent.
type VolumeMessage struct {
	Type   string `json:"type"` // "setVolume"
	Volume int    `json:"volume"`
}

// ControlMessage carries messages without a payload: pause, resume, ping.
type ControlMessage struct {
	Type string `json:"type"`
}

// --- Incoming messages (player → server) ---

// IncomingMessage is the envelope for everything the player sends.
type IncomingMessage struct {
	Type       string `json:"type"` // "ended", "pong" or "ready"
	PlaybackID string `json:"playbackId,omitempty"`
}

// ConnectionStatus represents the player connection state.
type ConnectionStatus struct {
	Player     string `json:"player"` // "connected" or "disconnected"
	PlaybackID string `json:"playback_id,omitempty"`
	Title      string `json:"title,omitempty"`
	Volume     *int   `json:"volume,omitempty"`
	Paused     bool   `json:"paused"`
}
