package audit

// EventType represents the type of audit event.
type EventType string

const (
	EventSongQueued      EventType = "SONG_QUEUED"
	EventSongStarted     EventType = "SONG_STARTED"
	EventSongEnded       EventType = "SONG_ENDED"
	EventSongSkipped     EventType = "SONG_SKIPPED"
	EventQueueFinished   EventType = "QUEUE_FINISHED"
	EventQueueCleared    EventType = "QUEUE_CLEARED"
	EventFetchFailed     EventType = "FETCH_FAILED"
	EventLifecycleDefect EventType = "LIFECYCLE_DEFECT"
	EventCommandFailed   EventType = "COMMAND_FAILED"
	EventOrphansSwept    EventType = "ORPHANS_SWEPT"
	EventSystemStartup   EventType = "SYSTEM_STARTUP"
	EventSystemShutdown  EventType = "SYSTEM_SHUTDOWN"
)

// EventCorrelation contains IDs that link related events together.
type EventCorrelation struct {
	RequestID  *string `json:"request_id,omitempty"`
	SongID     *string `json:"song_id,omitempty"`
	PlaybackID *string `json:"playback_id,omitempty"`
}

// Alias constants for callers that prefer the short form.
const (
	LevelDebug = EventLevelDebug
	LevelInfo  = EventLevelInfo
	LevelWarn  = EventLevelWarn
	LevelError = EventLevelError
)
