package playback

// State is what the controller is doing right now.
type State string

const (
	StateIdle      State = "idle"
	StateResolving State = "resolving"
	StateFetching  State = "fetching"
	StatePlaying   State = "playing"
	StateAdvancing State = "advancing"
)
