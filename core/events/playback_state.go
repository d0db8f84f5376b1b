package events

const (
	// KindPlaybackStateChanged identifies a playback state transition.
	KindPlaybackStateChanged Kind = "playback_state.changed"
)

// PlaybackState is the lifecycle of a live music session.
type PlaybackState string

const (
	PlaybackStopped PlaybackState = "stopped"
	PlaybackLoading PlaybackState = "loading"
	PlaybackPlaying PlaybackState = "playing"
	PlaybackPaused  PlaybackState = "paused"
)

// PlaybackStateChanged carries the state the helper just moved to.
type PlaybackStateChanged struct {
	Base
	State PlaybackState
}

// NewPlaybackStateChanged creates a playback state changed event.
func NewPlaybackStateChanged(state PlaybackState) PlaybackStateChanged {
	return PlaybackStateChanged{Base: NewBase(KindPlaybackStateChanged), State: state}
}
