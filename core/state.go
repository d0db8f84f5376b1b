package livemusic

import events "github.com/koscakluka/ema-livemusic/core/events"

type PlaybackState = events.PlaybackState

const (
	StateStopped = events.PlaybackStopped
	StateLoading = events.PlaybackLoading
	StatePlaying = events.PlaybackPlaying
	StatePaused  = events.PlaybackPaused
)
