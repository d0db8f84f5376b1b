package events

const (
	// KindAudioLevelChanged identifies an output analysis snapshot.
	KindAudioLevelChanged Kind = "audio_level.changed"
)

// AudioLevelChanged carries normalized magnitudes per frequency band and the
// RMS level of the latest analysis window, both in [0, 1].
type AudioLevelChanged struct {
	Base
	Spectrum []float64
	Level    float64
}

// NewAudioLevelChanged creates an audio level changed event.
func NewAudioLevelChanged(spectrum []float64, level float64) AudioLevelChanged {
	return AudioLevelChanged{Base: NewBase(KindAudioLevelChanged), Spectrum: spectrum, Level: level}
}
