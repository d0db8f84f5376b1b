package livemusic

import (
	"time"

	"github.com/koscakluka/ema-livemusic/core/audio"
	"github.com/koscakluka/ema-livemusic/core/generation"
	"github.com/koscakluka/ema-livemusic/core/recording"
)

const (
	DefaultBufferTime          = 2 * time.Second
	DefaultFadeTime            = 100 * time.Millisecond
	DefaultMaxLookahead        = 30 * time.Second
	DefaultLevelInterval       = time.Second / 60
	DefaultMaxDecodeFailures   = 5
	DefaultDecodeFailureWindow = 10 * time.Second
	DefaultAnalyserSize        = 2048
	DefaultSpectrumBands       = 64
)

type HelperOption func(*Helper)

// WithBackend sets the generation backend sessions are opened with.
func WithBackend(backend generation.Backend) HelperOption {
	return func(h *Helper) {
		h.conn.backend = backend
	}
}

// WithOutput sets the output graph. The caller owns the device that renders
// it.
func WithOutput(output *audio.Context) HelperOption {
	return func(h *Helper) {
		h.output = output
	}
}

func WithRecorder(recorder *recording.Recorder) HelperOption {
	return func(h *Helper) {
		h.recorder = recorder
	}
}

// WithTap adds a tap that receives the final output while a session plays,
// e.g. a visualizer or a network stream.
func WithTap(tap audio.Tap) HelperOption {
	return func(h *Helper) {
		h.extraTaps = append(h.extraTaps, tap)
	}
}

// WithBufferTime sets how much audio is collected before playback starts.
func WithBufferTime(d time.Duration) HelperOption {
	return func(h *Helper) {
		if d > 0 {
			h.bufferTime = d
		}
	}
}

func WithFadeTime(d time.Duration) HelperOption {
	return func(h *Helper) {
		if d >= 0 {
			h.fadeTime = d
		}
	}
}

// WithMaxLookahead caps how far ahead of the clock audio may be scheduled.
// Chunks beyond it are dropped. Zero disables the cap.
func WithMaxLookahead(d time.Duration) HelperOption {
	return func(h *Helper) {
		if d >= 0 {
			h.maxLookahead = d
		}
	}
}

func WithLevelInterval(d time.Duration) HelperOption {
	return func(h *Helper) {
		if d > 0 {
			h.levelInterval = d
		}
	}
}

// WithDecodeFailurePolicy stops the session once maxFailures chunks failed to decode
// within window. Zero never stops.
func WithDecodeFailurePolicy(maxFailures int, window time.Duration) HelperOption {
	return func(h *Helper) {
		h.decodeFailures = failureWindow{max: maxFailures, window: window}
	}
}

// WithEncodingInfo sets the encoding assumed for chunks whose MIME type does
// not describe it.
func WithEncodingInfo(info audio.EncodingInfo) HelperOption {
	return func(h *Helper) {
		h.encoding = info
	}
}

func WithPrompt(spec generation.PromptSpec) HelperOption {
	return func(h *Helper) {
		h.prompt = copyPromptSpec(spec)
	}
}

func WithVolume(level float64) HelperOption {
	return func(h *Helper) {
		h.volume = clampVolume(level)
	}
}
