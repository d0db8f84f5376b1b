package recording

import (
	"encoding/binary"
	"fmt"

	"github.com/koscakluka/ema-livemusic/core/audio"
	"gopkg.in/hraban/opus.v2"
)

// Format is the container a recording is downloaded as.
type Format string

const (
	FormatOgg Format = "ogg"
	FormatWAV Format = "wav"
)

func (f Format) Extension() string {
	switch f {
	case FormatWAV:
		return "wav"
	default:
		return "ogg"
	}
}

func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case "", FormatOgg:
		return FormatOgg, nil
	case FormatWAV:
		return FormatWAV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// fragmentEncoder turns one frame of interleaved samples into a fragment.
type fragmentEncoder interface {
	Encode(frame []float32) ([]byte, error)
}

type opusFragmentEncoder struct {
	encoder *opus.Encoder
	buffer  []byte
}

func newOpusFragmentEncoder(sampleRate, channels, bitrate int) (*opusFragmentEncoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	if bitrate > 0 {
		if err := enc.SetBitrate(bitrate); err != nil {
			return nil, fmt.Errorf("failed to set opus bitrate: %w", err)
		}
	}

	return &opusFragmentEncoder{encoder: enc, buffer: make([]byte, 4000)}, nil
}

func (e *opusFragmentEncoder) Encode(frame []float32) ([]byte, error) {
	n, err := e.encoder.EncodeFloat32(frame, e.buffer)
	if err != nil {
		return nil, err
	}
	packet := make([]byte, n)
	copy(packet, e.buffer[:n])
	return packet, nil
}

type pcmFragmentEncoder struct{}

func (pcmFragmentEncoder) Encode(frame []float32) ([]byte, error) {
	fragment := make([]byte, len(frame)*2)
	for i, sample := range frame {
		binary.LittleEndian.PutUint16(fragment[i*2:], uint16(audio.Int16(sample)))
	}
	return fragment, nil
}
