package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"mime"
	"strconv"
	"strings"
)

// Decode turns a base64 payload of little-endian PCM into a Buffer.
func Decode(payload string, info EncodingInfo) (*Buffer, error) {
	if payload == "" {
		return nil, ErrEmptyPayload
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some producers strip the padding.
		if raw, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}

	return DecodePCM(raw, info)
}

// DecodePCM converts raw interleaved PCM bytes into a Buffer.
func DecodePCM(raw []byte, info EncodingInfo) (*Buffer, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}
	if info.IsZero() {
		info = info.WithDefaults(GetDefaultEncodingInfo())
	}

	frameSize := info.FrameSize()
	if frameSize <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, info.Format)
	}
	if len(raw)%frameSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes with %d byte frames", ErrMisalignedPayload, len(raw), frameSize)
	}

	samples := make([]float32, len(raw)/info.Format.ByteSize())
	switch info.Format {
	case EncodingLinear16:
		for i := range samples {
			sample := int16(binary.LittleEndian.Uint16(raw[i*2:]))
			samples[i] = float32(sample) / 32768
		}
	case EncodingFloat32:
		for i := range samples {
			samples[i] = clampSample(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		}
	}

	return &Buffer{SampleRate: info.SampleRate, Channels: info.Channels, Data: samples}, nil
}

// ParseMimeType reads the rate and channels parameters of an audio MIME type
// such as "audio/l16;rate=48000;channels=2". Anything missing or unreadable
// is taken from fallback.
func ParseMimeType(mimeType string, fallback EncodingInfo) EncodingInfo {
	info := fallback
	if strings.TrimSpace(mimeType) == "" {
		return info
	}

	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return info
	}

	switch mediaType {
	case "audio/l16", "audio/pcm":
		info.Format = EncodingLinear16
	case "audio/f32", "audio/float32":
		info.Format = EncodingFloat32
	}
	if rate, err := strconv.Atoi(params["rate"]); err == nil && rate > 0 {
		info.SampleRate = rate
	}
	if channels, err := strconv.Atoi(params["channels"]); err == nil && channels > 0 {
		info.Channels = channels
	}

	return info
}
