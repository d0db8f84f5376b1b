package audio

const (
	DefaultSampleRate = 48000
	DefaultChannels   = 2
	DefaultFormat     = "linear16"
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		Format:     encodingFormat(DefaultFormat),
	}
}

// EncodingInfo describes interleaved PCM as it arrives on the wire.
type EncodingInfo struct {
	SampleRate int
	Channels   int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Channels == 0 || e.Format.Name() == ""
}

// FrameSize is the number of bytes one frame (a sample for every channel)
// takes, or -1 for unknown formats.
func (e EncodingInfo) FrameSize() int {
	if size := e.Format.ByteSize(); size > 0 {
		return size * e.Channels
	}
	return -1
}

// WithDefaults fills zero fields from the given fallback.
func (e EncodingInfo) WithDefaults(fallback EncodingInfo) EncodingInfo {
	if e.SampleRate == 0 {
		e.SampleRate = fallback.SampleRate
	}
	if e.Channels == 0 {
		e.Channels = fallback.Channels
	}
	if e.Format == "" {
		e.Format = fallback.Format
	}
	return e
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingLinear16:
		return 2
	case EncodingFloat32:
		return 4
	}
	return -1
}

const (
	EncodingLinear16 encodingFormat = "linear16"
	EncodingFloat32  encodingFormat = "float32"
)
