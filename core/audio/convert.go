package audio

import "math"

// Convert returns buf at the given sample rate and channel count. A buffer
// that already matches is returned as is.
//
// Channels are averaged down to mono, duplicated up from mono, and otherwise
// mapped one to one with missing channels repeating the source layout. The
// rate is changed with Catmull-Rom interpolation, each buffer on its own.
func Convert(buf *Buffer, sampleRate, channels int) *Buffer {
	if buf == nil || buf.Frames() == 0 || sampleRate <= 0 || channels <= 0 {
		return buf
	}
	if buf.SampleRate == sampleRate && buf.Channels == channels {
		return buf
	}

	out := remix(buf, channels)
	if out.SampleRate != sampleRate {
		out = resample(out, sampleRate)
	}
	return out
}

func remix(buf *Buffer, channels int) *Buffer {
	if buf.Channels == channels {
		return buf
	}

	frames := buf.Frames()
	data := make([]float32, frames*channels)
	for frame := range frames {
		src := buf.Data[frame*buf.Channels : (frame+1)*buf.Channels]
		dst := data[frame*channels : (frame+1)*channels]

		if channels == 1 {
			var sum float32
			for _, sample := range src {
				sum += sample
			}
			dst[0] = sum / float32(len(src))
			continue
		}
		for ch := range dst {
			dst[ch] = src[ch%len(src)]
		}
	}

	return &Buffer{SampleRate: buf.SampleRate, Channels: channels, Data: data}
}

func resample(buf *Buffer, sampleRate int) *Buffer {
	srcFrames := buf.Frames()
	ratio := float64(buf.SampleRate) / float64(sampleRate)
	dstFrames := max(int(math.Round(float64(srcFrames)/ratio)), 1)
	channels := buf.Channels

	at := func(frame, ch int) float32 {
		frame = min(max(frame, 0), srcFrames-1)
		return buf.Data[frame*channels+ch]
	}

	data := make([]float32, dstFrames*channels)
	for frame := range dstFrames {
		pos := float64(frame) * ratio
		base := int(pos)
		x := float32(pos - float64(base))
		for ch := range channels {
			data[frame*channels+ch] = clampSample(catmullRom(
				at(base-1, ch), at(base, ch), at(base+1, ch), at(base+2, ch), x))
		}
	}

	return &Buffer{SampleRate: sampleRate, Channels: channels, Data: data}
}

func catmullRom(y0, y1, y2, y3, x float32) float32 {
	a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	a2 := -0.5*y0 + 0.5*y2
	return a0*x*x*x + a1*x*x + a2*x + y1
}
