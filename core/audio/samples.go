package audio

import "math"

func clampSample(sample float32) float32 {
	switch {
	case sample > 1:
		return 1
	case sample < -1:
		return -1
	case sample != sample:
		return 0
	}
	return sample
}

// Int16 converts a float sample to signed 16-bit PCM.
func Int16(sample float32) int16 {
	sample = clampSample(sample)
	if sample >= 0 {
		return int16(sample * math.MaxInt16)
	}
	return int16(sample * 32768)
}
