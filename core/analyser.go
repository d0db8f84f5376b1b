package livemusic

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	minDecibels = -100.0
	maxDecibels = -30.0
)

// analyser keeps the latest window of the output mixed down to mono and turns
// it into a frequency snapshot on request.
type analyser struct {
	mu sync.Mutex

	ring []float64
	pos  int

	bands    int
	fft      *fourier.FFT
	windowed []float64
	coeffs   []complex128
}

func newAnalyser(size, bands int) *analyser {
	return &analyser{
		ring:     make([]float64, size),
		bands:    bands,
		fft:      fourier.NewFFT(size),
		windowed: make([]float64, size),
	}
}

// Process implements audio.Tap.
func (a *analyser) Process(samples []float32, channels int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := 0; i+channels <= len(samples); i += channels {
		var sum float32
		for _, sample := range samples[i : i+channels] {
			sum += sample
		}
		a.ring[a.pos] = float64(sum) / float64(channels)
		a.pos++
		if a.pos == len(a.ring) {
			a.pos = 0
		}
	}
}

// snapshot returns the spectrum in bands normalized to [0, 1] on the same
// decibel scale a Web Audio analyser uses, and the RMS level of the window.
func (a *analyser) snapshot() (spectrum []float64, level float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := len(a.ring)
	n := copy(a.windowed, a.ring[a.pos:])
	copy(a.windowed[n:], a.ring[:a.pos])

	var sumSquares float64
	for _, sample := range a.windowed {
		sumSquares += sample * sample
	}
	level = math.Min(math.Sqrt(sumSquares/float64(size)), 1)

	window.Hann(a.windowed)
	a.coeffs = a.fft.Coefficients(a.coeffs, a.windowed)

	// Hann halves the coherent gain, so a full scale sine peaks at size/4.
	scale := 4 / float64(size)
	bins := a.coeffs[1 : size/2]
	spectrum = make([]float64, a.bands)
	perBand := max(len(bins)/a.bands, 1)
	for band := range spectrum {
		from := band * perBand
		if from >= len(bins) {
			break
		}
		to := min(from+perBand, len(bins))

		var peak float64
		for _, c := range bins[from:to] {
			peak = math.Max(peak, cmplx.Abs(c)*scale)
		}
		spectrum[band] = normalizeDecibels(peak)
	}

	return spectrum, level
}

func normalizeDecibels(magnitude float64) float64 {
	if magnitude <= 0 {
		return 0
	}
	db := 20 * math.Log10(magnitude)
	return math.Max(0, math.Min(1, (db-minDecibels)/(maxDecibels-minDecibels)))
}

func (a *analyser) reset() {
	a.mu.Lock()
	clear(a.ring)
	a.pos = 0
	a.mu.Unlock()
}
