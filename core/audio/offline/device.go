// Package offline renders an audio.Context without any sound hardware. The
// clock is either advanced by hand or paced in real time by Start.
package offline

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/koscakluka/ema-livemusic/core/audio"
)

// DefaultQuantum matches the Web Audio render quantum.
const DefaultQuantum = 128

type Device struct {
	mu sync.Mutex

	output  *audio.Context
	quantum int
	buffer  []float32
	onFrame func(samples []float32)

	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Device)

func WithQuantum(frames int) Option {
	return func(d *Device) {
		if frames > 0 {
			d.quantum = frames
		}
	}
}

// WithSink receives every rendered quantum, e.g. to write it to a file.
func WithSink(onFrame func(samples []float32)) Option {
	return func(d *Device) {
		d.onFrame = onFrame
	}
}

func New(output *audio.Context, opts ...Option) *Device {
	d := &Device{output: output, quantum: DefaultQuantum}
	for _, opt := range opts {
		opt(d)
	}
	d.buffer = make([]float32, d.quantum*output.Channels())
	return d
}

// Advance renders d worth of frames.
func (d *Device) Advance(duration time.Duration) {
	frames := int(math.Round(duration.Seconds() * float64(d.output.SampleRate())))
	d.AdvanceFrames(frames)
}

// AdvanceFrames renders the given number of frames in quanta.
func (d *Device) AdvanceFrames(frames int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	channels := d.output.Channels()
	for frames > 0 {
		n := min(frames, d.quantum)
		out := d.buffer[:n*channels]
		d.output.Render(out)
		if d.onFrame != nil {
			d.onFrame(out)
		}
		frames -= n
	}
}

// Start renders in real time until ctx is done or Close is called.
func (d *Device) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.cancel != nil {
		d.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.mu.Unlock()

	go d.run(ctx)
	return nil
}

func (d *Device) run(ctx context.Context) {
	defer close(d.done)

	const tick = 10 * time.Millisecond
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.Advance(now.Sub(last))
			last = now
		}
	}
}

func (d *Device) Close() error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}
