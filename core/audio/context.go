package audio

import (
	"context"
	"math"
	"slices"
	"sync"
	"time"
)

// Device drives a Context by pulling rendered audio from it.
type Device interface {
	Start(ctx context.Context) error
	Close() error
}

// Tap receives every rendered quantum after gain has been applied. The
// samples are only valid for the duration of the call.
type Tap interface {
	Process(samples []float32, channels int)
}

type TapFunc func(samples []float32, channels int)

func (f TapFunc) Process(samples []float32, channels int) { f(samples, channels) }

type scheduledBuffer struct {
	buffer *Buffer
	start  int64
	end    int64
}

type tapEntry struct {
	tap Tap
}

type gainRamp struct {
	startFrame int64
	endFrame   int64
	from       float64
	to         float64
}

// Context is an output graph: scheduled buffers are summed, multiplied by a
// single gain and handed to the device and the connected taps. Its clock is
// the number of frames rendered while running divided by the sample rate, so
// it stands still while the context is suspended.
type Context struct {
	mu sync.Mutex

	sampleRate int
	channels   int

	frame     int64
	suspended bool

	gainValue float64
	gainRamp  *gainRamp

	scheduled []scheduledBuffer
	taps      []*tapEntry
	tasks     []*Task
}

// NewContext creates a suspended context with unity gain.
func NewContext(sampleRate, channels int) *Context {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}

	return &Context{
		sampleRate: sampleRate,
		channels:   channels,
		suspended:  true,
		gainValue:  1,
	}
}

func (c *Context) SampleRate() int { return c.sampleRate }

func (c *Context) Channels() int { return c.channels }

func (c *Context) EncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: c.sampleRate, Channels: c.channels, Format: EncodingFloat32}
}

// CurrentTime returns the output clock in seconds.
func (c *Context) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeLocked()
}

func (c *Context) timeLocked() float64 {
	return float64(c.frame) / float64(c.sampleRate)
}

func (c *Context) toFrame(seconds float64) int64 {
	return int64(math.Round(seconds * float64(c.sampleRate)))
}

func (c *Context) durationFrames(d time.Duration) int64 {
	return int64(math.Round(d.Seconds() * float64(c.sampleRate)))
}

func (c *Context) Suspend() {
	c.mu.Lock()
	c.suspended = true
	c.mu.Unlock()
}

func (c *Context) Resume() {
	c.mu.Lock()
	c.suspended = false
	c.mu.Unlock()
}

func (c *Context) Suspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspended
}

// Schedule queues buf to start at the given clock time. Times in the past
// start immediately. It returns the actual start and the end time.
func (c *Context) Schedule(buf *Buffer, at float64) (start, end float64, err error) {
	if buf == nil || buf.Frames() == 0 {
		return at, at, ErrEmptyPayload
	}
	if buf.SampleRate != c.sampleRate {
		return at, at, ErrSampleRateMismatch
	}
	if buf.Channels != c.channels && buf.Channels != 1 {
		return at, at, ErrChannelMismatch
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	startFrame := max(c.toFrame(at), c.frame)
	scheduled := scheduledBuffer{
		buffer: buf,
		start:  startFrame,
		end:    startFrame + int64(buf.Frames()),
	}
	i, _ := slices.BinarySearchFunc(c.scheduled, scheduled.start, func(s scheduledBuffer, start int64) int {
		switch {
		case s.start < start:
			return -1
		case s.start > start:
			return 1
		}
		return 0
	})
	c.scheduled = slices.Insert(c.scheduled, i, scheduled)

	rate := float64(c.sampleRate)
	return float64(scheduled.start) / rate, float64(scheduled.end) / rate, nil
}

// ClearScheduled drops every buffer that has not finished playing.
func (c *Context) ClearScheduled() {
	c.mu.Lock()
	c.scheduled = nil
	c.mu.Unlock()
}

// ScheduledCount is the number of buffers that have not finished playing.
func (c *Context) ScheduledCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scheduled)
}

// Buffered returns how much scheduled audio lies ahead of the clock.
func (c *Context) Buffered() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	var last int64
	for _, s := range c.scheduled {
		last = max(last, s.end)
	}
	if last <= c.frame {
		return 0
	}
	return time.Duration(float64(last-c.frame) / float64(c.sampleRate) * float64(time.Second))
}

// Connect adds a tap after the gain stage. The returned function removes it.
func (c *Context) Connect(tap Tap) (disconnect func()) {
	entry := &tapEntry{tap: tap}

	c.mu.Lock()
	c.taps = append(c.taps, entry)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.taps = slices.DeleteFunc(c.taps, func(e *tapEntry) bool { return e == entry })
			c.mu.Unlock()
		})
	}
}

// Render fills out with the next len(out)/channels frames and advances the
// clock. A suspended context renders silence and keeps its clock. Taps and
// due tasks are called after the internal lock is released.
func (c *Context) Render(out []float32) {
	clear(out)

	c.mu.Lock()
	if c.suspended {
		c.mu.Unlock()
		return
	}

	frames := int64(len(out) / c.channels)
	from, to := c.frame, c.frame+frames

	kept := c.scheduled[:0]
	for _, s := range c.scheduled {
		if s.start < to && s.end > from {
			c.mixLocked(out, s, from, to)
		}
		if s.end > to {
			kept = append(kept, s)
		}
	}
	clear(c.scheduled[len(kept):])
	c.scheduled = kept

	c.applyGainLocked(out[:frames*int64(c.channels)], from)
	c.frame = to
	if c.gainRamp != nil && c.gainRamp.endFrame <= c.frame {
		c.gainValue = c.gainRamp.to
		c.gainRamp = nil
	}

	due := c.dueTasksLocked()
	taps := slices.Clone(c.taps)
	channels := c.channels
	c.mu.Unlock()

	rendered := out[:frames*int64(channels)]
	for _, entry := range taps {
		entry.tap.Process(rendered, channels)
	}
	for _, task := range due {
		if !task.Stopped() {
			task.fn()
		}
	}
}

func (c *Context) mixLocked(out []float32, s scheduledBuffer, from, to int64) {
	first, last := max(s.start, from), min(s.end, to)
	data := s.buffer.Data
	mono := s.buffer.Channels == 1 && c.channels != 1

	for frame := first; frame < last; frame++ {
		src := int(frame - s.start)
		dst := int(frame-from) * c.channels
		if mono {
			sample := data[src]
			for ch := range c.channels {
				out[dst+ch] += sample
			}
			continue
		}
		src *= c.channels
		for ch := range c.channels {
			out[dst+ch] += data[src+ch]
		}
	}
}

func (c *Context) applyGainLocked(out []float32, from int64) {
	if c.gainRamp == nil && c.gainValue == 1 {
		return
	}

	for i := range len(out) / c.channels {
		gain := float32(c.gainAtLocked(from + int64(i)))
		for ch := range c.channels {
			out[i*c.channels+ch] *= gain
		}
	}
}

func (c *Context) gainAtLocked(frame int64) float64 {
	ramp := c.gainRamp
	switch {
	case ramp == nil:
		return c.gainValue
	case frame >= ramp.endFrame:
		return ramp.to
	case frame <= ramp.startFrame:
		return ramp.from
	}

	progress := float64(frame-ramp.startFrame) / float64(ramp.endFrame-ramp.startFrame)
	return ramp.from + (ramp.to-ramp.from)*progress
}

// Gain returns the gain stage applied to the summed buffers.
func (c *Context) Gain() GainParam {
	return GainParam{c: c}
}

// GainParam is an automatable gain value on the output clock.
type GainParam struct {
	c *Context
}

// Value is the gain at the current clock time.
func (g GainParam) Value() float64 {
	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	return g.c.gainAtLocked(g.c.frame)
}

// SetValue sets the gain immediately and cancels running automation.
func (g GainParam) SetValue(value float64) {
	g.c.mu.Lock()
	g.c.gainRamp = nil
	g.c.gainValue = value
	g.c.mu.Unlock()
}

// LinearRampTo moves the gain from its current value to value over d of
// output clock time.
func (g GainParam) LinearRampTo(value float64, d time.Duration) {
	c := g.c
	c.mu.Lock()
	defer c.mu.Unlock()

	frames := c.durationFrames(d)
	if frames <= 0 {
		c.gainRamp = nil
		c.gainValue = value
		return
	}

	c.gainRamp = &gainRamp{
		startFrame: c.frame,
		endFrame:   c.frame + frames,
		from:       c.gainAtLocked(c.frame),
		to:         value,
	}
	c.gainValue = value
}
