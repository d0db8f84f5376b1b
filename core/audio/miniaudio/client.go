// Package miniaudio renders an audio.Context on the default output device
// through miniaudio.
package miniaudio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-livemusic/core/audio"
)

const periodsPerBuffer = 4

var errClosed = errors.New("miniaudio client closed")

// Client pulls float32 frames from the output graph on the device thread.
type Client struct {
	mu sync.Mutex

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	output   *audio.Context
	started  bool

	// scratch is only touched from the device thread.
	scratch []float32
}

func NewClient(output *audio.Context) (*Client, error) {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("miniaudio", slog.String("message", message))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio context: %w", err)
	}

	c := &Client{malgoCtx: malgoCtx, output: output}

	sampleRate := uint32(output.SampleRate())
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = sampleRate
	config.Playback.Format = malgo.FormatF32
	config.Playback.Channels = uint32(output.Channels())
	config.Alsa.NoMMap = 1
	// 10ms periods keep gain changes and pauses responsive.
	config.PeriodSizeInFrames = sampleRate / 100
	config.Periods = periodsPerBuffer

	c.device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{
		Data: c.render,
		Stop: func() { logger.Info("output device stopped") },
	})
	if err != nil {
		_ = c.releaseContext()
		return nil, fmt.Errorf("failed to open output device: %w", err)
	}

	return c, nil
}

// Start begins pulling audio. The output graph decides what is audible, so
// the device keeps running while playback is paused or stopped.
func (c *Client) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.device == nil:
		return errClosed
	case c.started:
		return nil
	}
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start output device: %w", err)
	}
	c.started = true
	logger.Info("output device started",
		slog.Int("sample_rate", c.output.SampleRate()),
		slog.Int("channels", c.output.Channels()))
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return nil
	}

	var stopErr error
	if c.started {
		stopErr = c.device.Stop()
		c.started = false
	}
	c.device.Uninit()
	c.device = nil

	return errors.Join(stopErr, c.releaseContext())
}

func (c *Client) releaseContext() error {
	defer c.malgoCtx.Free()
	if err := c.malgoCtx.Uninit(); err != nil {
		return fmt.Errorf("failed to release miniaudio context: %w", err)
	}
	return nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.output.EncodingInfo()
}

func (c *Client) render(out, _ []byte, frameCount uint32) {
	samples := int(frameCount) * c.output.Channels()
	if cap(c.scratch) < samples {
		c.scratch = make([]float32, samples)
	}
	frame := c.scratch[:samples]
	c.output.Render(frame)

	if len(out) < samples*4 {
		return
	}
	for i, sample := range frame {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(sample))
	}
}
