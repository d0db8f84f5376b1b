package portaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-livemusic/core/audio"
)

// Client plays an audio.Context through the default PortAudio output stream.
type Client struct {
	mu      sync.Mutex
	output  *audio.Context
	stream  *portaudio.Stream
	started bool
}

// NewClient opens the default output stream. A bufferSize of 0 lets
// PortAudio pick the optimal buffer size for the host.
func NewClient(output *audio.Context, bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	c := &Client{output: output}
	stream, err := portaudio.OpenDefaultStream(
		0,
		output.Channels(),
		float64(output.SampleRate()),
		bufferSize,
		c.processAudio,
	)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio stream: %w", err)
	}
	c.stream = stream

	return c, nil
}

// processAudio receives interleaved output frames to fill.
func (c *Client) processAudio(out []float32) {
	c.output.Render(out)
}

func (c *Client) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}

	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start PortAudio stream: %w", err)
	}
	c.started = true
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		_ = c.stream.Stop()
		c.started = false
	}
	err := c.stream.Close()
	portaudio.Terminate()
	if err != nil {
		return fmt.Errorf("failed to close PortAudio stream: %w", err)
	}
	return nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.output.EncodingInfo()
}
