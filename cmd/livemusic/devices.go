package main

import (
	"fmt"

	"github.com/koscakluka/ema-livemusic/core/audio"
	"github.com/koscakluka/ema-livemusic/core/audio/miniaudio"
	"github.com/koscakluka/ema-livemusic/core/audio/offline"
	"github.com/koscakluka/ema-livemusic/core/audio/portaudio"
	"github.com/koscakluka/ema-livemusic/internal/config"
)

// openDevice creates the device that renders output. Clients are returned
// only on success so the interface never holds a typed nil.
func openDevice(cfg config.AudioConfig, output *audio.Context) (audio.Device, error) {
	switch cfg.Device {
	case "portaudio":
		client, err := portaudio.NewClient(output, cfg.FramesPerBuffer)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "offline":
		return offline.New(output), nil
	case "miniaudio", "":
		client, err := miniaudio.NewClient(output)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, fmt.Errorf("unknown audio device %q", cfg.Device)
}
