package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.Audio.Channels != 2 {
		t.Fatalf("expected 48 kHz stereo, got %d Hz %d channels", cfg.Audio.SampleRate, cfg.Audio.Channels)
	}
	if cfg.Playback.BufferTime != 2*time.Second {
		t.Fatalf("expected 2s buffer time, got %v", cfg.Playback.BufferTime)
	}
	if cfg.Playback.FadeTime != 100*time.Millisecond {
		t.Fatalf("expected 100ms fade, got %v", cfg.Playback.FadeTime)
	}
	if cfg.Recording.Format != "ogg" {
		t.Fatalf("expected ogg recordings, got %q", cfg.Recording.Format)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livemusic.yaml")
	content := `
backend:
  model: models/custom
audio:
  device: offline
  channels: 1
playback:
  buffer_time: 3s
  fade_time: 250ms
  volume: 0.5
recording:
  format: wav
  directory: ./takes
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.Model != "models/custom" {
		t.Fatalf("expected model from file, got %q", cfg.Backend.Model)
	}
	if cfg.Audio.Device != "offline" || cfg.Audio.Channels != 1 {
		t.Fatalf("expected offline mono device, got %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 48000 {
		t.Fatalf("expected default sample rate to survive, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Playback.BufferTime != 3*time.Second || cfg.Playback.FadeTime != 250*time.Millisecond {
		t.Fatalf("expected durations from file, got %v and %v", cfg.Playback.BufferTime, cfg.Playback.FadeTime)
	}
	if cfg.Playback.Volume != 0.5 {
		t.Fatalf("expected volume 0.5, got %v", cfg.Playback.Volume)
	}
	if cfg.Recording.Format != "wav" || cfg.Recording.Directory != "./takes" {
		t.Fatalf("expected wav recordings in ./takes, got %+v", cfg.Recording)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-gemini")
	t.Setenv("LIVEMUSIC_DEVICE", "portaudio")
	t.Setenv("LIVEMUSIC_BUFFER_TIME", "1500ms")
	t.Setenv("LIVEMUSIC_MAX_DECODE_FAILURES", "9")
	t.Setenv("LIVEMUSIC_VOLUME", "0.25")
	t.Setenv("LIVEMUSIC_OTLP_INSECURE", "true")
	t.Setenv("LIVEMUSIC_SAMPLE_RATE", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.APIKey != "from-gemini" {
		t.Fatalf("expected api key from GEMINI_API_KEY, got %q", cfg.Backend.APIKey)
	}
	if cfg.Audio.Device != "portaudio" {
		t.Fatalf("expected device override, got %q", cfg.Audio.Device)
	}
	if cfg.Playback.BufferTime != 1500*time.Millisecond {
		t.Fatalf("expected buffer time override, got %v", cfg.Playback.BufferTime)
	}
	if cfg.Playback.MaxDecodeFailures != 9 {
		t.Fatalf("expected decode failure override, got %d", cfg.Playback.MaxDecodeFailures)
	}
	if cfg.Playback.Volume != 0.25 {
		t.Fatalf("expected volume override, got %v", cfg.Playback.Volume)
	}
	if !cfg.Telemetry.OTLPInsecure {
		t.Fatal("expected otlp insecure override true")
	}
	if cfg.Audio.SampleRate != 48000 {
		t.Fatalf("expected an unparsable override to be ignored, got %d", cfg.Audio.SampleRate)
	}
}

func TestLivemusicAPIKeyWins(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-gemini")
	t.Setenv("LIVEMUSIC_API_KEY", "from-livemusic")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.APIKey != "from-livemusic" {
		t.Fatalf("expected LIVEMUSIC_API_KEY to win, got %q", cfg.Backend.APIKey)
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "device", env: map[string]string{"LIVEMUSIC_DEVICE": "alsa"}, want: "audio.device"},
		{name: "sample rate", env: map[string]string{"LIVEMUSIC_SAMPLE_RATE": "100"}, want: "audio.sample_rate"},
		{name: "channels", env: map[string]string{"LIVEMUSIC_CHANNELS": "6"}, want: "audio.channels"},
		{name: "format", env: map[string]string{"LIVEMUSIC_RECORDING_FORMAT": "mp3"}, want: "recording.format"},
		{name: "volume", env: map[string]string{"LIVEMUSIC_VOLUME": "1.5"}, want: "playback.volume"},
		{name: "lookahead", env: map[string]string{"LIVEMUSIC_MAX_LOOKAHEAD": "1s"}, want: "playback.max_lookahead"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			for key, value := range c.env {
				t.Setenv(key, value)
			}
			_, err := Load("")
			if err == nil || !strings.Contains(err.Error(), c.want) {
				t.Fatalf("expected error mentioning %q, got %v", c.want, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}

func TestSchema(t *testing.T) {
	data, err := Schema()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var schema struct {
		Properties map[string]struct {
			Properties map[string]struct {
				Type string   `json:"type"`
				Enum []any    `json:"enum"`
			} `json:"properties"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("expected valid json, got %v", err)
	}

	playback, ok := schema.Properties["playback"]
	if !ok {
		t.Fatalf("expected playback section in schema")
	}
	if got := playback.Properties["buffer_time"].Type; got != "string" {
		t.Fatalf("expected durations as strings, got %q", got)
	}
	if got := schema.Properties["recording"].Properties["format"].Enum; len(got) != 2 {
		t.Fatalf("expected ogg and wav formats, got %v", got)
	}
}
