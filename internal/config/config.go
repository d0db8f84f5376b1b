// Package config loads the live music player configuration from an optional
// YAML file and environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

type BackendConfig struct {
	APIKey       string        `yaml:"api_key" json:"api_key,omitempty" jsonschema:"description=Gemini API key. GEMINI_API_KEY is used when empty."`
	Model        string        `yaml:"model" json:"model,omitempty"`
	Endpoint     string        `yaml:"endpoint" json:"endpoint,omitempty"`
	SetupTimeout time.Duration `yaml:"setup_timeout" json:"setup_timeout,omitempty"`
}

type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate" json:"sample_rate,omitempty"`
	Channels   int    `yaml:"channels" json:"channels,omitempty" jsonschema:"enum=1,enum=2"`
	Device     string `yaml:"device" json:"device,omitempty" jsonschema:"enum=miniaudio,enum=portaudio,enum=offline"`
	// FramesPerBuffer is only used by the portaudio device.
	FramesPerBuffer int `yaml:"frames_per_buffer" json:"frames_per_buffer,omitempty"`
}

type PlaybackConfig struct {
	BufferTime          time.Duration `yaml:"buffer_time" json:"buffer_time,omitempty"`
	FadeTime            time.Duration `yaml:"fade_time" json:"fade_time,omitempty"`
	MaxLookahead        time.Duration `yaml:"max_lookahead" json:"max_lookahead,omitempty"`
	LevelInterval       time.Duration `yaml:"level_interval" json:"level_interval,omitempty"`
	MaxDecodeFailures   int           `yaml:"max_decode_failures" json:"max_decode_failures,omitempty"`
	DecodeFailureWindow time.Duration `yaml:"decode_failure_window" json:"decode_failure_window,omitempty"`
	Volume              float64       `yaml:"volume" json:"volume,omitempty" jsonschema:"minimum=0,maximum=1"`
	Prompt              string        `yaml:"prompt" json:"prompt,omitempty"`
}

type RecordingConfig struct {
	Format    string `yaml:"format" json:"format,omitempty" jsonschema:"enum=ogg,enum=wav"`
	Bitrate   int    `yaml:"bitrate" json:"bitrate,omitempty"`
	Directory string `yaml:"directory" json:"directory,omitempty"`
}

type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" json:"service_name,omitempty"`
	LogFile        string `yaml:"log_file" json:"log_file,omitempty"`
	LogLevel       string `yaml:"log_level" json:"log_level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Traces         bool   `yaml:"traces" json:"traces,omitempty"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" json:"otlp_endpoint,omitempty"`
	OTLPInsecure   bool   `yaml:"otlp_insecure" json:"otlp_insecure,omitempty"`
	PrometheusBind string `yaml:"prometheus_bind" json:"prometheus_bind,omitempty"`
}

type Config struct {
	Backend   BackendConfig   `yaml:"backend" json:"backend"`
	Audio     AudioConfig     `yaml:"audio" json:"audio"`
	Playback  PlaybackConfig  `yaml:"playback" json:"playback"`
	Recording RecordingConfig `yaml:"recording" json:"recording"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
}

func Default() Config {
	return Config{
		Backend: BackendConfig{
			Model:        "models/lyria-realtime-exp",
			SetupTimeout: 10 * time.Second,
		},
		Audio: AudioConfig{
			SampleRate:      48000,
			Channels:        2,
			Device:          "miniaudio",
			FramesPerBuffer: 480,
		},
		Playback: PlaybackConfig{
			BufferTime:          2 * time.Second,
			FadeTime:            100 * time.Millisecond,
			MaxLookahead:        30 * time.Second,
			LevelInterval:       time.Second / 60,
			MaxDecodeFailures:   5,
			DecodeFailureWindow: 10 * time.Second,
			Volume:              1,
		},
		Recording: RecordingConfig{
			Format:    "ogg",
			Bitrate:   128000,
			Directory: ".",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "livemusic",
			LogFile:     "livemusic.log",
			LogLevel:    "info",
		},
	}
}

// Load reads path, when set, over the defaults and then applies environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Backend.APIKey, "GEMINI_API_KEY")
	overrideString(&cfg.Backend.APIKey, "LIVEMUSIC_API_KEY")
	overrideString(&cfg.Backend.Model, "LIVEMUSIC_MODEL")
	overrideString(&cfg.Backend.Endpoint, "LIVEMUSIC_ENDPOINT")
	overrideDuration(&cfg.Backend.SetupTimeout, "LIVEMUSIC_SETUP_TIMEOUT")
	overrideInt(&cfg.Audio.SampleRate, "LIVEMUSIC_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "LIVEMUSIC_CHANNELS")
	overrideString(&cfg.Audio.Device, "LIVEMUSIC_DEVICE")
	overrideInt(&cfg.Audio.FramesPerBuffer, "LIVEMUSIC_FRAMES_PER_BUFFER")
	overrideDuration(&cfg.Playback.BufferTime, "LIVEMUSIC_BUFFER_TIME")
	overrideDuration(&cfg.Playback.FadeTime, "LIVEMUSIC_FADE_TIME")
	overrideDuration(&cfg.Playback.MaxLookahead, "LIVEMUSIC_MAX_LOOKAHEAD")
	overrideDuration(&cfg.Playback.LevelInterval, "LIVEMUSIC_LEVEL_INTERVAL")
	overrideInt(&cfg.Playback.MaxDecodeFailures, "LIVEMUSIC_MAX_DECODE_FAILURES")
	overrideDuration(&cfg.Playback.DecodeFailureWindow, "LIVEMUSIC_DECODE_FAILURE_WINDOW")
	overrideFloat(&cfg.Playback.Volume, "LIVEMUSIC_VOLUME")
	overrideString(&cfg.Playback.Prompt, "LIVEMUSIC_PROMPT")
	overrideString(&cfg.Recording.Format, "LIVEMUSIC_RECORDING_FORMAT")
	overrideInt(&cfg.Recording.Bitrate, "LIVEMUSIC_RECORDING_BITRATE")
	overrideString(&cfg.Recording.Directory, "LIVEMUSIC_RECORDING_DIR")
	overrideString(&cfg.Telemetry.ServiceName, "LIVEMUSIC_SERVICE_NAME")
	overrideString(&cfg.Telemetry.LogFile, "LIVEMUSIC_LOG_FILE")
	overrideString(&cfg.Telemetry.LogLevel, "LIVEMUSIC_LOG_LEVEL")
	overrideBool(&cfg.Telemetry.Traces, "LIVEMUSIC_TRACES")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LIVEMUSIC_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LIVEMUSIC_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LIVEMUSIC_PROMETHEUS_BIND")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideDuration(target *time.Duration, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.Audio.SampleRate < 8000 || cfg.Audio.SampleRate > 192000 {
		return errors.New("audio.sample_rate must be between 8000 and 192000")
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		return errors.New("audio.channels must be 1 or 2")
	}
	switch cfg.Audio.Device {
	case "miniaudio", "portaudio", "offline":
	default:
		return errors.New("audio.device must be one of miniaudio|portaudio|offline")
	}
	if cfg.Playback.BufferTime <= 0 {
		return errors.New("playback.buffer_time must be positive")
	}
	if cfg.Playback.FadeTime < 0 {
		return errors.New("playback.fade_time must be >= 0")
	}
	if cfg.Playback.MaxLookahead != 0 && cfg.Playback.MaxLookahead < cfg.Playback.BufferTime {
		return errors.New("playback.max_lookahead must be 0 or at least playback.buffer_time")
	}
	if cfg.Playback.Volume < 0 || cfg.Playback.Volume > 1 {
		return errors.New("playback.volume must be between 0 and 1")
	}
	switch cfg.Recording.Format {
	case "ogg", "wav":
	default:
		return errors.New("recording.format must be one of ogg|wav")
	}
	if cfg.Recording.Format == "ogg" && cfg.Recording.Bitrate <= 0 {
		return errors.New("recording.bitrate must be positive")
	}
	return nil
}

// Schema returns the JSON schema of the configuration file.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		// Durations are written the way time.ParseDuration reads them.
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeFor[time.Duration]() {
				return &jsonschema.Schema{Type: "string", Pattern: `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`}
			}
			return nil
		},
	}
	schema := reflector.Reflect(&Config{})
	schema.Title = "livemusic configuration"
	return json.MarshalIndent(schema, "", "  ")
}
