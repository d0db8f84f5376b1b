// Command livemusic is a terminal player for live generated music.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	livemusic "github.com/koscakluka/ema-livemusic/core"
	"github.com/koscakluka/ema-livemusic/core/audio"
	"github.com/koscakluka/ema-livemusic/core/generation"
	"github.com/koscakluka/ema-livemusic/core/generation/lyria"
	"github.com/koscakluka/ema-livemusic/core/recording"
	"github.com/koscakluka/ema-livemusic/internal/config"
	"github.com/koscakluka/ema-livemusic/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	printSchema := flag.Bool("config-schema", false, "print the JSON schema of the config file and exit")
	flag.Parse()

	if *printSchema {
		schema, err := config.Schema()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(schema))
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// The terminal belongs to the UI, so logs and traces go to a file.
	logFile, err := os.OpenFile(cfg.Telemetry.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: parseLevel(cfg.Telemetry.LogLevel)}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, logFile, logger)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	backend, err := lyria.NewClient(
		lyria.WithAPIKey(cfg.Backend.APIKey),
		lyria.WithModel(cfg.Backend.Model),
		lyria.WithEndpoint(cfg.Backend.Endpoint),
		lyria.WithSetupTimeout(cfg.Backend.SetupTimeout),
	)
	if err != nil {
		return err
	}

	output := audio.NewContext(cfg.Audio.SampleRate, cfg.Audio.Channels)
	device, err := openDevice(cfg.Audio, output)
	if err != nil {
		return err
	}
	defer device.Close()
	if err := device.Start(ctx); err != nil {
		return fmt.Errorf("failed to start audio device: %w", err)
	}

	recorder, err := newRecorder(cfg)
	if err != nil {
		return err
	}

	opts := []livemusic.HelperOption{
		livemusic.WithBackend(backend),
		livemusic.WithOutput(output),
		livemusic.WithRecorder(recorder),
		livemusic.WithBufferTime(cfg.Playback.BufferTime),
		livemusic.WithFadeTime(cfg.Playback.FadeTime),
		livemusic.WithMaxLookahead(cfg.Playback.MaxLookahead),
		livemusic.WithLevelInterval(cfg.Playback.LevelInterval),
		livemusic.WithDecodeFailurePolicy(cfg.Playback.MaxDecodeFailures, cfg.Playback.DecodeFailureWindow),
		livemusic.WithVolume(cfg.Playback.Volume),
	}
	if prompt := strings.TrimSpace(cfg.Playback.Prompt); prompt != "" {
		opts = append(opts, livemusic.WithPrompt(promptSpec(prompt)))
	}
	helper := livemusic.NewHelper(opts...)
	defer helper.Close()

	events, unsubscribe := helper.Events(64)
	defer unsubscribe()

	program := tea.NewProgram(newModel(helper, events, cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func newRecorder(cfg config.Config) (*recording.Recorder, error) {
	format, err := recording.ParseFormat(cfg.Recording.Format)
	if err != nil {
		return nil, err
	}

	opts := []recording.Option{
		recording.WithEncoding(cfg.Audio.SampleRate, cfg.Audio.Channels),
		recording.WithBitrate(cfg.Recording.Bitrate),
		recording.WithDirectory(cfg.Recording.Directory),
	}
	recorder, err := recording.New(append(opts, recording.WithFormat(format))...)
	if err != nil && format == recording.FormatOgg {
		slog.Warn("opus encoder unavailable, recording to wav", slog.String("error", err.Error()))
		return recording.New(append(opts, recording.WithFormat(recording.FormatWAV))...)
	}
	return recorder, err
}

// promptSpec turns "lofi beats, rain:0.5" into weighted prompts. Weights
// default to 1.
func promptSpec(text string) generation.PromptSpec {
	var spec generation.PromptSpec
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		weight := 1.0
		if i := strings.LastIndex(part, ":"); i > 0 {
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(part[i+1:]), 64); err == nil {
				part, weight = strings.TrimSpace(part[:i]), parsed
			}
		}
		spec.Prompts = append(spec.Prompts, generation.WeightedPrompt{Text: part, Weight: weight})
	}
	return spec
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
