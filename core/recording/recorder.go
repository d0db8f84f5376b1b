// Package recording captures the rendered output of a live music session and
// turns it into a downloadable file.
package recording

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// FrameDuration is the length of a single recorded fragment.
	FrameDuration = 20 * time.Millisecond

	// Ogg Opus granule positions always count 48 kHz samples.
	oggClockRate      = 48000
	opusPayloadType   = 111
	defaultBitrate    = 128000
	defaultSampleRate = 48000
	defaultChannels   = 2
)

// Recorder is an output tap that keeps the audio rendered between Start and
// Stop as a list of fragments.
type Recorder struct {
	mu sync.Mutex

	sampleRate int
	channels   int
	frameSize  int
	format     Format
	bitrate    int
	dir        string

	encoder   fragmentEncoder
	capturing bool
	captureID string
	pending   []float32
	fragments [][]byte
}

type Option func(*Recorder)

func WithFormat(format Format) Option {
	return func(r *Recorder) {
		r.format = format
	}
}

// WithBitrate sets the opus bitrate in bits per second.
func WithBitrate(bitrate int) Option {
	return func(r *Recorder) {
		r.bitrate = bitrate
	}
}

// WithDirectory sets where downloads are written. Defaults to the working
// directory.
func WithDirectory(dir string) Option {
	return func(r *Recorder) {
		r.dir = dir
	}
}

func WithEncoding(sampleRate, channels int) Option {
	return func(r *Recorder) {
		r.sampleRate = sampleRate
		r.channels = channels
	}
}

func New(opts ...Option) (*Recorder, error) {
	r := &Recorder{
		sampleRate: defaultSampleRate,
		channels:   defaultChannels,
		format:     FormatOgg,
		bitrate:    defaultBitrate,
		dir:        ".",
	}
	for _, opt := range opts {
		opt(r)
	}

	r.frameSize = int(int64(r.sampleRate) * int64(FrameDuration) / int64(time.Second))
	switch r.format {
	case FormatOgg:
		encoder, err := newOpusFragmentEncoder(r.sampleRate, r.channels, r.bitrate)
		if err != nil {
			return nil, err
		}
		r.encoder = encoder
	case FormatWAV:
		r.encoder = pcmFragmentEncoder{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, r.format)
	}

	return r, nil
}

func (r *Recorder) Format() Format {
	return r.format
}

// Start discards anything captured so far and begins a new capture.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resetLocked()
	r.capturing = true
	r.captureID = uuid.NewString()
	logger.Debug("recording started", slog.String("capture_id", r.captureID))
}

// Stop ends the capture and discards it.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capturing {
		logger.Debug("recording discarded",
			slog.String("capture_id", r.captureID),
			slog.Int("fragments", len(r.fragments)))
	}
	r.capturing = false
	r.resetLocked()
}

func (r *Recorder) resetLocked() {
	r.pending = r.pending[:0]
	r.fragments = nil
	r.captureID = ""
}

// Capturing reports whether Process currently keeps audio.
func (r *Recorder) Capturing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capturing
}

// Fragments is the number of complete fragments captured.
func (r *Recorder) Fragments() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fragments)
}

// Process implements audio.Tap.
func (r *Recorder) Process(samples []float32, channels int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.capturing {
		return
	}
	if channels != r.channels {
		logger.Warn("dropping recorded audio with unexpected channel count",
			slog.Int("expected", r.channels), slog.Int("channels", channels))
		return
	}

	r.pending = append(r.pending, samples...)
	frameLen := r.frameSize * r.channels
	consumed := 0
	for len(r.pending)-consumed >= frameLen {
		frame := r.pending[consumed : consumed+frameLen]
		consumed += frameLen

		fragment, err := r.encoder.Encode(frame)
		if err != nil {
			logger.Warn("failed to encode recorded frame", slog.String("error", err.Error()))
			continue
		}
		r.fragments = append(r.fragments, fragment)
		fragmentsEncoded.Add(context.Background(), 1)
	}
	if consumed > 0 {
		r.pending = r.pending[:copy(r.pending, r.pending[consumed:])]
	}
}

// Download writes every fragment captured so far into one file named after
// title and returns its path. Capture keeps running.
func (r *Recorder) Download(title string) (path string, err error) {
	_, span := tracer.Start(context.Background(), "download recording")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	r.mu.Lock()
	fragments := slices.Clone(r.fragments)
	r.mu.Unlock()

	if len(fragments) == 0 {
		return "", ErrNothingRecorded
	}
	span.SetAttributes(attribute.Int("recording.fragments", len(fragments)))

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}
	path, err = availablePath(filepath.Join(r.dir, FileName(title, r.format)))
	if err != nil {
		return "", err
	}

	switch r.format {
	case FormatWAV:
		err = r.writeWAV(path, fragments)
	default:
		err = r.writeOgg(path, fragments)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}

	logger.Info("recording downloaded", slog.String("path", path), slog.Int("fragments", len(fragments)))
	return path, nil
}

func (r *Recorder) writeOgg(path string, fragments [][]byte) error {
	w, err := oggwriter.New(path, uint32(r.sampleRate), uint16(r.channels))
	if err != nil {
		return fmt.Errorf("failed to create ogg file: %w", err)
	}

	samplesPerFragment := uint32(oggClockRate * FrameDuration / time.Second)
	ssrc := rand.Uint32()
	for i, fragment := range fragments {
		packet := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    opusPayloadType,
				SequenceNumber: uint16(i),
				Timestamp:      uint32(i) * samplesPerFragment,
				SSRC:           ssrc,
			},
			Payload: fragment,
		}
		if err := w.WriteRTP(packet); err != nil {
			return errors.Join(fmt.Errorf("failed to write ogg page: %w", err), w.Close())
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize ogg file: %w", err)
	}
	return nil
}

func (r *Recorder) writeWAV(path string, fragments [][]byte) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}
	defer file.Close()

	total := 0
	for _, fragment := range fragments {
		total += len(fragment) / 2
	}
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: r.channels, SampleRate: r.sampleRate},
		Data:           make([]int, 0, total),
		SourceBitDepth: 16,
	}
	for _, fragment := range fragments {
		for i := 0; i+1 < len(fragment); i += 2 {
			buffer.Data = append(buffer.Data, int(int16(binary.LittleEndian.Uint16(fragment[i:]))))
		}
	}

	enc := wav.NewEncoder(file, r.sampleRate, 16, r.channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// availablePath appends a counter to the file name while a file with that
// name already exists.
func availablePath(path string) (string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	candidate := path
	for i := 1; ; i++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("failed to check download path: %w", err)
		}
		candidate = base + "_" + strconv.Itoa(i) + ext
	}
}
