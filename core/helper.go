// Package livemusic plays a live generated music stream: it keeps one
// generation session, decodes the chunks it pushes, schedules them back to
// back on an output clock behind a jitter buffer and records what is played.
package livemusic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/koscakluka/ema-livemusic/core/audio"
	events "github.com/koscakluka/ema-livemusic/core/events"
	"github.com/koscakluka/ema-livemusic/core/generation"
	"github.com/koscakluka/ema-livemusic/core/recording"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Helper is the live music session manager. All methods are safe for
// concurrent use.
type Helper struct {
	mu sync.Mutex

	state  PlaybackState
	prompt generation.PromptSpec
	volume float64
	closed bool

	// epoch changes whenever a session starts or stops; work carrying an
	// older epoch belongs to a session that no longer exists.
	epoch uint64

	conn      *sessionConnection
	scheduler *scheduler
	output    *audio.Context
	recorder  *recording.Recorder
	analyser  *analyser
	extraTaps []audio.Tap

	disconnectTaps []func()
	levelTask      *audio.Task
	fadeOutTask    *audio.Task
	fadeInPending  bool

	encoding       audio.EncodingInfo
	bufferTime     time.Duration
	fadeTime       time.Duration
	maxLookahead   time.Duration
	levelInterval  time.Duration
	decodeFailures failureWindow
	now            func() time.Time
	decode         func(payload string, info audio.EncodingInfo) (*audio.Buffer, error)

	emitter *eventEmitter
	chunks  *chunkQueue
	done    chan struct{}
}

func NewHelper(opts ...HelperOption) *Helper {
	h := &Helper{
		state:          StateStopped,
		volume:         1,
		conn:           &sessionConnection{},
		bufferTime:     DefaultBufferTime,
		fadeTime:       DefaultFadeTime,
		maxLookahead:   DefaultMaxLookahead,
		levelInterval:  DefaultLevelInterval,
		decodeFailures: failureWindow{max: DefaultMaxDecodeFailures, window: DefaultDecodeFailureWindow},
		now:            time.Now,
		decode:         audio.Decode,
		emitter:        newEventEmitter(),
		chunks:         newChunkQueue(),
		done:           make(chan struct{}),
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.output == nil {
		h.output = audio.NewContext(audio.DefaultSampleRate, audio.DefaultChannels)
	}
	h.encoding = h.encoding.WithDefaults(audio.GetDefaultEncodingInfo())
	if h.recorder == nil {
		h.recorder = newDefaultRecorder(h.output)
	}
	h.analyser = newAnalyser(DefaultAnalyserSize, DefaultSpectrumBands)
	h.scheduler = &scheduler{
		output:       h.output,
		bufferTime:   h.bufferTime,
		maxLookahead: h.maxLookahead,
		onBuffered:   h.onBuffered,
	}
	h.output.Gain().SetValue(0)

	go h.processChunks()

	return h
}

func newDefaultRecorder(output *audio.Context) *recording.Recorder {
	encoding := recording.WithEncoding(output.SampleRate(), output.Channels())
	recorder, err := recording.New(encoding)
	if err == nil {
		return recorder
	}

	logger.Warn("opus recording unavailable, recording to wav", slog.String("error", err.Error()))
	recorder, err = recording.New(encoding, recording.WithFormat(recording.FormatWAV))
	if err != nil {
		panic(fmt.Sprintf("wav recorder cannot fail to initialize: %v", err))
	}
	return recorder
}

// State returns the current playback state.
func (h *Helper) State() PlaybackState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Prompt returns a copy of the authoritative prompt.
func (h *Helper) Prompt() generation.PromptSpec {
	h.mu.Lock()
	defer h.mu.Unlock()
	return copyPromptSpec(h.prompt)
}

func (h *Helper) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.volume
}

// Play starts a session, or resumes a paused one. A prompt with active
// entries replaces the current one; without one the last prompt is used.
func (h *Helper) Play(ctx context.Context, prompt *generation.PromptSpec) (err error) {
	ctx, span := tracer.Start(ctx, "play")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	span.SetAttributes(attribute.String("playback.state", string(h.state)))

	switch h.state {
	case StatePaused:
		epoch := h.epoch
		h.output.Resume()
		h.setStateLocked(StatePlaying)
		h.mu.Unlock()

		if session := h.conn.current(); session != nil {
			if err := session.Play(); err != nil {
				h.failIfCurrent(epoch, fmt.Errorf("failed to resume generation: %w", err))
				return err
			}
		}
		if prompt != nil && prompt.HasActive() {
			return h.SetPrompt(ctx, *prompt)
		}
		return nil

	case StateLoading, StatePlaying:
		h.mu.Unlock()
		if prompt != nil && prompt.HasActive() {
			return h.SetPrompt(ctx, *prompt)
		}
		return nil
	}

	if prompt != nil && prompt.HasActive() {
		h.prompt = copyPromptSpec(*prompt)
	}
	if !h.prompt.HasActive() {
		h.emitErrorLocked(ErrNoPrompt)
		h.mu.Unlock()
		return ErrNoPrompt
	}

	h.epoch++
	epoch := h.epoch
	h.scheduler.reset()
	h.decodeFailures.reset()
	h.fadeOutTask.Stop()
	h.output.ClearScheduled()
	h.output.Gain().SetValue(0)
	h.fadeInPending = true
	h.setStateLocked(StateLoading)
	h.mu.Unlock()

	if _, err := h.conn.connect(ctx, h.handlersFor(epoch)); err != nil {
		if errors.Is(err, errConnectAbandoned) {
			return nil
		}
		err = fmt.Errorf("failed to connect to music generation: %w", err)
		h.failIfCurrent(epoch, err)
		return err
	}

	h.mu.Lock()
	spec := copyPromptSpec(h.prompt)
	h.mu.Unlock()
	if err := h.conn.setPrompt(ctx, spec); err != nil {
		if !h.isCurrent(epoch) {
			return nil
		}
		err = fmt.Errorf("failed to send prompt: %w", err)
		h.failIfCurrent(epoch, err)
		return err
	}

	h.mu.Lock()
	if epoch != h.epoch {
		h.mu.Unlock()
		return nil
	}
	h.output.Resume()
	h.connectTapsLocked()
	h.recorder.Start()
	h.mu.Unlock()

	session := h.conn.current()
	if session == nil {
		return nil
	}
	if err := session.Play(); err != nil {
		if !h.isCurrent(epoch) {
			return nil
		}
		err = fmt.Errorf("failed to start generation: %w", err)
		h.failIfCurrent(epoch, err)
		return err
	}
	return nil
}

// Pause freezes the output clock. It only has an effect while playing.
func (h *Helper) Pause() {
	h.mu.Lock()
	if h.state != StatePlaying {
		h.mu.Unlock()
		logger.Debug("ignoring pause", slog.String("state", string(h.state)))
		return
	}
	epoch := h.epoch
	h.output.Suspend()
	h.setStateLocked(StatePaused)
	h.mu.Unlock()

	if session := h.conn.current(); session != nil {
		if err := session.Pause(); err != nil {
			h.failIfCurrent(epoch, fmt.Errorf("failed to pause generation: %w", err))
		}
	}
}

// Stop ends the session from any state. Audio fades out and the recording is
// discarded.
func (h *Helper) Stop() {
	h.mu.Lock()
	cleanup := h.stopLocked()
	h.mu.Unlock()

	cleanup()
}

// PlayPause toggles playback: playing pauses, paused and stopped play, and
// loading stops.
func (h *Helper) PlayPause(ctx context.Context) error {
	switch h.State() {
	case StatePlaying:
		h.Pause()
	case StateLoading:
		h.Stop()
	default:
		return h.Play(ctx, nil)
	}
	return nil
}

// SetVolume sets the output gain immediately, clamped to [0, 1].
func (h *Helper) SetVolume(level float64) {
	level = clampVolume(level)

	h.mu.Lock()
	h.volume = level
	h.output.Gain().SetValue(level)
	h.mu.Unlock()
}

// SetPrompt replaces the authoritative prompt and pushes it to the running
// session without reconnecting. A spec without active entries is rejected
// and the current prompt is kept.
func (h *Helper) SetPrompt(ctx context.Context, spec generation.PromptSpec) error {
	if !spec.HasActive() {
		h.mu.Lock()
		h.emitErrorLocked(ErrNoPrompt)
		h.mu.Unlock()
		return ErrNoPrompt
	}
	clone := copyPromptSpec(spec)

	h.mu.Lock()
	h.prompt = clone
	state := h.state
	h.mu.Unlock()

	if state == StateStopped {
		return nil
	}

	if err := h.conn.setPrompt(ctx, clone); err != nil {
		if errors.Is(err, ErrNoActiveSession) && state == StateLoading {
			// Play pushes the latest prompt once the session is up.
			return nil
		}
		err = fmt.Errorf("failed to update prompt: %w", err)
		h.mu.Lock()
		h.emitErrorLocked(err)
		h.mu.Unlock()
		return err
	}
	return nil
}

// ResetContext asks the backend to forget what it generated so far, so the
// current prompt takes effect immediately.
func (h *Helper) ResetContext() error {
	session := h.conn.current()
	if session == nil {
		return ErrNoActiveSession
	}
	return session.ResetContext()
}

// Download writes what was recorded since the last Play to a file and
// returns its path.
func (h *Helper) Download(title string) (string, error) {
	path, err := h.recorder.Download(title)
	if err != nil {
		err = fmt.Errorf("failed to download recording: %w", err)
		h.mu.Lock()
		h.emitErrorLocked(err)
		h.mu.Unlock()
		return "", err
	}
	return path, nil
}

// Subscribe registers handler for every event emitted from now on. Handlers
// run on a dispatcher goroutine one event at a time.
func (h *Helper) Subscribe(handler func(events.Event)) (unsubscribe func()) {
	return h.emitter.subscribe(handler)
}

// Events returns a channel subscription. Level snapshots are dropped while
// the buffer is full, other events wait for the reader.
func (h *Helper) Events(buffer int) (<-chan events.Event, func()) {
	sub := &channelSubscription{
		ch:   make(chan events.Event, buffer),
		stop: make(chan struct{}),
	}
	unsubscribe := h.emitter.subscribe(sub.handle)

	var once sync.Once
	return sub.ch, func() { once.Do(func() { sub.close(unsubscribe) }) }
}

// Close stops playback and releases the helper. Pending events are still
// delivered.
func (h *Helper) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	cleanup := h.stopLocked()
	h.closed = true
	h.disconnectTapsLocked()
	h.mu.Unlock()

	cleanup()
	h.chunks.close()
	<-h.done
	h.emitter.close()
}

func (h *Helper) handlersFor(epoch uint64) generation.Handlers {
	return generation.Handlers{
		OnChunk: func(chunk generation.Chunk) {
			chunksReceived.Add(context.Background(), 1)
			h.chunks.push(queuedChunk{epoch: epoch, chunk: chunk})
		},
		OnError: func(err error) {
			h.failIfCurrent(epoch, fmt.Errorf("connection error: %w", err))
		},
		OnClose: func() {
			h.onSessionClosed(epoch)
		},
		OnFilteredPrompt: func(prompt generation.FilteredPrompt) {
			h.mu.Lock()
			defer h.mu.Unlock()
			if epoch != h.epoch {
				return
			}
			logger.Warn("prompt filtered", slog.String("text", prompt.Text), slog.String("reason", prompt.Reason))
			h.emitter.emit(events.NewPromptFiltered(prompt.Text, prompt.Reason))
		},
	}
}

func (h *Helper) processChunks() {
	defer close(h.done)

	for {
		item, ok := h.chunks.next()
		if !ok {
			return
		}

		run := panicSafeNamedWorker("chunk", func(ctx context.Context) error {
			return h.handleChunk(ctx, item)
		})
		if err := run(context.Background()); err != nil {
			h.failIfCurrent(item.epoch, err)
		}
		h.chunks.processed.Add(1)
	}
}

func (h *Helper) handleChunk(ctx context.Context, item queuedChunk) error {
	_, span := tracer.Start(ctx, "schedule chunk",
		trace.WithAttributes(attribute.Int64("playback.epoch", int64(item.epoch))))
	defer span.End()

	info := audio.ParseMimeType(item.chunk.MimeType, h.encoding)
	buf, err := h.decode(item.chunk.Data, info)
	if err == nil {
		buf = audio.Convert(buf, h.output.SampleRate(), h.output.Channels())
	}

	h.mu.Lock()
	if item.epoch != h.epoch || h.state == StateStopped {
		h.mu.Unlock()
		chunksDiscarded.Add(ctx, 1)
		return nil
	}

	var result scheduleResult
	if err == nil {
		result, _, err = h.scheduler.schedule(buf)
	}
	if err != nil {
		escalate := h.decodeFailures.record(h.now())
		h.mu.Unlock()

		decodeFailures.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("skipping audio chunk", slog.String("error", err.Error()))
		if escalate {
			h.failIfCurrent(item.epoch, fmt.Errorf("%w: %w", ErrTooManyDecodeErrors, err))
		}
		return nil
	}

	switch result {
	case droppedOverLookahead:
		h.mu.Unlock()
		chunksDropped.Add(ctx, 1)
		logger.Warn("dropping audio chunk, too much audio scheduled",
			slog.Duration("max_lookahead", h.maxLookahead))
		return nil
	case scheduledAfterUnderrun:
		underruns.Add(ctx, 1)
		logger.Info("playback ran dry, buffering again")
		h.setStateLocked(StateLoading)
	}
	h.mu.Unlock()

	chunksScheduled.Add(ctx, 1)
	span.SetAttributes(attribute.Float64("chunk.duration", buf.Duration()))
	return nil
}

// onBuffered runs on the output clock once the jitter buffer of the given
// anchor is full.
func (h *Helper) onBuffered(anchorSeq uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if anchorSeq != h.scheduler.anchorSeq || h.state != StateLoading {
		return
	}
	if h.fadeInPending {
		h.fadeInPending = false
		h.output.Gain().SetValue(0)
		h.output.Gain().LinearRampTo(h.volume, h.fadeTime)
	}
	h.setStateLocked(StatePlaying)
}

func (h *Helper) onSessionClosed(epoch uint64) {
	h.mu.Lock()
	if epoch != h.epoch || h.state == StateStopped {
		h.mu.Unlock()
		return
	}

	active := h.state == StateLoading || h.state == StatePlaying
	cleanup := h.stopLocked()
	if active {
		h.emitErrorLocked(ErrConnectionClosed)
	}
	h.mu.Unlock()

	logger.Info("generation session closed", slog.Bool("unexpected", active))
	cleanup()
}

func (h *Helper) isCurrent(epoch uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return epoch == h.epoch
}

// failIfCurrent stops the session of epoch, if it is still the current one,
// and reports err.
func (h *Helper) failIfCurrent(epoch uint64, err error) {
	h.mu.Lock()
	if epoch != h.epoch || errors.Is(err, errConnectAbandoned) {
		h.mu.Unlock()
		return
	}
	cleanup := h.stopLocked()
	h.emitErrorLocked(err)
	h.mu.Unlock()

	logger.Error("live music session failed", slog.String("error", err.Error()))
	cleanup()
}

// stopLocked moves to stopped and returns the work that must run without the
// lock held.
func (h *Helper) stopLocked() (cleanup func()) {
	h.epoch++
	epoch := h.epoch

	h.scheduler.reset()
	h.fadeInPending = false
	h.fadeOutTask.Stop()
	h.fadeOutTask = nil
	if h.output.Suspended() {
		h.output.Gain().SetValue(0)
		h.output.ClearScheduled()
		h.disconnectTapsLocked()
	} else {
		h.output.Gain().LinearRampTo(0, h.fadeTime)
		h.fadeOutTask = h.output.After(h.fadeTime, func() { h.finishFadeOut(epoch) })
	}
	h.recorder.Stop()
	h.analyser.reset()
	h.setStateLocked(StateStopped)

	session := h.conn.detach()
	return func() {
		if err := closeSession(session); err != nil {
			logger.Warn("failed to close generation session", slog.String("error", err.Error()))
		}
	}
}

func (h *Helper) finishFadeOut(epoch uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if epoch != h.epoch {
		return
	}
	h.fadeOutTask = nil
	h.output.ClearScheduled()
	h.disconnectTapsLocked()
}

func (h *Helper) connectTapsLocked() {
	if h.disconnectTaps != nil {
		return
	}

	taps := append([]audio.Tap{}, h.extraTaps...)
	taps = append(taps, h.recorder, h.analyser)
	for _, tap := range taps {
		h.disconnectTaps = append(h.disconnectTaps, h.output.Connect(tap))
	}
}

func (h *Helper) disconnectTapsLocked() {
	for _, disconnect := range h.disconnectTaps {
		disconnect()
	}
	h.disconnectTaps = nil
}

func (h *Helper) setStateLocked(state PlaybackState) {
	if h.state == state {
		return
	}

	logger.Debug("playback state changed", slog.String("from", string(h.state)), slog.String("to", string(state)))
	h.state = state
	h.emitter.emit(events.NewPlaybackStateChanged(state))

	if state == StatePlaying {
		if h.levelTask == nil {
			h.levelTask = h.output.Every(h.levelInterval, h.emitLevel)
		}
	} else {
		h.levelTask.Stop()
		h.levelTask = nil
	}
}

// emitLevel runs on the output clock while playing.
func (h *Helper) emitLevel() {
	spectrum, level := h.analyser.snapshot()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StatePlaying {
		return
	}
	h.emitter.emit(events.NewAudioLevelChanged(spectrum, level))
}

func (h *Helper) emitErrorLocked(err error) {
	h.emitter.emit(events.NewError(err.Error(), err))
}
