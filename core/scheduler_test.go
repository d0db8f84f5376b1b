package livemusic

import (
	"testing"
	"time"

	"github.com/koscakluka/ema-livemusic/core/audio"
	"github.com/koscakluka/ema-livemusic/core/audio/offline"
)

func newTestScheduler(output *audio.Context, buffered *[]uint64) *scheduler {
	return &scheduler{
		output:       output,
		bufferTime:   2 * time.Second,
		maxLookahead: 30 * time.Second,
		onBuffered: func(seq uint64) {
			*buffered = append(*buffered, seq)
		},
	}
}

func silentBuffer(d time.Duration) *audio.Buffer {
	frames := int(d.Seconds() * 48000)
	return &audio.Buffer{SampleRate: 48000, Channels: 2, Data: make([]float32, frames*2)}
}

func TestSchedulerPlacesBuffersBackToBack(t *testing.T) {
	output := audio.NewContext(48000, 2)
	output.Resume()
	device := offline.New(output)
	var buffered []uint64
	s := newTestScheduler(output, &buffered)

	lengths := []time.Duration{time.Second, 250 * time.Millisecond, 1500 * time.Millisecond, time.Second}
	expectedStart := 2.0
	for i, length := range lengths {
		result, start, err := s.schedule(silentBuffer(length))
		if err != nil {
			t.Fatalf("expected buffer %d to be scheduled, got %v", i, err)
		}
		if i == 0 && result != scheduledBuffering {
			t.Fatalf("expected first buffer to anchor, got %v", result)
		}
		if i > 0 && result != scheduledContinuing {
			t.Fatalf("expected buffer %d to continue, got %v", i, result)
		}
		if start != expectedStart {
			t.Fatalf("expected buffer %d to start at %v, got %v", i, expectedStart, start)
		}
		expectedStart += length.Seconds()
		device.Advance(100 * time.Millisecond)
	}

	device.Advance(2 * time.Second)
	if len(buffered) != 1 || buffered[0] != 0 {
		t.Fatalf("expected one buffered callback for the first anchor, got %v", buffered)
	}
}

func TestSchedulerReanchorsAfterUnderrun(t *testing.T) {
	output := audio.NewContext(48000, 2)
	output.Resume()
	device := offline.New(output)
	var buffered []uint64
	s := newTestScheduler(output, &buffered)

	if _, _, err := s.schedule(silentBuffer(time.Second)); err != nil {
		t.Fatalf("expected first buffer to be scheduled, got %v", err)
	}
	device.Advance(4 * time.Second)

	result, start, err := s.schedule(silentBuffer(time.Second))
	if err != nil {
		t.Fatalf("expected late buffer to be scheduled, got %v", err)
	}
	if result != scheduledAfterUnderrun {
		t.Fatalf("expected underrun, got %v", result)
	}
	if start != 6 {
		t.Fatalf("expected late buffer to start a new buffering interval at 6s, got %v", start)
	}

	device.Advance(2 * time.Second)
	if len(buffered) != 2 || buffered[1] != 1 {
		t.Fatalf("expected callbacks for both anchors, got %v", buffered)
	}
}

func TestSchedulerResetCancelsBufferedCallback(t *testing.T) {
	output := audio.NewContext(48000, 2)
	output.Resume()
	device := offline.New(output)
	var buffered []uint64
	s := newTestScheduler(output, &buffered)

	if _, _, err := s.schedule(silentBuffer(time.Second)); err != nil {
		t.Fatalf("expected buffer to be scheduled, got %v", err)
	}
	s.reset()
	device.Advance(3 * time.Second)

	if len(buffered) != 0 {
		t.Fatalf("expected no callback after reset, got %v", buffered)
	}
}

func TestSchedulerDropsBeyondLookahead(t *testing.T) {
	output := audio.NewContext(48000, 2)
	output.Resume()
	var buffered []uint64
	s := newTestScheduler(output, &buffered)
	s.maxLookahead = 4 * time.Second

	results := make([]scheduleResult, 0, 4)
	for range 4 {
		result, _, err := s.schedule(silentBuffer(time.Second))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		results = append(results, result)
	}

	expected := []scheduleResult{scheduledBuffering, scheduledContinuing, scheduledContinuing, droppedOverLookahead}
	for i := range expected {
		if results[i] != expected[i] {
			t.Fatalf("expected results %v, got %v", expected, results)
		}
	}
	if got := output.ScheduledCount(); got != 3 {
		t.Fatalf("expected 3 scheduled buffers, got %d", got)
	}
}

func TestSchedulerRejectsMismatchedBuffer(t *testing.T) {
	output := audio.NewContext(48000, 2)
	var buffered []uint64
	s := newTestScheduler(output, &buffered)

	buf := &audio.Buffer{SampleRate: 24000, Channels: 2, Data: make([]float32, 480)}
	if _, _, err := s.schedule(buf); err == nil {
		t.Fatalf("expected sample rate mismatch")
	}
	if s.anchored {
		t.Fatalf("expected a rejected buffer not to leave an anchor behind")
	}
}
