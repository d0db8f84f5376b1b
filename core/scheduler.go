package livemusic

import (
	"time"

	"github.com/koscakluka/ema-livemusic/core/audio"
)

type scheduleResult int

const (
	// scheduledContinuing means the buffer was appended after the previous one.
	scheduledContinuing scheduleResult = iota
	// scheduledBuffering means the buffer anchored a new buffering interval.
	scheduledBuffering
	// scheduledAfterUnderrun means playback had run dry and the buffer started
	// a new buffering interval.
	scheduledAfterUnderrun
	// droppedOverLookahead means too much audio was already scheduled.
	droppedOverLookahead
)

// scheduler places decoded buffers back to back on the output clock. It is
// guarded by the helper's mutex.
type scheduler struct {
	output       *audio.Context
	bufferTime   time.Duration
	maxLookahead time.Duration

	anchored      bool
	nextStartTime float64

	// anchorSeq identifies the current buffering interval so a timer armed
	// for an earlier one can tell it is stale.
	anchorSeq  uint64
	timer      *audio.Task
	onBuffered func(anchorSeq uint64)
}

// schedule places buf after the previous buffer and returns its start time.
func (s *scheduler) schedule(buf *audio.Buffer) (scheduleResult, float64, error) {
	now := s.output.CurrentTime()
	result := scheduledContinuing

	if s.anchored && s.nextStartTime < now {
		s.reset()
		result = scheduledAfterUnderrun
	}

	if !s.anchored {
		s.anchor(now)
		if result != scheduledAfterUnderrun {
			result = scheduledBuffering
		}
	} else if s.maxLookahead > 0 && s.nextStartTime-now > s.maxLookahead.Seconds() {
		return droppedOverLookahead, 0, nil
	}

	start, end, err := s.output.Schedule(buf, s.nextStartTime)
	if err != nil {
		if result != scheduledContinuing {
			s.reset()
		}
		return result, 0, err
	}
	s.nextStartTime = end
	return result, start, nil
}

func (s *scheduler) anchor(now float64) {
	s.anchored = true
	s.nextStartTime = now + s.bufferTime.Seconds()

	seq := s.anchorSeq
	onBuffered := s.onBuffered
	s.timer = s.output.At(s.nextStartTime, func() {
		if onBuffered != nil {
			onBuffered(seq)
		}
	})
}

// reset forgets the anchor and cancels a pending buffering timer.
func (s *scheduler) reset() {
	s.timer.Stop()
	s.timer = nil
	s.anchored = false
	s.nextStartTime = 0
	s.anchorSeq++
}
