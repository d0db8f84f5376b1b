package livemusic

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-livemusic/core/generation"
)

type workerRun func(context.Context) error

func panicSafeNamedWorker(name string, run func(context.Context) error) workerRun {
	return func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("%s worker panicked: %v", name, recovered)
			}
		}()

		if err = run(ctx); err != nil {
			return fmt.Errorf("%s worker failed: %w", name, err)
		}

		return nil
	}
}

// copyPromptSpec deep copies spec so callers can keep mutating theirs.
func copyPromptSpec(spec generation.PromptSpec) generation.PromptSpec {
	var clone generation.PromptSpec
	if err := copier.CopyWithOption(&clone, &spec, copier.Option{DeepCopy: true}); err != nil {
		logger.Warn("failed to copy prompt spec, keeping a shallow copy", slog.String("error", err.Error()))
		return spec
	}
	return clone
}

func clampVolume(level float64) float64 {
	switch {
	case level != level, level < 0:
		return 0
	case level > 1:
		return 1
	}
	return level
}

// failureWindow counts failures that happened within a sliding window.
type failureWindow struct {
	max    int
	window time.Duration
	times  []time.Time
}

// record notes a failure and reports whether the limit was reached.
func (w *failureWindow) record(now time.Time) bool {
	if w.max <= 0 {
		return false
	}

	cutoff := now.Add(-w.window)
	kept := w.times[:0]
	for _, t := range w.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.times = append(kept, now)
	return len(w.times) >= w.max
}

func (w *failureWindow) reset() {
	w.times = nil
}
