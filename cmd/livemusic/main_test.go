package main

import (
	"math"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	livemusic "github.com/koscakluka/ema-livemusic/core"
	"github.com/koscakluka/ema-livemusic/core/audio"
	events "github.com/koscakluka/ema-livemusic/core/events"
	"github.com/koscakluka/ema-livemusic/internal/config"
)

func TestPromptSpec(t *testing.T) {
	spec := promptSpec(" lofi beats , rain:0.5,, ratio 3:4 strings:x ")

	expected := []struct {
		text   string
		weight float64
	}{
		{"lofi beats", 1},
		{"rain", 0.5},
		{"ratio 3:4 strings:x", 1},
	}
	if len(spec.Prompts) != len(expected) {
		t.Fatalf("expected %d prompts, got %+v", len(expected), spec.Prompts)
	}
	for i, e := range expected {
		if spec.Prompts[i].Text != e.text || spec.Prompts[i].Weight != e.weight {
			t.Fatalf("expected prompt %d to be %q at %v, got %+v", i, e.text, e.weight, spec.Prompts[i])
		}
	}
}

func TestModelTracksEvents(t *testing.T) {
	helper := livemusic.NewHelper(livemusic.WithOutput(audio.NewContext(48000, 2)))
	defer helper.Close()
	m := newModel(helper, make(chan events.Event), config.Default())

	updated, _ := m.Update(eventMsg{event: events.NewPlaybackStateChanged(livemusic.StatePlaying)})
	m = updated.(model)
	updated, _ = m.Update(eventMsg{event: events.NewAudioLevelChanged([]float64{0, 0.5, 1}, 0.3)})
	m = updated.(model)

	if m.state != livemusic.StatePlaying {
		t.Fatalf("expected playing state, got %q", m.state)
	}
	if m.level != 0.3 {
		t.Fatalf("expected level 0.3, got %v", m.level)
	}
	if got := m.renderSpectrum(); got != "▁▅█" {
		t.Fatalf("expected spectrum bars, got %q", got)
	}

	updated, _ = m.Update(eventMsg{event: events.NewError("", livemusic.ErrConnectionClosed)})
	m = updated.(model)
	if m.err != "connection closed unexpectedly" {
		t.Fatalf("expected error message to be shown, got %q", m.err)
	}
}

func TestModelVolumeKeys(t *testing.T) {
	helper := livemusic.NewHelper(livemusic.WithOutput(audio.NewContext(48000, 2)), livemusic.WithVolume(0.5))
	defer helper.Close()
	m := newModel(helper, make(chan events.Event), config.Default())
	m.prompt.Blur()

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("-")})
	m = updated.(model)

	if math.Abs(helper.Volume()-0.4) > 1e-9 {
		t.Fatalf("expected volume 0.4, got %v", helper.Volume())
	}
	if m.volume != helper.Volume() {
		t.Fatalf("expected model volume 0.4, got %v", m.volume)
	}
}
