package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	livemusic "github.com/koscakluka/ema-livemusic/core"
	events "github.com/koscakluka/ema-livemusic/core/events"
	"github.com/koscakluka/ema-livemusic/internal/config"
	"github.com/muesli/reflow/wordwrap"
)

const volumeStep = 0.1

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
	spectrumBars = []rune("▁▂▃▄▅▆▇█")

	stateStyles = map[livemusic.PlaybackState]lipgloss.Style{
		livemusic.StateStopped: lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("238")),
		livemusic.StateLoading: lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("178")).Foreground(lipgloss.Color("0")),
		livemusic.StatePlaying: lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("35")).Foreground(lipgloss.Color("0")),
		livemusic.StatePaused:  lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("67")).Foreground(lipgloss.Color("0")),
	}
)

type eventMsg struct{ event events.Event }

// eventsClosedMsg means the helper shut down.
type eventsClosedMsg struct{}

type downloadedMsg struct {
	path string
	err  error
}

// actionErrMsg carries errors of actions that also produce an error event;
// only failures without an event are shown from here.
type actionErrMsg struct{ err error }

type model struct {
	helper *livemusic.Helper
	events <-chan events.Event

	prompt   textinput.Model
	meter    progress.Model
	state    livemusic.PlaybackState
	volume   float64
	spectrum []float64
	level    float64

	notice string
	err    string
	width  int
}

func newModel(helper *livemusic.Helper, ch <-chan events.Event, cfg config.Config) model {
	prompt := textinput.New()
	prompt.Placeholder = "lofi beats, rain:0.5"
	prompt.Prompt = "♪ "
	prompt.CharLimit = 500
	prompt.SetValue(cfg.Playback.Prompt)
	prompt.Focus()

	return model{
		helper: helper,
		events: ch,
		prompt: prompt,
		meter:  progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		state:  helper.State(),
		volume: helper.Volume(),
		width:  80,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.events))
}

func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: event}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.prompt.Width = max(msg.Width-4, 10)
		m.meter.Width = max(msg.Width-12, 10)
		return m, nil

	case eventMsg:
		m.handleEvent(msg.event)
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		return m, tea.Quit

	case downloadedMsg:
		if msg.err == nil {
			m.notice = "saved " + msg.path
		}
		return m, nil

	case actionErrMsg:
		if errors.Is(msg.err, livemusic.ErrNoActiveSession) {
			m.err = "nothing is playing"
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.prompt.Focused() {
			return m.updatePrompt(msg)
		}
		return m.updateControls(msg)
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		spec := promptSpec(m.prompt.Value())
		m.prompt.Blur()
		m.err, m.notice = "", ""
		helper := m.helper
		return m, func() tea.Msg {
			if helper.State() == livemusic.StateStopped {
				return actionErrMsg{err: helper.Play(context.Background(), &spec)}
			}
			return actionErrMsg{err: helper.SetPrompt(context.Background(), spec)}
		}
	case tea.KeyEsc, tea.KeyTab:
		m.prompt.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m model) updateControls(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	helper := m.helper
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "tab", "enter", "i":
		return m, m.prompt.Focus()
	case " ":
		m.err, m.notice = "", ""
		return m, func() tea.Msg {
			return actionErrMsg{err: helper.PlayPause(context.Background())}
		}
	case "s":
		helper.Stop()
	case "r":
		return m, func() tea.Msg {
			return actionErrMsg{err: helper.ResetContext()}
		}
	case "+", "=":
		m.volume = math.Min(1, m.volume+volumeStep)
		helper.SetVolume(m.volume)
	case "-":
		m.volume = math.Max(0, m.volume-volumeStep)
		helper.SetVolume(m.volume)
	case "d":
		title := m.prompt.Value()
		return m, func() tea.Msg {
			path, err := helper.Download(title)
			return downloadedMsg{path: path, err: err}
		}
	}
	return m, nil
}

func (m *model) handleEvent(event events.Event) {
	switch event := event.(type) {
	case events.PlaybackStateChanged:
		m.state = event.State
		if event.State != livemusic.StatePlaying {
			m.level = 0
			clear(m.spectrum)
		}
	case events.AudioLevelChanged:
		m.spectrum = event.Spectrum
		m.level = event.Level
	case events.PromptFiltered:
		m.err = fmt.Sprintf("prompt %q was filtered: %s", event.Text, event.Reason)
	case events.Error:
		m.err = event.Message
	}
}

func (m model) View() string {
	var b strings.Builder

	style, ok := stateStyles[m.state]
	if !ok {
		style = stateStyles[livemusic.StateStopped]
	}
	b.WriteString(titleStyle.Render("livemusic") + "  " + style.Render(string(m.state)))
	b.WriteString(labelStyle.Render(fmt.Sprintf("  volume %3.0f%%", m.volume*100)))
	b.WriteString("\n\n")

	b.WriteString(m.prompt.View())
	b.WriteString("\n\n")

	b.WriteString(m.renderSpectrum())
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("level ") + m.meter.ViewAs(m.level))
	b.WriteString("\n")

	width := max(m.width-2, 20)
	if m.notice != "" {
		b.WriteString("\n" + noticeStyle.Render(wordwrap.String(m.notice, width)))
	}
	if m.err != "" {
		b.WriteString("\n" + errorStyle.Render(wordwrap.String(m.err, width)))
	}

	help := "space play/pause · s stop · +/- volume · d download · r reset · tab prompt · q quit"
	if m.prompt.Focused() {
		help = "enter play with prompt · esc controls · ctrl+c quit"
	}
	b.WriteString(helpStyle.Render(wordwrap.String(help, width)))
	b.WriteString("\n")

	return b.String()
}

func (m model) renderSpectrum() string {
	if len(m.spectrum) == 0 {
		return strings.Repeat(string(spectrumBars[0]), 64)
	}

	bars := make([]rune, len(m.spectrum))
	for i, v := range m.spectrum {
		idx := int(math.Round(v * float64(len(spectrumBars)-1)))
		bars[i] = spectrumBars[min(max(idx, 0), len(spectrumBars)-1)]
	}
	return string(bars)
}
