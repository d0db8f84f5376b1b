// Package generation is the contract between the live music helper and a
// streaming music generation backend.
package generation

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNoPrompts     = errors.New("at least one active weighted prompt is required")
	ErrSessionClosed = errors.New("generation session closed")
)

// WeightedPrompt steers generation towards Text in proportion to Weight.
// Prompts with a zero weight are kept but ignored by the backend.
type WeightedPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// GenerationConfig tunes the generated music. Nil fields keep the backend's
// current value.
type GenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopK             *int     `json:"topK,omitempty"`
	Seed             *int     `json:"seed,omitempty"`
	Guidance         *float64 `json:"guidance,omitempty"`
	BPM              *int     `json:"bpm,omitempty"`
	Density          *float64 `json:"density,omitempty"`
	Brightness       *float64 `json:"brightness,omitempty"`
	Scale            string   `json:"scale,omitempty"`
	MuteBass         bool     `json:"muteBass,omitempty"`
	MuteDrums        bool     `json:"muteDrums,omitempty"`
	OnlyBassAndDrums bool     `json:"onlyBassAndDrums,omitempty"`
}

// PromptSpec is everything that steers a session.
type PromptSpec struct {
	Prompts []WeightedPrompt
	Config  *GenerationConfig
}

// Active returns the prompts the backend will actually use.
func (p PromptSpec) Active() []WeightedPrompt {
	active := make([]WeightedPrompt, 0, len(p.Prompts))
	for _, prompt := range p.Prompts {
		if strings.TrimSpace(prompt.Text) == "" || prompt.Weight <= 0 {
			continue
		}
		active = append(active, prompt)
	}
	return active
}

func (p PromptSpec) HasActive() bool {
	return len(p.Active()) > 0
}

// Chunk is one piece of generated audio. Data is base64 encoded PCM
// described by MimeType.
type Chunk struct {
	Data     string
	MimeType string
}

type FilteredPrompt struct {
	Text   string
	Reason string
}

// Handlers receive everything the backend pushes. Chunks are delivered one at
// a time in generation order.
type Handlers struct {
	OnChunk          func(Chunk)
	OnError          func(error)
	OnClose          func()
	OnFilteredPrompt func(FilteredPrompt)
}

func (h Handlers) WithDefaults() Handlers {
	if h.OnChunk == nil {
		h.OnChunk = func(Chunk) {}
	}
	if h.OnError == nil {
		h.OnError = func(error) {}
	}
	if h.OnClose == nil {
		h.OnClose = func() {}
	}
	if h.OnFilteredPrompt == nil {
		h.OnFilteredPrompt = func(FilteredPrompt) {}
	}
	return h
}

// Backend opens generation sessions.
type Backend interface {
	Connect(ctx context.Context, handlers Handlers) (Session, error)
}

// Session is one live generation channel.
type Session interface {
	ID() string
	SetWeightedPrompts(ctx context.Context, prompts []WeightedPrompt) error
	SetGenerationConfig(ctx context.Context, config GenerationConfig) error
	Play() error
	Pause() error
	Stop() error
	ResetContext() error
	// Close terminates the session gracefully. Handlers are not called for a
	// close the caller requested.
	Close() error
}
