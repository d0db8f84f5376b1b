package lyria

import "github.com/koscakluka/ema-livemusic/core/generation"

type setupMessage struct {
	Setup struct {
		Model string `json:"model"`
	} `json:"setup"`
}

func newSetupMessage(model string) setupMessage {
	msg := setupMessage{}
	msg.Setup.Model = model
	return msg
}

type weightedPromptsMessage struct {
	ClientContent struct {
		WeightedPrompts []generation.WeightedPrompt `json:"weightedPrompts"`
	} `json:"clientContent"`
}

func newWeightedPromptsMessage(prompts []generation.WeightedPrompt) weightedPromptsMessage {
	msg := weightedPromptsMessage{}
	msg.ClientContent.WeightedPrompts = prompts
	return msg
}

type generationConfigMessage struct {
	MusicGenerationConfig generation.GenerationConfig `json:"musicGenerationConfig"`
}

type playbackControlMessage struct {
	PlaybackControl string `json:"playbackControl"`
}

var (
	playMsg         = playbackControlMessage{PlaybackControl: "PLAY"}
	pauseMsg        = playbackControlMessage{PlaybackControl: "PAUSE"}
	stopMsg         = playbackControlMessage{PlaybackControl: "STOP"}
	resetContextMsg = playbackControlMessage{PlaybackControl: "RESET_CONTEXT"}
)

type serverMessage struct {
	SetupComplete  *struct{}            `json:"setupComplete,omitempty"`
	ServerContent  *serverContent       `json:"serverContent,omitempty"`
	FilteredPrompt *filteredPromptEntry `json:"filteredPrompt,omitempty"`
	Warning        string               `json:"warning,omitempty"`
}

type serverContent struct {
	AudioChunks []audioChunk `json:"audioChunks"`
}

type audioChunk struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type filteredPromptEntry struct {
	Text           string `json:"text"`
	FilteredReason string `json:"filteredReason"`
}
