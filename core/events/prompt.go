package events

const (
	// KindPromptFiltered identifies a prompt refused by the backend.
	KindPromptFiltered Kind = "prompt.filtered"
)

// PromptFiltered carries the refused prompt text and the backend's reason.
type PromptFiltered struct {
	Base
	Text   string
	Reason string
}

// NewPromptFiltered creates a prompt filtered event.
func NewPromptFiltered(text, reason string) PromptFiltered {
	return PromptFiltered{Base: NewBase(KindPromptFiltered), Text: text, Reason: reason}
}
