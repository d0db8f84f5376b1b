package events

const (
	// KindError identifies a user facing failure.
	KindError Kind = "error"
)

// Error carries a human readable message and the underlying error, if any.
type Error struct {
	Base
	Message string
	Err     error
}

// NewError creates an error event. The message defaults to err's text.
func NewError(message string, err error) Error {
	if message == "" && err != nil {
		message = err.Error()
	}
	return Error{Base: NewBase(KindError), Message: message, Err: err}
}
