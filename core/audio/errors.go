package audio

import "errors"

var (
	ErrEmptyPayload       = errors.New("audio payload is empty")
	ErrInvalidPayload     = errors.New("audio payload is not valid base64")
	ErrMisalignedPayload  = errors.New("audio payload is not a whole number of frames")
	ErrUnsupportedFormat  = errors.New("unsupported audio encoding")
	ErrSampleRateMismatch = errors.New("buffer sample rate does not match the output")
	ErrChannelMismatch    = errors.New("buffer channel count does not match the output")
)
