package recording

import "errors"

var (
	ErrNothingRecorded   = errors.New("nothing has been recorded yet")
	ErrUnsupportedFormat = errors.New("unsupported recording format")
)
