package history

import "errors"

var (
	// ErrOutOfOrder is returned when appending a message whose ID does not follow the last stored ID.
	ErrOutOfOrder = errors.New("message id is not greater than the last stored id")

	// ErrNilSource is returned by Record when no message source is given.
	ErrNilSource = errors.New("message source is nil")

	// ErrNilStore is returned by Record when no store is given.
	ErrNilStore = errors.New("history store is nil")

	// ErrRecorderStopped is returned by Recorder.Wait when the recorder stops before the id is stored.
	ErrRecorderStopped = errors.New("history recorder stopped")
)
