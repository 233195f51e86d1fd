package storage

import "errors"

var (
	// ErrIO wraps any filesystem failure while staging or publishing an upload.
	ErrIO = errors.New("storage i/o error")

	// ErrSessionClosed is returned when a finalized or aborted session is used.
	ErrSessionClosed = errors.New("upload session closed")
)
