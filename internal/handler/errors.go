package handler

import "errors"

var (
	// ErrMalformedRequest covers unparseable bodies: a multipart request
	// without a boundary, a truncated multipart stream, a missing field.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrEncoding is returned for message text that is not valid UTF-8.
	ErrEncoding = errors.New("message is not valid UTF-8")

	// ErrMessageTooLarge is returned when a message exceeds the configured cap.
	ErrMessageTooLarge = errors.New("message too large")
)
