package server

import "errors"

var (
	// ErrBind means the listen port could not be bound.
	ErrBind = errors.New("bind failed")

	// ErrCertificate means TLS material was missing or unusable.
	ErrCertificate = errors.New("certificate error")
)
