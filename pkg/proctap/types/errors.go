package types

import (
	"errors"
)

var (
	// ErrProcessNotFound is returned when the requested process does not
	// exist or does not produce audio the backend can subscribe to.
	ErrProcessNotFound = errors.New("process not found")

	// ErrPermissionDenied is returned when the OS refused access to the
	// audio stream of another process.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnsupportedPlatformVersion is returned when the OS is too old to
	// provide per-process capture.
	ErrUnsupportedPlatformVersion = errors.New("unsupported platform version")

	// ErrBackendUnavailable is returned when no capture backend is able to
	// serve the current platform.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrInvalidStateTransition is returned when a session operation is
	// called in a state it is not allowed in.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrUnsupportedFormat is returned when a format descriptor cannot be
	// satisfied (unknown encoding, zero rate, unmappable channel layout).
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrConversionFailure is returned when a chunk cannot be converted,
	// for example when its payload is not a whole number of frames.
	ErrConversionFailure = errors.New("conversion failure")

	// ErrClosed is returned when reading from a session or queue which
	// was already stopped or closed.
	ErrClosed = errors.New("already closed")
)
