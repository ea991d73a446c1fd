package types

import (
	"context"
	"time"
)

// Callbacks is the set of functions a Backend invokes from its capture
// goroutine.
//
// OnData receives a freshly allocated buffer holding a whole number of
// frames in the backend's native format; it must not block for long, the
// backend would otherwise fall behind the OS.
// OnError receives asynchronous capture failures; after OnError the
// backend delivers no further data.
type Callbacks struct {
	OnData  func(data []byte, capturedAt time.Time)
	OnError func(err error)
}

// Backend is one platform-specific way to subscribe to the audio of a
// single process.
//
// The lifecycle is: Open (resolve the target, allocate OS resources,
// report the native format), Start (begin delivering data), Stop (cease
// delivery; no callback is in flight after Stop returns), Close (release
// OS resources).
type Backend interface {
	Open(
		ctx context.Context,
		target Target,
	) (Format, error)
	Start(
		ctx context.Context,
		callbacks Callbacks,
	) error
	Stop(ctx context.Context) error
	Close() error
}
