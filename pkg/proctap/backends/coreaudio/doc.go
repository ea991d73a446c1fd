// Package coreaudio implements a capture backend on top of CoreAudio
// process taps: a tap object subscribed to one process is wrapped into
// a private aggregate device, and an IOProc on that device receives
// everything the process renders.
//
// Only compiled on macOS with cgo; the tap API itself appeared in
// macOS 14.4.
package coreaudio
