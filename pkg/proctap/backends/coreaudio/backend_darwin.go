//go:build darwin && cgo

package coreaudio

/*
#cgo CFLAGS: -mmacosx-version-min=14.0
#cgo LDFLAGS: -framework CoreAudio -framework AudioToolbox -framework Foundation

#include <CoreAudio/CoreAudio.h>
#include "tap_darwin.h"
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/facebookincubator/go-belt/tool/logger"

	"github.com/xaionaro-go/proctap/pkg/proctap/planar"
	"github.com/xaionaro-go/proctap/pkg/proctap/procfind"
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

// The IOProc fires on a realtime CoreAudio thread, so the capture
// object cannot be passed through cgo as a Go pointer; instead every
// open backend registers itself under a numeric handle.
var (
	tapsLocker sync.Mutex
	taps       = map[uint64]*Backend{}
	nextHandle uint64
)

func registerTap(b *Backend) uint64 {
	tapsLocker.Lock()
	defer tapsLocker.Unlock()
	nextHandle++
	taps[nextHandle] = b
	return nextHandle
}

func unregisterTap(handle uint64) {
	tapsLocker.Lock()
	defer tapsLocker.Unlock()
	delete(taps, handle)
}

func lookupTap(handle uint64) *Backend {
	tapsLocker.Lock()
	defer tapsLocker.Unlock()
	return taps[handle]
}

//export proctap_go_io
func proctap_go_io(handle C.uint64_t, buffers *C.AudioBufferList) {
	b := lookupTap(uint64(handle))
	if b == nil {
		return
	}
	b.onIO(buffers)
}

// Backend captures the audio rendered by one process through a
// CoreAudio process tap wrapped into a private aggregate device.
// Requires macOS 14.4 or newer.
type Backend struct {
	locker      sync.Mutex
	handle      uint64
	capture     *C.proctap_capture_t
	format      types.Format
	interleaved bool
	started     bool

	callbacksLocker sync.Mutex
	callbacks       types.Callbacks
	staging         []byte
}

var _ types.Backend = (*Backend)(nil)

func NewBackend() *Backend {
	return &Backend{}
}

func (b *Backend) Open(
	ctx context.Context,
	target types.Target,
) (_ types.Format, _err error) {
	logger.Tracef(ctx, "Open(%s)", target)
	defer func() { logger.Tracef(ctx, "/Open(%s): %v", target, _err) }()

	b.locker.Lock()
	defer b.locker.Unlock()
	if b.capture != nil {
		return types.Format{}, fmt.Errorf("%w: the backend is already open",
			types.ErrInvalidStateTransition)
	}

	pid, err := procfind.Resolve(ctx, target)
	if err != nil {
		return types.Format{}, err
	}

	handle := registerTap(b)
	var (
		capture  *C.proctap_capture_t
		cFormat  C.proctap_format_t
		osstatus C.int32_t
	)
	code := C.proctap_open(C.uint64_t(handle), C.int32_t(pid), &capture, &cFormat, &osstatus)
	if code != C.PROCTAP_OK {
		unregisterTap(handle)
		return types.Format{}, tapError("unable to create a process tap", code, osstatus)
	}

	format := types.Format{
		SampleRate:   types.SampleRate(cFormat.sample_rate),
		Channels:     types.Channel(cFormat.channels),
		SampleFormat: types.SampleFormatF32LE,
	}
	if err := format.Validate(); err != nil {
		C.proctap_close(capture)
		unregisterTap(handle)
		return types.Format{}, fmt.Errorf("the tap reported an unusable format: %w", err)
	}

	b.handle = handle
	b.capture = capture
	b.format = format
	b.interleaved = cFormat.interleaved != 0
	logger.Debugf(ctx, "opened a process tap for PID %d: %s (interleaved: %v)",
		pid, format, b.interleaved)
	return format, nil
}

func (b *Backend) Start(
	ctx context.Context,
	callbacks types.Callbacks,
) (_err error) {
	logger.Tracef(ctx, "Start")
	defer func() { logger.Tracef(ctx, "/Start: %v", _err) }()

	b.locker.Lock()
	defer b.locker.Unlock()
	if b.capture == nil {
		return fmt.Errorf("%w: the backend is not open", types.ErrInvalidStateTransition)
	}
	if b.started {
		return fmt.Errorf("%w: the capture is already started", types.ErrInvalidStateTransition)
	}

	b.callbacksLocker.Lock()
	b.callbacks = callbacks
	b.callbacksLocker.Unlock()

	var osstatus C.int32_t
	if code := C.proctap_start(b.capture, &osstatus); code != C.PROCTAP_OK {
		b.callbacksLocker.Lock()
		b.callbacks = types.Callbacks{}
		b.callbacksLocker.Unlock()
		return tapError("unable to start the capture", code, osstatus)
	}
	b.started = true
	return nil
}

// onIO runs on the CoreAudio IO thread. Planar buffers (one plane per
// channel) are glued together and interleaved before delivery.
func (b *Backend) onIO(list *C.AudioBufferList) {
	if list == nil || list.mNumberBuffers == 0 {
		return
	}

	b.callbacksLocker.Lock()
	defer b.callbacksLocker.Unlock()
	if b.callbacks.OnData == nil {
		return
	}

	bufs := unsafe.Slice(&list.mBuffers[0], int(list.mNumberBuffers))

	if b.interleaved || len(bufs) == 1 {
		n := int(bufs[0].mDataByteSize)
		if n == 0 || bufs[0].mData == nil {
			return
		}
		data := C.GoBytes(bufs[0].mData, C.int(n))
		b.callbacks.OnData(data, time.Now())
		return
	}

	planeSize := int(bufs[0].mDataByteSize)
	if planeSize == 0 {
		return
	}
	total := planeSize * len(bufs)
	if cap(b.staging) < total {
		b.staging = make([]byte, total)
	}
	staging := b.staging[:total]
	for i, buf := range bufs {
		if buf.mData == nil || int(buf.mDataByteSize) != planeSize {
			return
		}
		copy(staging[i*planeSize:(i+1)*planeSize], unsafe.Slice((*byte)(buf.mData), planeSize))
	}

	out := make([]byte, total)
	err := planar.Interleave(types.Channel(len(bufs)), types.SampleFormatF32LE.Size(), out, staging)
	if err != nil {
		if b.callbacks.OnError != nil {
			b.callbacks.OnError(fmt.Errorf("%w: unable to interleave the tap buffers: %v",
				types.ErrConversionFailure, err))
		}
		return
	}
	b.callbacks.OnData(out, time.Now())
}

func (b *Backend) Stop(
	ctx context.Context,
) (_err error) {
	logger.Tracef(ctx, "Stop")
	defer func() { logger.Tracef(ctx, "/Stop: %v", _err) }()

	b.locker.Lock()
	defer b.locker.Unlock()
	return b.stopLocked()
}

func (b *Backend) stopLocked() error {
	if !b.started {
		return nil
	}
	b.started = false
	var osstatus C.int32_t
	code := C.proctap_stop(b.capture, &osstatus)

	// proctap_stop returns only after the IO proc is destroyed; dropping
	// the callbacks afterwards guarantees no delivery races with Stop.
	b.callbacksLocker.Lock()
	b.callbacks = types.Callbacks{}
	b.callbacksLocker.Unlock()

	if code != C.PROCTAP_OK {
		return tapError("unable to stop the capture", code, osstatus)
	}
	return nil
}

func (b *Backend) Close() (_err error) {
	ctx := context.TODO()
	logger.Tracef(ctx, "Close")
	defer func() { logger.Tracef(ctx, "/Close: %v", _err) }()

	b.locker.Lock()
	defer b.locker.Unlock()
	if b.capture == nil {
		return nil
	}
	if err := b.stopLocked(); err != nil {
		logger.Debugf(ctx, "unable to stop the capture while closing: %v", err)
	}
	C.proctap_close(b.capture)
	unregisterTap(b.handle)
	b.capture = nil
	b.handle = 0
	return nil
}

func tapError(description string, code C.int, osstatus C.int32_t) error {
	switch code {
	case C.PROCTAP_ERR_UNSUPPORTED:
		return fmt.Errorf("%w: process taps require macOS 14.4 or newer",
			types.ErrUnsupportedPlatformVersion)
	case C.PROCTAP_ERR_PROCESS_NOT_FOUND:
		return fmt.Errorf("%w: the PID is not known to the audio hardware server (OSStatus %d)",
			types.ErrProcessNotFound, int32(osstatus))
	case C.PROCTAP_ERR_TAP_CREATE:
		return fmt.Errorf("%w: %s (OSStatus %d); check the audio recording permission of the application",
			types.ErrPermissionDenied, description, int32(osstatus))
	case C.PROCTAP_ERR_FORMAT:
		return fmt.Errorf("%w: %s (OSStatus %d)",
			types.ErrUnsupportedFormat, description, int32(osstatus))
	case C.PROCTAP_ERR_AGGREGATE, C.PROCTAP_ERR_IOPROC, C.PROCTAP_ERR_START, C.PROCTAP_ERR_STOP:
		return fmt.Errorf("%w: %s (OSStatus %d)",
			types.ErrBackendUnavailable, description, int32(osstatus))
	}
	return fmt.Errorf("%s: code %d (OSStatus %d)", description, int(code), int32(osstatus))
}
