//go:build windows

package wasapi

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/go-ole/go-ole"
	"github.com/xaionaro-go/observability"
	"golang.org/x/sys/windows"

	"github.com/xaionaro-go/proctap/pkg/proctap/procfind"
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

const (
	captureRate     = 48000
	captureChannels = 2

	// REFERENCE_TIME is expressed in 100ns units.
	bufferDuration100ns = 200 * 10000

	waitTimeoutMS = 2000
)

// Backend captures the audio rendered by one process (and its children)
// using the process loopback mode of WASAPI. Requires Windows 10 2004 or
// newer.
type Backend struct {
	locker sync.Mutex

	audioClient   *iAudioClient
	captureClient *iAudioCaptureClient
	event         windows.Handle
	format        types.Format

	stopCh    chan struct{}
	captureWG sync.WaitGroup
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
	if b.audioClient != nil {
		return types.Format{}, fmt.Errorf("%w: the backend is already open",
			types.ErrInvalidStateTransition)
	}

	if err := checkWindowsBuild(); err != nil {
		return types.Format{}, err
	}

	pid, err := procfind.Resolve(ctx, target)
	if err != nil {
		return types.Format{}, err
	}

	if err := coInitialize(); err != nil {
		return types.Format{}, fmt.Errorf("unable to initialize COM: %w", err)
	}

	audioClient, err := activateProcessLoopback(ctx, pid)
	if err != nil {
		return types.Format{}, fmt.Errorf("unable to activate a process loopback capture for PID %d: %w", pid, err)
	}

	// The loopback virtual device has no mix format of its own, so we
	// dictate the format and let the audio engine convert.
	format := types.Format{
		SampleRate:   captureRate,
		Channels:     captureChannels,
		SampleFormat: types.SampleFormatF32LE,
	}
	wfx := waveFormatEx{
		FormatTag:      waveFormatIEEEFloat,
		Channels:       uint16(format.Channels),
		SamplesPerSec:  uint32(format.SampleRate),
		AvgBytesPerSec: uint32(format.BytesPerSecond()),
		BlockAlign:     uint16(format.FrameSize()),
		BitsPerSample:  32,
	}
	err = audioClient.Initialize(
		audclntShareModeShared,
		audclntStreamFlagsLoopback|audclntStreamFlagsEventCallback|audclntStreamFlagsAutoConvertPCM,
		bufferDuration100ns,
		0,
		&wfx,
	)
	if err != nil {
		audioClient.Release()
		return types.Format{}, err
	}

	event, err := windows.CreateEvent(nil, 0, 0, nil)
	if err != nil {
		audioClient.Release()
		return types.Format{}, fmt.Errorf("unable to create the capture event: %w", err)
	}
	if err := audioClient.SetEventHandle(uintptr(event)); err != nil {
		windows.CloseHandle(event)
		audioClient.Release()
		return types.Format{}, err
	}

	service, err := audioClient.GetService(iidIAudioCaptureClient)
	if err != nil {
		windows.CloseHandle(event)
		audioClient.Release()
		return types.Format{}, err
	}

	b.audioClient = audioClient
	b.captureClient = (*iAudioCaptureClient)(service)
	b.event = event
	b.format = format
	logger.Debugf(ctx, "opened a process loopback capture for PID %d: %s", pid, format)
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
	if b.audioClient == nil {
		return fmt.Errorf("%w: the backend is not open", types.ErrInvalidStateTransition)
	}
	if b.stopCh != nil {
		return fmt.Errorf("%w: the capture is already started", types.ErrInvalidStateTransition)
	}

	if err := b.audioClient.Start(); err != nil {
		return err
	}

	stopCh := make(chan struct{})
	b.stopCh = stopCh
	b.captureWG.Add(1)
	observability.Go(ctx, func(ctx context.Context) {
		defer b.captureWG.Done()
		b.captureLoop(ctx, callbacks, stopCh)
	})
	return nil
}

func (b *Backend) captureLoop(
	ctx context.Context,
	callbacks types.Callbacks,
	stopCh chan struct{},
) {
	logger.Tracef(ctx, "captureLoop")
	defer logger.Tracef(ctx, "/captureLoop")

	// The audio engine signals the event from its own threads; keep
	// this goroutine pinned so that the wait always happens on a
	// COM-initialized thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := coInitialize(); err != nil {
		callbacks.OnError(fmt.Errorf("unable to initialize COM on the capture thread: %w", err))
		return
	}
	defer ole.CoUninitialize()

	frameSize := b.format.FrameSize()
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		status, err := windows.WaitForSingleObject(b.event, waitTimeoutMS)
		if err != nil {
			callbacks.OnError(fmt.Errorf("unable to wait for the capture event: %w", err))
			return
		}
		if status == uint32(windows.WAIT_TIMEOUT) {
			// The engine produces no packets while the target process
			// renders nothing; an idle wait is not an error.
			continue
		}

		if err := b.drainPackets(callbacks, frameSize, stopCh); err != nil {
			select {
			case <-stopCh:
			default:
				callbacks.OnError(err)
			}
			return
		}
	}
}

func (b *Backend) drainPackets(
	callbacks types.Callbacks,
	frameSize uint,
	stopCh chan struct{},
) error {
	for {
		select {
		case <-stopCh:
			return nil
		default:
		}

		packetFrames, err := b.captureClient.GetNextPacketSize()
		if err != nil {
			return err
		}
		if packetFrames == 0 {
			return nil
		}

		buf, frames, flags, err := b.captureClient.GetBuffer()
		if err != nil {
			return err
		}
		length := int(uint(frames) * frameSize)
		data := make([]byte, length)
		if flags&audclntBufferFlagsSilent == 0 {
			copy(data, unsafe.Slice(buf, length))
		}
		if err := b.captureClient.ReleaseBuffer(frames); err != nil {
			return err
		}
		callbacks.OnData(data, time.Now())
	}
}

func (b *Backend) Stop(
	ctx context.Context,
) (_err error) {
	logger.Tracef(ctx, "Stop")
	defer func() { logger.Tracef(ctx, "/Stop: %v", _err) }()

	b.locker.Lock()
	defer b.locker.Unlock()
	return b.stopLocked(ctx)
}

func (b *Backend) stopLocked(ctx context.Context) error {
	if b.stopCh == nil {
		return nil
	}
	close(b.stopCh)
	b.stopCh = nil
	windows.SetEvent(b.event)
	b.captureWG.Wait()
	if err := b.audioClient.Stop(); err != nil {
		return err
	}
	return nil
}

func (b *Backend) Close() (_err error) {
	ctx := context.TODO()
	logger.Tracef(ctx, "Close")
	defer func() { logger.Tracef(ctx, "/Close: %v", _err) }()

	b.locker.Lock()
	defer b.locker.Unlock()
	if b.audioClient == nil {
		return nil
	}
	if err := b.stopLocked(ctx); err != nil {
		logger.Debugf(ctx, "unable to stop the capture while closing: %v", err)
	}
	b.captureClient.Release()
	b.audioClient.Release()
	windows.CloseHandle(b.event)
	b.captureClient = nil
	b.audioClient = nil
	b.event = 0
	return nil
}

// coInitialize enters the multithreaded apartment; an S_FALSE result
// just means the thread was already initialized.
func coInitialize() error {
	err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED)
	if err == nil {
		return nil
	}
	var oleErr *ole.OleError
	if errors.As(err, &oleErr) && oleErr.Code() == 1 {
		return nil
	}
	return err
}

// checkWindowsBuild verifies that the OS is new enough for process
// loopback captures (Windows 10 2004, build 19041).
func checkWindowsBuild() error {
	var major, minor, build uint32
	windows.RtlGetNtVersionNumbers(&major, &minor, &build)
	if major > 10 {
		return nil
	}
	if major == 10 && build >= 19041 {
		return nil
	}
	return fmt.Errorf("%w: process loopback capture requires Windows 10 build 19041 or newer, got %d.%d.%d",
		types.ErrUnsupportedPlatformVersion, major, minor, build)
}
