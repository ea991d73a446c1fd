// Package pulseaudio captures the audio of a single process from a
// PulseAudio (or PipeWire-Pulse) server.
//
// PulseAudio has no direct per-process capture, but every playback
// stream ("sink input") is attached to a sink, and every sink has a
// monitor source mirroring everything played to it. The backend finds
// the sink input of the target process and records the monitor of the
// sink it plays to. Other streams playing to the same sink end up in
// the recording too; that is inherent to the monitor approach.
package pulseaudio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/jfreymuth/pulse"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/proctap/pkg/proctap/procfind"
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

// chunks are cut to roughly this duration before being handed out
const chunkDuration = 10 * time.Millisecond

type Backend struct {
	// Server overrides the PulseAudio server address; an empty string
	// uses the usual discovery (PULSE_SERVER, the user runtime dir).
	Server string

	locker      sync.Mutex
	client      *pulse.Client
	source      *pulse.Source
	stream      *pulse.RecordStream
	writer      *chunkWriter
	tap         *sinkInputTap
	format      types.Format
	cancelWatch context.CancelFunc
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
	if b.client != nil {
		return types.Format{}, fmt.Errorf("%w: the backend is already opened", types.ErrInvalidStateTransition)
	}

	pid, err := procfind.Resolve(ctx, target)
	if err != nil {
		return types.Format{}, err
	}

	tap, err := findSinkInputByPID(ctx, b.Server, pid)
	if err != nil {
		return types.Format{}, err
	}

	opts := []pulse.ClientOption{pulse.ClientApplicationName("proctap")}
	if b.Server != "" {
		opts = append(opts, pulse.ClientServerString(b.Server))
	}
	client, err := pulse.NewClient(opts...)
	if err != nil {
		return types.Format{}, fmt.Errorf("%w: unable to open a client to Pulse: %v", types.ErrBackendUnavailable, err)
	}

	source, err := client.SourceByID(tap.MonitorSourceName)
	if err != nil {
		client.Close()
		return types.Format{}, fmt.Errorf("unable to find the monitor source '%s': %w", tap.MonitorSourceName, err)
	}

	b.client = client
	b.source = source
	b.tap = tap
	// we always ask the server for float32, it converts on its side;
	// the rate and the channel layout are taken from the sink as is
	b.format = types.Format{
		SampleRate:   types.SampleRate(tap.SinkSampleSpec.Rate),
		Channels:     types.Channel(len(tap.SinkChannelMap)),
		SampleFormat: types.SampleFormatF32LE,
	}
	logger.Debugf(ctx, "capturing the monitor '%s' at %s", tap.MonitorSourceName, b.format)
	return b.format, nil
}

func (b *Backend) Start(
	ctx context.Context,
	callbacks types.Callbacks,
) (_err error) {
	logger.Tracef(ctx, "Start")
	defer func() { logger.Tracef(ctx, "/Start: %v", _err) }()

	b.locker.Lock()
	defer b.locker.Unlock()
	if b.client == nil {
		return fmt.Errorf("%w: the backend is not opened", types.ErrInvalidStateTransition)
	}
	if b.stream != nil {
		return fmt.Errorf("%w: the capture is already started", types.ErrInvalidStateTransition)
	}

	frameSize := int(b.format.FrameSize())
	period := int(uint(b.format.SampleRate)/uint(time.Second/chunkDuration)) * frameSize
	writer := &chunkWriter{
		callbacks: callbacks,
		period:    period,
	}

	stream, err := b.client.NewRecord(
		writer,
		pulse.RecordSource(b.source),
		pulse.RecordSampleRate(int(b.format.SampleRate)),
		pulse.RecordChannels(b.tap.SinkChannelMap),
		pulse.RecordBufferFragmentSize(uint32(period)),
	)
	if err != nil {
		return fmt.Errorf("unable to initialize a recording: %w", err)
	}

	stream.Start()
	if stream.Error() != nil {
		stream.Close()
		return fmt.Errorf("an error occurred while starting the recording: %w", stream.Error())
	}
	b.stream = stream
	b.writer = writer

	watchCtx, cancelFn := context.WithCancel(ctx)
	b.cancelWatch = cancelFn
	observability.Go(watchCtx, func(ctx context.Context) {
		b.watchStream(ctx, stream, callbacks)
	})
	return nil
}

// watchStream surfaces asynchronous capture failures: the record stream
// has no error callback, so we poll its status.
func (b *Backend) watchStream(
	ctx context.Context,
	stream *pulse.RecordStream,
	callbacks types.Callbacks,
) {
	t := time.NewTicker(500 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if err := stream.Error(); err != nil {
			logger.Errorf(ctx, "the record stream failed: %v", err)
			if callbacks.OnError != nil {
				callbacks.OnError(fmt.Errorf("the record stream failed: %w", err))
			}
			return
		}
		if stream.Closed() {
			logger.Debugf(ctx, "the record stream was closed")
			if callbacks.OnError != nil {
				callbacks.OnError(fmt.Errorf("%w: the record stream was closed by the server", types.ErrBackendUnavailable))
			}
			return
		}
	}
}

func (b *Backend) Stop(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Stop")
	defer func() { logger.Tracef(ctx, "/Stop: %v", _err) }()

	b.locker.Lock()
	defer b.locker.Unlock()
	return b.stopLocked()
}

func (b *Backend) stopLocked() error {
	if b.stream == nil {
		return nil
	}
	if b.cancelWatch != nil {
		b.cancelWatch()
		b.cancelWatch = nil
	}
	b.writer.stopped.Store(true)
	b.stream.Stop()
	b.stream.Close()
	b.stream = nil
	b.writer = nil
	return nil
}

func (b *Backend) Close() error {
	b.locker.Lock()
	defer b.locker.Unlock()
	if err := b.stopLocked(); err != nil {
		return err
	}
	if b.client != nil {
		b.client.Close()
		b.client = nil
		b.source = nil
		b.tap = nil
	}
	return nil
}
