// Package proctap captures the audio rendered by a single process and
// serves it as a stream of PCM chunks in a requested format.
//
// A Session binds one capture backend to one target process:
//
//	session, err := proctap.Open(ctx, types.TargetName("firefox"), types.Format{})
//	if err != nil { ... }
//	defer session.Close()
//	if err := session.Start(ctx); err != nil { ... }
//	for chunk := range session.Chunks(ctx) { ... }
//
// Sessions are independent of each other: each one owns its backend,
// its delivery queue and its converter state.
package proctap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/observability"

	"github.com/xaionaro-go/proctap/pkg/proctap/chunkqueue"
	"github.com/xaionaro-go/proctap/pkg/proctap/converter"
	"github.com/xaionaro-go/proctap/pkg/proctap/registry"
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

// DefaultQueueCapacity is the size of the delivery queue in chunks.
// Backends produce a chunk roughly every 10ms, so a few slots keep the
// steady-state latency around one period while absorbing short consumer
// stalls.
const DefaultQueueCapacity = 4

// Session binds one capture backend to one target process and owns the
// capture lifecycle. See the State documentation for the lifecycle
// phases.
type Session struct {
	backend types.Backend
	target  types.Target
	queue   *chunkqueue.Queue
	conv    *converter.Converter

	locker       sync.Mutex
	state        State
	failure      error
	nativeFormat types.Format
	outputFormat types.Format

	chunksDelivered atomic.Uint64
	chunksConverted atomic.Uint64
	bytesDelivered  atomic.Uint64
}

var (
	lastSuccessfulBackendFactory       registry.BackendFactory
	lastSuccessfulBackendFactoryLocker sync.Mutex
)

func getLastSuccessfulBackendFactory() registry.BackendFactory {
	lastSuccessfulBackendFactoryLocker.Lock()
	defer lastSuccessfulBackendFactoryLocker.Unlock()
	return lastSuccessfulBackendFactory
}

func setLastSuccessfulBackendFactory(factory registry.BackendFactory) {
	lastSuccessfulBackendFactoryLocker.Lock()
	defer lastSuccessfulBackendFactoryLocker.Unlock()
	lastSuccessfulBackendFactory = factory
}

// Open selects a capture backend from the registry, binds it to the
// target process and returns a Session in the Idle state. A zero
// outputFormat requests types.DefaultFormat.
func Open(
	ctx context.Context,
	target types.Target,
	outputFormat types.Format,
) (_ *Session, _err error) {
	logger.Tracef(ctx, "Open(%s)", target)
	defer func() { logger.Tracef(ctx, "/Open(%s): %v", target, _err) }()

	if factory := getLastSuccessfulBackendFactory(); factory != nil {
		session, err := openWithFactory(ctx, factory, target, outputFormat)
		if err == nil {
			return session, nil
		}
		logger.Debugf(ctx, "the last successful factory %T failed: %v", factory, err)
	}

	var mErr *multierror.Error
	for _, factory := range registry.BackendFactories() {
		session, err := openWithFactory(ctx, factory, target, outputFormat)
		logger.Debugf(ctx, "opening a capture via %T result is %v", factory, err)
		if err != nil {
			mErr = multierror.Append(mErr, err)
			continue
		}
		setLastSuccessfulBackendFactory(factory)
		return session, nil
	}

	if mErr == nil {
		return nil, fmt.Errorf("%w: no capture backend is registered for this platform",
			types.ErrBackendUnavailable)
	}
	return nil, fmt.Errorf("unable to open a capture of %s: %w", target, mErr.ErrorOrNil())
}

func openWithFactory(
	ctx context.Context,
	factory registry.BackendFactory,
	target types.Target,
	outputFormat types.Format,
) (*Session, error) {
	backend, err := factory.NewBackend()
	if err != nil {
		return nil, fmt.Errorf("unable to initialize %T: %w", factory, err)
	}
	session, err := OpenWithBackend(ctx, backend, target, outputFormat)
	if err != nil {
		if closeErr := backend.Close(); closeErr != nil {
			logger.Debugf(ctx, "unable to close %T: %v", backend, closeErr)
		}
		return nil, err
	}
	return session, nil
}

// OpenWithBackend binds a specific backend instead of selecting one
// from the registry. If the open fails, the backend is left to the
// caller (it is not closed).
func OpenWithBackend(
	ctx context.Context,
	backend types.Backend,
	target types.Target,
	outputFormat types.Format,
) (_ *Session, _err error) {
	logger.Tracef(ctx, "OpenWithBackend(%T, %s)", backend, target)
	defer func() { logger.Tracef(ctx, "/OpenWithBackend(%T, %s): %v", backend, target, _err) }()

	if outputFormat.IsZero() {
		outputFormat = types.DefaultFormat
	}
	if err := outputFormat.Validate(); err != nil {
		return nil, fmt.Errorf("unable to serve the requested output format: %w", err)
	}

	nativeFormat, err := backend.Open(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("unable to open %T for %s: %w", backend, target, err)
	}

	return &Session{
		backend:      backend,
		target:       target,
		queue:        chunkqueue.NewQueue(nativeFormat, DefaultQueueCapacity),
		conv:         converter.NewConverter(),
		state:        StateIdle,
		nativeFormat: nativeFormat,
		outputFormat: outputFormat,
	}, nil
}

// Start begins the capture. Valid only once, in the Idle state; on
// failure the session ends up in the Error state.
func (s *Session) Start(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Start")
	defer func() { logger.Tracef(ctx, "/Start: %v", _err) }()

	s.locker.Lock()
	defer s.locker.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("%w: cannot start in the %s state",
			types.ErrInvalidStateTransition, s.state)
	}
	s.state = StateStarting

	err := s.backend.Start(ctx, types.Callbacks{
		OnData: s.queue.Push,
		OnError: func(err error) {
			s.fail(ctx, err)
		},
	})
	if err != nil {
		s.state = StateError
		s.failure = fmt.Errorf("unable to start the capture: %w", err)
		return s.failure
	}

	s.state = StateCapturing
	return nil
}

// fail moves the session into the Error state. The first failure wins.
// The queue is closed so that waiting readers wake up promptly; the
// backend is stopped asynchronously, because a backend may report a
// failure from inside its own delivery path, where a synchronous Stop
// would wait for itself.
func (s *Session) fail(ctx context.Context, err error) {
	s.locker.Lock()
	if s.state == StateStopping || s.state.IsTerminal() {
		s.locker.Unlock()
		return
	}
	s.state = StateError
	s.failure = err
	s.locker.Unlock()

	s.queue.Close()
	observability.Go(ctx, func(ctx context.Context) {
		if stopErr := s.backend.Stop(ctx); stopErr != nil {
			logger.Debugf(ctx, "unable to stop %T after a failure: %v", s.backend, stopErr)
		}
	})
	logger.Errorf(ctx, "the capture session failed: %v", err)
}

// Read returns the next chunk, converted to the output format when it
// differs from the native one. It waits for up to `timeout` (forever if
// non-positive) and returns (nil, nil) when nothing arrived in time.
// In the Error state it returns the failure; after Stop it returns
// ErrClosed.
func (s *Session) Read(
	ctx context.Context,
	timeout time.Duration,
) (*types.Chunk, error) {
	s.locker.Lock()
	state := s.state
	failure := s.failure
	outputFormat := s.outputFormat
	s.locker.Unlock()

	switch state {
	case StateCapturing, StateStopping:
	case StateError:
		return nil, failure
	case StateStopped:
		return nil, fmt.Errorf("%w: the session is stopped", types.ErrClosed)
	default:
		return nil, fmt.Errorf("%w: cannot read in the %s state",
			types.ErrInvalidStateTransition, state)
	}

	chunk, err := s.queue.Pop(ctx, timeout)
	switch {
	case err == nil:
	case errors.Is(err, types.ErrClosed):
		if failure := s.Err(); failure != nil {
			return nil, failure
		}
		return nil, fmt.Errorf("%w: the session is stopped", types.ErrClosed)
	default:
		return nil, err
	}
	if chunk == nil {
		return nil, nil
	}
	return s.deliver(chunk, outputFormat)
}

func (s *Session) deliver(
	chunk *types.Chunk,
	outputFormat types.Format,
) (*types.Chunk, error) {
	if chunk.Format != outputFormat {
		converted, err := s.conv.Convert(*chunk, outputFormat)
		if err != nil {
			return nil, fmt.Errorf("unable to convert a captured chunk: %w", err)
		}
		chunk = &converted
		s.chunksConverted.Add(1)
	}
	s.chunksDelivered.Add(1)
	s.bytesDelivered.Add(uint64(len(chunk.Data)))
	return chunk, nil
}

// Chunks returns a channel fed with the converted chunks. The channel
// closes when the capture stops, fails or ctx is canceled; after it
// closed, Err tells whether the stream ended with a failure. Call it
// after Start.
func (s *Session) Chunks(ctx context.Context) <-chan types.Chunk {
	ch := make(chan types.Chunk, 1)
	observability.Go(ctx, func(ctx context.Context) {
		defer close(ch)
		for {
			chunk, err := s.Read(ctx, 0)
			if err != nil {
				if !errors.Is(err, types.ErrClosed) && !errors.Is(err, context.Canceled) {
					logger.Debugf(ctx, "the chunk stream ends: %v", err)
				}
				return
			}
			if chunk == nil {
				continue
			}
			select {
			case ch <- *chunk:
			case <-ctx.Done():
				return
			}
		}
	})
	return ch
}

// Stop ends the capture. It returns only after the backend quiesced, so
// no chunk is pushed after Stop returns; any chunks still undelivered
// are discarded. Stopping an already stopped or failed session is a
// no-op.
func (s *Session) Stop(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Stop")
	defer func() { logger.Tracef(ctx, "/Stop: %v", _err) }()

	s.locker.Lock()
	switch s.state {
	case StateCapturing:
	case StateStopping, StateStopped, StateError:
		s.locker.Unlock()
		return nil
	default:
		state := s.state
		s.locker.Unlock()
		return fmt.Errorf("%w: cannot stop in the %s state",
			types.ErrInvalidStateTransition, state)
	}
	s.state = StateStopping
	s.locker.Unlock()

	err := s.backend.Stop(ctx)
	s.queue.Close()

	s.locker.Lock()
	s.state = StateStopped
	s.locker.Unlock()
	if err != nil {
		return fmt.Errorf("unable to stop the capture: %w", err)
	}
	return nil
}

// Close releases the backend. It stops the capture first when needed,
// so a deferred Close is always safe.
func (s *Session) Close() (_err error) {
	ctx := context.TODO()
	logger.Tracef(ctx, "Close")
	defer func() { logger.Tracef(ctx, "/Close: %v", _err) }()

	var mErr *multierror.Error
	if s.State() == StateCapturing {
		if err := s.Stop(ctx); err != nil {
			mErr = multierror.Append(mErr, err)
		}
	}
	s.queue.Close()

	if err := s.backend.Close(); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("unable to close %T: %w", s.backend, err))
	}

	s.locker.Lock()
	if s.state != StateError {
		s.state = StateStopped
	}
	s.locker.Unlock()
	return mErr.ErrorOrNil()
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.state
}

// Err returns the failure that moved the session into the Error state,
// or nil.
func (s *Session) Err() error {
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.state != StateError {
		return nil
	}
	return s.failure
}

// Target returns the process this session captures.
func (s *Session) Target() types.Target {
	return s.target
}

// NativeFormat returns the format the backend captures in.
func (s *Session) NativeFormat() types.Format {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.nativeFormat
}

// OutputFormat returns the format of the delivered chunks.
func (s *Session) OutputFormat() types.Format {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.outputFormat
}

// SetOutputFormat changes the format of the delivered chunks. Allowed
// only before Start. A zero format requests types.DefaultFormat.
func (s *Session) SetOutputFormat(format types.Format) error {
	if format.IsZero() {
		format = types.DefaultFormat
	}
	if err := format.Validate(); err != nil {
		return fmt.Errorf("unable to serve the requested output format: %w", err)
	}

	s.locker.Lock()
	defer s.locker.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("%w: the output format can only change in the %s state, not %s",
			types.ErrInvalidStateTransition, StateIdle, s.state)
	}
	s.outputFormat = format
	return nil
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		ChunksCaptured:  s.queue.Pushed(),
		ChunksDropped:   s.queue.Dropped(),
		ChunksDelivered: s.chunksDelivered.Load(),
		ChunksConverted: s.chunksConverted.Load(),
		BytesDelivered:  s.bytesDelivered.Load(),
	}
}
