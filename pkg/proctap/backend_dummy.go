package proctap

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/xaionaro-go/observability"

	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

const (
	dummyDefaultFrequency = 440.0
	dummyDefaultPeriod    = 10 * time.Millisecond
	dummyAmplitude        = 0.5
)

// BackendDummy generates a sine wave instead of capturing anything. It
// ignores the target process. Useful in tests and as an explicit escape
// hatch when no real backend is usable; it is deliberately not
// registered in the registry.
type BackendDummy struct {
	// Format is the native format to generate in. Zero means
	// types.DefaultFormat.
	Format types.Format
	// SineFrequency is in Hz. Zero means 440.
	SineFrequency float64
	// Period is the cadence of the generated chunks. Zero means 10ms.
	Period time.Duration

	locker sync.Mutex
	opened bool
	stopCh chan struct{}
	wg     sync.WaitGroup
	phase  float64
}

var _ types.Backend = (*BackendDummy)(nil)

func (b *BackendDummy) nativeFormat() types.Format {
	if b.Format.IsZero() {
		return types.DefaultFormat
	}
	return b.Format
}

func (b *BackendDummy) period() time.Duration {
	if b.Period <= 0 {
		return dummyDefaultPeriod
	}
	return b.Period
}

func (b *BackendDummy) frequency() float64 {
	if b.SineFrequency <= 0 {
		return dummyDefaultFrequency
	}
	return b.SineFrequency
}

func (b *BackendDummy) Open(
	ctx context.Context,
	target types.Target,
) (types.Format, error) {
	b.locker.Lock()
	defer b.locker.Unlock()
	if b.opened {
		return types.Format{}, fmt.Errorf("%w: the backend is already open",
			types.ErrInvalidStateTransition)
	}
	format := b.nativeFormat()
	if err := format.Validate(); err != nil {
		return types.Format{}, err
	}
	b.opened = true
	return format, nil
}

func (b *BackendDummy) Start(
	ctx context.Context,
	callbacks types.Callbacks,
) error {
	b.locker.Lock()
	defer b.locker.Unlock()
	if !b.opened {
		return fmt.Errorf("%w: the backend is not open", types.ErrInvalidStateTransition)
	}
	if b.stopCh != nil {
		return fmt.Errorf("%w: the generator is already started", types.ErrInvalidStateTransition)
	}

	stopCh := make(chan struct{})
	b.stopCh = stopCh
	b.wg.Add(1)
	observability.Go(ctx, func(ctx context.Context) {
		defer b.wg.Done()
		b.generate(ctx, callbacks, stopCh)
	})
	return nil
}

func (b *BackendDummy) generate(
	ctx context.Context,
	callbacks types.Callbacks,
	stopCh chan struct{},
) {
	format := b.nativeFormat()
	period := b.period()

	framesPerChunk := int(uint64(format.SampleRate) * uint64(period) / uint64(time.Second))
	if framesPerChunk < 1 {
		framesPerChunk = 1
	}
	phaseStep := 2 * math.Pi * b.frequency() / float64(format.SampleRate)

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		callbacks.OnData(b.renderChunk(format, framesPerChunk, phaseStep), time.Now())
	}
}

// renderChunk produces a fresh buffer every time: the receiver takes
// ownership of the delivered data.
func (b *BackendDummy) renderChunk(
	format types.Format,
	frames int,
	phaseStep float64,
) []byte {
	sampleSize := int(format.SampleFormat.Size())
	data := make([]byte, frames*int(format.FrameSize()))
	idx := 0
	for frame := 0; frame < frames; frame++ {
		v := dummyAmplitude * math.Sin(b.phase)
		b.phase += phaseStep
		if b.phase > 2*math.Pi {
			b.phase -= 2 * math.Pi
		}
		for ch := types.Channel(0); ch < format.Channels; ch++ {
			switch format.SampleFormat {
			case types.SampleFormatS16LE:
				binary.LittleEndian.PutUint16(data[idx:], uint16(int16(v*32767)))
			case types.SampleFormatS24LE:
				iv := int32(v * 8388607)
				data[idx] = byte(iv)
				data[idx+1] = byte(iv >> 8)
				data[idx+2] = byte(iv >> 16)
			case types.SampleFormatF32LE:
				binary.LittleEndian.PutUint32(data[idx:], math.Float32bits(float32(v)))
			}
			idx += sampleSize
		}
	}
	return data
}

// Stop returns only after the generator goroutine exited: no OnData
// call is in flight afterwards.
func (b *BackendDummy) Stop(ctx context.Context) error {
	b.locker.Lock()
	defer b.locker.Unlock()
	if b.stopCh == nil {
		return nil
	}
	close(b.stopCh)
	b.stopCh = nil
	b.wg.Wait()
	return nil
}

func (b *BackendDummy) Close() error {
	if err := b.Stop(context.TODO()); err != nil {
		return err
	}
	b.locker.Lock()
	defer b.locker.Unlock()
	b.opened = false
	return nil
}
