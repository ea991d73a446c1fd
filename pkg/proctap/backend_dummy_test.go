package proctap

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

type chunkCollector struct {
	locker sync.Mutex
	chunks [][]byte
}

func (c *chunkCollector) callbacks() types.Callbacks {
	return types.Callbacks{
		OnData: func(data []byte, capturedAt time.Time) {
			c.locker.Lock()
			defer c.locker.Unlock()
			c.chunks = append(c.chunks, data)
		},
	}
}

func (c *chunkCollector) count() int {
	c.locker.Lock()
	defer c.locker.Unlock()
	return len(c.chunks)
}

func (c *chunkCollector) chunk(i int) []byte {
	c.locker.Lock()
	defer c.locker.Unlock()
	return c.chunks[i]
}

func TestBackendDummy(t *testing.T) {
	ctx := context.Background()

	t.Run("DefaultsAndCadence", func(t *testing.T) {
		backend := &BackendDummy{Period: 5 * time.Millisecond}
		format, err := backend.Open(ctx, types.Target{})
		require.NoError(t, err)
		require.Equal(t, types.DefaultFormat, format)

		collector := &chunkCollector{}
		require.NoError(t, backend.Start(ctx, collector.callbacks()))
		require.Eventually(t, func() bool { return collector.count() >= 3 },
			time.Second, time.Millisecond)
		require.NoError(t, backend.Stop(ctx))

		// 5ms at 48000 Hz is 240 frames of 8 bytes each.
		require.Len(t, collector.chunk(0), 240*8)
		require.NoError(t, backend.Close())
	})

	t.Run("S16Amplitude", func(t *testing.T) {
		backend := &BackendDummy{
			Format: types.Format{SampleRate: 8000, Channels: 1, SampleFormat: types.SampleFormatS16LE},
			Period: 5 * time.Millisecond,
		}
		_, err := backend.Open(ctx, types.Target{})
		require.NoError(t, err)

		collector := &chunkCollector{}
		require.NoError(t, backend.Start(ctx, collector.callbacks()))
		require.Eventually(t, func() bool { return collector.count() >= 1 },
			time.Second, time.Millisecond)
		require.NoError(t, backend.Stop(ctx))

		data := collector.chunk(0)
		require.Len(t, data, 40*2)
		for i := 0; i < len(data); i += 2 {
			sample := int16(binary.LittleEndian.Uint16(data[i:]))
			require.LessOrEqual(t, sample, int16(17000))
			require.GreaterOrEqual(t, sample, int16(-17000))
		}
		require.NoError(t, backend.Close())
	})

	t.Run("StopQuiesces", func(t *testing.T) {
		backend := &BackendDummy{Period: time.Millisecond}
		_, err := backend.Open(ctx, types.Target{})
		require.NoError(t, err)

		collector := &chunkCollector{}
		require.NoError(t, backend.Start(ctx, collector.callbacks()))
		require.Eventually(t, func() bool { return collector.count() >= 1 },
			time.Second, time.Millisecond)
		require.NoError(t, backend.Stop(ctx))

		count := collector.count()
		time.Sleep(10 * time.Millisecond)
		require.Equal(t, count, collector.count())

		require.NoError(t, backend.Stop(ctx), "Stop must be idempotent")
		require.NoError(t, backend.Close())
	})

	t.Run("StartBeforeOpen", func(t *testing.T) {
		backend := &BackendDummy{}
		err := backend.Start(ctx, types.Callbacks{})
		require.ErrorIs(t, err, types.ErrInvalidStateTransition)
	})

	t.Run("RejectsBrokenNativeFormat", func(t *testing.T) {
		backend := &BackendDummy{Format: types.Format{SampleRate: 48000}}
		_, err := backend.Open(ctx, types.Target{})
		require.ErrorIs(t, err, types.ErrUnsupportedFormat)
	})
}
