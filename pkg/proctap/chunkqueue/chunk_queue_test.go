package chunkqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

var testFormat = types.Format{
	SampleRate:   48000,
	Channels:     2,
	SampleFormat: types.SampleFormatF32LE,
}

func TestQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("OrderAndSeq", func(t *testing.T) {
		q := NewQueue(testFormat, 8)
		for i := 0; i < 5; i++ {
			q.Push([]byte{byte(i)}, time.Now())
		}
		require.Equal(t, 5, q.Len())

		for i := 0; i < 5; i++ {
			chunk, err := q.Pop(ctx, time.Second)
			require.NoError(t, err)
			require.NotNil(t, chunk)
			assert.Equal(t, uint64(i), chunk.Seq)
			assert.Equal(t, []byte{byte(i)}, chunk.Data)
			assert.Equal(t, testFormat, chunk.Format)
		}
		assert.Equal(t, 0, q.Len())
		assert.Equal(t, uint64(0), q.Dropped())
	})

	t.Run("OverflowDropsOldest", func(t *testing.T) {
		q := NewQueue(testFormat, 4)
		for i := 0; i < 6; i++ {
			q.Push([]byte{byte(i)}, time.Now())
		}
		assert.Equal(t, 4, q.Len())
		assert.Equal(t, uint64(2), q.Dropped())
		assert.Equal(t, uint64(6), q.Pushed())

		// the two oldest chunks are gone, the survivors keep their
		// original sequence numbers, so the gap is observable:
		chunk, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, chunk)
		assert.Equal(t, uint64(2), chunk.Seq)
		assert.Equal(t, []byte{2}, chunk.Data)
	})

	t.Run("PopTimeout", func(t *testing.T) {
		q := NewQueue(testFormat, 4)
		start := time.Now()
		chunk, err := q.Pop(ctx, 50*time.Millisecond)
		require.NoError(t, err)
		assert.Nil(t, chunk)
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("PopWokenByPush", func(t *testing.T) {
		q := NewQueue(testFormat, 4)
		go func() {
			time.Sleep(20 * time.Millisecond)
			q.Push([]byte{42}, time.Now())
		}()
		chunk, err := q.Pop(ctx, 5*time.Second)
		require.NoError(t, err)
		require.NotNil(t, chunk)
		assert.Equal(t, []byte{42}, chunk.Data)
	})

	t.Run("CloseWakesPopAndFlushes", func(t *testing.T) {
		q := NewQueue(testFormat, 4)
		errCh := make(chan error, 1)
		go func() {
			_, err := q.Pop(ctx, 5*time.Second)
			errCh <- err
		}()
		time.Sleep(20 * time.Millisecond)
		q.Close()
		select {
		case err := <-errCh:
			require.ErrorIs(t, err, types.ErrClosed)
		case <-time.After(time.Second):
			t.Fatal("Pop was not woken up by Close")
		}

		// pending chunks are flushed and pushes are ignored after Close:
		q.Push([]byte{1}, time.Now())
		assert.Equal(t, 0, q.Len())
		_, err := q.Pop(ctx, 0)
		require.ErrorIs(t, err, types.ErrClosed)
	})

	t.Run("PopContextCancel", func(t *testing.T) {
		q := NewQueue(testFormat, 4)
		cancelCtx, cancelFn := context.WithCancel(ctx)
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancelFn()
		}()
		_, err := q.Pop(cancelCtx, 5*time.Second)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("ConcurrentProducer", func(t *testing.T) {
		q := NewQueue(testFormat, 16)
		const total = 1000
		doneCh := make(chan struct{})
		go func() {
			defer close(doneCh)
			for i := 0; i < total; i++ {
				q.Push([]byte{byte(i)}, time.Now())
				if i%100 == 0 {
					time.Sleep(time.Millisecond)
				}
			}
		}()

		var received uint64
		lastSeq := uint64(0)
		take := func(chunk *types.Chunk) {
			if received > 0 {
				require.Greater(t, chunk.Seq, lastSeq)
			}
			lastSeq = chunk.Seq
			received++
		}

		for {
			chunk, err := q.Pop(ctx, 100*time.Millisecond)
			require.NoError(t, err)
			if chunk != nil {
				take(chunk)
				continue
			}
			select {
			case <-doneCh:
			default:
				continue
			}
			// the producer finished, so an empty Pop is now final
			for {
				chunk, err := q.Pop(ctx, 10*time.Millisecond)
				require.NoError(t, err)
				if chunk == nil {
					break
				}
				take(chunk)
			}
			break
		}
		assert.Equal(t, uint64(total), received+q.Dropped())
	})
}
