package pulseaudio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

func TestChunkWriter(t *testing.T) {
	t.Run("CutsIntoPeriods", func(t *testing.T) {
		var chunks [][]byte
		w := &chunkWriter{
			period: 8,
			callbacks: types.Callbacks{
				OnData: func(data []byte, _ time.Time) {
					chunks = append(chunks, data)
				},
			},
		}

		input := make([]byte, 30)
		for i := range input {
			input[i] = byte(i)
		}

		// deliver in uneven fragments, as the server does
		for _, frag := range [][]byte{input[:5], input[5:6], input[6:19], input[19:]} {
			n, err := w.Write(frag)
			require.NoError(t, err)
			require.Equal(t, len(frag), n)
		}

		require.Len(t, chunks, 3)
		for i, chunk := range chunks {
			assert.Equal(t, input[i*8:(i+1)*8], chunk)
		}
		// the tail stays staged until enough bytes arrive
		assert.Equal(t, input[24:], w.staging)
	})

	t.Run("DropsDataAfterStop", func(t *testing.T) {
		calls := 0
		w := &chunkWriter{
			period: 4,
			callbacks: types.Callbacks{
				OnData: func([]byte, time.Time) { calls++ },
			},
		}
		w.stopped.Store(true)
		n, err := w.Write(make([]byte, 64))
		require.NoError(t, err)
		assert.Equal(t, 64, n)
		assert.Zero(t, calls)
	})
}
