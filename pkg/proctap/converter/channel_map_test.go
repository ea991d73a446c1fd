package converter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

func TestFrameMapper(t *testing.T) {
	t.Run("SupportedPairs", func(t *testing.T) {
		supported := []types.Channel{1, 2, 6}
		for _, from := range supported {
			for _, to := range supported {
				mapFrame, err := frameMapper(from, to)
				require.NoError(t, err, "%d -> %d", from, to)
				if from == to {
					assert.Nil(t, mapFrame)
				} else {
					assert.NotNil(t, mapFrame)
				}
			}
		}
	})

	t.Run("SurroundToMono_DropsLFE", func(t *testing.T) {
		mapFrame, err := frameMapper(6, 1)
		require.NoError(t, err)
		dst := make([]float64, 1)
		mapFrame(dst, []float64{0.1, 0.2, 0.3, 100.0, 0.4, 0.5})
		assert.InDelta(t, (0.1+0.2+0.3+0.4+0.5)/5, dst[0], 1e-9)
	})

	t.Run("MonoBroadcast", func(t *testing.T) {
		mapFrame, err := frameMapper(1, 6)
		require.NoError(t, err)
		dst := make([]float64, 6)
		mapFrame(dst, []float64{0.75})
		for _, v := range dst {
			assert.Equal(t, 0.75, v)
		}
	})

	t.Run("RejectsUnsupported", func(t *testing.T) {
		for _, channels := range []types.Channel{0, 3, 4, 5, 7, 8} {
			_, err := frameMapper(channels, 2)
			require.ErrorIs(t, err, types.ErrUnsupportedFormat)
			_, err = frameMapper(2, channels)
			require.ErrorIs(t, err, types.ErrUnsupportedFormat)
		}
	})
}
