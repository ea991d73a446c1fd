package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk(t *testing.T) {
	chunk := Chunk{
		Data: make([]byte, 960*8),
		Format: Format{
			SampleRate:   48000,
			Channels:     2,
			SampleFormat: SampleFormatF32LE,
		},
	}

	t.Run("Frames", func(t *testing.T) {
		assert.Equal(t, uint(960), chunk.Frames())
	})

	t.Run("Duration", func(t *testing.T) {
		assert.Equal(t, 20*time.Millisecond, chunk.Duration())
	})

	t.Run("Validate", func(t *testing.T) {
		require.NoError(t, chunk.Validate())

		torn := chunk
		torn.Data = torn.Data[:len(torn.Data)-3]
		assert.ErrorIs(t, torn.Validate(), ErrConversionFailure)
	})
}
