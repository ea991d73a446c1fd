package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleFormat(t *testing.T) {
	t.Run("Size", func(t *testing.T) {
		assert.Equal(t, uint(2), SampleFormatS16LE.Size())
		assert.Equal(t, uint(3), SampleFormatS24LE.Size())
		assert.Equal(t, uint(4), SampleFormatF32LE.Size())
		assert.Equal(t, uint(0), SampleFormatUndefined.Size())
	})

	t.Run("Parse", func(t *testing.T) {
		for f := SampleFormatUndefined + 1; f < EndOfSampleFormat; f++ {
			parsed, err := ParseSampleFormat(f.String())
			require.NoError(t, err)
			assert.Equal(t, f, parsed)
		}

		parsed, err := ParseSampleFormat("S24LE")
		require.NoError(t, err)
		assert.Equal(t, SampleFormatS24LE, parsed)

		_, err = ParseSampleFormat("mp3")
		require.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}

func TestFormat(t *testing.T) {
	f := Format{
		SampleRate:   48000,
		Channels:     2,
		SampleFormat: SampleFormatF32LE,
	}

	t.Run("FrameSize", func(t *testing.T) {
		assert.Equal(t, uint(8), f.FrameSize())
		assert.Equal(t, uint(384000), f.BytesPerSecond())
	})

	t.Run("Validate", func(t *testing.T) {
		require.NoError(t, f.Validate())
		assert.ErrorIs(t, Format{}.Validate(), ErrUnsupportedFormat)
		assert.ErrorIs(t, Format{SampleRate: 48000, Channels: 2}.Validate(), ErrUnsupportedFormat)
		assert.ErrorIs(t, Format{SampleRate: 48000, SampleFormat: SampleFormatS16LE}.Validate(), ErrUnsupportedFormat)
	})

	t.Run("String", func(t *testing.T) {
		assert.Equal(t, "48000Hz/2ch/f32le", f.String())
	})
}
