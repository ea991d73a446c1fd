package converter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

func sineF32Chunk(rate types.SampleRate, freqHz float64, frames int) types.Chunk {
	samples := make([]float64, frames)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * freqHz * float64(i) / float64(rate))
	}
	return chunkOf(
		types.Format{SampleRate: rate, Channels: 1, SampleFormat: types.SampleFormatF32LE},
		f32Bytes(samples),
	)
}

func TestResample(t *testing.T) {
	cd := types.Format{SampleRate: 44100, Channels: 1, SampleFormat: types.SampleFormatF32LE}
	dat := types.Format{SampleRate: 48000, Channels: 1, SampleFormat: types.SampleFormatF32LE}

	t.Run("LengthLaw", func(t *testing.T) {
		for _, frames := range []int{147, 441, 1000, 4410} {
			in := sineF32Chunk(44100, 440, frames)
			out, err := NewConverter().Convert(in, dat)
			require.NoError(t, err)

			wantFrames := int(math.Round(float64(frames) * 48000 / 44100))
			assert.Equal(t, wantFrames, int(out.Frames()), "for %d input frames", frames)

			back, err := NewConverter().Convert(out, cd)
			require.NoError(t, err)
			assert.InDelta(t, frames, int(back.Frames()), 1, "for %d input frames", frames)
		}
	})

	t.Run("NoDriftAcrossChunks", func(t *testing.T) {
		c := NewConverter()
		totalIn, totalOut := 0, 0
		for i := 0; i < 50; i++ {
			in := sineF32Chunk(44100, 440, 100)
			out, err := c.Convert(in, dat)
			require.NoError(t, err)
			totalIn += 100
			totalOut += int(out.Frames())
			require.Equal(t,
				int(math.Round(float64(totalIn)*48000/44100)),
				totalOut,
				"after %d input frames", totalIn,
			)
		}
	})

	t.Run("UpsampledSineStaysASine", func(t *testing.T) {
		const freq = 1000.0
		in := sineF32Chunk(44100, freq, 4410)
		out, err := NewConverter().Convert(in, dat)
		require.NoError(t, err)

		samples := f32Samples(out.Data)
		require.Len(t, samples, 4800)
		// skip the warm-up of the interpolation window and the clamped
		// tail of the final window
		for k := 16; k < len(samples)-16; k++ {
			want := math.Sin(2 * math.Pi * freq * float64(k) / 48000)
			require.InDelta(t, want, samples[k], 0.01, "at sample %d", k)
		}
	})

	t.Run("DownsampleKeepsZeroesSilent", func(t *testing.T) {
		in := chunkOf(dat, f32Bytes(make([]float64, 4800)))
		out, err := NewConverter().Convert(in, cd)
		require.NoError(t, err)
		for _, v := range f32Samples(out.Data) {
			require.Zero(t, v)
		}
	})

	t.Run("ExtremeDecimation", func(t *testing.T) {
		tel := types.Format{SampleRate: 8000, Channels: 1, SampleFormat: types.SampleFormatF32LE}
		c := NewConverter()
		totalOut := 0
		// feed deliberately tiny chunks to stress the carried window
		for i := 0; i < 100; i++ {
			in := sineF32Chunk(96000, 440, 2)
			out, err := c.Convert(in, tel)
			require.NoError(t, err)
			totalOut += int(out.Frames())
		}
		assert.InDelta(t, 200*8000/96000, totalOut, 1)
	})
}
