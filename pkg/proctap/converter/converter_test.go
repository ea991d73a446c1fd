package converter

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

func s16Bytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func f32Bytes(samples []float64) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(s)))
	}
	return buf
}

func f32Samples(data []byte) []float64 {
	samples := make([]float64, len(data)/4)
	for i := range samples {
		samples[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return samples
}

func chunkOf(f types.Format, data []byte) types.Chunk {
	return types.Chunk{
		Data:   data,
		Format: f,
	}
}

func TestConverter(t *testing.T) {
	s16Mono := types.Format{SampleRate: 48000, Channels: 1, SampleFormat: types.SampleFormatS16LE}
	s24Mono := types.Format{SampleRate: 48000, Channels: 1, SampleFormat: types.SampleFormatS24LE}
	f32Mono := types.Format{SampleRate: 48000, Channels: 1, SampleFormat: types.SampleFormatF32LE}
	f32Stereo := types.Format{SampleRate: 48000, Channels: 2, SampleFormat: types.SampleFormatF32LE}

	samplesS16 := []int16{0, 1, -1, 1000, -1000, 32767, -32768, 12345, -23456}

	t.Run("Identity", func(t *testing.T) {
		c := NewConverter()
		in := chunkOf(s16Mono, s16Bytes(samplesS16))
		out, err := c.Convert(in, s16Mono)
		require.NoError(t, err)
		assert.Equal(t, in.Data, out.Data)
		assert.Equal(t, s16Mono, out.Format)
	})

	t.Run("RoundTrip_S16_via_F32", func(t *testing.T) {
		c := NewConverter()
		in := chunkOf(s16Mono, s16Bytes(samplesS16))
		mid, err := c.Convert(in, f32Mono)
		require.NoError(t, err)
		require.Len(t, mid.Data, len(samplesS16)*4)

		back, err := NewConverter().Convert(mid, s16Mono)
		require.NoError(t, err)
		assert.Equal(t, in.Data, back.Data, spew.Sdump(mid))
	})

	t.Run("RoundTrip_S16_via_S24", func(t *testing.T) {
		in := chunkOf(s16Mono, s16Bytes(samplesS16))
		mid, err := NewConverter().Convert(in, s24Mono)
		require.NoError(t, err)
		back, err := NewConverter().Convert(mid, s16Mono)
		require.NoError(t, err)
		assert.Equal(t, in.Data, back.Data)
	})

	t.Run("RoundTrip_S24_via_F32", func(t *testing.T) {
		data := []byte{
			0x00, 0x00, 0x00, // 0
			0x01, 0x00, 0x00, // 1
			0xFF, 0xFF, 0xFF, // -1
			0xFF, 0xFF, 0x7F, // max
			0x00, 0x00, 0x80, // min
			0x39, 0x30, 0x00, // 12345
		}
		in := chunkOf(s24Mono, data)
		mid, err := NewConverter().Convert(in, f32Mono)
		require.NoError(t, err)
		back, err := NewConverter().Convert(mid, s24Mono)
		require.NoError(t, err)
		assert.Equal(t, in.Data, back.Data)
	})

	t.Run("MonoStereoMono_IsExact", func(t *testing.T) {
		s16Stereo := types.Format{SampleRate: 48000, Channels: 2, SampleFormat: types.SampleFormatS16LE}
		in := chunkOf(s16Mono, s16Bytes(samplesS16))

		wide, err := NewConverter().Convert(in, s16Stereo)
		require.NoError(t, err)
		require.Len(t, wide.Data, len(in.Data)*2)
		// both channels carry the source sample
		for i := range samplesS16 {
			l := int16(binary.LittleEndian.Uint16(wide.Data[i*4:]))
			r := int16(binary.LittleEndian.Uint16(wide.Data[i*4+2:]))
			require.Equal(t, samplesS16[i], l)
			require.Equal(t, samplesS16[i], r)
		}

		narrow, err := NewConverter().Convert(wide, s16Mono)
		require.NoError(t, err)
		assert.Equal(t, in.Data, narrow.Data)
	})

	t.Run("Downmix_5_1_to_Stereo", func(t *testing.T) {
		f32Surround := types.Format{SampleRate: 48000, Channels: 6, SampleFormat: types.SampleFormatF32LE}
		// FL, FR, FC, LFE, BL, BR
		in := chunkOf(f32Surround, f32Bytes([]float64{0.25, 0.5, 0.75, 1.0, 0.25, -0.5}))

		out, err := NewConverter().Convert(in, f32Stereo)
		require.NoError(t, err)
		samples := f32Samples(out.Data)
		require.Len(t, samples, 2)
		assert.InDelta(t, (0.25+0.75+0.25)/3, samples[0], 1e-6)
		assert.InDelta(t, (0.5+0.75-0.5)/3, samples[1], 1e-6)
	})

	t.Run("Upmix_Stereo_to_5_1", func(t *testing.T) {
		f32Surround := types.Format{SampleRate: 48000, Channels: 6, SampleFormat: types.SampleFormatF32LE}
		in := chunkOf(f32Stereo, f32Bytes([]float64{0.25, -0.5}))

		out, err := NewConverter().Convert(in, f32Surround)
		require.NoError(t, err)
		samples := f32Samples(out.Data)
		require.Len(t, samples, 6)
		assert.InDelta(t, 0.25, samples[chanFrontLeft], 1e-6)
		assert.InDelta(t, -0.5, samples[chanFrontRight], 1e-6)
		assert.Zero(t, samples[chanFrontCenter])
		assert.Zero(t, samples[chanLFE])
		assert.Zero(t, samples[chanBackLeft])
		assert.Zero(t, samples[chanBackRight])
	})

	t.Run("ClampsOverRangeToIntegerFormats", func(t *testing.T) {
		in := chunkOf(f32Mono, f32Bytes([]float64{1.5, -1.5}))
		out, err := NewConverter().Convert(in, s16Mono)
		require.NoError(t, err)
		assert.Equal(t, int16(32767), int16(binary.LittleEndian.Uint16(out.Data)))
		assert.Equal(t, int16(-32768), int16(binary.LittleEndian.Uint16(out.Data[2:])))
	})

	t.Run("PreservesSeqAndTimestamp", func(t *testing.T) {
		capturedAt := time.Date(2026, 2, 3, 4, 5, 6, 7, time.UTC)
		in := chunkOf(s16Mono, s16Bytes(samplesS16))
		in.Seq = 42
		in.CapturedAt = capturedAt

		out, err := NewConverter().Convert(in, f32Stereo)
		require.NoError(t, err)
		assert.Equal(t, uint64(42), out.Seq)
		assert.Equal(t, capturedAt, out.CapturedAt)
	})

	t.Run("RecompilesPlanOnFormatChange", func(t *testing.T) {
		c := NewConverter()
		_, err := c.Convert(chunkOf(s16Mono, s16Bytes(samplesS16)), f32Stereo)
		require.NoError(t, err)
		out, err := c.Convert(chunkOf(f32Stereo, f32Bytes([]float64{0.5, 0.5})), s16Mono)
		require.NoError(t, err)
		assert.Len(t, out.Data, 2)
	})

	t.Run("EmptyChunk", func(t *testing.T) {
		out, err := NewConverter().Convert(chunkOf(s16Mono, nil), f32Stereo)
		require.NoError(t, err)
		assert.Empty(t, out.Data)
	})

	t.Run("Errors", func(t *testing.T) {
		c := NewConverter()

		// payload is not a whole number of frames
		_, err := c.Convert(chunkOf(s16Mono, []byte{1, 2, 3}), f32Mono)
		require.ErrorIs(t, err, types.ErrConversionFailure)

		// unmappable channel count
		quad := types.Format{SampleRate: 48000, Channels: 4, SampleFormat: types.SampleFormatF32LE}
		_, err = c.Convert(chunkOf(f32Stereo, f32Bytes([]float64{0, 0})), quad)
		require.ErrorIs(t, err, types.ErrUnsupportedFormat)

		// unknown sample format
		_, err = c.Convert(chunkOf(f32Stereo, f32Bytes([]float64{0, 0})), types.Format{SampleRate: 48000, Channels: 2})
		require.ErrorIs(t, err, types.ErrUnsupportedFormat)
	})
}
