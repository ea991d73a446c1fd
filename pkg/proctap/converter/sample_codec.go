package converter

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

type sampleDecodeFunc func(p []byte) float64

type sampleEncodeFunc func(p []byte, v float64)

// sampleDecoder returns a function converting one encoded sample into
// a normalized float64 in [-1; 1].
func sampleDecoder(f types.SampleFormat) (sampleDecodeFunc, error) {
	switch f {
	case types.SampleFormatS16LE:
		return func(p []byte) float64 {
			return float64(int16(binary.LittleEndian.Uint16(p))) / 32768
		}, nil
	case types.SampleFormatS24LE:
		return func(p []byte) float64 {
			val := int32(uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16)
			if val&0x800000 != 0 {
				val |= -16777216
			}
			return float64(val) / 8388608
		}, nil
	case types.SampleFormatF32LE:
		return func(p []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))
		}, nil
	}
	return nil, fmt.Errorf("%w: no decoder for sample format %s", types.ErrUnsupportedFormat, f)
}

// sampleEncoder returns a function encoding a normalized float64 into
// one sample. Integer formats clamp out-of-range values instead of
// wrapping around.
func sampleEncoder(f types.SampleFormat) (sampleEncodeFunc, error) {
	switch f {
	case types.SampleFormatS16LE:
		return func(p []byte, v float64) {
			val := int32(math.Round(v * 32768))
			if val > 32767 {
				val = 32767
			}
			if val < -32768 {
				val = -32768
			}
			binary.LittleEndian.PutUint16(p, uint16(int16(val)))
		}, nil
	case types.SampleFormatS24LE:
		return func(p []byte, v float64) {
			val := int32(math.Round(v * 8388608))
			if val > 8388607 {
				val = 8388607
			}
			if val < -8388608 {
				val = -8388608
			}
			p[0] = byte(val)
			p[1] = byte(val >> 8)
			p[2] = byte(val >> 16)
		}, nil
	case types.SampleFormatF32LE:
		return func(p []byte, v float64) {
			binary.LittleEndian.PutUint32(p, math.Float32bits(float32(v)))
		}, nil
	}
	return nil, fmt.Errorf("%w: no encoder for sample format %s", types.ErrUnsupportedFormat, f)
}
