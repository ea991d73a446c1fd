// Package planar converts between planar PCM (one contiguous plane per
// channel) and interleaved PCM (one frame at a time). Capture APIs that
// hand out non-interleaved buffers go through Interleave before the
// samples enter a Chunk.
package planar

import (
	"fmt"

	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

// Interleave rewrites planar input into interleaved output. Both
// buffers must have the same length, a whole number of frames.
func Interleave(channels types.Channel, sampleSize uint, output, input []byte) error {
	shortestMessageSize := int(channels) * int(sampleSize)
	if len(input) < shortestMessageSize {
		return fmt.Errorf("the provided input buffer is too short: %d < %d", len(input), shortestMessageSize)
	}
	if len(input)%shortestMessageSize != 0 {
		return fmt.Errorf("expected a message length that is a multiple of %d, but received %d", shortestMessageSize, len(input))
	}
	if len(input) != len(output) {
		return fmt.Errorf("the lengths of input and output are not equal: %d != %d", len(input), len(output))
	}

	samplesPerChan := len(input) / int(channels) / int(sampleSize)

	for ch := types.Channel(0); ch < channels; ch++ {
		inIdxOffset := int(ch) * samplesPerChan * int(sampleSize)
		outIdxOffset := int(sampleSize) * int(ch)
		for samplePos := 0; samplePos < samplesPerChan; samplePos++ {
			inIdxOffset2 := inIdxOffset + samplePos*int(sampleSize)
			outIdxOffset2 := outIdxOffset + samplePos*(int(sampleSize)*int(channels))
			for sampleByte := 0; sampleByte < int(sampleSize); sampleByte++ {
				inIdx := inIdxOffset2 + sampleByte
				outIdx := outIdxOffset2 + sampleByte
				output[outIdx] = input[inIdx]
			}
		}
	}

	return nil
}

// Deinterleave rewrites interleaved input into planar output. Both
// buffers must have the same length, a whole number of frames.
func Deinterleave(channels types.Channel, sampleSize uint, output, input []byte) error {
	shortestMessageSize := int(channels) * int(sampleSize)
	if len(input) < shortestMessageSize {
		return fmt.Errorf("the provided input buffer is too short: %d < %d", len(input), shortestMessageSize)
	}
	if len(input)%shortestMessageSize != 0 {
		return fmt.Errorf("expected a message length that is a multiple of %d, but received %d", shortestMessageSize, len(input))
	}
	if len(input) != len(output) {
		return fmt.Errorf("the lengths of input and output are not equal: %d != %d", len(input), len(output))
	}

	samplesPerChan := len(input) / int(channels) / int(sampleSize)

	for ch := types.Channel(0); ch < channels; ch++ {
		inIdxOffset := int(sampleSize) * int(ch)
		outIdxOffset := int(ch) * samplesPerChan * int(sampleSize)
		for samplePos := 0; samplePos < samplesPerChan; samplePos++ {
			inIdxOffset2 := inIdxOffset + samplePos*(int(sampleSize)*int(channels))
			outIdxOffset2 := outIdxOffset + samplePos*int(sampleSize)
			for sampleByte := 0; sampleByte < int(sampleSize); sampleByte++ {
				inIdx := inIdxOffset2 + sampleByte
				outIdx := outIdxOffset2 + sampleByte
				output[outIdx] = input[inIdx]
			}
		}
	}

	return nil
}
