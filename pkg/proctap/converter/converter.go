// Package converter converts PCM chunks between stream formats: sample
// encoding, channel layout and sample rate.
//
// Samples travel through a normalized float64 intermediate
// representation, so every supported encoding converts to every other
// one through the same pipeline: decode, map channels, resample, encode.
package converter

import (
	"fmt"
	"sync"

	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

type plan struct {
	from      types.Format
	to        types.Format
	decode    sampleDecodeFunc
	encode    sampleEncodeFunc
	mapFrame  frameMapFunc
	resampler *resampleState
}

func newPlan(from, to types.Format) (*plan, error) {
	decode, err := sampleDecoder(from.SampleFormat)
	if err != nil {
		return nil, fmt.Errorf("unable to prepare a decoder for %s: %w", from, err)
	}
	encode, err := sampleEncoder(to.SampleFormat)
	if err != nil {
		return nil, fmt.Errorf("unable to prepare an encoder for %s: %w", to, err)
	}
	mapFrame, err := frameMapper(from.Channels, to.Channels)
	if err != nil {
		return nil, fmt.Errorf("unable to prepare a channel mapping %s -> %s: %w", from, to, err)
	}
	p := &plan{
		from:     from,
		to:       to,
		decode:   decode,
		encode:   encode,
		mapFrame: mapFrame,
	}
	if from.SampleRate != to.SampleRate {
		p.resampler = newResampleState(from.SampleRate, to.SampleRate, to.Channels)
	}
	return p, nil
}

// Converter converts chunks to a requested format.
//
// A Converter is stateful: it caches the compiled conversion plan and
// carries the resampler phase from one chunk to the next, so a stream
// should be fed through a single Converter in order. Feeding a chunk
// with a different format recompiles the plan and resets the carried
// state.
type Converter struct {
	locker sync.Mutex
	plan   *plan

	decoded   []float64
	mapped    []float64
	resampled []float64
}

func NewConverter() *Converter {
	return &Converter{}
}

// Convert returns the chunk re-encoded in the requested format. The
// sequence number and the capture timestamp are preserved. The input
// chunk is never modified; if it already has the requested format it is
// returned as is.
func (c *Converter) Convert(
	chunk types.Chunk,
	to types.Format,
) (types.Chunk, error) {
	if err := chunk.Validate(); err != nil {
		return types.Chunk{}, fmt.Errorf("unable to convert the chunk: %w", err)
	}
	if err := to.Validate(); err != nil {
		return types.Chunk{}, fmt.Errorf("unable to convert to %s: %w", to, err)
	}
	if chunk.Format == to {
		return chunk, nil
	}

	c.locker.Lock()
	defer c.locker.Unlock()

	if c.plan == nil || c.plan.from != chunk.Format || c.plan.to != to {
		plan, err := newPlan(chunk.Format, to)
		if err != nil {
			return types.Chunk{}, err
		}
		c.plan = plan
	}
	p := c.plan

	frames := int(chunk.Frames())
	inSize := int(chunk.Format.SampleFormat.Size())
	inSamples := frames * int(chunk.Format.Channels)
	c.decoded = growFloats(c.decoded, inSamples)
	for i := 0; i < inSamples; i++ {
		c.decoded[i] = p.decode(chunk.Data[i*inSize:])
	}
	buf := c.decoded

	if p.mapFrame != nil {
		fromCh, toCh := int(chunk.Format.Channels), int(to.Channels)
		c.mapped = growFloats(c.mapped, frames*toCh)
		for i := 0; i < frames; i++ {
			p.mapFrame(c.mapped[i*toCh:(i+1)*toCh], buf[i*fromCh:(i+1)*fromCh])
		}
		buf = c.mapped
	}

	if p.resampler != nil {
		need := p.resampler.outputLen(frames) * int(to.Channels)
		if cap(c.resampled) < need {
			c.resampled = make([]float64, 0, need)
		}
		c.resampled = p.resampler.resample(c.resampled[:0], buf)
		buf = c.resampled
	}

	outSize := int(to.SampleFormat.Size())
	out := make([]byte, len(buf)*outSize)
	for i, v := range buf {
		p.encode(out[i*outSize:], v)
	}

	return types.Chunk{
		Data:       out,
		Format:     to,
		Seq:        chunk.Seq,
		CapturedAt: chunk.CapturedAt,
	}, nil
}

// Reset drops the cached plan and the carried resampler state. It is
// called when a new unrelated stream is about to be fed through.
func (c *Converter) Reset() {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.plan = nil
}

func growFloats(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}
