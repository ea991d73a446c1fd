package types

import (
	"fmt"
	"strings"
)

type SampleRate uint32

type Channel uint16

// SampleFormat is the encoding of a single sample within an interleaved
// PCM frame. All formats are little-endian.
type SampleFormat uint8

const (
	SampleFormatUndefined = SampleFormat(iota)
	SampleFormatS16LE
	SampleFormatS24LE
	SampleFormatF32LE
	EndOfSampleFormat
)

// Size returns the amount of bytes occupied by one sample.
func (f SampleFormat) Size() uint {
	switch f {
	case SampleFormatS16LE:
		return 2
	case SampleFormatS24LE:
		return 3
	case SampleFormatF32LE:
		return 4
	}
	return 0
}

func (f SampleFormat) IsValid() bool {
	return f > SampleFormatUndefined && f < EndOfSampleFormat
}

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatUndefined:
		return "undefined"
	case SampleFormatS16LE:
		return "s16le"
	case SampleFormatS24LE:
		return "s24le"
	case SampleFormatF32LE:
		return "f32le"
	}
	return fmt.Sprintf("unexpected_format_%d", uint8(f))
}

// ParseSampleFormat is the inverse of SampleFormat.String.
func ParseSampleFormat(s string) (SampleFormat, error) {
	for f := SampleFormatUndefined + 1; f < EndOfSampleFormat; f++ {
		if f.String() == strings.ToLower(s) {
			return f, nil
		}
	}
	return SampleFormatUndefined, fmt.Errorf("%w: unknown sample format '%s'", ErrUnsupportedFormat, s)
}

// Format is a full PCM stream descriptor: how often frames occur, how many
// channels are interleaved within a frame and how each sample is encoded.
type Format struct {
	SampleRate   SampleRate
	Channels     Channel
	SampleFormat SampleFormat
}

// DefaultFormat is the output format served to consumers that do not
// request one explicitly.
var DefaultFormat = Format{
	SampleRate:   48000,
	Channels:     2,
	SampleFormat: SampleFormatF32LE,
}

// FrameSize returns the amount of bytes occupied by one frame (one sample
// per channel).
func (f Format) FrameSize() uint {
	return f.SampleFormat.Size() * uint(f.Channels)
}

// BytesPerSecond returns the amount of bytes required to store one second
// of a stream in this format.
func (f Format) BytesPerSecond() uint {
	return f.FrameSize() * uint(f.SampleRate)
}

func (f Format) IsZero() bool {
	return f == Format{}
}

func (f Format) Validate() error {
	if f.SampleRate == 0 {
		return fmt.Errorf("%w: sample rate is not set", ErrUnsupportedFormat)
	}
	if f.Channels == 0 {
		return fmt.Errorf("%w: channels count is not set", ErrUnsupportedFormat)
	}
	if !f.SampleFormat.IsValid() {
		return fmt.Errorf("%w: sample format %s", ErrUnsupportedFormat, f.SampleFormat)
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", f.SampleRate, f.Channels, f.SampleFormat)
}
