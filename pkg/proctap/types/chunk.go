package types

import (
	"fmt"
	"time"
)

// Chunk is one contiguous block of interleaved PCM captured from a process.
//
// Data is exclusively owned by the receiver: backends always hand out a
// fresh buffer, so it may be retained or modified freely.
type Chunk struct {
	Data       []byte
	Format     Format
	Seq        uint64
	CapturedAt time.Time
}

// Frames returns the amount of PCM frames in the chunk.
func (c *Chunk) Frames() uint {
	frameSize := c.Format.FrameSize()
	if frameSize == 0 {
		return 0
	}
	return uint(len(c.Data)) / frameSize
}

// Duration returns the playback duration of the chunk.
func (c *Chunk) Duration() time.Duration {
	if c.Format.SampleRate == 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.Format.SampleRate)
}

func (c *Chunk) Validate() error {
	if err := c.Format.Validate(); err != nil {
		return err
	}
	if uint(len(c.Data))%c.Format.FrameSize() != 0 {
		return fmt.Errorf(
			"%w: %d bytes is not a whole number of %d-byte frames",
			ErrConversionFailure, len(c.Data), c.Format.FrameSize(),
		)
	}
	return nil
}
