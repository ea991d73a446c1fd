package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/iamcalledrob/circular"
)

// pcmBridge carries PCM from the capture session to the player through a
// fixed-size circular buffer. The writer blocks when the buffer is full,
// the reader blocks when it is empty, and Close wakes both sides up.
type pcmBridge struct {
	locker sync.Mutex
	buffer *circular.Buffer
	closed bool

	readProgressedCh  chan struct{}
	writeProgressedCh chan struct{}
}

var _ io.Reader = (*pcmBridge)(nil)

func newPCMBridge(size int) *pcmBridge {
	return &pcmBridge{
		buffer:            circular.NewBuffer(size),
		readProgressedCh:  make(chan struct{}),
		writeProgressedCh: make(chan struct{}),
	}
}

// Write puts the whole of data into the buffer, waiting for the reader
// to make room when there is none.
func (b *pcmBridge) Write(ctx context.Context, data []byte) error {
	b.locker.Lock()
	defer b.locker.Unlock()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if b.closed {
			return io.ErrClosedPipe
		}
		w, err := b.buffer.Write(data)
		if err != nil {
			if errors.Is(err, circular.ErrNoSpace) {
				b.waitForReadProgressed(ctx)
				continue
			}
			return fmt.Errorf("unable to write to the circular buffer: %w", err)
		}
		if w != len(data) {
			return fmt.Errorf("wrote != requested: %d != %d", w, len(data))
		}
		var oldCh chan struct{}
		oldCh, b.writeProgressedCh = b.writeProgressedCh, make(chan struct{})
		close(oldCh)
		return nil
	}
}

func (b *pcmBridge) waitForReadProgressed(ctx context.Context) {
	ch := b.readProgressedCh
	b.locker.Unlock()
	defer b.locker.Lock()
	select {
	case <-ctx.Done():
	case <-ch:
	}
}

// Read hands out buffered PCM, waiting for the writer when there is none
// yet. It returns io.EOF only once Close was called and the buffer
// drained.
func (b *pcmBridge) Read(p []byte) (int, error) {
	b.locker.Lock()
	defer b.locker.Unlock()
	for {
		n, err := b.buffer.Read(p)
		if err == nil {
			var oldCh chan struct{}
			oldCh, b.readProgressedCh = b.readProgressedCh, make(chan struct{})
			close(oldCh)
			return n, nil
		}
		if !errors.Is(err, io.EOF) {
			return n, err
		}
		if b.closed {
			return 0, io.EOF
		}
		b.waitForWriteProgressed()
	}
}

func (b *pcmBridge) waitForWriteProgressed() {
	ch := b.writeProgressedCh
	b.locker.Unlock()
	defer b.locker.Lock()
	<-ch
}

// Close marks the end of the stream.
func (b *pcmBridge) Close() error {
	b.locker.Lock()
	defer b.locker.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	var oldCh chan struct{}
	oldCh, b.readProgressedCh = b.readProgressedCh, make(chan struct{})
	close(oldCh)
	oldCh, b.writeProgressedCh = b.writeProgressedCh, make(chan struct{})
	close(oldCh)
	return nil
}
