package pulseaudio

import (
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

// chunkWriter receives raw recorded bytes from the pulse client and cuts
// them into period-sized chunks. The server delivers fragments of
// arbitrary length, so a staging buffer carries the remainder between
// writes.
type chunkWriter struct {
	callbacks types.Callbacks
	period    int
	staging   []byte
	stopped   atomic.Bool
}

var _ pulse.Writer = (*chunkWriter)(nil)

func (w *chunkWriter) Write(p []byte) (int, error) {
	if w.stopped.Load() {
		return len(p), nil
	}
	w.staging = append(w.staging, p...)
	for len(w.staging) >= w.period {
		data := make([]byte, w.period)
		copy(data, w.staging[:w.period])
		n := copy(w.staging, w.staging[w.period:])
		w.staging = w.staging[:n]
		w.callbacks.OnData(data, time.Now())
	}
	return len(p), nil
}

func (w *chunkWriter) Format() byte {
	return proto.FormatFloat32LE
}
