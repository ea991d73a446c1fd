// Package chunkqueue provides the bounded FIFO which decouples a capture
// backend (the producer) from the consumer of the audio.
//
// The producer never blocks: when the queue is full the oldest chunk is
// evicted. Every pushed chunk gets a strictly increasing sequence number,
// so evictions are observable on the consumer side as gaps.
package chunkqueue

import (
	"context"
	"sync"
	"time"

	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

type Queue struct {
	locker   sync.Mutex
	format   types.Format
	slots    []types.Chunk
	head     int
	size     int
	nextSeq  uint64
	pushed   uint64
	dropped  uint64
	notifyCh chan struct{}
	closed   bool
	closedCh chan struct{}
}

// NewQueue returns a queue of at most capacity chunks. All chunks pushed
// into the queue are stamped with the given format.
func NewQueue(
	format types.Format,
	capacity int,
) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		format:   format,
		slots:    make([]types.Chunk, capacity),
		notifyCh: make(chan struct{}, 1),
		closedCh: make(chan struct{}),
	}
}

// Push appends a chunk. It never blocks; if the queue is full it evicts
// the oldest chunk instead. The slots are preallocated, so a push does
// not allocate.
//
// The queue takes ownership of data.
func (q *Queue) Push(
	data []byte,
	capturedAt time.Time,
) {
	q.locker.Lock()
	if q.closed {
		q.locker.Unlock()
		return
	}
	if q.size == len(q.slots) {
		q.slots[q.head] = types.Chunk{}
		q.head = (q.head + 1) % len(q.slots)
		q.size--
		q.dropped++
	}
	q.slots[(q.head+q.size)%len(q.slots)] = types.Chunk{
		Data:       data,
		Format:     q.format,
		Seq:        q.nextSeq,
		CapturedAt: capturedAt,
	}
	q.nextSeq++
	q.pushed++
	q.size++
	q.locker.Unlock()

	select {
	case q.notifyCh <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest chunk.
//
// If the queue is empty, it waits for up to `timeout` (forever if the
// timeout is non-positive) and returns (nil, nil) when nothing arrived
// in time. Returns ErrClosed after Close.
func (q *Queue) Pop(
	ctx context.Context,
	timeout time.Duration,
) (*types.Chunk, error) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		q.locker.Lock()
		if q.size > 0 {
			chunk := q.slots[q.head]
			q.slots[q.head] = types.Chunk{}
			q.head = (q.head + 1) % len(q.slots)
			q.size--
			q.locker.Unlock()
			return &chunk, nil
		}
		if q.closed {
			q.locker.Unlock()
			return nil, types.ErrClosed
		}
		q.locker.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeoutCh:
			return nil, nil
		case <-q.closedCh:
		case <-q.notifyCh:
		}
	}
}

func (q *Queue) Len() int {
	q.locker.Lock()
	defer q.locker.Unlock()
	return q.size
}

// Pushed returns the total amount of chunks ever pushed.
func (q *Queue) Pushed() uint64 {
	q.locker.Lock()
	defer q.locker.Unlock()
	return q.pushed
}

// Dropped returns the total amount of chunks evicted due to overflow.
func (q *Queue) Dropped() uint64 {
	q.locker.Lock()
	defer q.locker.Unlock()
	return q.dropped
}

// Close discards all pending chunks and wakes up any waiting Pop.
// Pushes after Close are ignored.
func (q *Queue) Close() {
	q.locker.Lock()
	defer q.locker.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for i := range q.slots {
		q.slots[i] = types.Chunk{}
	}
	q.size = 0
	close(q.closedCh)
}
