package sonic

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Pop once the queue is closed and drained.
var ErrQueueClosed = errors.New("sonic: audio queue closed")

// AudioQueue is a bounded FIFO of model audio chunks.
// When full, Push discards the oldest chunk so the newest speech is kept.
type AudioQueue struct {
	mu      sync.Mutex
	items   [][]byte
	max     int
	closed  bool
	dropped uint64
	ready   chan struct{}
}

func NewAudioQueue(max int) *AudioQueue {
	if max <= 0 {
		max = 256
	}
	return &AudioQueue{max: max, ready: make(chan struct{}, 1)}
}

// Push enqueues b and reports whether an older chunk was dropped to make room.
// Pushing to a closed queue is a no-op.
func (q *AudioQueue) Push(b []byte) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	dropped := false
	if len(q.items) >= q.max {
		q.items[0] = nil
		q.items = q.items[1:]
		q.dropped++
		dropped = true
	}
	q.items = append(q.items, b)
	q.mu.Unlock()

	q.signal()
	return dropped
}

// Pop blocks until a chunk is available, ctx is done, or the queue is closed and empty.
func (q *AudioQueue) Pop(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			b := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return b, nil
		}
		if q.closed {
			q.mu.Unlock()
			q.signal()
			return nil, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		}
	}
}

// Clear discards pending chunks and returns how many were removed.
func (q *AudioQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

func (q *AudioQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped is the number of chunks discarded by overflow since creation.
func (q *AudioQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close wakes blocked readers. Chunks already queued can still be popped.
func (q *AudioQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *AudioQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
