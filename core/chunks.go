package livemusic

import (
	"sync"
	"sync/atomic"

	"github.com/koscakluka/ema-livemusic/core/generation"
)

type queuedChunk struct {
	epoch uint64
	chunk generation.Chunk
}

// chunkQueue hands chunks from backend callbacks to the single worker that
// decodes and schedules them, preserving arrival order.
type chunkQueue struct {
	mu     sync.Mutex
	items  []queuedChunk
	closed bool

	processed atomic.Uint64

	updateSignal chan struct{}
}

func newChunkQueue() *chunkQueue {
	return &chunkQueue{updateSignal: make(chan struct{}, 1)}
}

func (q *chunkQueue) push(item queuedChunk) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signalUpdate()
}

// next blocks until a chunk is available or the queue is closed.
func (q *chunkQueue) next() (queuedChunk, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return queuedChunk{}, false
		}
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = queuedChunk{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		<-q.updateSignal
	}
}

func (q *chunkQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()
	q.signalUpdate()
}

func (q *chunkQueue) signalUpdate() {
	select {
	case q.updateSignal <- struct{}{}:
	default:
	}
}
