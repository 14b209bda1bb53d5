package chunkmanager

import (
	"container/heap"
	"time"

	"github.com/arsfeld/reelcache/internal/domain"
)

// request is one pending chunk download, ordered first by priority
// (smaller ordinal wins) then by enqueue time (FIFO within a priority),
// mirroring the priority-then-start-time part of downloadChunkHeap's order;
// there is no further tiebreak.
type request struct {
	entryID    int64
	chunkIndex int64
	priority   domain.Priority
	enqueuedAt time.Time
	index      int // heap.Interface bookkeeping
}

// requestHeap implements container/heap.Interface over pending requests.
type requestHeap []*request

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority // smaller ordinal wins
	}
	return h[i].enqueuedAt.Before(h[j].enqueuedAt)
}

func (h requestHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *requestHeap) Push(x any) {
	r := x.(*request)
	r.index = len(*h)
	*h = append(*h, r)
}

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	r.index = -1
	*h = old[:n-1]
	return r
}

var _ heap.Interface = (*requestHeap)(nil)
