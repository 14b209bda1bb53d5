// Package chunkmanager coordinates chunk availability, priorities, and
// waits: a priority queue of pending chunk requests, a dispatcher that
// hands them to the downloader, and event-based waiters for callers that
// need a specific chunk to land (spec §4.E).
package chunkmanager

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arsfeld/reelcache/internal/domain"
	"github.com/arsfeld/reelcache/internal/downloader"
)

const defaultMaxAttempts = 3

type chunkKey struct {
	entryID    int64
	chunkIndex int64
}

// Manager holds the in-memory priority queue and in-flight waiter map
// layered on top of the repository's durable download_queue table; the
// queue survives a restart in the table, the in-memory heap is rebuilt
// lazily as requests come back in.
type Manager struct {
	repo   domain.Repository
	dl     *downloader.Downloader
	logger *slog.Logger

	defaultChunkSizeBytes int64

	mu      sync.Mutex
	pq      requestHeap
	queued  map[chunkKey]*request
	wake    chan struct{}

	waitersMu sync.Mutex
	waiters   map[chunkKey][]chan struct{}
}

// New creates a Manager dispatching through dl. defaultChunkSizeBytes is
// used only for entries that don't yet carry their own ChunkSizeBytes.
func New(repo domain.Repository, dl *downloader.Downloader, defaultChunkSizeBytes int64, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		repo:                  repo,
		dl:                    dl,
		logger:                logger,
		defaultChunkSizeBytes: defaultChunkSizeBytes,
		queued:                make(map[chunkKey]*request),
		waiters:               make(map[chunkKey][]chan struct{}),
		wake:                  make(chan struct{}, 1),
	}

	completions := make(chan downloader.ChunkCompleted, 64)
	dl.Subscribe(completions)
	go m.watchCompletions(completions)

	return m
}

// watchCompletions wakes any waiters registered for a completed chunk. It
// runs for the Manager's lifetime; the channel is never closed because
// LosslessBroadcaster has no unsubscribe.
func (m *Manager) watchCompletions(completions <-chan downloader.ChunkCompleted) {
	for evt := range completions {
		m.wakeWaiters(chunkKey{entryID: evt.EntryID, chunkIndex: evt.ChunkIndex})
	}
}

func (m *Manager) wakeWaiters(key chunkKey) {
	m.waitersMu.Lock()
	chans := m.waiters[key]
	delete(m.waiters, key)
	m.waitersMu.Unlock()

	for _, ch := range chans {
		close(ch)
	}
}

// ChunkSize exposes the boundary entries use when none is set yet.
func (m *Manager) ChunkSize() int64 { return m.defaultChunkSizeBytes }

// RequestChunk enqueues a request for (entryID, chunkIndex) at priority,
// returning immediately if the chunk is already recorded. Enqueuing is
// idempotent: a duplicate request for an already-queued chunk only raises
// its priority.
func (m *Manager) RequestChunk(ctx context.Context, entryID, chunkIndex int64, priority domain.Priority) error {
	entry, err := m.repo.GetEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return domain.NewCacheError("chunkmanager.RequestChunk", domain.KindNotFound, domain.ErrItemNotFound)
	}

	start, end := domain.ChunkByteRange(chunkIndex, entry.ChunkSizeBytes, entry.ExpectedTotalSize)
	has, err := m.repo.HasByteRange(ctx, entryID, start, end)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	if err := m.repo.EnqueueChunk(ctx, entryID, chunkIndex, priority); err != nil {
		return err
	}

	key := chunkKey{entryID: entryID, chunkIndex: chunkIndex}

	m.mu.Lock()
	if existing, ok := m.queued[key]; ok {
		if priority < existing.priority {
			existing.priority = priority
			heap.Fix(&m.pq, existing.index)
		}
	} else {
		r := &request{entryID: entryID, chunkIndex: chunkIndex, priority: priority, enqueuedAt: time.Now()}
		heap.Push(&m.pq, r)
		m.queued[key] = r
	}
	m.mu.Unlock()

	m.notifyDispatcher()
	return nil
}

// RequestChunksForRange computes the chunk indices intersecting [start,
// end] and issues RequestChunk for each one missing.
func (m *Manager) RequestChunksForRange(ctx context.Context, entryID, start, end int64, priority domain.Priority) error {
	entry, err := m.repo.GetEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return domain.NewCacheError("chunkmanager.RequestChunksForRange", domain.KindNotFound, domain.ErrItemNotFound)
	}

	firstIdx := domain.ChunkIndexForByte(start, entry.ChunkSizeBytes)
	lastIdx := domain.ChunkIndexForByte(end, entry.ChunkSizeBytes)

	for idx := firstIdx; idx <= lastIdx; idx++ {
		if err := m.RequestChunk(ctx, entryID, idx, priority); err != nil {
			return err
		}
	}
	return nil
}

// WaitForChunk blocks until (entryID, chunkIndex) becomes available or
// timeout elapses. A timeout does not remove the queue entry: the download
// may still be in flight and will complete independently.
func (m *Manager) WaitForChunk(ctx context.Context, entryID, chunkIndex int64, timeout time.Duration) (bool, error) {
	entry, err := m.repo.GetEntry(ctx, entryID)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, domain.NewCacheError("chunkmanager.WaitForChunk", domain.KindNotFound, domain.ErrItemNotFound)
	}

	start, end := domain.ChunkByteRange(chunkIndex, entry.ChunkSizeBytes, entry.ExpectedTotalSize)
	has, err := m.repo.HasByteRange(ctx, entryID, start, end)
	if err != nil {
		return false, err
	}
	if has {
		return true, nil
	}

	key := chunkKey{entryID: entryID, chunkIndex: chunkIndex}
	ch := make(chan struct{})

	m.waitersMu.Lock()
	m.waiters[key] = append(m.waiters[key], ch)
	m.waitersMu.Unlock()

	select {
	case <-ch:
		return true, nil
	case <-time.After(timeout):
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// HasByteRange delegates to the repository.
func (m *Manager) HasByteRange(ctx context.Context, entryID, start, end int64) (bool, error) {
	return m.repo.HasByteRange(ctx, entryID, start, end)
}

// CancelRequests removes indices from both the in-memory queue and the
// durable download_queue table for entryID. In-flight downloads are not
// aborted; they complete and are recorded normally.
func (m *Manager) CancelRequests(ctx context.Context, entryID int64, indices []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, idx := range indices {
		key := chunkKey{entryID: entryID, chunkIndex: idx}
		if r, ok := m.queued[key]; ok && r.index >= 0 {
			heap.Remove(&m.pq, r.index)
			delete(m.queued, key)
		}
	}

	if err := m.repo.CancelRequests(ctx, entryID); err != nil {
		return err
	}
	// The repository drops every queued row of entryID, so put back the rows
	// of this entry's requests that are still waiting in the heap.
	for key, r := range m.queued {
		if key.entryID != entryID {
			continue
		}
		if err := m.repo.EnqueueChunk(ctx, entryID, key.chunkIndex, r.priority); err != nil {
			return err
		}
	}
	return nil
}

// Run starts the dispatcher loop, which pulls the highest-priority pending
// request off the heap and hands it to the downloader in its own goroutine
// (the downloader's internal semaphore is what actually bounds concurrency,
// so the dispatcher itself never blocks waiting for a download to finish).
// Run blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		req := m.popNext()
		if req == nil {
			select {
			case <-m.wake:
				continue
			case <-ctx.Done():
				return
			}
		}

		wg.Add(1)
		go func(r *request) {
			defer wg.Done()
			m.dispatch(ctx, r)
		}(req)

		if ctx.Err() != nil {
			return
		}
	}
}

func (m *Manager) popNext() *request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pq.Len() == 0 {
		return nil
	}
	r := heap.Pop(&m.pq).(*request)
	delete(m.queued, chunkKey{entryID: r.entryID, chunkIndex: r.chunkIndex})
	return r
}

func (m *Manager) notifyDispatcher() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) dispatch(ctx context.Context, r *request) {
	entry, err := m.repo.GetEntry(ctx, r.entryID)
	if err != nil || entry == nil {
		m.logger.Warn("chunk dispatch: entry vanished", "entry_id", r.entryID, "chunk_index", r.chunkIndex, "error", err)
		return
	}

	if err := m.dl.DownloadChunk(ctx, *entry, r.chunkIndex); err != nil {
		m.logger.Warn("chunk download failed", "entry_id", r.entryID, "chunk_index", r.chunkIndex, "error", err)
		if failErr := m.repo.FailQueueItem(ctx, r.entryID, r.chunkIndex, defaultMaxAttempts); failErr != nil {
			m.logger.Error("failed to record queue failure", "error", failErr)
		}
	}
}
