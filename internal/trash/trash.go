// Package trash provides the background deallocation worker described in
// spec §5/§9: engine operations that discard large sub-maps (a pruned
// branch's version index, a merged-away branch's change-sets) hand the
// discarded value to a Cleaner instead of dropping it inline, so the
// freeing work happens off the caller's hot path. Grounded on the worker
// goroutine shape of internal/services/data_processing/service.go (a
// buffered work channel drained by a fixed pool of goroutines).
package trash

import "sync"

// Cleaner accepts units of deallocation work and executes them
// asynchronously, off the caller's goroutine.
type Cleaner interface {
	Execute(work func())
	// Close stops accepting work and waits for queued work to finish.
	Close()
}

// WorkerCleaner is a small fixed-size goroutine pool draining a buffered
// channel of deallocation closures.
type WorkerCleaner struct {
	work chan func()
	wg   sync.WaitGroup
	once sync.Once
}

// NewWorkerCleaner starts workers goroutines backed by a channel of the
// given buffer size.
func NewWorkerCleaner(workers, buffer int) *WorkerCleaner {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 1
	}
	c := &WorkerCleaner{work: make(chan func(), buffer)}
	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.loop()
	}
	return c
}

func (c *WorkerCleaner) loop() {
	defer c.wg.Done()
	for fn := range c.work {
		fn()
	}
}

// Execute enqueues work for asynchronous execution. If the queue is full,
// Execute blocks rather than dropping the cleanup (a full trash queue
// means the caller is generating garbage faster than it's reclaimed,
// which is a capacity problem the caller should feel, not silently lose
// data over).
func (c *WorkerCleaner) Execute(work func()) {
	c.work <- work
}

// Close stops accepting new work and waits for the queue to drain.
func (c *WorkerCleaner) Close() {
	c.once.Do(func() {
		close(c.work)
	})
	c.wg.Wait()
}

var _ Cleaner = (*WorkerCleaner)(nil)

// Inline is a Cleaner that runs work synchronously on the caller's
// goroutine. Useful for tests and for single-threaded embeddings where
// the background worker pool is unwanted overhead.
type Inline struct{}

// Execute runs work immediately.
func (Inline) Execute(work func()) { work() }

// Close is a no-op.
func (Inline) Close() {}

var _ Cleaner = Inline{}
