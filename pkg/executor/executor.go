// Package executor provides a bounded worker pool that refuses work for keys already in flight.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 4

// Task is one unit of work. The context is the executor's and is not cancelled by Shutdown.
type Task func(ctx context.Context) error

// Handle represents the eventual completion of an accepted task.
type Handle struct {
	done chan struct{}
	err  error
}

// Done is closed once the task has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task has returned or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the task error once Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

type job[K comparable] struct {
	key    K
	task   Task
	handle *Handle
}

// Executor runs tasks on a fixed number of workers and keeps at most one task per key in flight.
// Work beyond the pool size queues FIFO inside the pool.
type Executor[K comparable] struct {
	ctx    context.Context
	logger *slog.Logger

	mu       sync.Mutex
	inFlight map[K]struct{}
	shutdown bool

	queueMu sync.Mutex
	queue   []job[K]
	cond    *sync.Cond
	closed  bool

	workers sync.WaitGroup
	stopped chan struct{}
	once    sync.Once
}

// New starts an executor with the given number of workers.
func New[K comparable](ctx context.Context, logger *slog.Logger, workers int) *Executor[K] {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	e := &Executor[K]{
		ctx:      context.WithoutCancel(ctx),
		logger:   logger.With("module", "executor"),
		inFlight: make(map[K]struct{}),
		stopped:  make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.queueMu)

	e.workers.Add(workers)

	for i := range workers {
		go e.work(i)
	}

	e.logger.Info("Executor started", "workers", workers)

	return e
}

// SubmitOnce registers key and enqueues task. It returns false without side effects when the key
// is already in flight or the executor is shutting down. It never blocks on the pool.
func (e *Executor[K]) SubmitOnce(key K, task Task) (*Handle, bool) {
	e.mu.Lock()

	if e.shutdown {
		e.mu.Unlock()
		e.logger.Warn("Executor is shut down, refusing task", "key", key)

		return nil, false
	}

	if _, busy := e.inFlight[key]; busy {
		e.mu.Unlock()
		e.logger.Warn("Task already in flight, skipping", "key", key)

		return nil, false
	}

	e.inFlight[key] = struct{}{}
	e.mu.Unlock()

	handle := &Handle{done: make(chan struct{})}

	if !e.enqueue(job[K]{key: key, task: task, handle: handle}) {
		// Shutdown closed the queue between registration and enqueue.
		e.release(key)

		return nil, false
	}

	return handle, true
}

// InFlight reports whether key is currently registered.
func (e *Executor[K]) InFlight(key K) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, busy := e.inFlight[key]

	return busy
}

// IsShutdown reports whether Shutdown has been called.
func (e *Executor[K]) IsShutdown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.shutdown
}

// Shutdown makes every later SubmitOnce refuse, stops the pool once the accepted tasks are drained
// and, when wait is true, blocks until they have finished. Calling it again is a no-op.
func (e *Executor[K]) Shutdown(wait bool) {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()

		if wait {
			<-e.stopped
		}

		return
	}

	e.shutdown = true
	e.mu.Unlock()

	e.logger.Info("Executor shutting down", "wait", wait)

	e.queueMu.Lock()
	e.closed = true
	e.cond.Broadcast()
	e.queueMu.Unlock()

	e.once.Do(func() {
		go func() {
			e.workers.Wait()
			close(e.stopped)
		}()
	})

	if wait {
		<-e.stopped
		e.logger.Info("Executor stopped")
	}
}

// Wait blocks until every accepted task has finished after Shutdown, or until ctx is done.
func (e *Executor[K]) Wait(ctx context.Context) error {
	select {
	case <-e.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor[K]) enqueue(j job[K]) bool {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()

	if e.closed {
		return false
	}

	e.queue = append(e.queue, j)
	e.cond.Signal()

	return true
}

// next blocks until a job is available; it returns false once the queue is closed and drained.
func (e *Executor[K]) next() (job[K], bool) {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()

	for len(e.queue) == 0 && !e.closed {
		e.cond.Wait()
	}

	if len(e.queue) == 0 {
		return job[K]{}, false
	}

	j := e.queue[0]
	e.queue[0] = job[K]{}
	e.queue = e.queue[1:]

	return j, true
}

func (e *Executor[K]) work(id int) {
	defer e.workers.Done()

	for {
		j, ok := e.next()
		if !ok {
			e.logger.Debug("Worker exiting", "worker", id)

			return
		}

		e.run(j)
	}
}

func (e *Executor[K]) run(j job[K]) {
	key := j.key

	defer func() {
		if r := recover(); r != nil {
			j.handle.err = fmt.Errorf("task panicked: %v", r)
			e.logger.Error("Task panicked", "key", key, "panic", r)
		}

		e.release(key)
		close(j.handle.done)
	}()

	j.handle.err = j.task(e.ctx)
	if j.handle.err != nil {
		e.logger.Debug("Task returned error", "key", key, "error", j.handle.err)
	}
}

func (e *Executor[K]) release(key K) {
	e.mu.Lock()
	delete(e.inFlight, key)
	e.mu.Unlock()
}
