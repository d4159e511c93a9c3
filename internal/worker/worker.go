// Package worker implements the bounded concurrency stage between the
// debounce queue and whatever handler drives a single candidate through
// the ingestion pipeline.
//
// Grounded on the teacher's daemon event-loop pattern of a channel plus a
// WaitGroup draining goroutines on shutdown, combined with
// golang.org/x/sync/semaphore (already pulled in for the Processor
// Registry, C6) to cap in-flight handler invocations at host parallelism.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrSink receives non-fatal errors the worker encounters, such as a
// recovered handler panic. Callers may pass a logging Notifier-backed
// closure; a nil ErrSink is replaced with a no-op.
type ErrSink func(error)

// Item is one unit of work: a value plus the handler that processes it.
// Bundling the handler per item (rather than fixing one handler for the
// whole Worker) matches spec §4.8's `enqueue(item, handler)` signature.
type Item struct {
	Value   interface{}
	Handler func(context.Context, interface{})
}

// Worker is a bounded channel of work items drained by one consumer loop,
// which fans each item out to a background goroutine under a concurrency
// semaphore.
type Worker struct {
	queue   chan Item
	sem     *semaphore.Weighted
	errSink ErrSink

	pending  atomic.Int64
	inFlight atomic.Int64

	consumerWG sync.WaitGroup
	handlerWG  sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Worker with the given queue capacity and concurrency. A
// concurrency <= 0 defaults to host parallelism, per spec §4.8. A nil
// errSink is replaced with a no-op.
func New(ctx context.Context, queueCapacity, concurrency int, errSink ErrSink) *Worker {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	if errSink == nil {
		errSink = func(error) {}
	}
	wctx, cancel := context.WithCancel(ctx)
	w := &Worker{
		queue:   make(chan Item, queueCapacity),
		sem:     semaphore.NewWeighted(int64(concurrency)),
		errSink: errSink,
		ctx:     wctx,
		cancel:  cancel,
	}
	w.consumerWG.Add(1)
	go w.consumeLoop()
	return w
}

// Enqueue back-pressures when the queue is full, per spec §4.8.
func (w *Worker) Enqueue(item Item) {
	w.pending.Add(1)
	select {
	case w.queue <- item:
	case <-w.ctx.Done():
		w.pending.Add(-1)
	}
}

// PendingCount returns queued+in-flight items.
func (w *Worker) PendingCount() int64 {
	return w.pending.Load() + w.inFlight.Load()
}

func (w *Worker) consumeLoop() {
	defer w.consumerWG.Done()
	for {
		select {
		case item, ok := <-w.queue:
			if !ok {
				return
			}
			w.pending.Add(-1)
			w.dispatch(item)
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Worker) dispatch(item Item) {
	if err := w.sem.Acquire(w.ctx, 1); err != nil {
		return // context cancelled while waiting for a slot
	}
	w.inFlight.Add(1)
	w.handlerWG.Add(1)
	go func() {
		defer w.handlerWG.Done()
		defer w.inFlight.Add(-1)
		defer w.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				// Handler panics are logged and do not stop the worker,
				// matching spec §4.8's "handler exceptions ... do not
				// stop the worker".
				w.errSink(fmt.Errorf("worker: handler panic: %v", r))
			}
		}()
		item.Handler(w.ctx, item.Value)
	}()
}

// Drain closes the queue for new writes, waits for the consumer loop to
// exit, then waits for every in-flight handler to complete. Callers must
// stop calling Enqueue before calling Drain.
func (w *Worker) Drain() {
	close(w.queue)
	w.consumerWG.Wait()
	w.handlerWG.Wait()
}

// Stop cancels the worker's context, aborting in-flight handlers that
// respect ctx, then drains.
func (w *Worker) Stop() {
	w.cancel()
	w.Drain()
}
