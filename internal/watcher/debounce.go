package watcher

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Config holds the debounce/probe tunables spec §4.7 names.
type Config struct {
	SettleDelay      time.Duration
	ProbeInterval    time.Duration
	MaxProbeDelay    time.Duration
	MaxProbeAttempts int
	OutputCapacity   int
}

// DefaultConfig matches spec §4.7's stated defaults; ProbeInterval isn't
// named explicitly. With MaxProbeDelay capping each wait at 30s, the eight
// probe waits are 1+2+4+8+16+30+30+30 = 121s in the worst case.
func DefaultConfig() Config {
	return Config{
		SettleDelay:      2 * time.Second,
		ProbeInterval:    1 * time.Second,
		MaxProbeDelay:    30 * time.Second,
		MaxProbeAttempts: 8,
		OutputCapacity:   512,
	}
}

// ErrSink receives non-fatal errors the queue encounters (watch errors, and
// probe exhaustion, which is also reported as a failed Candidate). Callers
// may pass a logging Notifier-backed closure.
type ErrSink func(error)

// pathState is the per-path debounce state. Every new event for a path
// bumps generation and replaces latestEvent; any goroutine whose
// generation no longer matches exits without side effects — this is the
// "cancel any currently running settle task" rule implemented without an
// explicit context.CancelFunc per path, following the teacher's sequence-
// number trick in Debouncer.Trigger. firstEventAt holds the timestamp of
// the event that started the current burst (zero once a candidate has
// been emitted and no new event has arrived yet) so Candidate.DetectedAt
// reports the burst's first event, not its last.
type pathState struct {
	latestEvent  FileEvent
	generation   uint64
	firstEventAt time.Time
}

// Queue is the thread-safe per-path debounce + lock-probe stage between
// the Watcher and the Ingestion Orchestrator. Safe for concurrent Enqueue
// calls from multiple producers (spec §4.7: "does not assume a single
// producer").
type Queue struct {
	cfg     Config
	errSink ErrSink

	mu    sync.Mutex
	paths map[string]*pathState

	out chan Candidate

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueue builds a Queue bound to ctx: cancelling ctx aborts every
// in-flight settle task and probe silently, matching spec §5's
// cancellation contract.
func NewQueue(ctx context.Context, cfg Config, errSink ErrSink) *Queue {
	if errSink == nil {
		errSink = func(error) {}
	}
	qctx, cancel := context.WithCancel(ctx)
	return &Queue{
		cfg:     cfg,
		errSink: errSink,
		paths:   make(map[string]*pathState),
		out:     make(chan Candidate, cfg.OutputCapacity),
		ctx:     qctx,
		cancel:  cancel,
	}
}

// Out is the bounded candidate channel the orchestrator consumes.
func (q *Queue) Out() <-chan Candidate {
	return q.out
}

// Close cancels all pending settle/probe work and waits for in-flight
// goroutines to exit before closing Out.
func (q *Queue) Close() {
	q.cancel()
	q.wg.Wait()
	close(q.out)
}

// Enqueue records ev as the latest known event for its path and starts (or
// restarts) that path's settle timer. Must not block — callers are
// typically watcher event-loop goroutines.
func (q *Queue) Enqueue(ev FileEvent) {
	canon := canonicalPath(ev.Path)

	q.mu.Lock()
	state, ok := q.paths[canon]
	if !ok {
		state = &pathState{}
		q.paths[canon] = state
	}
	if state.firstEventAt.IsZero() {
		state.firstEventAt = ev.OccurredAt
	}
	state.latestEvent = ev
	state.generation++
	generation := state.generation
	firstEventAt := state.firstEventAt
	q.mu.Unlock()

	q.wg.Add(1)
	go q.settle(canon, generation, firstEventAt)
}

// settle waits the configured quiet period, then either promotes a
// Deleted event immediately or runs the lock probe. Exits silently if
// superseded by a newer Enqueue for the same path.
func (q *Queue) settle(canon string, generation uint64, firstEventAt time.Time) {
	defer q.wg.Done()

	timer := time.NewTimer(q.cfg.SettleDelay)
	defer timer.Stop()

	select {
	case <-q.ctx.Done():
		return
	case <-timer.C:
	}

	latest, stillCurrent := q.currentEvent(canon, generation)
	if !stillCurrent {
		return // superseded while waiting out settle_delay
	}

	if latest.Type == Deleted {
		q.emit(canon, generation, Candidate{
			Path:       latest.Path,
			DetectedAt: firstEventAt,
			ReadyAt:    time.Now(),
		})
		return
	}

	q.probe(canon, generation, firstEventAt, latest)
}

// currentEvent returns the path's latest event iff generation is still
// the most recent one recorded — the debounce-supersession check shared by
// settle and probe.
func (q *Queue) currentEvent(canon string, generation uint64) (FileEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	state, ok := q.paths[canon]
	if !ok || state.generation != generation {
		return FileEvent{}, false
	}
	return state.latestEvent, true
}

// probe implements spec §4.7's lock-probe loop: attempt a shared-read
// lock, back off exponentially (capped) on failure, abandon silently if
// superseded, and emit a failed candidate if every attempt is exhausted.
func (q *Queue) probe(canon string, generation uint64, firstEventAt time.Time, latest FileEvent) {
	var lastErr error
	for attempt := 1; attempt <= q.cfg.MaxProbeAttempts; attempt++ {
		if _, stillCurrent := q.currentEvent(canon, generation); !stillCurrent {
			return
		}

		err := probeSharedRead(latest.Path)
		if err == nil {
			q.emit(canon, generation, Candidate{
				Path:       latest.Path,
				DetectedAt: firstEventAt,
				ReadyAt:    time.Now(),
			})
			return
		}
		lastErr = err

		delay := q.cfg.ProbeInterval * time.Duration(1<<uint(attempt-1))
		if delay > q.cfg.MaxProbeDelay {
			delay = q.cfg.MaxProbeDelay
		}

		timer := time.NewTimer(delay)
		select {
		case <-q.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	if _, stillCurrent := q.currentEvent(canon, generation); !stillCurrent {
		return
	}
	q.errSink(fmt.Errorf("lock probe exhausted for %s: %w", latest.Path, lastErr))
	q.emit(canon, generation, Candidate{
		Path:       latest.Path,
		DetectedAt: firstEventAt,
		ReadyAt:    time.Now(),
		IsFailed:   true,
		FailReason: fmt.Sprintf("lock probe exhausted after %d attempts: %v", q.cfg.MaxProbeAttempts, lastErr),
	})
}

// emit sends on the bounded output channel, blocking (back-pressuring the
// caller) when full, per spec §4.7's "full-mode = wait" rule. A queue
// Close cancels q.ctx, which this also respects so a shutdown never hangs
// forever trying to emit into a channel nobody will drain again. On a
// successful send it also clears the path's firstEventAt, provided no
// newer Enqueue has superseded this generation in the meantime, so the
// next burst on this path starts its own DetectedAt from scratch.
func (q *Queue) emit(canon string, generation uint64, c Candidate) {
	select {
	case q.out <- c:
		q.mu.Lock()
		if state, ok := q.paths[canon]; ok && state.generation == generation {
			state.firstEventAt = time.Time{}
		}
		q.mu.Unlock()
	case <-q.ctx.Done():
	}
}

// probeSharedRead attempts a non-blocking shared-read lock on path,
// detecting an active writer. Grounded on the teacher's choice of
// gofrs/flock for single-writer file discipline — reused here for the
// read side of the same lock family instead of a bare os.Open, which on
// most platforms would succeed even against an exclusively-locked file.
func probeSharedRead(path string) error {
	// flock opens with O_CREATE; check first so a missing file fails the
	// probe instead of being created empty.
	if _, err := os.Stat(path); err != nil {
		return err
	}
	fl := flock.New(path)
	defer fl.Close()

	locked, err := fl.TryRLock()
	if err != nil {
		return err
	}
	if !locked {
		return fmt.Errorf("file is exclusively locked")
	}
	defer fl.Unlock()
	return nil
}
