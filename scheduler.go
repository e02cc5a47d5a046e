package dataflow

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// SchedulerKind selects the run-queue discipline a Scheduler uses.
type SchedulerKind string

const (
	// SchedulerWorkStealing is the default: each worker owns a local
	// queue and steals from peers when its own queue and the global
	// queue are both empty.
	SchedulerWorkStealing SchedulerKind = "work_stealing"
	// SchedulerSharedQueue runs every worker off one global queue with
	// no local queues or stealing, useful for reproducing a strict
	// total order under SchedulerConfig.UsePriority.
	SchedulerSharedQueue SchedulerKind = "shared_queue"
)

// SchedulerConfig controls worker count, queue discipline, and placement
// policy for a Scheduler. A zero NumWorkers is treated as one worker;
// ConfigFromEnv fills in every field from the environment.
type SchedulerConfig struct {
	NumWorkers  int
	Kind        SchedulerKind
	UsePriority bool
	PinThreads  bool
}

// Scheduler runs StepInstances to completion across a fixed worker pool.
// A Context owns exactly one Scheduler for its lifetime.
type Scheduler struct {
	ctx *Context

	numWorkers  int
	usePriority bool
	sharedQueue bool
	pinThreads  bool

	global  runQueue
	workers []*worker
	seq     atomic.Uint64

	running atomic.Int64

	wake    chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool
}

type worker struct {
	id    int
	local runQueue
	sched *Scheduler
}

func newScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	s := &Scheduler{
		numWorkers:  cfg.NumWorkers,
		usePriority: cfg.UsePriority,
		sharedQueue: cfg.Kind == SchedulerSharedQueue,
		pinThreads:  cfg.PinThreads,
		global:      newRunQueue(cfg.UsePriority),
		wake:        make(chan struct{}, cfg.NumWorkers*2+1),
		stopCh:      make(chan struct{}),
	}
	s.workers = make([]*worker, cfg.NumWorkers)
	for i := range s.workers {
		s.workers[i] = &worker{id: i, sched: s, local: newRunQueue(cfg.UsePriority)}
	}
	return s
}

func (s *Scheduler) start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(s.numWorkers)
	for _, w := range s.workers {
		go w.run()
	}
}

func (s *Scheduler) stop() {
	if s.started.Load() {
		close(s.stopCh)
		s.wg.Wait()
	}
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// enqueue places inst on the appropriate queue: the affine worker's local
// queue when the Tuner picked one and worker-affinity queueing is
// possible, otherwise round-robin across local queues (work-stealing
// mode) or the single global queue (shared-queue mode).
func (s *Scheduler) enqueue(inst *StepInstance) {
	seq := s.seq.Add(1)
	if s.sharedQueue {
		s.global.push(inst, seq)
		s.notify()
		return
	}
	if inst.affinity >= 0 && inst.affinity < s.numWorkers {
		s.workers[inst.affinity].local.push(inst, seq)
		s.notify()
		return
	}
	target := int(seq % uint64(s.numWorkers))
	s.workers[target].local.push(inst, seq)
	s.notify()
}

func (w *worker) run() {
	defer w.sched.wg.Done()
	if w.sched.pinThreads {
		// Best-effort affinity: lock this worker goroutine to one OS
		// thread so the Go runtime never migrates it mid-step. This is
		// not true CPU-core pinning, which would need a platform
		// syscall; it gives each worker a stable OS thread identity,
		// which is as far as affinity goes without cgo.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	for {
		if inst, ok := w.nextWork(); ok {
			w.sched.execute(inst)
			continue
		}
		select {
		case <-w.sched.stopCh:
			return
		case <-w.sched.wake:
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func (w *worker) nextWork() (*StepInstance, bool) {
	if inst, ok := w.local.pop(); ok {
		return inst, true
	}
	if inst, ok := w.sched.global.pop(); ok {
		return inst, true
	}
	n := w.sched.numWorkers
	for i := 1; i < n; i++ {
		peer := w.sched.workers[(w.id+i)%n]
		if inst, ok := peer.local.steal(); ok {
			w.sched.recordSteal()
			return inst, true
		}
	}
	return nil, false
}

func (s *Scheduler) recordSteal() {
	inst := s.ctx.instruments()
	if inst.StealsTotal != nil {
		inst.StealsTotal.Add(context.Background(), 1)
	}
}

// execute runs one scheduling cycle of inst's body: a fresh generation is
// opened, the body runs once, and its outcome drives the instance to
// Finished, Suspended, or a recorded failure.
func (s *Scheduler) execute(inst *StepInstance) {
	s.running.Add(1)
	defer s.running.Add(-1)

	inst.generation.Add(1)
	// Seed the counter with a bias token for this run before the body can
	// register any waiters against it. The body may add one count per
	// missing get; once it returns, this run releases its own token with
	// the same decrement a resume uses below, so exactly one of the two
	// ever sees the counter hit zero.
	inst.depCounter.Store(1)
	inst.setState(StateRunning)

	sc := &StepContext{inst: inst, ctx: s.ctx}
	start := time.Now()
	err := inst.coll.body(sc)
	s.recordDuration(start)

	switch {
	case err == nil:
		inst.setState(StateFinished)
		s.ctx.workFinished()
		s.recordFinished()
	case errors.Is(err, ErrNotReady):
		sc.FlushGets()
		inst.setState(StateSuspended)
		if inst.depCounter.Add(-1) == 0 {
			inst.setState(StateQueued)
			s.enqueue(inst)
			return
		}
		s.recordSuspend()
	default:
		s.ctx.failStep(inst, err)
		s.recordFailed()
	}
}

func (s *Scheduler) idle() bool {
	if s.running.Load() != 0 {
		return false
	}
	if s.global.len() != 0 {
		return false
	}
	for _, w := range s.workers {
		if w.local.len() != 0 {
			return false
		}
	}
	return true
}

func (s *Scheduler) queueDepth() int {
	n := s.global.len()
	for _, w := range s.workers {
		n += w.local.len()
	}
	return n
}

func (s *Scheduler) recordDuration(start time.Time) {
	inst := s.ctx.instruments()
	if inst.StepDuration != nil {
		inst.StepDuration.Record(context.Background(), float64(time.Since(start).Microseconds())/1000.0)
	}
}

func (s *Scheduler) recordFinished() {
	inst := s.ctx.instruments()
	if inst.StepsFinished != nil {
		inst.StepsFinished.Add(context.Background(), 1)
	}
}

func (s *Scheduler) recordFailed() {
	inst := s.ctx.instruments()
	if inst.StepsFailed != nil {
		inst.StepsFailed.Add(context.Background(), 1)
	}
}

func (s *Scheduler) recordSuspend() {
	inst := s.ctx.instruments()
	if inst.StepSuspends != nil {
		inst.StepSuspends.Add(context.Background(), 1)
	}
}
