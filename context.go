package dataflow

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swarmguard/dataflow/dist"
	"github.com/swarmguard/dataflow/internal/telemetry"
)

// Context is the dataflow graph's root: the registry of every collection
// declared against it, the scheduler running their step instances, and
// the outstanding-work counter Wait blocks on.
type Context struct {
	sched *Scheduler
	inst  telemetry.Instruments
	log   *slog.Logger

	outstanding atomic.Int64
	reclaimed   atomic.Int64
	wake        chan struct{}

	mu          sync.Mutex
	collections []any
	firstFatal  atomic.Pointer[FatalError]

	messenger dist.Messenger

	statsStop chan struct{}
	statsWg   sync.WaitGroup
}

// ContextOption configures a Context at construction time.
type ContextOption func(*contextOptions)

type contextOptions struct {
	sched         SchedulerConfig
	inst          *telemetry.Instruments
	log           *slog.Logger
	statsInterval time.Duration
	messenger     dist.Messenger
}

// WithSchedulerConfig overrides the scheduler's worker count, queue
// discipline, and placement policy. Without it, ConfigFromEnv supplies
// the defaults.
func WithSchedulerConfig(cfg SchedulerConfig) ContextOption {
	return func(o *contextOptions) { o.sched = cfg }
}

// WithInstruments attaches a pre-built telemetry.Instruments, typically
// telemetry.NoopInstruments() in tests or the result of
// telemetry.InitMetrics in a real process.
func WithInstruments(inst telemetry.Instruments) ContextOption {
	return func(o *contextOptions) { o.inst = &inst }
}

// WithLogger attaches a structured logger. Without it, Context logs
// through slog.Default().
func WithLogger(log *slog.Logger) ContextOption {
	return func(o *contextOptions) { o.log = log }
}

// WithStatsInterval enables the periodic diagnostics reporter at the
// given interval. Zero (the default) disables it.
func WithStatsInterval(d time.Duration) ContextOption {
	return func(o *contextOptions) { o.statsInterval = d }
}

// WithMessenger attaches a distributed transport collaborator. Without
// one, a Context runs purely local and Tuner.ComputeOn/ConsumedOn hints
// are never consulted: TagCollection.Put and ItemCollection.Put forward
// across ranks only when a Messenger exists for them to forward through.
func WithMessenger(m dist.Messenger) ContextOption {
	return func(o *contextOptions) { o.messenger = m }
}

// NewContext builds a Context, starts its scheduler's worker pool, and
// returns it ready for collections to be registered against it.
func NewContext(opts ...ContextOption) *Context {
	o := contextOptions{sched: ConfigFromEnv()}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Context{
		log:       o.log,
		wake:      make(chan struct{}, 1),
		messenger: o.messenger,
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if o.inst != nil {
		c.inst = *o.inst
	} else {
		c.inst = telemetry.NoopInstruments()
	}
	c.sched = newScheduler(o.sched)
	c.sched.ctx = c
	c.sched.start()

	if o.statsInterval > 0 {
		c.startStatsReporter(o.statsInterval)
	}
	return c
}

func (c *Context) instruments() telemetry.Instruments { return c.inst }

// rank is this Context's own distributed rank, 0 for a local-only run
// with no Messenger attached.
func (c *Context) rank() int {
	if c.messenger == nil {
		return 0
	}
	return c.messenger.Rank()
}

// forward hands env to the attached Messenger, if any. Send errors are
// logged rather than returned: a cross-process put is a best-effort
// eager forward (§6's distribution hint), not a dataflow-affecting
// operation the local put itself should fail for.
func (c *Context) forward(env dist.Envelope) {
	if c.messenger == nil {
		return
	}
	env.FromRank = c.rank()
	if err := c.messenger.Send(context.Background(), env); err != nil {
		c.log.Error("messenger forward failed", "kind", env.Kind, "collection", env.Collection, "to_rank", env.ToRank, "error", err)
	}
}

func (c *Context) register(coll any) {
	c.mu.Lock()
	c.collections = append(c.collections, coll)
	c.mu.Unlock()
}

func (c *Context) workStarted() { c.outstanding.Add(1) }

func (c *Context) workFinished() {
	c.outstanding.Add(-1)
	c.signal()
}

func (c *Context) itemReclaimed() {
	c.reclaimed.Add(1)
	if c.inst.ItemReclaimed != nil {
		c.inst.ItemReclaimed.Add(context.Background(), 1)
	}
}

func (c *Context) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// failStep records a step body's non-NotReady error as the Context's
// fatal cause (only the first one sticks) and retires the instance, since
// the dataflow core never retries a failed step.
func (c *Context) failStep(inst *StepInstance, err error) {
	inst.setState(StateFinished)
	stepErr := &StepError{Collection: inst.coll.name, Tag: inst.tag, Err: err}
	c.firstFatal.CompareAndSwap(nil, &FatalError{Kind: FatalStepFailure, Cause: stepErr})
	c.log.Error("step failed", "collection", inst.coll.name, "tag", inst.tag, "error", err)
	c.outstanding.Add(-1)
	c.signal()
}

// Wait blocks until every step instance transitively implied by the tags
// put so far has finished, or returns a *FatalError if the Context can
// never reach that state: a step failed, or the scheduler ran out of
// runnable work while instances remain suspended on a get that will
// never be satisfied.
func (c *Context) Wait() error {
	const idleStreakLimit = 4
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	idleStreak := 0
	for {
		if fatal := c.firstFatal.Load(); fatal != nil {
			return fatal
		}
		if c.outstanding.Load() <= 0 {
			return nil
		}
		select {
		case <-c.wake:
		case <-ticker.C:
		}
		if fatal := c.firstFatal.Load(); fatal != nil {
			return fatal
		}
		if c.outstanding.Load() <= 0 {
			return nil
		}
		if c.sched.idle() {
			idleStreak++
			if idleStreak >= idleStreakLimit {
				fatal := &FatalError{Kind: FatalQuiescentPending, Cause: ErrQuiescentButPending}
				c.firstFatal.CompareAndSwap(nil, fatal)
				return c.firstFatal.Load()
			}
		} else {
			idleStreak = 0
		}
	}
}

type resettable interface{ reset() }

// Reset clears every collection's stored items and tag memoization state
// so the Context can be reused for a fresh round of work. It requires
// the Context to be quiescent with no recorded failure; calling it
// otherwise returns ErrInvalidSafeState wrapped in a *FatalError, since
// resetting item storage out from under a suspended instance would
// corrupt its view of the world.
func (c *Context) Reset() error {
	if c.outstanding.Load() != 0 || c.firstFatal.Load() != nil {
		return &FatalError{Kind: FatalInvalidSafeState, Cause: ErrInvalidSafeState}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, coll := range c.collections {
		if r, ok := coll.(resettable); ok {
			r.reset()
		}
	}
	c.reclaimed.Store(0)
	c.firstFatal.Store(nil)
	return nil
}

// Close stops the scheduler's worker pool and the stats reporter, if one
// is running. A Context cannot be used after Close.
func (c *Context) Close() {
	if c.statsStop != nil {
		close(c.statsStop)
		c.statsWg.Wait()
	}
	c.sched.stop()
}

// reset on a TagCollection clears recorded memoization history; it does
// not remove prescribe relations, which are structural, not runtime
// state.
func (tc *TagCollection) reset() {
	tc.mu.Lock()
	tc.seen = nil
	tc.mu.Unlock()
}
