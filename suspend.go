package dataflow

import "sync/atomic"

// waiter is one step instance's registration against a still-missing
// item slot. When the slot is filled the item store walks its waiter
// list and calls resume on each one exactly once.
type waiter struct {
	inst *StepInstance
	gen  uint64 // StepInstance.generation at registration time
}

// resumeOne decrements the instance's outstanding-dependency counter and,
// if it reaches zero, re-queues the instance on its home scheduler. A
// generation mismatch means the instance already finished a later run (or
// was cancelled) between registration and this wake-up, so the wake is
// dropped instead of corrupting a future run's counter.
func resumeOne(w waiter) {
	inst := w.inst
	if inst.generation.Load() != w.gen {
		return
	}
	if inst.depCounter.Add(-1) != 0 {
		return
	}
	inst.requeueAfterResume()
}

// pendingGet is one try_get miss recorded by a StepContext so that a
// later FlushGets call can register waiters for the whole batch at once,
// matching the get/try_get/flush_gets protocol: try_get never blocks or
// registers anything by itself.
type pendingGet struct {
	ic  *ItemCollection
	tag Tag
}

// depCounterGroup is the atomic dependency counter each StepInstance
// carries. The scheduler seeds it to 1 (a bias token standing for "the
// run that just suspended") before a body executes; every missing get
// (whether from a direct Get call or from a flushed try_get batch)
// adds one more before the instance suspends. Once the body has
// returned, the scheduler releases its own bias token with the same
// Add(-1) a resume uses, so whichever caller's decrement actually lands
// on zero is the sole one responsible for re-queueing — there is no
// separate "if zero" read anywhere else. That is what keeps an instance
// referenced by exactly one run queue at a time: a producer's Put can
// race the scheduler's own post-body bookkeeping arbitrarily and only
// one of them will ever observe the transition to zero.
type depCounterGroup struct {
	atomic.Int32
}
