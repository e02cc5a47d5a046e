package dataflow

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// StepState is the lifecycle state of one StepInstance, following the
// prescribe -> run -> (suspend -> resume)* -> finish path. Every
// instance that is not cancelled ends in StateFinished or, for a step
// body that returned a non-NotReady error, the Context records the
// failure and moves it to StateFinished anyway: a failed instance does
// not retry.
type StepState int32

const (
	StateCreated StepState = iota
	StateQueued
	StateRunning
	StateSuspended
	StateFinished
	StateCancelled
)

func (s StepState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateFinished:
		return "finished"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// StepBody is the user-supplied logic prescribed for a tag. The runtime
// may invoke it more than once for the same tag: whenever the instance
// suspends on a missing get, it restarts from the top on resume rather
// than continuing mid-function, so a body should perform gets before any
// put with an observable side effect wherever that ordering matters.
// Returning ErrNotReady (typically the exact error a Get call produced)
// tells the scheduler to suspend the instance; any other non-nil error
// is a step failure; nil means the instance finished normally.
type StepBody func(sc *StepContext) error

// StepInstance is one (step-collection, tag) execution unit the runtime
// created in response to a tag being put.
type StepInstance struct {
	id    string
	tag   Tag
	coll  *StepCollection
	sched *Scheduler

	priority int
	affinity int

	depCounter depCounterGroup
	generation atomic.Uint64
	state      atomic.Int32

	pending []pendingGet
}

func newStepInstance(coll *StepCollection, tag Tag) *StepInstance {
	inst := &StepInstance{
		id:       uuid.NewString(),
		tag:      tag,
		coll:     coll,
		sched:    coll.sched,
		priority: coll.tuner.priority(tag),
		affinity: coll.tuner.affinity(tag, coll.sched.numWorkers),
	}
	inst.state.Store(int32(StateCreated))
	return inst
}

func (inst *StepInstance) State() StepState { return StepState(inst.state.Load()) }

func (inst *StepInstance) setState(s StepState) { inst.state.Store(int32(s)) }

// requeueAfterResume is called by the item store, on whichever goroutine
// filled the last missing slot, once an instance's dependency counter
// drops back to zero. It marks the instance queued and re-enters the run
// queue; the generation is left alone here and is bumped when
// Scheduler.execute starts the next run.
func (inst *StepInstance) requeueAfterResume() {
	inst.setState(StateQueued)
	if m := inst.sched.ctx.instruments(); m.StepResumes != nil {
		m.StepResumes.Add(context.Background(), 1)
	}
	inst.sched.enqueue(inst)
}

// StepCollection is a step body template plus its tuner; it keeps no
// record of the instances it has prescribed. Tags arrive by way of
// TagCollection.Prescribes; a program never constructs a StepInstance
// directly.
type StepCollection struct {
	ctx   *Context
	name  string
	body  StepBody
	tuner *Tuner
	sched *Scheduler
}

// NewStepCollection registers a step collection on ctx with the given
// body and optional tuner.
func NewStepCollection(ctx *Context, name string, body StepBody, tuner *Tuner) *StepCollection {
	sc := &StepCollection{ctx: ctx, name: name, body: body, tuner: tuner, sched: ctx.sched}
	ctx.register(sc)
	return sc
}

// prescribe creates and queues (or cancels, or presc-checks) a step
// instance for tag. It is called by TagCollection.Put/PutRange, never
// directly by user code.
func (col *StepCollection) prescribe(tag Tag) {
	if col.tuner.cancel(tag) {
		inst := newStepInstance(col, tag)
		inst.setState(StateCancelled)
		return
	}
	inst := newStepInstance(col, tag)
	col.ctx.workStarted()
	if dep := col.tuner; dep != nil && dep.Depends != nil {
		col.preschedule(inst)
		return
	}
	inst.setState(StateQueued)
	col.sched.enqueue(inst)
}

// preschedule runs the Depends dry pass: every (collection, tag) the step
// declares is checked for presence, without consuming any get budget,
// before the instance is ever queued.
// If all are already present the instance is queued immediately and will
// run without suspending on those gets; otherwise it is registered as a
// waiter on whichever ones are missing and queued only once they have
// all arrived. Like Scheduler.execute, this seeds depCounter with a bias
// token before registering any waiters and releases it with the same
// Add(-1) a resume uses, so a dependency that arrives mid-registration
// cannot race this call into enqueueing the instance twice.
func (col *StepCollection) preschedule(inst *StepInstance) {
	sc := &StepContext{inst: inst, ctx: col.ctx}
	inst.depCounter.Store(1)
	err := col.tuner.Depends(inst.tag, func(ic *ItemCollection, itemTag Tag) {
		if !ic.peekPresent(itemTag) {
			sc.pending = append(sc.pending, pendingGet{ic: ic, tag: itemTag})
		}
	})
	if err != nil {
		col.ctx.failStep(inst, err)
		return
	}
	sc.FlushGets()
	inst.setState(StateSuspended)
	if inst.depCounter.Add(-1) == 0 {
		inst.setState(StateQueued)
		col.sched.enqueue(inst)
	}
}
