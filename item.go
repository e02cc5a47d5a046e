package dataflow

import (
	"context"
	"sync"
	"time"

	"github.com/swarmguard/dataflow/dist"
)

type itemState int32

const (
	stateEmpty itemState = iota
	statePresent
	stateErased
)

// itemSlot holds one tag's worth of storage inside an ItemCollection: its
// current state, value, remaining get budget, and the waiters parked on
// it while it was empty.
type itemSlot struct {
	mu       sync.Mutex
	state    itemState
	value    Value
	getsLeft int // -1 means unlimited
	waiters  []waiter
}

// itemStore is the pluggable backing map an ItemCollection delegates to.
// Two implementations exist: a sharded hash map for arbitrary tags and a
// dense slice for tags that are small non-negative integers.
type itemStore interface {
	getOrCreate(tag Tag) *itemSlot
	peek(tag Tag) (*itemSlot, bool)
	delete(tag Tag)
	iterate(fn func(tag Tag, slot *itemSlot) bool)
	reset()
	len() int
}

// ItemCollection is a dataflow item store: an append-only (until
// reclaimed) map from Tag to Value with get-count-driven reclamation and
// suspend/resume on a missing get.
type ItemCollection struct {
	ctx             *Context
	name            string
	tuner           *Tuner
	store           itemStore
	defaultGetCount int
	allowRedefine   bool
}

// ItemOption configures an ItemCollection at construction time.
type ItemOption func(*itemOptions)

type itemOptions struct {
	dense         bool
	denseCapacity int
	allowRedefine bool
	getCount      int
}

// WithDenseBackend selects the dense, directly indexed backend for tags
// that are (or convert to) non-negative integers below capacity. Use it
// for the inner loop of array-shaped computations such as ParallelFor or
// the stencil-style PeekRange access pattern.
func WithDenseBackend(capacity int) ItemOption {
	return func(o *itemOptions) { o.dense = true; o.denseCapacity = capacity }
}

// WithRedefinition allows Put to overwrite a tag that already has a
// present value instead of returning ErrItemAlreadyPresent. Most
// dataflow collections are single-assignment; this exists for the rare
// program that intentionally republishes a tag (e.g. a relaxation loop
// reusing an item collection as scratch space per iteration tag).
func WithRedefinition() ItemOption {
	return func(o *itemOptions) { o.allowRedefine = true }
}

// WithDefaultGetCount sets how many gets a put item survives before
// reclamation when the Tuner does not supply a per-tag GetCount. The
// default is 1.
func WithDefaultGetCount(n int) ItemOption {
	return func(o *itemOptions) { o.getCount = n }
}

// NewItemCollection registers an item collection on ctx.
func NewItemCollection(ctx *Context, name string, tuner *Tuner, opts ...ItemOption) *ItemCollection {
	o := itemOptions{getCount: 1}
	for _, opt := range opts {
		opt(&o)
	}
	ic := &ItemCollection{ctx: ctx, name: name, tuner: tuner, defaultGetCount: o.getCount, allowRedefine: o.allowRedefine}
	if o.dense {
		ic.store = newDenseStore(o.denseCapacity)
	} else {
		ic.store = newHashStore()
	}
	ctx.register(ic)
	return ic
}

// Put publishes a value for tag. If the tag already has a present value
// and the collection does not allow redefinition, it returns
// ErrItemAlreadyPresent. Put wakes every waiter parked on a prior missing
// get for this tag, then, if the tuner's ConsumedOn hint names any
// remote ranks for tag, eagerly forwards the put to each of them over
// the attached Messenger so a remote get never has to round-trip a
// request first. With no Messenger attached, or when ConsumedOn is nil,
// this forwarding step is skipped entirely.
func (ic *ItemCollection) Put(tag Tag, v Value) error {
	start := time.Now()
	slot := ic.store.getOrCreate(tag)
	slot.mu.Lock()
	if slot.state == statePresent && !ic.allowRedefine {
		slot.mu.Unlock()
		return ErrItemAlreadyPresent
	}
	if slot.state == stateErased && !ic.allowRedefine {
		slot.mu.Unlock()
		return ErrItemAlreadyPresent
	}
	slot.value = v
	slot.state = statePresent
	slot.getsLeft = ic.tuner.getCount(tag, ic.defaultGetCount)
	woken := slot.waiters
	slot.waiters = nil
	slot.mu.Unlock()

	for _, w := range woken {
		resumeOne(w)
	}

	local := ic.ctx.rank()
	for _, rank := range ic.tuner.consumedOn(tag) {
		if rank == local {
			continue
		}
		ic.ctx.forward(dist.Envelope{Kind: dist.KindPut, Collection: ic.name, Tag: tag, Value: v, ToRank: rank})
	}

	ic.recordLatency(start)
	return nil
}

// Get reads tag's value. If the item is not yet present it registers sc's
// instance as a waiter and returns ErrNotReady immediately; the caller
// should propagate that error unchanged so the scheduler can suspend the
// instance. If sc is nil (a get performed outside any step instance,
// which can never suspend) a missing item is also reported as
// ErrNotReady but no waiter is registered, since there is no instance to
// resume.
func (ic *ItemCollection) Get(sc *StepContext, tag Tag) (Value, error) {
	start := time.Now()
	slot := ic.store.getOrCreate(tag)
	slot.mu.Lock()
	switch slot.state {
	case statePresent:
		v := slot.value
		if slot.getsLeft > 0 {
			slot.getsLeft--
			if slot.getsLeft == 0 {
				slot.state = stateErased
				slot.value = nil
				ic.ctx.itemReclaimed()
			}
		}
		slot.mu.Unlock()
		ic.recordLatency(start)
		return v, nil
	case stateErased:
		slot.mu.Unlock()
		return nil, ErrGone
	default: // stateEmpty
		if sc != nil {
			slot.waiters = append(slot.waiters, waiter{inst: sc.inst, gen: sc.inst.generation.Load()})
			sc.inst.depCounter.Add(1)
		}
		slot.mu.Unlock()
		return nil, ErrNotReady
	}
}

// tryGet is the non-registering read TryGet is built on: it never
// appends a waiter and never blocks, but it does consume get budget.
func (ic *ItemCollection) tryGet(tag Tag) (Value, bool) {
	slot, ok := ic.store.peek(tag)
	if !ok {
		return nil, false
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.state != statePresent {
		return nil, false
	}
	v := slot.value
	if slot.getsLeft > 0 {
		slot.getsLeft--
		if slot.getsLeft == 0 {
			slot.state = stateErased
			slot.value = nil
			ic.ctx.itemReclaimed()
		}
	}
	return v, true
}

// peekPresent reports whether tag currently has a present value, without
// consuming any of its get budget and without registering a waiter. It
// backs the preschedule dry pass, which only needs to know what is
// already there, not to actually take it.
func (ic *ItemCollection) peekPresent(tag Tag) bool {
	slot, ok := ic.store.peek(tag)
	if !ok {
		return false
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.state == statePresent
}

// GetUnsafe reads tag's value without consuming any of its get budget
// and without registering a waiter when absent. It exists for read-mostly
// access patterns (for example a stencil halo cell read by many
// instances) where over-counting gets would reclaim the item before its
// last legitimate reader arrives; callers are responsible for arranging
// that the item is retired some other way, typically via Context.Reset
// between iterations.
func (ic *ItemCollection) GetUnsafe(tag Tag) (Value, bool) {
	slot, ok := ic.store.peek(tag)
	if !ok {
		return nil, false
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.state != statePresent {
		return nil, false
	}
	return slot.value, true
}

// PeekRange performs a best-effort batch GetUnsafe over every tag in r,
// for stencil-shaped computations that want a contiguous window of
// neighbor values without calling GetUnsafe in a loop or ever suspending.
// It returns the values present and reports whether every tag in the
// range was present. Unlike StepContext.GetRange this never registers a
// waiter on a miss: a caller that needs the range to eventually complete
// should poll it, not block on it.
func (ic *ItemCollection) PeekRange(r Range) (map[Tag]Value, bool) {
	out := make(map[Tag]Value, r.Len())
	complete := true
	r.forEach(func(i int) {
		v, ok := ic.GetUnsafe(i)
		if !ok {
			complete = false
			return
		}
		out[i] = v
	})
	return out, complete
}

// Iterate calls fn once for every present item, in unspecified order. It
// is intended for diagnostics and tests, not for dataflow logic: a step
// body should never enumerate an item collection, since which tags are
// present depends on scheduling order.
func (ic *ItemCollection) Iterate(fn func(tag Tag, v Value) bool) {
	ic.store.iterate(func(tag Tag, slot *itemSlot) bool {
		slot.mu.Lock()
		present := slot.state == statePresent
		v := slot.value
		slot.mu.Unlock()
		if !present {
			return true
		}
		return fn(tag, v)
	})
}

// Empty reports whether the collection currently holds no present items.
func (ic *ItemCollection) Empty() bool {
	empty := true
	ic.Iterate(func(Tag, Value) bool { empty = false; return false })
	return empty
}

// Size returns the number of slots the collection has ever allocated,
// including already-reclaimed ones; it is an upper bound on present
// items, not an exact count, matching the teacher's O(1) length
// bookkeeping over an exact scan.
func (ic *ItemCollection) Size() int { return ic.store.len() }

// reset clears every slot unconditionally. Called only from
// Context.Reset, which has already verified the Context is at rest.
func (ic *ItemCollection) reset() { ic.store.reset() }

func (ic *ItemCollection) registerWaiterIfStillMissing(inst *StepInstance, tag Tag) bool {
	slot := ic.store.getOrCreate(tag)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.state != stateEmpty {
		return false
	}
	slot.waiters = append(slot.waiters, waiter{inst: inst, gen: inst.generation.Load()})
	return true
}

func (ic *ItemCollection) recordLatency(start time.Time) {
	inst := ic.ctx.instruments()
	if inst.ItemStoreLatency == nil {
		return
	}
	inst.ItemStoreLatency.Record(context.Background(), float64(time.Since(start).Microseconds())/1000.0)
}
