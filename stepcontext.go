package dataflow

// StepContext is the explicit handle a running step body uses to read and
// write collections and to know which tag it was instantiated for. It
// takes the place of the implicit "current step" the underlying model
// assumes: Go has no ambient per-goroutine step identity, so every
// collection operation that can suspend takes the StepContext for the
// step performing it.
type StepContext struct {
	inst    *StepInstance
	ctx     *Context
	pending []pendingGet
}

// Tag returns the tag this step instance was prescribed for.
func (sc *StepContext) Tag() Tag { return sc.inst.tag }

// Context returns the owning Context, for step bodies that need to
// create further collections or put further tags dynamically.
func (sc *StepContext) Context() *Context { return sc.ctx }

// Get reads tag from ic. A missing item registers sc's instance as a
// waiter and returns ErrNotReady; the step body should return that error
// immediately and unchanged.
func (sc *StepContext) Get(ic *ItemCollection, tag Tag) (Value, error) {
	return ic.Get(sc, tag)
}

// TryGet reads tag from ic without ever suspending. A miss is recorded
// for a later FlushGets call instead of registering a waiter right away,
// matching the batch get/try_get/flush_gets protocol: a step can probe
// many items and decide what to do before committing to suspend on any
// of them.
func (sc *StepContext) TryGet(ic *ItemCollection, tag Tag) (Value, bool) {
	v, ok := ic.tryGet(tag)
	if !ok {
		sc.pending = append(sc.pending, pendingGet{ic: ic, tag: tag})
	}
	return v, ok
}

// GetUnsafe reads tag from ic without consuming its get budget. See
// ItemCollection.GetUnsafe for when this is and is not appropriate.
func (sc *StepContext) GetUnsafe(ic *ItemCollection, tag Tag) (Value, bool) {
	return ic.GetUnsafe(tag)
}

// GetRange is the batch form of Get: it calls TryGet once per tag in r,
// then folds every miss into one FlushGets call. If every tag was
// already present it returns the full map and a nil error. Otherwise it
// registers waiters for the whole batch at once and returns ErrNotReady,
// same as a single Get miss would; the caller should return that error
// unchanged so the scheduler suspends the instance until the range is
// complete. The returned map is only ever partial when the error is
// non-nil (ErrNotReady, or ErrGone if an item in the range was already
// reclaimed), and callers that need a non-suspending snapshot of whatever is
// present right now should use ItemCollection.PeekRange instead.
func (sc *StepContext) GetRange(ic *ItemCollection, r Range) (map[Tag]Value, error) {
	out := make(map[Tag]Value, r.Len())
	r.forEach(func(i int) {
		if v, ok := sc.TryGet(ic, i); ok {
			out[i] = v
		}
	})
	if err := sc.FlushGets(); err != nil {
		return out, err
	}
	// A tag that arrived between its TryGet miss and FlushGets is no longer
	// a miss but has not been read yet; read it now.
	var err error
	r.forEach(func(i int) {
		if _, ok := out[i]; ok || err != nil {
			return
		}
		if v, ok := ic.tryGet(i); ok {
			out[i] = v
		} else {
			err = ErrGone
		}
	})
	return out, err
}

// FlushGets closes out the batch of TryGet misses accumulated since the
// last FlushGets call (or since the step started). If any of them are
// still missing it registers waiters for all of them and returns
// ErrNotReady; the caller should return that error unchanged so the
// scheduler suspends the instance until every one of them arrives. If
// none are missing, or the pending batch is empty, it returns nil and
// the step may proceed.
//
// depCounter is bumped by one immediately after each waiter registers,
// not once for the whole batch at the end: the caller (Scheduler.execute
// or preschedule) holds a bias token on depCounter for the whole call, so
// a resume racing in mid-loop can decrement what's been registered so far
// without ever seeing the counter hit zero before this loop and the
// caller's own release have both had their turn. Registering every waiter
// first and only adding the total once would leave a window where an
// early resume's decrement lands on a counter that doesn't yet reflect
// its own registration, and could drive it to zero while later items in
// this same batch are still being registered.
func (sc *StepContext) FlushGets() error {
	if len(sc.pending) == 0 {
		return nil
	}
	pending := sc.pending
	sc.pending = nil
	misses := 0
	for _, p := range pending {
		if p.ic.registerWaiterIfStillMissing(sc.inst, p.tag) {
			misses++
			sc.inst.depCounter.Add(1)
		}
	}
	if misses == 0 {
		return nil
	}
	return ErrNotReady
}

// Put publishes a value into ic under tag.
func (sc *StepContext) Put(ic *ItemCollection, tag Tag, v Value) error {
	return ic.Put(tag, v)
}

// PutTag puts tag into tc, prescribing whatever step collections tc was
// declared to prescribe.
func (sc *StepContext) PutTag(tc *TagCollection, tag Tag) error {
	return tc.Put(tag)
}
