package dataflow

// ParallelFor runs body once for every integer in r and blocks until all
// of them have finished, propagating the first step failure or
// quiescent-but-pending condition exactly as Context.Wait would.
//
// r is bisected down to rangeGrain exactly the way TagCollection.PutRange
// splits a large put, but here each leaf sub-range becomes exactly one
// step instance whose body calls f once per index in that leaf. Leaf
// instances are submitted straight to the scheduler, bypassing a tag
// collection entirely: there is nothing to prescribe or memoize, so
// newStepInstance and Scheduler.enqueue are called directly the same way
// StepCollection.prescribe would. A single parent instance is the wait
// barrier for the whole call: each leaf puts a completion marker when it
// finishes, and the parent's body is an ordinary batch try_get/flush_gets
// join over every marker, so it only runs to completion once every leaf
// has. tuner, when non-nil, governs priority and affinity for the leaf
// instances; the parent always runs unprioritized and unpinned.
func ParallelFor(ctx *Context, r Range, tuner *Tuner, body func(sc *StepContext, i int) error) error {
	leaves := splitLeaves(r, rangeGrain)
	if len(leaves) == 0 {
		return nil
	}

	done := NewItemCollection(ctx, "parallel_for.done", nil, WithDenseBackend(len(leaves)))

	leafBody := func(sc *StepContext) error {
		idx := sc.Tag().(int)
		var err error
		leaves[idx].forEach(func(i int) {
			if err == nil {
				err = body(sc, i)
			}
		})
		if err != nil {
			return err
		}
		return sc.Put(done, idx, struct{}{})
	}
	leafColl := NewStepCollection(ctx, "parallel_for.leaf", leafBody, tuner)

	parentColl := NewStepCollection(ctx, "parallel_for.parent", func(sc *StepContext) error {
		for i := range leaves {
			sc.TryGet(done, i)
		}
		return sc.FlushGets()
	}, nil)

	for i := range leaves {
		inst := newStepInstance(leafColl, i)
		ctx.workStarted()
		inst.setState(StateQueued)
		ctx.sched.enqueue(inst)
	}

	parent := newStepInstance(parentColl, "join")
	ctx.workStarted()
	parent.setState(StateQueued)
	ctx.sched.enqueue(parent)

	return ctx.Wait()
}

// splitLeaves recursively bisects r until every piece is at most grain
// elements, the same halving PutRange uses to fan out a large put.
func splitLeaves(r Range, grain int) []Range {
	if r.Len() == 0 {
		return nil
	}
	if r.Len() <= grain {
		return []Range{r}
	}
	lo, hi := r.split()
	return append(splitLeaves(lo, grain), splitLeaves(hi, grain)...)
}
