package dataflow

// Tuner is a struct of optional closures a program attaches to a
// collection to influence scheduling, placement, and memory behavior
// without subclassing anything. Every field may be left nil; nil means
// "use the runtime default" and is checked on every call site.
type Tuner struct {
	// GetCount returns how many gets a put item for this tag should
	// survive before it is reclaimed. A negative result means
	// unlimited (never reclaimed by count; only Context.Reset clears
	// it). Nil means the item collection's configured default.
	GetCount func(tag Tag) int

	// Priority orders runnable step instances in the run queues (across
	// all collections) when the scheduler is configured with priority
	// scheduling. Higher
	// values run first; ties fall back to arrival order. Nil means
	// priority zero for every instance.
	Priority func(tag Tag) int

	// Affinity routes a step instance to a specific worker's local
	// queue (0..N-1). Under work stealing an idle peer may still steal
	// it, and the shared-queue scheduler ignores it. A negative result,
	// or one >= N, means no preference. Nil means no preference for any
	// tag.
	Affinity func(tag Tag, numWorkers int) int

	// Depends lets a step declare, ahead of execution, which items it
	// will get. The scheduler uses it for the preschedule dry pass:
	// it checks every (collection, tag) passed to reportGet for
	// presence, without consuming get budget, before ever calling the
	// body, and only queues the
	// instance once all of them are present. Nil disables preschedule
	// for the collection; the instance runs eagerly and suspends on
	// its first genuinely missing get instead.
	Depends func(tag Tag, reportGet func(ic *ItemCollection, itemTag Tag)) error

	// Cancel lets a step collection veto running an instance for a
	// given tag before it is ever queued, based on the tag's value or
	// external state. Returning true drops the instance: it goes
	// straight to Cancelled and never touches the scheduler.
	Cancel func(tag Tag) bool

	// Memoize reports whether two tags put into the same tag
	// collection should be treated as equal for the purpose of
	// prescribing a second step instance. Nil turns memoization off:
	// every put prescribes its own instances, even for a tag equal to
	// one already put.
	Memoize func(a, b Tag) bool

	// ComputeOn reports which distributed rank should run a step
	// instance for tag. Returning ok=false leaves the placement to the
	// scheduler's own default (local).
	ComputeOn func(tag Tag) (rank int, ok bool)

	// ConsumedOn reports which distributed ranks want to get from an
	// item collection for the given tag, so a local put can be
	// eagerly forwarded instead of waiting for a remote get/miss
	// round trip.
	ConsumedOn func(tag Tag) []int
}

func (t *Tuner) getCount(tag Tag, def int) int {
	if t == nil || t.GetCount == nil {
		return def
	}
	return t.GetCount(tag)
}

func (t *Tuner) priority(tag Tag) int {
	if t == nil || t.Priority == nil {
		return 0
	}
	return t.Priority(tag)
}

func (t *Tuner) affinity(tag Tag, numWorkers int) int {
	if t == nil || t.Affinity == nil {
		return -1
	}
	return t.Affinity(tag, numWorkers)
}

func (t *Tuner) cancel(tag Tag) bool {
	if t == nil || t.Cancel == nil {
		return false
	}
	return t.Cancel(tag)
}

func (t *Tuner) memoizeEqual() func(a, b Tag) bool {
	if t == nil {
		return nil
	}
	return t.Memoize
}

func (t *Tuner) computeOn(tag Tag) (int, bool) {
	if t == nil || t.ComputeOn == nil {
		return 0, false
	}
	return t.ComputeOn(tag)
}

func (t *Tuner) consumedOn(tag Tag) []int {
	if t == nil || t.ConsumedOn == nil {
		return nil
	}
	return t.ConsumedOn(tag)
}
