package dataflow

import (
	"sync"

	"github.com/swarmguard/dataflow/dist"
)

const rangeGrain = 64

// TagCollection is the trigger for step prescription: putting a tag into
// it causes every StepCollection it prescribes to create a step instance
// for that tag (with Memoize, a tag equal to one already put is skipped).
type TagCollection struct {
	ctx   *Context
	name  string
	tuner *Tuner

	mu         sync.Mutex
	prescribed []*StepCollection
	seen       []Tag // only populated when tuner.Memoize is set
	onPut      []func(Tag)
}

// NewTagCollection registers a tag collection on ctx.
func NewTagCollection(ctx *Context, name string, tuner *Tuner) *TagCollection {
	tc := &TagCollection{ctx: ctx, name: name, tuner: tuner}
	ctx.register(tc)
	return tc
}

// Prescribes declares that putting a tag into tc creates a step instance
// in sc. A tag collection may prescribe any number of step collections;
// each one gets its own instance for the tag.
func (tc *TagCollection) Prescribes(sc *StepCollection) {
	tc.mu.Lock()
	tc.prescribed = append(tc.prescribed, sc)
	tc.mu.Unlock()
}

// OnPut registers an observer called synchronously, after prescription,
// every time a tag is put. It exists for diagnostics, not for dataflow
// logic; the runtime itself registers no observers.
func (tc *TagCollection) OnPut(fn func(Tag)) {
	tc.mu.Lock()
	tc.onPut = append(tc.onPut, fn)
	tc.mu.Unlock()
}

// Put prescribes tag in every collection tc.Prescribes was called with.
// With a Memoize tuner set, a tag judged equal to one already put is
// silently ignored instead of prescribing a second round of instances.
//
// If the tuner's ComputeOn hint names a rank other than this Context's
// own, the tag is forwarded to that rank over the attached Messenger
// instead of being prescribed locally: placement belongs to whichever
// rank ComputeOn names, and the local scheduler never creates an
// instance for it. With no Messenger attached, or when ComputeOn
// returns ok=false or this Context's own rank, placement is unaffected
// and Put behaves exactly as a purely local run.
func (tc *TagCollection) Put(tag Tag) error {
	tc.mu.Lock()
	if eq := tc.tuner.memoizeEqual(); eq != nil {
		for _, prior := range tc.seen {
			if eq(prior, tag) {
				tc.mu.Unlock()
				return nil
			}
		}
		tc.seen = append(tc.seen, tag)
	}
	targets := append([]*StepCollection(nil), tc.prescribed...)
	observers := append([]func(Tag){}, tc.onPut...)
	tc.mu.Unlock()

	if rank, ok := tc.tuner.computeOn(tag); ok && rank != tc.ctx.rank() {
		tc.ctx.forward(dist.Envelope{Kind: dist.KindTagPut, Collection: tc.name, Tag: tag, ToRank: rank})
		for _, fn := range observers {
			fn(tag)
		}
		return nil
	}

	for _, sc := range targets {
		sc.prescribe(tag)
	}
	for _, fn := range observers {
		fn(tag)
	}
	return nil
}

// PutRange recursively bisects r until a piece is at most rangeGrain
// elements, then puts every integer in that piece individually, so every
// integer in r is put as its own tag, in range order. All puts run on the
// calling goroutine; the halves are not put as tags of their own.
func (tc *TagCollection) PutRange(r Range) error {
	if r.Len() <= rangeGrain {
		var err error
		r.forEach(func(i int) {
			if e := tc.Put(i); e != nil && err == nil {
				err = e
			}
		})
		return err
	}
	lo, hi := r.split()
	if err := tc.PutRange(lo); err != nil {
		return err
	}
	return tc.PutRange(hi)
}
