package dataflow

// Tag is the key type prescribing step instances and indexing items. Any
// comparable Go value works: an int, a string, a struct of comparable
// fields. The runtime stores tags as map keys internally, so a Tag backed
// by a slice, map, or function value will panic the first time the
// runtime hashes it; callers needing composite keys should use a
// comparable struct instead.
type Tag = any

// Value is the payload type carried by items. Unlike Tag it is never used
// as a map key, so any Go value is accepted.
type Value = any

// Range describes a contiguous half-open integer interval [Lo, Hi) used
// by TagCollection.PutRange and ParallelFor. Step defaults to 1 when
// zero.
type Range struct {
	Lo, Hi, Step int
}

func (r Range) normalized() Range {
	if r.Step == 0 {
		r.Step = 1
	}
	return r
}

// Len reports how many integers the range covers.
func (r Range) Len() int {
	r = r.normalized()
	if r.Step > 0 {
		if r.Hi <= r.Lo {
			return 0
		}
		return (r.Hi-r.Lo+r.Step-1)/r.Step
	}
	if r.Lo <= r.Hi {
		return 0
	}
	return (r.Lo-r.Hi-r.Step-1) / (-r.Step)
}

// split partitions the range in half by index count, used to build the
// binary splitting tree ParallelFor and TagCollection.PutRange walk down
// to a configured grain before emitting leaf work.
func (r Range) split() (Range, Range) {
	r = r.normalized()
	n := r.Len()
	mid := r.Lo + (n/2)*r.Step
	return Range{r.Lo, mid, r.Step}, Range{mid, r.Hi, r.Step}
}

// forEach calls fn once per integer in the range, in range order.
func (r Range) forEach(fn func(int)) {
	r = r.normalized()
	if r.Step > 0 {
		for i := r.Lo; i < r.Hi; i += r.Step {
			fn(i)
		}
		return
	}
	for i := r.Lo; i > r.Hi; i += r.Step {
		fn(i)
	}
}
