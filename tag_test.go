package dataflow

import "testing"

func TestRangeLen(t *testing.T) {
	cases := []struct {
		r    Range
		want int
	}{
		{Range{0, 10, 1}, 10},
		{Range{0, 10, 2}, 5},
		{Range{0, 0, 1}, 0},
		{Range{5, 5, 1}, 0},
		{Range{0, 9, 2}, 5},
	}
	for _, c := range cases {
		if got := c.r.Len(); got != c.want {
			t.Errorf("Range%+v.Len() = %d, want %d", c.r, got, c.want)
		}
	}
}

func TestRangeForEach(t *testing.T) {
	var got []int
	Range{0, 5, 1}.forEach(func(i int) { got = append(got, i) })
	want := []int{0, 1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestRangeSplit(t *testing.T) {
	lo, hi := Range{0, 10, 1}.split()
	if lo.Len()+hi.Len() != 10 {
		t.Fatalf("split lost elements: %d + %d != 10", lo.Len(), hi.Len())
	}
	if lo.Hi != hi.Lo {
		t.Fatalf("split halves not adjacent: %d != %d", lo.Hi, hi.Lo)
	}
}
