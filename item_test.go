package dataflow

import "testing"

func TestItemPutGet(t *testing.T) {
	ctx := newTestContext(t, 2)
	items := NewItemCollection(ctx, "items", nil)

	if err := items.Put(1, "hello"); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, err := items.Get(nil, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != "hello" {
		t.Fatalf("got %v want hello", v)
	}
}

func TestItemGetBeforePutReturnsNotReady(t *testing.T) {
	ctx := newTestContext(t, 2)
	items := NewItemCollection(ctx, "items", nil)

	if _, err := items.Get(nil, 42); err != ErrNotReady {
		t.Fatalf("got %v want ErrNotReady", err)
	}
}

func TestItemAlreadyPresent(t *testing.T) {
	ctx := newTestContext(t, 2)
	items := NewItemCollection(ctx, "items", nil)

	if err := items.Put(1, "a"); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := items.Put(1, "b"); err != ErrItemAlreadyPresent {
		t.Fatalf("got %v want ErrItemAlreadyPresent", err)
	}
}

func TestItemRedefinitionAllowed(t *testing.T) {
	ctx := newTestContext(t, 2)
	items := NewItemCollection(ctx, "items", nil, WithRedefinition())

	if err := items.Put(1, "a"); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := items.Put(1, "b"); err != nil {
		t.Fatalf("redefine put: %v", err)
	}
	v, _ := items.Get(nil, 1)
	if v != "b" {
		t.Fatalf("got %v want b", v)
	}
}

func TestItemReclaimAfterGetCount(t *testing.T) {
	ctx := newTestContext(t, 2)
	items := NewItemCollection(ctx, "items", &Tuner{
		GetCount: func(Tag) int { return 2 },
	})

	if err := items.Put(1, "v"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := items.Get(nil, 1); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if _, err := items.Get(nil, 1); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if _, err := items.Get(nil, 1); err != ErrGone {
		t.Fatalf("got %v want ErrGone after get budget exhausted", err)
	}
}

func TestItemGetUnsafeDoesNotConsumeBudget(t *testing.T) {
	ctx := newTestContext(t, 2)
	items := NewItemCollection(ctx, "items", nil) // default get count 1

	if err := items.Put(1, "v"); err != nil {
		t.Fatalf("put: %v", err)
	}
	for i := 0; i < 5; i++ {
		v, ok := items.GetUnsafe(1)
		if !ok || v != "v" {
			t.Fatalf("GetUnsafe iteration %d: got (%v, %v)", i, v, ok)
		}
	}
}

func TestItemPeekRange(t *testing.T) {
	ctx := newTestContext(t, 2)
	items := NewItemCollection(ctx, "items", nil, WithDenseBackend(8))

	for i := 0; i < 4; i++ {
		items.Put(i, i*i)
	}
	vals, complete := items.PeekRange(Range{0, 8, 1})
	if complete {
		t.Fatalf("expected incomplete range, only 4 of 8 are present")
	}
	for i := 0; i < 4; i++ {
		if vals[i] != i*i {
			t.Fatalf("PeekRange[%d] = %v, want %d", i, vals[i], i*i)
		}
	}
}

func TestItemIterateAndEmpty(t *testing.T) {
	ctx := newTestContext(t, 2)
	items := NewItemCollection(ctx, "items", nil)

	if !items.Empty() {
		t.Fatalf("expected empty collection")
	}
	items.Put("a", 1)
	items.Put("b", 2)
	if items.Empty() {
		t.Fatalf("expected non-empty collection")
	}
	seen := map[Tag]Value{}
	items.Iterate(func(tag Tag, v Value) bool {
		seen[tag] = v
		return true
	})
	if len(seen) != 2 {
		t.Fatalf("iterate saw %d items, want 2", len(seen))
	}
}
