package dataflow

import (
	"errors"
	"testing"
)

func TestContextResetRequiresQuiescence(t *testing.T) {
	ctx := newTestContext(t, 2)
	items := NewItemCollection(ctx, "items", nil)

	steps := NewStepCollection(ctx, "consumer", func(sc *StepContext) error {
		_, err := sc.Get(items, "k")
		return err
	}, nil)
	tags := NewTagCollection(ctx, "start", nil)
	tags.Prescribes(steps)

	if err := tags.Put(0); err != nil {
		t.Fatalf("put: %v", err)
	}

	// The instance is suspended on "k"; outstanding work is nonzero, so
	// Reset must refuse rather than clear storage out from under it.
	err := ctx.Reset()
	var fatal *FatalError
	if !errors.As(err, &fatal) || fatal.Kind != FatalInvalidSafeState {
		t.Fatalf("expected FatalInvalidSafeState, got %v", err)
	}

	if err := items.Put("k", 1); err != nil {
		t.Fatalf("put k: %v", err)
	}
	if err := ctx.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if err := ctx.Reset(); err != nil {
		t.Fatalf("reset after quiescence: %v", err)
	}
	if !items.Empty() {
		t.Fatalf("expected items cleared after reset")
	}
}

func TestContextWaitSurfacesStepFailure(t *testing.T) {
	ctx := newTestContext(t, 2)
	boom := errors.New("boom")
	steps := NewStepCollection(ctx, "failing", func(sc *StepContext) error {
		return boom
	}, nil)
	tags := NewTagCollection(ctx, "start", nil)
	tags.Prescribes(steps)

	if err := tags.Put(0); err != nil {
		t.Fatalf("put: %v", err)
	}
	err := ctx.Wait()
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected *FatalError, got %v", err)
	}
	if fatal.Kind != FatalStepFailure {
		t.Fatalf("got kind %v, want FatalStepFailure", fatal.Kind)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected errors.Is(err, boom)")
	}
}

func TestTagCollectionCancel(t *testing.T) {
	ctx := newTestContext(t, 2)
	var ran bool
	steps := NewStepCollection(ctx, "cancellable", func(sc *StepContext) error {
		ran = true
		return nil
	}, &Tuner{
		Cancel: func(tag Tag) bool { return tag.(int) == 1 },
	})
	tags := NewTagCollection(ctx, "start", nil)
	tags.Prescribes(steps)

	if err := tags.Put(1); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := ctx.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if ran {
		t.Fatalf("cancelled step should not have run")
	}
}
