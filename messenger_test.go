package dataflow

import (
	"context"
	"sync"
	"testing"

	"github.com/swarmguard/dataflow/dist"
)

// stubMessenger records every envelope handed to Send without touching a
// network; it exists to verify the core's forwarding call sites, not to
// exercise a real transport.
type stubMessenger struct {
	mu   sync.Mutex
	rank int
	sent []dist.Envelope
}

func (m *stubMessenger) Rank() int { return m.rank }
func (m *stubMessenger) Size() int { return 2 }

func (m *stubMessenger) Send(_ context.Context, env dist.Envelope) error {
	m.mu.Lock()
	m.sent = append(m.sent, env)
	m.mu.Unlock()
	return nil
}

func (m *stubMessenger) Broadcast(ctx context.Context, env dist.Envelope) error {
	return m.Send(ctx, env)
}

func (m *stubMessenger) Recv(ctx context.Context) (dist.Envelope, error) {
	<-ctx.Done()
	return dist.Envelope{}, ctx.Err()
}

func (m *stubMessenger) Close() error { return nil }

func TestTagCollectionComputeOnForwardsRemoteTag(t *testing.T) {
	msgr := &stubMessenger{rank: 0}
	ctx := newTestContextWithMessenger(t, 2, msgr)

	var ran bool
	steps := NewStepCollection(ctx, "local_only", func(sc *StepContext) error {
		ran = true
		return nil
	}, nil)
	tags := NewTagCollection(ctx, "routed", &Tuner{
		ComputeOn: func(tag Tag) (int, bool) { return 1, true },
	})
	tags.Prescribes(steps)

	if err := tags.Put(42); err != nil {
		t.Fatalf("put: %v", err)
	}
	if ran {
		t.Fatalf("a tag routed to a remote rank must not prescribe a local instance")
	}

	msgr.mu.Lock()
	defer msgr.mu.Unlock()
	if len(msgr.sent) != 1 {
		t.Fatalf("expected 1 forwarded envelope, got %d", len(msgr.sent))
	}
	env := msgr.sent[0]
	if env.Kind != dist.KindTagPut || env.Collection != "routed" || env.Tag != 42 || env.ToRank != 1 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestTagCollectionComputeOnLocalRankRunsLocally(t *testing.T) {
	msgr := &stubMessenger{rank: 0}
	ctx := newTestContextWithMessenger(t, 2, msgr)

	var ran bool
	steps := NewStepCollection(ctx, "local_only", func(sc *StepContext) error {
		ran = true
		return nil
	}, nil)
	tags := NewTagCollection(ctx, "routed", &Tuner{
		ComputeOn: func(tag Tag) (int, bool) { return 0, true },
	})
	tags.Prescribes(steps)

	if err := tags.Put(1); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := ctx.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !ran {
		t.Fatalf("a tag routed to this Context's own rank must still run locally")
	}
	msgr.mu.Lock()
	defer msgr.mu.Unlock()
	if len(msgr.sent) != 0 {
		t.Fatalf("expected no forwarded envelopes, got %d", len(msgr.sent))
	}
}

func TestItemCollectionConsumedOnForwardsPut(t *testing.T) {
	msgr := &stubMessenger{rank: 0}
	ctx := newTestContextWithMessenger(t, 2, msgr)

	items := NewItemCollection(ctx, "shared", &Tuner{
		ConsumedOn: func(tag Tag) []int { return []int{0, 1} },
	})

	if err := items.Put("k", "v"); err != nil {
		t.Fatalf("put: %v", err)
	}

	msgr.mu.Lock()
	defer msgr.mu.Unlock()
	if len(msgr.sent) != 1 {
		t.Fatalf("expected 1 forwarded envelope (rank 0 is local and should be skipped), got %d", len(msgr.sent))
	}
	env := msgr.sent[0]
	if env.Kind != dist.KindPut || env.Collection != "shared" || env.Tag != "k" || env.Value != "v" || env.ToRank != 1 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}
