// Package natsmsgr implements dist.Messenger over NATS core pub/sub,
// carrying W3C trace context in message headers the same way the
// teacher's internal NATS helper does for its own service-to-service
// calls, so a distributed dataflow run's spans stay attached to whatever
// the rest of the deployment traces.
package natsmsgr

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmguard/dataflow/dist"
	"github.com/swarmguard/dataflow/internal/resilience"
)

var propagator = propagation.TraceContext{}

// Serializer converts item and tag values to and from wire bytes. The
// default uses encoding/json; a program with binary-only payloads (large
// matrices, for instance) can supply its own via WithSerializer.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte) (any, error)
}

type jsonSerializer struct{}

func (jsonSerializer) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonSerializer) Unmarshal(data []byte) (any, error) {
	var v any
	err := json.Unmarshal(data, &v)
	return v, err
}

type wireEnvelope struct {
	ID         string   `json:"id"`
	Kind       dist.Kind `json:"kind"`
	Collection string   `json:"collection"`
	Tag        []byte   `json:"tag"`
	Value      []byte   `json:"value,omitempty"`
	FromRank   int      `json:"from_rank"`
	ToRank     int      `json:"to_rank"`
}

// Messenger is a dist.Messenger backed by a NATS connection: one subject
// per rank, at subjectPrefix + ".rank." + rank.
type Messenger struct {
	nc            *nats.Conn
	rank          int
	size          int
	subjectPrefix string
	ser           Serializer

	sub   *nats.Subscription
	inbox chan dist.Envelope

	breakersMu sync.Mutex
	breakers   map[int]*resilience.CircuitBreaker
	limiter    *resilience.RateLimiter
	tracer     trace.Tracer
}

// Option configures a Messenger at construction time.
type Option func(*Messenger)

// WithSerializer overrides the default JSON serializer.
func WithSerializer(s Serializer) Option {
	return func(m *Messenger) { m.ser = s }
}

// WithBroadcastRateLimit caps outbound broadcast fan-out to at most n
// sends per window; excess broadcast sends in a window are dropped and
// counted by the resilience package's own drop metrics.
func WithBroadcastRateLimit(n int64, window time.Duration) Option {
	return func(m *Messenger) { m.limiter = resilience.NewRateLimiter(n, float64(n)/window.Seconds(), window, n) }
}

// New connects a Messenger for the given rank out of size total ranks,
// subscribing to its own inbound subject before returning.
func New(nc *nats.Conn, rank, size int, subjectPrefix string, opts ...Option) (*Messenger, error) {
	m := &Messenger{
		nc:            nc,
		rank:          rank,
		size:          size,
		subjectPrefix: subjectPrefix,
		ser:           jsonSerializer{},
		inbox:         make(chan dist.Envelope, 256),
		breakers:      make(map[int]*resilience.CircuitBreaker),
		tracer:        otel.Tracer("dataflow-natsmsgr"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.limiter == nil {
		m.limiter = resilience.NewRateLimiter(64, 64, time.Second, 256)
	}

	sub, err := nc.Subscribe(m.subjectFor(rank), m.onMessage)
	if err != nil {
		return nil, fmt.Errorf("natsmsgr: subscribe rank %d: %w", rank, err)
	}
	m.sub = sub
	return m, nil
}

func (m *Messenger) Rank() int { return m.rank }
func (m *Messenger) Size() int { return m.size }

func (m *Messenger) subjectFor(rank int) string {
	return fmt.Sprintf("%s.rank.%d", m.subjectPrefix, rank)
}

func (m *Messenger) breakerFor(rank int) *resilience.CircuitBreaker {
	m.breakersMu.Lock()
	defer m.breakersMu.Unlock()
	if cb, ok := m.breakers[rank]; ok {
		return cb
	}
	cb := resilience.NewCircuitBreaker(30*time.Second, 6, 5, 0.5, 5*time.Second, 3)
	m.breakers[rank] = cb
	return cb
}

// Send delivers env to env.ToRank, retrying transient publish failures
// with backoff and tripping a per-destination circuit breaker after
// sustained failures.
func (m *Messenger) Send(ctx context.Context, env dist.Envelope) error {
	cb := m.breakerFor(env.ToRank)
	ctx, span := m.tracer.Start(ctx, "natsmsgr.send", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	_, err := resilience.Retry(ctx, 3, 50*time.Millisecond, func() (struct{}, error) {
		if !cb.Allow() {
			return struct{}{}, fmt.Errorf("natsmsgr: circuit open for rank %d", env.ToRank)
		}
		sendErr := m.publish(ctx, env)
		cb.RecordResult(sendErr == nil)
		return struct{}{}, sendErr
	})
	return err
}

// Broadcast delivers env to every rank but this one, dropping individual
// destinations the rate limiter is currently throttling rather than
// blocking the caller.
func (m *Messenger) Broadcast(ctx context.Context, env dist.Envelope) error {
	var firstErr error
	for r := 0; r < m.size; r++ {
		if r == m.rank {
			continue
		}
		if !m.limiter.Allow() {
			continue
		}
		out := env
		out.ToRank = r
		if err := m.Send(ctx, out); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Messenger) publish(ctx context.Context, env dist.Envelope) error {
	tagBytes, err := m.ser.Marshal(env.Tag)
	if err != nil {
		return fmt.Errorf("natsmsgr: marshal tag: %w", err)
	}
	var valBytes []byte
	if env.Value != nil {
		valBytes, err = m.ser.Marshal(env.Value)
		if err != nil {
			return fmt.Errorf("natsmsgr: marshal value: %w", err)
		}
	}
	wire := wireEnvelope{
		ID:         uuid.NewString(),
		Kind:       env.Kind,
		Collection: env.Collection,
		Tag:        tagBytes,
		Value:      valBytes,
		FromRank:   m.rank,
		ToRank:     env.ToRank,
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("natsmsgr: marshal envelope: %w", err)
	}
	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	msg := &nats.Msg{Subject: m.subjectFor(env.ToRank), Data: data, Header: hdr}
	return m.nc.PublishMsg(msg)
}

func (m *Messenger) onMessage(msg *nats.Msg) {
	var wire wireEnvelope
	if err := json.Unmarshal(msg.Data, &wire); err != nil {
		return
	}
	carrier := propagation.HeaderCarrier(msg.Header)
	ctx := propagator.Extract(context.Background(), carrier)
	ctx, span := m.tracer.Start(ctx, "natsmsgr.recv", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	tag, err := m.ser.Unmarshal(wire.Tag)
	if err != nil {
		return
	}
	var value any
	if len(wire.Value) > 0 {
		value, err = m.ser.Unmarshal(wire.Value)
		if err != nil {
			return
		}
	}
	env := dist.Envelope{
		Kind:       wire.Kind,
		Collection: wire.Collection,
		Tag:        tag,
		Value:      value,
		FromRank:   wire.FromRank,
		ToRank:     wire.ToRank,
	}
	select {
	case m.inbox <- env:
	case <-ctx.Done():
	}
}

// Recv blocks until an envelope addressed to this rank arrives or ctx is
// cancelled.
func (m *Messenger) Recv(ctx context.Context) (dist.Envelope, error) {
	select {
	case env := <-m.inbox:
		return env, nil
	case <-ctx.Done():
		return dist.Envelope{}, ctx.Err()
	}
}

// Close unsubscribes from this rank's inbound subject. The underlying
// *nats.Conn is owned by the caller and is not closed here.
func (m *Messenger) Close() error {
	if m.sub == nil {
		return nil
	}
	return m.sub.Unsubscribe()
}

var _ dist.Messenger = (*Messenger)(nil)
