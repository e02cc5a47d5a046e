package dataflow

import (
	"io"
	"log/slog"
	"testing"

	"github.com/swarmguard/dataflow/dist"
	"github.com/swarmguard/dataflow/internal/telemetry"
)

func newTestContext(t *testing.T, numWorkers int) *Context {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := NewContext(
		WithSchedulerConfig(SchedulerConfig{NumWorkers: numWorkers, Kind: SchedulerWorkStealing}),
		WithInstruments(telemetry.NoopInstruments()),
		WithLogger(log),
	)
	t.Cleanup(ctx.Close)
	return ctx
}

func newTestContextWithMessenger(t *testing.T, numWorkers int, m dist.Messenger) *Context {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := NewContext(
		WithSchedulerConfig(SchedulerConfig{NumWorkers: numWorkers, Kind: SchedulerWorkStealing}),
		WithInstruments(telemetry.NoopInstruments()),
		WithLogger(log),
		WithMessenger(m),
	)
	t.Cleanup(ctx.Close)
	return ctx
}
