// Package dist defines the collaborator interface a distributed
// transport implements to carry puts, gets, and control messages between
// cooperating processes running the same dataflow graph. The in-process
// runtime never imports a concrete transport; it depends only on this
// package, so a single-process program pays nothing for distribution it
// doesn't use.
package dist

import "context"

// Envelope is the wire-level unit a Messenger exchanges: one item put,
// one tag put, one get request, or one get reply, addressed by
// collection name and tag.
type Envelope struct {
	Kind       Kind
	Collection string
	Tag        any
	Value      any
	FromRank   int
	ToRank     int
}

// Kind discriminates the four envelope shapes a dataflow program needs
// on the wire.
type Kind int

const (
	KindPut Kind = iota
	KindGetRequest
	KindGetReply
	KindTagPut
)

// Messenger is the transport collaborator a distributed Context hands
// item puts and tag puts to once its own Tuner.ComputeOn/ConsumedOn hooks
// decide a tag belongs to, or is wanted by, a remote rank. Implementors
// own connection setup/teardown and delivery guarantees; the dataflow
// core itself calls only Rank and Send.
type Messenger interface {
	// Rank reports this process's rank in the distributed run.
	Rank() int
	// Size reports how many ranks are participating.
	Size() int
	// Send delivers env to env.ToRank.
	Send(ctx context.Context, env Envelope) error
	// Broadcast delivers env to every rank other than this one.
	Broadcast(ctx context.Context, env Envelope) error
	// Recv blocks until an envelope addressed to this rank arrives or
	// ctx is cancelled.
	Recv(ctx context.Context) (Envelope, error)
	// Close releases the underlying transport.
	Close() error
}

// Mode selects whether a Context runs standalone or joins a distributed
// run, read from the DIST_MODE environment variable by ModeFromEnv.
type Mode string

const (
	// ModeNone is the default: no Messenger, no distributed behavior.
	ModeNone Mode = "none"
	// ModeClient joins an existing distributed run as a non-root rank.
	ModeClient Mode = "client"
	// ModeServer starts a distributed run as rank 0.
	ModeServer Mode = "server"
)
