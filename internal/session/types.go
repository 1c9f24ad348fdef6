// Package session runs one live GC event session against a target process.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/mabhi256/dngc/internal/diag"
	"github.com/mabhi256/dngc/internal/gcevent"
)

type State int32

const (
	Idle State = iota
	Starting
	Streaming
	Stopping
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Streaming:
		return "streaming"
	case Stopping:
		return "stopping"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == Closed || s == Failed
}

// EventSource is a live stream of raw runtime events.
//
// Next blocks until an event arrives. It returns io.EOF once the stream has
// ended cleanly, including after Stop. Stop must be safe to call concurrently
// with Next and more than once.
type EventSource interface {
	Next() (gcevent.RawEvent, error)
	Stop() error
}

// Attacher opens an EventSource on a process for the requested providers.
type Attacher interface {
	Attach(ctx context.Context, pid int, providers []diag.Provider) (EventSource, error)
}

type AttachFunc func(ctx context.Context, pid int, providers []diag.Provider) (EventSource, error)

func (f AttachFunc) Attach(ctx context.Context, pid int, providers []diag.Provider) (EventSource, error) {
	return f(ctx, pid, providers)
}

// DiagAttacher attaches through the runtime's diagnostics IPC endpoint.
func DiagAttacher(opts diag.Options) Attacher {
	return AttachFunc(func(ctx context.Context, pid int, providers []diag.Provider) (EventSource, error) {
		s, err := diag.Attach(ctx, pid, providers, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Subscriber receives decoded records in stream order, synchronously from the
// decode loop.
type Subscriber interface {
	OnCycleStart(gcevent.CycleStart)
	OnPerHeapHistory(gcevent.PerHeapHistory)
	OnGlobalHeapHistory(gcevent.GlobalHeapHistory)
	OnDecodeWarning(*gcevent.DecodeError)
	OnSessionFailed(*SessionError)
}

var (
	ErrAttachFailed = errors.New("attach failed")
	ErrStreamFailed = errors.New("event stream failed")
)

type ErrorKind int

const (
	AttachFailed ErrorKind = iota
	StreamFailed
)

// SessionError ends a session. It matches ErrAttachFailed or ErrStreamFailed
// with errors.Is depending on its Kind.
type SessionError struct {
	Kind ErrorKind
	PID  int
	Err  error
}

func (e *SessionError) sentinel() error {
	if e.Kind == AttachFailed {
		return ErrAttachFailed
	}
	return ErrStreamFailed
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("pid %d: %v: %v", e.PID, e.sentinel(), e.Err)
}

func (e *SessionError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *SessionError) Unwrap() error {
	return e.Err
}
