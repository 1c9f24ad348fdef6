package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mabhi256/dngc/internal/diag"
	"github.com/mabhi256/dngc/internal/gcevent"
)

// Controller owns one streaming session. The decode loop and the stop trigger
// race each other; whichever finishes first stops the source, and the session
// ends once both have unwound.
type Controller struct {
	attacher  Attacher
	sub       Subscriber
	trigger   Trigger
	log       *zap.Logger
	rawEvents bool

	mu     sync.Mutex
	state  State
	pid    int
	source EventSource
	err    error

	stopRequested atomic.Bool
	stopOnce      sync.Once
	doneOnce      sync.Once
	done          chan struct{}
}

type Option func(*Controller)

func WithTrigger(t Trigger) Option {
	return func(c *Controller) {
		c.trigger = t
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// WithRawEventLogging logs every raw event at debug level before it is decoded.
func WithRawEventLogging() Option {
	return func(c *Controller) {
		c.rawEvents = true
	}
}

func NewController(attacher Attacher, sub Subscriber, opts ...Option) *Controller {
	c := &Controller{
		attacher: attacher,
		sub:      sub,
		trigger:  Never(),
		log:      zap.NewNop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("session")
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	c.log.Debug("state", zap.Stringer("from", prev), zap.Stringer("to", s))
}

// Start attaches to pid and begins streaming in the background. Cancelling
// ctx stops the session like the trigger does.
func (c *Controller) Start(ctx context.Context, pid int, providers []diag.Provider) error {
	c.mu.Lock()
	if c.state != Idle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot start session: already %s", state)
	}
	c.state = Starting
	c.pid = pid
	c.mu.Unlock()

	c.log.Debug("attaching", zap.Int("pid", pid), zap.Stringers("providers", providers))
	source, err := c.attacher.Attach(ctx, pid, providers)
	if err != nil {
		serr := &SessionError{Kind: AttachFailed, PID: pid, Err: err}
		c.finish(serr)
		return serr
	}
	if c.rawEvents {
		source = newDebugSource(source, c.log)
	}

	c.mu.Lock()
	c.source = source
	c.state = Streaming
	stopEarly := c.stopRequested.Load()
	c.mu.Unlock()
	c.log.Debug("state", zap.Stringer("from", Starting), zap.Stringer("to", Streaming))

	// Stop arrived while attaching
	if stopEarly {
		c.requestStop()
	}

	go c.run(ctx, source)
	return nil
}

func (c *Controller) run(ctx context.Context, source EventSource) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		defer cancel()
		defer c.requestStop()
		return c.decodeLoop(source)
	})
	g.Go(func() error {
		err := c.trigger.Wait(runCtx)
		switch {
		case err == nil:
			c.log.Debug("stop triggered")
		case runCtx.Err() == nil:
			c.log.Warn("stop trigger failed", zap.Error(err))
		case ctx.Err() != nil:
			c.log.Debug("session context done", zap.Error(ctx.Err()))
		default:
			// the decode loop finished first
			return nil
		}
		c.requestStop()
		return nil
	})

	c.finish(g.Wait())
}

func (c *Controller) decodeLoop(source EventSource) error {
	for {
		ev, err := source.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.log.Debug("stream ended")
				return nil
			}
			if c.stopRequested.Load() {
				c.log.Debug("stream ended after stop", zap.Error(err))
				return nil
			}
			return &SessionError{Kind: StreamFailed, PID: c.pid, Err: err}
		}

		// Drain without dispatching once a stop was requested
		if c.stopRequested.Load() {
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Controller) dispatch(ev gcevent.RawEvent) {
	rec, err := gcevent.Decode(ev)
	if err != nil {
		var derr *gcevent.DecodeError
		if !errors.As(err, &derr) {
			derr = &gcevent.DecodeError{Event: ev.Kind, Err: err}
		}
		c.log.Debug("decode warning", zap.Error(derr))
		c.sub.OnDecodeWarning(derr)
	}

	switch r := rec.(type) {
	case gcevent.CycleStart:
		c.sub.OnCycleStart(r)
	case gcevent.PerHeapHistory:
		c.sub.OnPerHeapHistory(r)
	case gcevent.GlobalHeapHistory:
		c.sub.OnGlobalHeapHistory(r)
	}
}

// requestStop stops the source exactly once.
func (c *Controller) requestStop() {
	c.stopRequested.Store(true)

	c.mu.Lock()
	if c.state == Streaming {
		c.state = Stopping
	}
	source := c.source
	c.mu.Unlock()

	if source == nil {
		return
	}
	c.stopOnce.Do(func() {
		if err := source.Stop(); err != nil {
			c.log.Debug("stopping source", zap.Error(err))
		}
	})
}

func (c *Controller) finish(err error) {
	state := Closed
	var serr *SessionError
	if errors.As(err, &serr) {
		state = Failed
	}

	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.setState(state)

	if serr != nil {
		c.sub.OnSessionFailed(serr)
	}
	c.doneOnce.Do(func() { close(c.done) })
}

// Stop requests the session to end. It can be called from any state and any
// goroutine; calls after the first have no effect. Use Wait to block until the
// session has closed.
func (c *Controller) Stop() {
	c.mu.Lock()
	state := c.state
	switch state {
	case Idle:
		c.state = Closed
		c.stopRequested.Store(true)
	case Starting:
		// Start checks this once the attach returns
		c.stopRequested.Store(true)
	}
	c.mu.Unlock()

	switch state {
	case Idle:
		c.doneOnce.Do(func() { close(c.done) })
	case Streaming:
		c.requestStop()
	}
}

// Done is closed once the session reached Closed or Failed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the session ends and returns its *SessionError, if any.
func (c *Controller) Wait() error {
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
