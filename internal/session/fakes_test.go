package session_test

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mabhi256/dngc/internal/diag"
	"github.com/mabhi256/dngc/internal/gcevent"
	"github.com/mabhi256/dngc/internal/session"
)

// scriptedSource replays a script of events and errors, then blocks until
// stopped. A nil entry in the script ends the stream cleanly.
type scriptedSource struct {
	script  []any
	pos     int
	stopped chan struct{}
	once    sync.Once
	stops   atomic.Int32
}

func newScriptedSource(script ...any) *scriptedSource {
	return &scriptedSource{script: script, stopped: make(chan struct{})}
}

func (s *scriptedSource) Next() (gcevent.RawEvent, error) {
	if s.pos < len(s.script) {
		item := s.script[s.pos]
		s.pos++
		switch v := item.(type) {
		case gcevent.RawEvent:
			return v, nil
		case error:
			return gcevent.RawEvent{}, v
		case nil:
			return gcevent.RawEvent{}, io.EOF
		}
	}
	<-s.stopped
	return gcevent.RawEvent{}, io.EOF
}

func (s *scriptedSource) Stop() error {
	s.stops.Add(1)
	s.once.Do(func() { close(s.stopped) })
	return nil
}

func attachTo(src session.EventSource) session.Attacher {
	return session.AttachFunc(func(context.Context, int, []diag.Provider) (session.EventSource, error) {
		return src, nil
	})
}

// recorder is a Subscriber keeping every call in order.
type recorder struct {
	mu       sync.Mutex
	calls    []any
	failures []*session.SessionError
	notify   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 64)}
}

func (r *recorder) add(v any) {
	r.mu.Lock()
	r.calls = append(r.calls, v)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recorder) OnCycleStart(rec gcevent.CycleStart)               { r.add(rec) }
func (r *recorder) OnPerHeapHistory(rec gcevent.PerHeapHistory)       { r.add(rec) }
func (r *recorder) OnGlobalHeapHistory(rec gcevent.GlobalHeapHistory) { r.add(rec) }
func (r *recorder) OnDecodeWarning(err *gcevent.DecodeError)          { r.add(err) }

func (r *recorder) OnSessionFailed(err *session.SessionError) {
	r.mu.Lock()
	r.failures = append(r.failures, err)
	r.mu.Unlock()
}

func (r *recorder) Calls() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.calls...)
}

func (r *recorder) Failures() []*session.SessionError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*session.SessionError(nil), r.failures...)
}

func (r *recorder) waitCalls(t *testing.T, n int) {
	t.Helper()
	for range n {
		select {
		case <-r.notify:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %d subscriber calls, got %d", n, len(r.Calls()))
		}
	}
}

// manualTrigger fires when Fire is called.
type manualTrigger struct {
	fire chan struct{}
}

func newManualTrigger() *manualTrigger {
	return &manualTrigger{fire: make(chan struct{})}
}

func (m *manualTrigger) Fire() {
	close(m.fire)
}

func (m *manualTrigger) Wait(ctx context.Context) error {
	select {
	case <-m.fire:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitDone(t *testing.T, c *session.Controller) error {
	t.Helper()
	select {
	case <-c.Done():
		return c.Wait()
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
		return nil
	}
}
