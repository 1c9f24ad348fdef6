package diag

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mabhi256/dngc/internal/gcevent"
)

const defaultRequestTimeout = 5 * time.Second

type Options struct {
	// Dir overrides where diagnostics sockets are looked up.
	Dir      string
	BufferMB uint32
	Rundown  bool
	// StopGrace bounds how long the stream is drained after StopTracing.
	StopGrace      time.Duration
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Dir == "" {
		o.Dir = EndpointDir()
	}
	if o.BufferMB == 0 {
		o.BufferMB = 256
	}
	if o.StopGrace <= 0 {
		o.StopGrace = 2 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaultRequestTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Session is one EventPipe tracing session streaming from a runtime.
type Session struct {
	id       uint64
	pid      int
	endpoint string
	opts     Options
	log      *zap.Logger

	conn   net.Conn
	reader *traceReader

	stopOnce  sync.Once
	stopped   atomic.Bool
	closeOnce sync.Once
}

func dial(ctx context.Context, endpoint string, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s", endpoint)
	}
	return conn, nil
}

// Attach opens a tracing session on pid for the given providers.
func Attach(ctx context.Context, pid int, providers []Provider, opts Options) (*Session, error) {
	opts = opts.withDefaults()

	endpoint, err := FindEndpoint(opts.Dir, pid)
	if err != nil {
		return nil, err
	}

	conn, err := dial(ctx, endpoint, opts.RequestTimeout)
	if err != nil {
		return nil, err
	}

	req := collectTracingRequest{bufferMB: opts.BufferMB, rundown: opts.Rundown, providers: providers}
	id, err := requestSession(ctx, conn, req, opts.RequestTimeout)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "start tracing on pid %d", pid)
	}

	opts.Logger.Debug("tracing session started",
		zap.Int("pid", pid),
		zap.String("endpoint", endpoint),
		zap.Uint64("session", id),
		zap.Stringers("providers", providers))

	return &Session{
		id:       id,
		pid:      pid,
		endpoint: endpoint,
		opts:     opts,
		log:      opts.Logger,
		conn:     conn,
		reader:   newTraceReader(conn),
	}, nil
}

func requestSession(ctx context.Context, conn net.Conn, req collectTracingRequest, timeout time.Duration) (uint64, error) {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, errors.Wrap(err, "set deadline")
	}

	if err := writeMessage(conn, req.message()); err != nil {
		return 0, err
	}
	payload, err := readResponse(conn)
	if err != nil {
		return 0, err
	}
	id, err := readSessionID(payload)
	if err != nil {
		return 0, err
	}

	// the trace stream can stay quiet for as long as the runtime does not collect
	return id, errors.Wrap(conn.SetDeadline(time.Time{}), "clear deadline")
}

func (s *Session) ID() uint64 {
	return s.id
}

func (s *Session) PID() int {
	return s.pid
}

// Next blocks for the next runtime event. It returns io.EOF when the stream
// has ended cleanly or was drained after Stop.
func (s *Session) Next() (gcevent.RawEvent, error) {
	ev, err := s.reader.Next()
	if err == nil {
		return ev, nil
	}

	s.close()
	if errors.Is(err, io.EOF) {
		return gcevent.RawEvent{}, io.EOF
	}
	if s.stopped.Load() {
		s.log.Debug("stream ended after stop", zap.Error(err))
		return gcevent.RawEvent{}, io.EOF
	}
	return gcevent.RawEvent{}, errors.Wrapf(err, "read trace stream of pid %d", s.pid)
}

// Stop asks the runtime to end the session and lets the stream drain for at
// most StopGrace. It is safe to call more than once and from any goroutine.
func (s *Session) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.stopped.Store(true)

		err = s.sendStop()
		if err != nil {
			s.log.Debug("stop tracing failed, closing stream", zap.Error(err))
			s.close()
			return
		}
		if dlErr := s.conn.SetReadDeadline(time.Now().Add(s.opts.StopGrace)); dlErr != nil {
			s.close()
		}
	})
	return err
}

func (s *Session) sendStop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()

	conn, err := dial(ctx, s.endpoint, s.opts.RequestTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.opts.RequestTimeout)); err != nil {
		return errors.Wrap(err, "set deadline")
	}
	if err := writeMessage(conn, stopTracingMessage(s.id)); err != nil {
		return err
	}
	if _, err := readResponse(conn); err != nil {
		return errors.Wrapf(err, "stop session %d", s.id)
	}
	return nil
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
}
