package session

import (
	"bufio"
	"context"
	"errors"
	"io"
	"time"

	"github.com/muesli/cancelreader"
)

// Trigger decides when an operator or timer asks the session to stop. Wait
// returns nil when the trigger fired and ctx.Err() when ctx ended first.
type Trigger interface {
	Wait(ctx context.Context) error
}

type TriggerFunc func(ctx context.Context) error

func (f TriggerFunc) Wait(ctx context.Context) error {
	return f(ctx)
}

// Never fires only through ctx, for sessions that run until the stream ends or
// the process is interrupted.
func Never() Trigger {
	return TriggerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
}

// After fires once d has elapsed.
func After(d time.Duration) Trigger {
	return TriggerFunc(func(ctx context.Context) error {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// Keypress fires when a line (Enter) is read from r. A closed or empty input
// is not a stop request: the trigger then waits for ctx.
func Keypress(r io.Reader) Trigger {
	return TriggerFunc(func(ctx context.Context) error {
		var cr cancelreader.CancelReader
		src := r
		if c, err := cancelreader.NewReader(r); err == nil {
			cr = c
			src = c
			defer cr.Close()
		}

		pressed := make(chan error, 1)
		go func() {
			_, err := bufio.NewReader(src).ReadString('\n')
			pressed <- err
		}()

		select {
		case err := <-pressed:
			if err == nil {
				return nil
			}
			if !errors.Is(err, cancelreader.ErrCanceled) {
				<-ctx.Done()
			}
			return ctx.Err()
		case <-ctx.Done():
			if cr != nil {
				cr.Cancel()
			}
			return ctx.Err()
		}
	})
}
