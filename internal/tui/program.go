package tui

import (
	"context"
	"fmt"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mabhi256/dngc/internal/gcevent"
	"github.com/mabhi256/dngc/internal/presenter"
	"github.com/mabhi256/dngc/internal/session"
)

// Program runs the TUI next to a session. Records reach the model through
// tea.Program.Send; quitting the TUI fires the session's stop trigger.
type Program struct {
	program  *tea.Program
	fmt      *presenter.Formatter
	quit     chan struct{}
	quitOnce sync.Once
}

func New(target string, opts presenter.Options, teaOpts ...tea.ProgramOption) *Program {
	p := &Program{quit: make(chan struct{})}
	model := newModel(target, p.requestQuit)
	p.program = tea.NewProgram(model, append([]tea.ProgramOption{tea.WithAltScreen()}, teaOpts...)...)
	p.fmt = presenter.NewFormatter(os.Stdout, opts)
	return p
}

func (p *Program) requestQuit() {
	p.quitOnce.Do(func() { close(p.quit) })
}

// Trigger fires when the user leaves the TUI.
func (p *Program) Trigger() session.Trigger {
	return session.TriggerFunc(func(ctx context.Context) error {
		select {
		case <-p.quit:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (p *Program) Subscriber() session.Subscriber {
	return subscriber{p}
}

// SessionEnded shows the session outcome. The TUI stays open until the user quits.
func (p *Program) SessionEnded(err error) {
	p.program.Send(sessionEndedMsg{err: err})
}

func (p *Program) Run() error {
	if _, err := p.program.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	p.requestQuit()
	return nil
}

type subscriber struct {
	p *Program
}

func (s subscriber) OnCycleStart(rec gcevent.CycleStart) {
	s.p.program.Send(cycleMsg{lines: s.p.fmt.CycleStart(rec)})
}

func (s subscriber) OnPerHeapHistory(rec gcevent.PerHeapHistory) {
	s.p.program.Send(heapMsg{lines: s.p.fmt.PerHeapHistory(rec), heap: rec})
}

func (s subscriber) OnGlobalHeapHistory(rec gcevent.GlobalHeapHistory) {
	s.p.program.Send(linesMsg{lines: s.p.fmt.GlobalHeapHistory(rec)})
}

func (s subscriber) OnDecodeWarning(err *gcevent.DecodeError) {
	s.p.program.Send(warningMsg{lines: s.p.fmt.DecodeWarning(err)})
}

func (s subscriber) OnSessionFailed(err *session.SessionError) {
	s.p.program.Send(linesMsg{lines: s.p.fmt.SessionFailed(err)})
}
