package presenter

import (
	"fmt"
	"io"
	"strings"

	"github.com/mabhi256/dngc/internal/gcevent"
	"github.com/mabhi256/dngc/internal/session"
)

// Console writes every record to w as soon as it arrives.
type Console struct {
	w   io.Writer
	fmt *Formatter
}

var _ session.Subscriber = (*Console)(nil)

func NewConsole(w io.Writer, opts Options) *Console {
	return &Console{w: w, fmt: NewFormatter(w, opts)}
}

func (c *Console) write(lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintln(c.w, strings.Join(lines, "\n"))
}

func (c *Console) OnCycleStart(rec gcevent.CycleStart) {
	c.write(c.fmt.CycleStart(rec))
}

func (c *Console) OnPerHeapHistory(rec gcevent.PerHeapHistory) {
	c.write(c.fmt.PerHeapHistory(rec))
}

func (c *Console) OnGlobalHeapHistory(rec gcevent.GlobalHeapHistory) {
	c.write(c.fmt.GlobalHeapHistory(rec))
}

func (c *Console) OnDecodeWarning(err *gcevent.DecodeError) {
	c.write(c.fmt.DecodeWarning(err))
}

func (c *Console) OnSessionFailed(err *session.SessionError) {
	c.write(c.fmt.SessionFailed(err))
}
