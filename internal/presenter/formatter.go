// Package presenter renders decoded GC records as console lines.
package presenter

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/mabhi256/dngc/internal/gcevent"
	"github.com/mabhi256/dngc/internal/session"
	"github.com/mabhi256/dngc/utils"
)

type Options struct {
	Verbose bool // per-heap generation tables
	Human   bool // 1.5M instead of 1572864
	NoColor bool
}

const tableWidth = 77

var tableRows = []struct {
	label string
	value func(gcevent.GenerationStats) uint64
}{
	{"Budget", func(s gcevent.GenerationStats) uint64 { return s.Budget }},
	{"Begin size", func(s gcevent.GenerationStats) uint64 { return s.SizeBefore }},
	{"Begin obj size", func(s gcevent.GenerationStats) uint64 { return s.ObjSpaceBefore }},
	{"Final size", func(s gcevent.GenerationStats) uint64 { return s.SizeAfter }},
	{"Promoted size", gcevent.GenerationStats.Promoted},
	{"Fragmentation", func(s gcevent.GenerationStats) uint64 { return s.Fragmentation }},
}

// Formatter turns records into display lines. It holds no per-session state.
type Formatter struct {
	opts Options

	gen        map[gcevent.Generation]lipgloss.Style
	plain      lipgloss.Style
	induced    lipgloss.Style
	compaction lipgloss.Style
	concurrent lipgloss.Style
	muted      lipgloss.Style
	failure    lipgloss.Style
}

// NewFormatter renders styles for w's terminal, or without color when
// opts.NoColor is set or w is not a terminal.
func NewFormatter(w io.Writer, opts Options) *Formatter {
	r := lipgloss.NewRenderer(w)
	if opts.NoColor {
		r.SetColorProfile(termenv.Ascii)
	}
	return newFormatter(r, opts)
}

func newFormatter(r *lipgloss.Renderer, opts Options) *Formatter {
	fg := func(c lipgloss.Color) lipgloss.Style {
		return r.NewStyle().Foreground(c)
	}
	return &Formatter{
		opts: opts,
		gen: map[gcevent.Generation]lipgloss.Style{
			0: fg(utils.Gen0Color),
			1: fg(utils.Gen1Color),
			2: fg(utils.Gen2Color),
		},
		plain:      r.NewStyle(),
		induced:    fg(utils.InducedColor),
		compaction: fg(utils.CompactionColor),
		concurrent: fg(utils.ConcurrentColor),
		muted:      fg(utils.MutedColor),
		failure:    fg(utils.CriticalColor).Bold(true),
	}
}

func (f *Formatter) generation(g gcevent.Generation) string {
	style, ok := f.gen[g]
	if !ok {
		style = f.plain
	}
	return style.Render(g.String())
}

// CycleStart renders the opening line of a collection, preceded by a blank line.
func (f *Formatter) CycleStart(rec gcevent.CycleStart) []string {
	reason := rec.Reason.String()
	if rec.Reason.IsInduced() {
		reason = f.induced.Render(reason)
	}
	return []string{
		"",
		fmt.Sprintf("_______#%d %s = %s", rec.Count, f.generation(rec.Depth), reason),
	}
}

// PerHeapHistory renders the condemn decision for heap 0 and, when verbose,
// the generation table of every heap.
func (f *Formatter) PerHeapHistory(rec gcevent.PerHeapHistory) []string {
	var lines []string

	if rec.ReportsCondemnDecision() {
		line := fmt.Sprintf("  condemn %s -> %s [budget %s]",
			f.generation(rec.InitialGeneration()),
			f.generation(rec.FinalGeneration()),
			rec.BudgetGeneration())
		if conditions := rec.Conditions(); conditions.Len() > 0 {
			line += " " + gcevent.ConditionTable.Join(conditions, ", ")
		}
		lines = append(lines, line)

		if f.opts.Verbose {
			lines = append(lines, strings.Repeat("~", tableWidth))
		}
	}

	if !f.opts.Verbose {
		return lines
	}

	lines = append(lines,
		fmt.Sprintf("      heap #%2d       Gen0         Gen1         Gen2          LOH          POH", rec.HeapIndex),
		strings.Repeat("-", tableWidth))
	for _, row := range tableRows {
		cells := make([]string, 0, gcevent.GenerationSlotCount)
		for _, slot := range gcevent.AllGenerationSlots() {
			cells = append(cells, f.size(row.value(rec.Generation(slot))))
		}
		lines = append(lines, fmt.Sprintf("%14s %s", row.label, strings.Join(cells, "   ")))
	}
	return append(lines, "")
}

func (f *Formatter) size(v uint64) string {
	if f.opts.Human {
		return fmt.Sprintf("%10s", utils.MemorySize(v))
	}
	return fmt.Sprintf("%10d", v)
}

func (f *Formatter) mechanisms(set gcevent.MechanismSet) string {
	names := make([]string, 0, set.Len())
	for _, m := range set.Sorted() {
		switch m {
		case gcevent.MechanismCompaction:
			names = append(names, f.compaction.Render(m.String()))
		case gcevent.MechanismConcurrent:
			names = append(names, f.concurrent.Render(m.String()))
		default:
			names = append(names, m.String())
		}
	}
	return strings.Join(names, ", ")
}

// GlobalHeapHistory renders the closing line of a collection.
func (f *Formatter) GlobalHeapHistory(rec gcevent.GlobalHeapHistory) []string {
	return []string{fmt.Sprintf(".......<  %s %s [%s] mem pressure = %d",
		f.generation(rec.CondemnedGeneration),
		rec.PauseMode,
		f.mechanisms(rec.Mechanisms),
		rec.MemoryPressure)}
}

func (f *Formatter) DecodeWarning(err *gcevent.DecodeError) []string {
	// unknown reasons still deliver the record
	if errors.Is(err, gcevent.ErrUnknownReasonCode) {
		return []string{f.muted.Render("  ! warning: " + err.Error())}
	}
	return []string{f.muted.Render("  ! skipped: " + err.Error())}
}

func (f *Formatter) SessionFailed(err *session.SessionError) []string {
	return []string{"", f.failure.Render(err.Error())}
}
