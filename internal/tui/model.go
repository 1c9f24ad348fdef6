// Package tui is a full-screen alternative to the console presenter.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mabhi256/dngc/internal/gcevent"
	"github.com/mabhi256/dngc/utils"
)

const (
	chartHeight = 8
	maxLogLines = 5000
)

type linesMsg struct {
	lines []string
}

type cycleMsg struct {
	lines []string
}

type heapMsg struct {
	lines []string
	heap  gcevent.PerHeapHistory
}

type warningMsg struct {
	lines []string
}

type sessionEndedMsg struct {
	err error
}

type tickMsg time.Time

type Model struct {
	target string
	keys   KeyMap
	help   help.Model
	log    viewport.Model
	lines  []string
	follow bool

	metric Metric
	heaps  map[uint32]gcevent.PerHeapHistory

	cycles   int
	warnings int
	started  time.Time
	now      time.Time
	ended    bool
	endErr   error
	quitting bool
	onQuit   func()

	width  int
	height int
}

func newModel(target string, onQuit func()) *Model {
	now := time.Now()
	return &Model{
		target:  target,
		keys:    keys,
		help:    help.New(),
		log:     viewport.New(0, 0),
		follow:  true,
		heaps:   make(map[uint32]gcevent.PerHeapHistory),
		started: now,
		now:     now,
		onQuit:  onQuit,
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) Init() tea.Cmd {
	return tick()
}

func (m *Model) appendLines(lines []string) {
	m.lines = append(m.lines, lines...)
	if over := len(m.lines) - maxLogLines; over > 0 {
		m.lines = m.lines[over:]
	}
	m.log.SetContent(strings.Join(m.lines, "\n"))
	if m.follow {
		m.log.GotoBottom()
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.resize()
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		if m.ended {
			return m, nil
		}
		return m, tick()

	case cycleMsg:
		m.cycles++
		// a new collection replaces the previous per-heap picture
		clear(m.heaps)
		m.appendLines(msg.lines)
		return m, nil

	case heapMsg:
		m.heaps[msg.heap.HeapIndex] = msg.heap
		m.appendLines(msg.lines)
		return m, nil

	case warningMsg:
		m.warnings++
		m.appendLines(msg.lines)
		return m, nil

	case linesMsg:
		m.appendLines(msg.lines)
		return m, nil

	case sessionEndedMsg:
		m.ended = true
		m.endErr = msg.err
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.Tab):
			utils.CycleEnumPtr(&m.metric, 1, metricMax)
			return m, nil
		case key.Matches(msg, m.keys.ShiftTab):
			utils.CycleEnumPtr(&m.metric, -1, metricMax)
			return m, nil
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.resize()
			return m, nil
		case key.Matches(msg, m.keys.Bottom):
			m.follow = true
			m.log.GotoBottom()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	m.follow = m.log.AtBottom()
	return m, cmd
}

func (m *Model) resize() {
	used := lipgloss.Height(m.renderHeader()) + chartHeight + 3 + lipgloss.Height(m.help.View(m.keys))
	m.log.Width = m.width
	m.log.Height = max(m.height-used, 1)
	if m.follow {
		m.log.GotoBottom()
	}
}

func (m *Model) View() string {
	if m.quitting || m.width == 0 || m.height == 0 {
		return ""
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderChart(),
		m.log.View(),
		utils.HelpBarStyle.Render(m.help.View(m.keys)),
	)
}

func (m *Model) renderHeader() string {
	title := utils.TitleStyle.Render("dngc watch - " + m.target)

	status := fmt.Sprintf("%d collections • %s", m.cycles, utils.FormatDuration(m.now.Sub(m.started)))
	if m.warnings > 0 {
		status += fmt.Sprintf(" • %d warnings", m.warnings)
	}
	switch {
	case m.ended && m.endErr != nil:
		status = utils.ErrorStyle.Render("failed: " + m.endErr.Error())
	case m.ended:
		status += " • session closed"
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, title, utils.StatusBarStyle.Render(status)),
		utils.MutedStyle.Render(strings.Repeat("─", max(m.width, 1))),
	)
}

func (m *Model) renderTabs() string {
	var tabs []string
	for metric := Metric(0); metric <= metricMax; metric++ {
		if metric == m.metric {
			tabs = append(tabs, utils.TabActiveStyle.Render(metric.String()))
		} else {
			tabs = append(tabs, utils.TabInactiveStyle.Render(metric.String()))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m *Model) renderChart() string {
	var body string
	if len(m.heaps) == 0 {
		body = utils.MutedStyle.Render("waiting for a collection...")
	} else {
		body = renderChart(generationTotals(m.heaps, m.metric), m.width-4, chartHeight-2)
	}
	return utils.BoxStyle.Width(max(m.width-2, 1)).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.renderTabs(), body))
}
