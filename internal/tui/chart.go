package tui

import (
	"fmt"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"

	"github.com/mabhi256/dngc/internal/gcevent"
	"github.com/mabhi256/dngc/utils"
)

// Metric selects which generation statistic the chart shows.
type Metric int

const (
	MetricSizeAfter Metric = iota
	MetricSizeBefore
	MetricPromoted
	MetricFragmentation
	MetricBudget
)

const metricMax = MetricBudget

func (m Metric) String() string {
	switch m {
	case MetricSizeAfter:
		return "Final size"
	case MetricSizeBefore:
		return "Begin size"
	case MetricPromoted:
		return "Promoted"
	case MetricFragmentation:
		return "Fragmentation"
	case MetricBudget:
		return "Budget"
	default:
		return "Unknown"
	}
}

func (m Metric) value(s gcevent.GenerationStats) uint64 {
	switch m {
	case MetricSizeBefore:
		return s.SizeBefore
	case MetricPromoted:
		return s.Promoted()
	case MetricFragmentation:
		return s.Fragmentation
	case MetricBudget:
		return s.Budget
	default:
		return s.SizeAfter
	}
}

var slotColors = []lipgloss.Color{
	utils.Gen0Color,
	utils.Gen1Color,
	utils.Gen2Color,
	utils.CompactionColor,
	utils.ConcurrentColor,
}

// generationTotals sums metric over the latest record of every heap.
func generationTotals(heaps map[uint32]gcevent.PerHeapHistory, metric Metric) [gcevent.GenerationSlotCount]uint64 {
	var totals [gcevent.GenerationSlotCount]uint64
	for _, h := range heaps {
		for _, slot := range gcevent.AllGenerationSlots() {
			totals[slot] += metric.value(h.Generation(slot))
		}
	}
	return totals
}

func renderChart(totals [gcevent.GenerationSlotCount]uint64, width, height int) string {
	bc := barchart.New(max(width, 20), max(height, 3),
		barchart.WithBarGap(2),
		barchart.WithBarWidth(max((width-8)/gcevent.GenerationSlotCount, 1)),
	)

	for _, slot := range gcevent.AllGenerationSlots() {
		color := slotColors[slot]
		bc.Push(barchart.BarData{
			Label: fmt.Sprintf("%s %s", slot, utils.MemorySize(totals[slot])),
			Values: []barchart.BarValue{{
				Name:  slot.String(),
				Value: float64(totals[slot]),
				Style: lipgloss.NewStyle().Foreground(color).Background(color),
			}},
		})
	}

	bc.Draw()
	return bc.View()
}
