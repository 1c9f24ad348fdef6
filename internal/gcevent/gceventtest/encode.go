// Package gceventtest builds raw runtime event payloads for tests.
package gceventtest

import (
	"encoding/binary"

	"github.com/mabhi256/dngc/internal/gcevent"
)

type payloadWriter struct {
	buf []byte
}

func (w *payloadWriter) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *payloadWriter) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *payloadWriter) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

// CycleStart encodes a version 2 GCStart event.
func CycleStart(count uint32, depth gcevent.Generation, reason uint32) gcevent.RawEvent {
	var w payloadWriter
	w.u32(count)
	w.u32(uint32(depth))
	w.u32(reason)
	w.u32(uint32(gcevent.GCTypeNonConcurrent))
	w.u16(1) // ClrInstanceID
	w.u64(0) // ClientSequenceNumber
	return gcevent.RawEvent{Kind: gcevent.KindGCStart, Version: 2, PointerSize: 8, Payload: w.buf}
}

// PerHeapHistory encodes a version 3 GCPerHeapHistory event with the given number of
// generation entries. Entries past the five generation slots are zero filled.
func PerHeapHistory(h gcevent.PerHeapHistory, entries int) gcevent.RawEvent {
	var w payloadWriter
	w.u16(1)
	for range 6 {
		w.u64(0)
	}
	w.u32(0) // RunningFreeListEfficiency
	w.u32(h.CondemnReasons0)
	w.u32(h.CondemnReasons1)
	w.u32(0) // CompactMechanisms
	w.u32(0) // ExpandMechanisms
	w.u32(h.HeapIndex)
	w.u64(0) // ExtraGen0Commit
	w.u32(uint32(entries))

	for i := range entries {
		var g gcevent.GenerationStats
		if i < gcevent.GenerationSlotCount {
			g = h.Generations[i]
		}
		free := g.SizeBefore - g.ObjSpaceBefore
		w.u64(g.SizeBefore)
		w.u64(free) // FreeListBefore
		w.u64(0)    // FreeObjBefore
		w.u64(g.SizeAfter)
		w.u64(g.Fragmentation) // FreeListAfter
		w.u64(0)               // FreeObjAfter
		w.u64(0)               // In
		w.u64(g.PinnedSurvived)
		w.u64(g.NonPinnedSurvived)
		w.u64(g.Budget)
	}
	return gcevent.RawEvent{Kind: gcevent.KindGCPerHeapHistory, Version: 3, PointerSize: 8, Payload: w.buf}
}

// GlobalHeapHistory encodes a version 2 GCGlobalHeapHistory event.
func GlobalHeapHistory(gen gcevent.Generation, mechanisms uint32, pause gcevent.PauseMode, pressure uint32) gcevent.RawEvent {
	var w payloadWriter
	w.u64(0) // FinalYoungestDesired
	w.u32(1) // NumHeaps
	w.u32(uint32(gen))
	w.u32(0) // Gen0ReductionCount
	w.u32(uint32(gcevent.ReasonAllocSmall))
	w.u32(mechanisms)
	w.u16(1)
	w.u32(uint32(int32(pause)))
	w.u32(pressure)
	return gcevent.RawEvent{Kind: gcevent.KindGCGlobalHeapHistory, Version: 2, PointerSize: 8, Payload: w.buf}
}
