// Package gcevent decodes the runtime's garbage collection events into typed records.
package gcevent

import "fmt"

// Kind identifies a runtime event by its event id.
type Kind uint16

const (
	KindNone                Kind = 0
	KindGCStart             Kind = 1
	KindGCPerHeapHistory    Kind = 204
	KindGCGlobalHeapHistory Kind = 205
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindGCStart:
		return "GCStart"
	case KindGCPerHeapHistory:
		return "GCPerHeapHistory"
	case KindGCGlobalHeapHistory:
		return "GCGlobalHeapHistory"
	default:
		return fmt.Sprintf("Event(%d)", uint16(k))
	}
}

// RawEvent is one event as delivered by the transport: a kind and an opaque payload.
type RawEvent struct {
	Kind        Kind
	Version     uint8
	PointerSize int // 4 or 8, zero means 8
	Timestamp   int64
	Payload     []byte
}

type Generation int

func (g Generation) String() string {
	return fmt.Sprintf("gen%d", int(g))
}

// Valid reports whether g is one of the collectable generations 0-2.
func (g Generation) Valid() bool {
	return g >= 0 && g <= 2
}

// GenerationSlot indexes the per-heap generation statistics.
type GenerationSlot int

const (
	SlotGen0 GenerationSlot = iota
	SlotGen1
	SlotGen2
	SlotLOH
	SlotPOH
)

const GenerationSlotCount = 5

func (s GenerationSlot) String() string {
	switch s {
	case SlotGen0:
		return "Gen0"
	case SlotGen1:
		return "Gen1"
	case SlotGen2:
		return "Gen2"
	case SlotLOH:
		return "LOH"
	case SlotPOH:
		return "POH"
	default:
		return "Unknown"
	}
}

func AllGenerationSlots() []GenerationSlot {
	return []GenerationSlot{SlotGen0, SlotGen1, SlotGen2, SlotLOH, SlotPOH}
}

type GCType uint32

const (
	GCTypeNonConcurrent GCType = 0
	GCTypeBackground    GCType = 1
	GCTypeForeground    GCType = 2
)

func (t GCType) String() string {
	switch t {
	case GCTypeNonConcurrent:
		return "NonConcurrentGC"
	case GCTypeBackground:
		return "BackgroundGC"
	case GCTypeForeground:
		return "ForegroundGC"
	default:
		return fmt.Sprintf("Unknown(%d)", uint32(t))
	}
}

// Record is implemented by every decoded event.
type Record interface {
	Kind() Kind
}

// CycleStart marks the beginning of a collection.
type CycleStart struct {
	Count                uint32 // collections since process start
	Depth                Generation
	Reason               Reason
	Type                 GCType
	ClientSequenceNumber uint64
}

func (CycleStart) Kind() Kind { return KindGCStart }

// GenerationStats holds one generation slot of a heap, all values in bytes.
type GenerationStats struct {
	Budget            uint64
	SizeBefore        uint64
	ObjSpaceBefore    uint64
	SizeAfter         uint64
	PinnedSurvived    uint64
	NonPinnedSurvived uint64
	Fragmentation     uint64
}

// Promoted is the number of bytes that survived the collection.
func (s GenerationStats) Promoted() uint64 {
	return s.PinnedSurvived + s.NonPinnedSurvived
}

// PerHeapHistory describes what one heap did during a collection.
type PerHeapHistory struct {
	HeapIndex       uint32
	CondemnReasons0 uint32 // packed 2-bit generations, see CondemnSlot
	CondemnReasons1 uint32 // condemn-reason condition flags
	Generations     [GenerationSlotCount]GenerationStats
}

func (PerHeapHistory) Kind() Kind { return KindGCPerHeapHistory }

// ReportsCondemnDecision is true for the heap whose condemn reasons describe the
// collection as a whole. Other heaps replicate the same decision.
func (h PerHeapHistory) ReportsCondemnDecision() bool {
	return h.HeapIndex == 0
}

func (h PerHeapHistory) InitialGeneration() Generation {
	return ExtractGeneration(h.CondemnReasons0, CondemnInitial)
}

func (h PerHeapHistory) FinalGeneration() Generation {
	return ExtractGeneration(h.CondemnReasons0, CondemnFinalPerHeap)
}

func (h PerHeapHistory) BudgetGeneration() Generation {
	return ExtractGeneration(h.CondemnReasons0, CondemnAllocBudget)
}

func (h PerHeapHistory) Conditions() ConditionSet {
	return DecodeCondemnConditions(h.CondemnReasons1)
}

func (h PerHeapHistory) Generation(slot GenerationSlot) GenerationStats {
	return h.Generations[slot]
}

// GlobalHeapHistory concludes a collection.
type GlobalHeapHistory struct {
	FinalYoungestDesired uint64
	NumHeaps             int32
	CondemnedGeneration  Generation
	Gen0ReductionCount   uint32
	Reason               Reason
	Mechanisms           MechanismSet
	PauseMode            PauseMode
	MemoryPressure       uint32
}

func (GlobalHeapHistory) Kind() Kind { return KindGCGlobalHeapHistory }

// Unrecognized is returned for events the decoder does not handle.
type Unrecognized struct {
	RawKind Kind
}

func (u Unrecognized) Kind() Kind { return u.RawKind }
