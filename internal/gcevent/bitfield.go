package gcevent

// CondemnSlot selects one of the 2-bit generation fields packed into CondemnReasons0.
type CondemnSlot int

const (
	CondemnInitial      CondemnSlot = 0 // initial generation to condemn
	CondemnFinalPerHeap CondemnSlot = 1 // final generation condemned on this heap
	CondemnAllocBudget  CondemnSlot = 2 // generation whose budget was exceeded
)

const generationMask = 0b11

// ExtractGeneration returns the 2-bit field at slot. A value of 3 is not a valid
// generation and is returned as-is so callers can spot protocol drift.
func ExtractGeneration(packed uint32, slot CondemnSlot) Generation {
	return Generation((packed >> (2 * uint(slot))) & generationMask)
}
