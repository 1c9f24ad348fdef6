package gcevent

const (
	perHeapPointerCount  = 6  // FreeListAllocated .. PinnedAllocatedAdvance
	genDataPointerCount  = 10 // SizeBefore .. NewAllocation
	globalHistoryMinSize = 28 // up to and including GlobalMechanisms
	gcStartMinSize       = 12 // Count, Depth, Reason
)

// Decode maps a raw event onto its record.
//
// Events the decoder does not handle come back as Unrecognized with a nil error.
// A GCStart carrying a reason code outside the known vocabulary is returned together
// with an ErrUnknownReasonCode DecodeError: the record is still valid and its Reason
// keeps the raw code. Any other error means the record was dropped.
func Decode(ev RawEvent) (Record, error) {
	switch ev.Kind {
	case KindGCStart:
		return decodeCycleStart(ev)
	case KindGCPerHeapHistory:
		return decodePerHeapHistory(ev)
	case KindGCGlobalHeapHistory:
		return decodeGlobalHeapHistory(ev)
	default:
		return Unrecognized{RawKind: ev.Kind}, nil
	}
}

func decodeCycleStart(ev RawEvent) (Record, error) {
	if len(ev.Payload) < gcStartMinSize {
		return nil, malformed(ev.Kind, "payload is %d bytes, need at least %d", len(ev.Payload), gcStartMinSize)
	}

	r := newPayloadReader(ev)
	rec := CycleStart{
		Count:  r.u32(),
		Depth:  Generation(r.u32()),
		Reason: Reason(r.u32()),
	}

	// Type, ClrInstanceID and ClientSequenceNumber were added in later versions
	if r.remaining() >= 4 {
		rec.Type = GCType(r.u32())
	}
	if r.remaining() >= 2+8 {
		r.skip(2)
		rec.ClientSequenceNumber = r.u64()
	}

	if !rec.Reason.Known() {
		return rec, &DecodeError{
			Event: ev.Kind,
			Code:  uint32(rec.Reason),
			Err:   ErrUnknownReasonCode,
		}
	}
	return rec, nil
}

func decodePerHeapHistory(ev RawEvent) (Record, error) {
	r := newPayloadReader(ev)

	r.skip(2) // ClrInstanceID
	for range perHeapPointerCount {
		r.pointer()
	}
	r.u32() // RunningFreeListEfficiency

	rec := PerHeapHistory{
		CondemnReasons0: r.u32(),
		CondemnReasons1: r.u32(),
	}
	r.u32() // CompactMechanisms
	r.u32() // ExpandMechanisms
	rec.HeapIndex = r.u32()
	r.pointer() // ExtraGen0Commit
	count := r.u32()

	if r.err != nil {
		return nil, malformed(ev.Kind, "truncated header (%d bytes)", len(ev.Payload))
	}
	if count < GenerationSlotCount {
		return nil, malformed(ev.Kind, "heap %d reports %d generation entries, need %d", rec.HeapIndex, count, GenerationSlotCount)
	}

	for _, slot := range AllGenerationSlots() {
		rec.Generations[slot] = readGenerationStats(r)
	}
	if r.err != nil {
		return nil, malformed(ev.Kind, "heap %d generation data truncated", rec.HeapIndex)
	}

	return rec, nil
}

func readGenerationStats(r *payloadReader) GenerationStats {
	var raw [genDataPointerCount]uint64
	for i := range raw {
		raw[i] = r.pointer()
	}
	sizeBefore, freeListBefore, freeObjBefore := raw[0], raw[1], raw[2]
	sizeAfter, freeListAfter, freeObjAfter := raw[3], raw[4], raw[5]

	stats := GenerationStats{
		Budget:            raw[9],
		SizeBefore:        sizeBefore,
		SizeAfter:         sizeAfter,
		PinnedSurvived:    raw[7],
		NonPinnedSurvived: raw[8],
		Fragmentation:     freeListAfter + freeObjAfter,
	}
	if free := freeListBefore + freeObjBefore; free <= sizeBefore {
		stats.ObjSpaceBefore = sizeBefore - free
	}
	return stats
}

func decodeGlobalHeapHistory(ev RawEvent) (Record, error) {
	if len(ev.Payload) < globalHistoryMinSize {
		return nil, malformed(ev.Kind, "payload is %d bytes, need at least %d", len(ev.Payload), globalHistoryMinSize)
	}

	r := newPayloadReader(ev)
	rec := GlobalHeapHistory{
		FinalYoungestDesired: r.u64(),
		NumHeaps:             int32(r.u32()),
		CondemnedGeneration:  Generation(r.u32()),
		Gen0ReductionCount:   r.u32(),
		Reason:               Reason(r.u32()),
		Mechanisms:           DecodeMechanisms(r.u32()),
		PauseMode:            PauseModeUnknown,
	}

	// ClrInstanceID, PauseMode and MemoryPressure only exist from version 2
	if r.remaining() >= 2+4 {
		r.skip(2)
		rec.PauseMode = PauseMode(int32(r.u32()))
	}
	if r.remaining() >= 4 {
		rec.MemoryPressure = r.u32()
	}

	return rec, nil
}
