package gcevent_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mabhi256/dngc/internal/gcevent"
	"github.com/mabhi256/dngc/internal/gcevent/gceventtest"
)

func sampleHeap(index uint32) gcevent.PerHeapHistory {
	h := gcevent.PerHeapHistory{
		HeapIndex:       index,
		CondemnReasons0: 0b10_10_00,
		CondemnReasons1: uint32(gcevent.ConditionInducedFullGC),
	}
	for i := range h.Generations {
		base := uint64(i+1) * 1000
		h.Generations[i] = gcevent.GenerationStats{
			Budget:            base * 4,
			SizeBefore:        base * 3,
			ObjSpaceBefore:    base * 2,
			SizeAfter:         base,
			PinnedSurvived:    10,
			NonPinnedSurvived: base / 2,
			Fragmentation:     7,
		}
	}
	return h
}

func TestDecodeCycleStart(t *testing.T) {
	rec, err := gcevent.Decode(gceventtest.CycleStart(5, 2, uint32(gcevent.ReasonInduced)))
	require.NoError(t, err)

	want := gcevent.CycleStart{Count: 5, Depth: 2, Reason: gcevent.ReasonInduced, Type: gcevent.GCTypeNonConcurrent}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("CycleStart mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeCycleStartUnknownReasonKeepsRecord(t *testing.T) {
	rec, err := gcevent.Decode(gceventtest.CycleStart(9, 1, 99))

	require.Error(t, err)
	assert.True(t, errors.Is(err, gcevent.ErrUnknownReasonCode))

	var decodeErr *gcevent.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, uint32(99), decodeErr.Code)

	start, ok := rec.(gcevent.CycleStart)
	require.True(t, ok)
	assert.Equal(t, gcevent.Reason(99), start.Reason)
	assert.Equal(t, "Unknown(99)", start.Reason.String())
}

func TestDecodeCycleStartTooShort(t *testing.T) {
	ev := gceventtest.CycleStart(1, 0, 0)
	ev.Payload = ev.Payload[:8]

	rec, err := gcevent.Decode(ev)
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, gcevent.ErrMalformedPayload)
}

func TestDecodePerHeapHistory(t *testing.T) {
	heap := sampleHeap(0)

	rec, err := gcevent.Decode(gceventtest.PerHeapHistory(heap, 5))
	require.NoError(t, err)

	got, ok := rec.(gcevent.PerHeapHistory)
	require.True(t, ok)
	if diff := cmp.Diff(heap, got); diff != "" {
		t.Errorf("PerHeapHistory mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, gcevent.Generation(0), got.InitialGeneration())
	assert.Equal(t, gcevent.Generation(2), got.FinalGeneration())
	assert.Equal(t, gcevent.Generation(2), got.BudgetGeneration())
	assert.True(t, got.Conditions().Has(gcevent.ConditionInducedFullGC))
	assert.Equal(t, uint64(10+1000), got.Generation(gcevent.SlotGen1).Promoted())
}

func TestDecodePerHeapHistoryExtraEntriesIgnored(t *testing.T) {
	rec, err := gcevent.Decode(gceventtest.PerHeapHistory(sampleHeap(1), 7))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), rec.(gcevent.PerHeapHistory).HeapIndex)
}

func TestDecodePerHeapHistoryTooFewEntries(t *testing.T) {
	rec, err := gcevent.Decode(gceventtest.PerHeapHistory(sampleHeap(0), 4))

	assert.Nil(t, rec)
	assert.ErrorIs(t, err, gcevent.ErrMalformedPayload)
	assert.Contains(t, err.Error(), "4 generation entries")
}

func TestDecodePerHeapHistoryTruncated(t *testing.T) {
	ev := gceventtest.PerHeapHistory(sampleHeap(0), 5)
	ev.Payload = ev.Payload[:len(ev.Payload)-8]

	_, err := gcevent.Decode(ev)
	assert.ErrorIs(t, err, gcevent.ErrMalformedPayload)
}

func TestDecodeGlobalHeapHistory(t *testing.T) {
	mechanisms := uint32(gcevent.MechanismCompaction | gcevent.MechanismConcurrent)
	rec, err := gcevent.Decode(gceventtest.GlobalHeapHistory(2, mechanisms, gcevent.PauseModeInteractive, 35))
	require.NoError(t, err)

	got := rec.(gcevent.GlobalHeapHistory)
	assert.Equal(t, gcevent.Generation(2), got.CondemnedGeneration)
	assert.Equal(t, gcevent.PauseModeInteractive, got.PauseMode)
	assert.Equal(t, uint32(35), got.MemoryPressure)
	assert.Equal(t, int32(1), got.NumHeaps)
	assert.Equal(t, 2, got.Mechanisms.Len())
	assert.True(t, got.Mechanisms.Has(gcevent.MechanismCompaction))
	assert.True(t, got.Mechanisms.Has(gcevent.MechanismConcurrent))
}

func TestDecodeGlobalHeapHistoryVersion1(t *testing.T) {
	ev := gceventtest.GlobalHeapHistory(1, 0, gcevent.PauseModeBatch, 0)
	ev.Payload = ev.Payload[:28]

	rec, err := gcevent.Decode(ev)
	require.NoError(t, err)
	assert.Equal(t, gcevent.PauseModeUnknown, rec.(gcevent.GlobalHeapHistory).PauseMode)
}

func TestDecodeUnrecognized(t *testing.T) {
	rec, err := gcevent.Decode(gcevent.RawEvent{Kind: 35, Payload: []byte{1, 2, 3}})

	require.NoError(t, err)
	assert.Equal(t, gcevent.Unrecognized{RawKind: 35}, rec)
}

func TestDecodePointerSize4(t *testing.T) {
	// 32-bit runtimes encode every pointer field in four bytes
	payload := []byte{}
	le32 := func(v uint32) { payload = append(payload, byte(v), byte(v>>8), byte(v>>16), byte(v>>24)) }
	payload = append(payload, 1, 0)
	for range 6 {
		le32(0)
	}
	le32(0)
	le32(0b01_01_01)
	le32(0)
	le32(0)
	le32(0)
	le32(2) // heap index
	le32(0)
	le32(5)
	for range 5 * 10 {
		le32(1)
	}

	rec, err := gcevent.Decode(gcevent.RawEvent{Kind: gcevent.KindGCPerHeapHistory, PointerSize: 4, Payload: payload})
	require.NoError(t, err)

	got := rec.(gcevent.PerHeapHistory)
	assert.Equal(t, uint32(2), got.HeapIndex)
	assert.Equal(t, gcevent.Generation(1), got.FinalGeneration())
	assert.Equal(t, uint64(2), got.Generation(gcevent.SlotPOH).Fragmentation)
}
