package presenter

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mabhi256/dngc/internal/gcevent"
	"github.com/mabhi256/dngc/internal/session"
)

func condemned(initial, final, budget uint32) uint32 {
	return initial | final<<2 | budget<<4
}

func heap(index uint32) gcevent.PerHeapHistory {
	h := gcevent.PerHeapHistory{
		HeapIndex:       index,
		CondemnReasons0: condemned(0, 2, 2),
		CondemnReasons1: uint32(gcevent.ConditionInducedFullGC | gcevent.ConditionHighMem),
	}
	for i := range h.Generations {
		base := uint64(i+1) * 1024
		h.Generations[i] = gcevent.GenerationStats{
			Budget:            base,
			SizeBefore:        base * 2,
			ObjSpaceBefore:    base,
			SizeAfter:         base * 3,
			PinnedSurvived:    10,
			NonPinnedSurvived: 20,
			Fragmentation:     5,
		}
	}
	return h
}

func TestConsole_NonVerbose(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, Options{NoColor: true})

	c.OnCycleStart(gcevent.CycleStart{Count: 5, Depth: 2, Reason: gcevent.ReasonInduced})
	c.OnPerHeapHistory(heap(0))
	c.OnPerHeapHistory(heap(1))
	c.OnGlobalHeapHistory(gcevent.GlobalHeapHistory{
		CondemnedGeneration: 2,
		PauseMode:           gcevent.PauseModeInteractive,
		Mechanisms:          gcevent.DecodeMechanisms(uint32(gcevent.MechanismCompaction | gcevent.MechanismConcurrent)),
		MemoryPressure:      12,
	})

	want := strings.Join([]string{
		"",
		"_______#5 gen2 = Induced",
		"  condemn gen0 -> gen2 [budget gen2] induced_fullgc, high_mem",
		".......<  gen2 Interactive [Concurrent, Compaction] mem pressure = 12",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String(), "only heap 0 reports the condemn decision")
}

func TestConsole_ConditionsOmittedWhenZero(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, Options{NoColor: true})

	h := heap(0)
	h.CondemnReasons1 = 0
	h.CondemnReasons0 = condemned(1, 1, 0)
	c.OnPerHeapHistory(h)

	assert.Equal(t, "  condemn gen1 -> gen1 [budget gen0]\n", buf.String())
}

func TestConsole_UnregisteredConditionsOnly(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, Options{NoColor: true})

	h := heap(0)
	h.CondemnReasons1 = 0x8000_0000
	h.CondemnReasons0 = condemned(0, 0, 0)
	c.OnPerHeapHistory(h)

	assert.Equal(t, "  condemn gen0 -> gen0 [budget gen0]\n", buf.String())
}

func TestConsole_ConditionSentinelByName(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, Options{NoColor: true})

	h := heap(0)
	h.CondemnReasons1 = uint32(gcevent.ConditionMax)
	h.CondemnReasons0 = condemned(0, 0, 0)
	c.OnPerHeapHistory(h)

	assert.Equal(t, "  condemn gen0 -> gen0 [budget gen0] gcrc_max\n", buf.String())
}

func TestConsole_Verbose(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, Options{NoColor: true, Verbose: true})
	c.OnPerHeapHistory(heap(0))

	lines := strings.Split(buf.String(), "\n")
	require.GreaterOrEqual(t, len(lines), 11)
	assert.Equal(t, strings.Repeat("~", tableWidth), lines[1])
	assert.Equal(t, "      heap # 0       Gen0         Gen1         Gen2          LOH          POH", lines[2])
	assert.Equal(t, strings.Repeat("-", tableWidth), lines[3])
	assert.Equal(t, "        Budget       1024         2048         3072         4096         5120", lines[4])
	assert.Equal(t, "Begin obj size       1024         2048         3072         4096         5120", lines[6])
	assert.Equal(t, " Promoted size         30           30           30           30           30", lines[8])
	assert.Equal(t, " Fragmentation          5            5            5            5            5", lines[9])
	assert.Equal(t, "", lines[10])
}

func TestConsole_VerboseOtherHeapHasNoSeparator(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, Options{NoColor: true, Verbose: true, Human: true})
	c.OnPerHeapHistory(heap(3))

	lines := strings.Split(buf.String(), "\n")
	assert.Equal(t, "      heap # 3       Gen0         Gen1         Gen2          LOH          POH", lines[0])
	assert.Equal(t, "    Begin size         2K           4K           6K           8K          10K", lines[3])
}

func TestConsole_Errors(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, Options{NoColor: true})

	c.OnDecodeWarning(&gcevent.DecodeError{Event: gcevent.KindGCPerHeapHistory, Detail: "4 entries", Err: gcevent.ErrMalformedPayload})
	c.OnSessionFailed(&session.SessionError{Kind: session.StreamFailed, PID: 7, Err: errors.New("connection reset")})

	assert.Equal(t,
		"  ! skipped: GCPerHeapHistory: malformed payload: 4 entries\n\npid 7: event stream failed: connection reset\n",
		buf.String())
}

func TestConsole_UnknownReasonIsAWarning(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, Options{NoColor: true})

	c.OnDecodeWarning(&gcevent.DecodeError{Event: gcevent.KindGCStart, Code: 99, Err: gcevent.ErrUnknownReasonCode})

	assert.True(t, strings.HasPrefix(buf.String(), "  ! warning: "), buf.String())
	assert.NotContains(t, buf.String(), "skipped")
}

func TestFormatter_Colors(t *testing.T) {
	r := lipgloss.NewRenderer(&bytes.Buffer{})
	r.SetColorProfile(termenv.ANSI)
	f := newFormatter(r, Options{})

	induced := f.CycleStart(gcevent.CycleStart{Count: 1, Depth: 2, Reason: gcevent.ReasonInduced})[1]
	plain := f.CycleStart(gcevent.CycleStart{Count: 1, Depth: 2, Reason: gcevent.ReasonAllocSmall})[1]

	assert.Contains(t, induced, "\x1b[")
	assert.True(t, strings.HasSuffix(plain, "= AllocSmall"), "non-induced reasons are not highlighted")
	global := f.GlobalHeapHistory(gcevent.GlobalHeapHistory{Mechanisms: gcevent.DecodeMechanisms(uint32(gcevent.MechanismPromotion))})[0]
	assert.Contains(t, global, "[Promotion]")
}
