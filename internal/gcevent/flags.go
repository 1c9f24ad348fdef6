package gcevent

import (
	"fmt"
	"slices"
	"strings"
)

// FlagSet is a set of independent flags decoded from a bitfield.
type FlagSet[F ~uint32] map[F]struct{}

func (s FlagSet[F]) Has(f F) bool {
	_, ok := s[f]
	return ok
}

func (s FlagSet[F]) Len() int {
	return len(s)
}

// Bits re-encodes the set into its bitfield.
func (s FlagSet[F]) Bits() uint32 {
	var bits uint32
	for f := range s {
		bits |= uint32(f)
	}
	return bits
}

// Sorted returns the flags in ascending bit order.
func (s FlagSet[F]) Sorted() []F {
	flags := make([]F, 0, len(s))
	for f := range s {
		flags = append(flags, f)
	}
	slices.Sort(flags)
	return flags
}

type flagEntry[F ~uint32] struct {
	flag F
	name string
}

// FlagTable maps bit positions to flag names.
type FlagTable[F ~uint32] struct {
	entries []flagEntry[F]
	mask    uint32
}

func newFlagTable[F ~uint32](entries ...flagEntry[F]) *FlagTable[F] {
	t := &FlagTable[F]{entries: entries}
	for _, e := range entries {
		t.mask |= uint32(e.flag)
	}
	return t
}

// Decode returns every registered flag set in packed. Unregistered bits are ignored.
func (t *FlagTable[F]) Decode(packed uint32) FlagSet[F] {
	set := make(FlagSet[F])
	for _, e := range t.entries {
		if packed&uint32(e.flag) != 0 {
			set[e.flag] = struct{}{}
		}
	}
	return set
}

// Mask has a bit set for every registered flag.
func (t *FlagTable[F]) Mask() uint32 {
	return t.mask
}

func (t *FlagTable[F]) Name(f F) (string, bool) {
	for _, e := range t.entries {
		if e.flag == f {
			return e.name, true
		}
	}
	return "", false
}

func (t *FlagTable[F]) format(f F) string {
	if name, ok := t.Name(f); ok {
		return name
	}
	return fmt.Sprintf("0x%x", uint32(f))
}

// Join renders the set in ascending bit order.
func (t *FlagTable[F]) Join(s FlagSet[F], sep string) string {
	names := make([]string, 0, len(s))
	for _, f := range s.Sorted() {
		names = append(names, t.format(f))
	}
	return strings.Join(names, sep)
}

// Mechanism is a global GC mechanism flag.
type Mechanism uint32

const (
	MechanismConcurrent      Mechanism = 0x1
	MechanismCompaction      Mechanism = 0x2
	MechanismPromotion       Mechanism = 0x4
	MechanismDemotion        Mechanism = 0x8
	MechanismCardBundles     Mechanism = 0x10
	MechanismElevatedLatency Mechanism = 0x20
)

type MechanismSet = FlagSet[Mechanism]

var MechanismTable = newFlagTable(
	flagEntry[Mechanism]{MechanismConcurrent, "Concurrent"},
	flagEntry[Mechanism]{MechanismCompaction, "Compaction"},
	flagEntry[Mechanism]{MechanismPromotion, "Promotion"},
	flagEntry[Mechanism]{MechanismDemotion, "Demotion"},
	flagEntry[Mechanism]{MechanismCardBundles, "CardBundles"},
	flagEntry[Mechanism]{MechanismElevatedLatency, "ElevatedLatency"},
)

func (m Mechanism) String() string {
	return MechanismTable.format(m)
}

func DecodeMechanisms(packed uint32) MechanismSet {
	return MechanismTable.Decode(packed)
}

// Condition explains why a heap condemned the generation it did.
type Condition uint32

const (
	ConditionInducedFullGC           Condition = 0x1
	ConditionExpandFullGC            Condition = 0x2
	ConditionHighMem                 Condition = 0x4
	ConditionVeryHighMem             Condition = 0x8
	ConditionLowEphemeral            Condition = 0x10
	ConditionLowCard                 Condition = 0x20
	ConditionEphHighFrag             Condition = 0x40
	ConditionMaxHighFrag             Condition = 0x80
	ConditionMaxHighFragE            Condition = 0x100
	ConditionMaxHighFragM            Condition = 0x200
	ConditionMaxHighFragVM           Condition = 0x400
	ConditionMaxGen1                 Condition = 0x800
	ConditionBeforeOOM               Condition = 0x1000
	ConditionGen2TooSmall            Condition = 0x2000
	ConditionInducedNoForce          Condition = 0x4000
	ConditionBeforeBGC               Condition = 0x8000
	ConditionAlmostMaxAlloc          Condition = 0x10000
	ConditionJoinedAvoidUnproductive Condition = 0x20000
	ConditionJoinedPMInducedFullGC   Condition = 0x40000
	ConditionJoinedPMAllocLOH        Condition = 0x80000
	ConditionJoinedGen1InPM          Condition = 0x100000
	ConditionJoinedLimitBeforeOOM    Condition = 0x200000
	ConditionJoinedLimitLOHFrag      Condition = 0x400000
	ConditionJoinedLimitLOHReclaim   Condition = 0x800000
	ConditionJoinedServoInitial      Condition = 0x1000000
	ConditionJoinedServoNGC          Condition = 0x2000000
	ConditionJoinedServoBGC          Condition = 0x4000000
	ConditionJoinedServoPostpone     Condition = 0x8000000
	ConditionJoinedStressMix         Condition = 0x10000000
	ConditionJoinedStress            Condition = 0x20000000
	ConditionMax                     Condition = 0x40000000
)

type ConditionSet = FlagSet[Condition]

// ConditionTable uses the runtime's own names so output can be matched against GC sources.
var ConditionTable = newFlagTable(
	flagEntry[Condition]{ConditionInducedFullGC, "induced_fullgc"},
	flagEntry[Condition]{ConditionExpandFullGC, "expand_fullgc"},
	flagEntry[Condition]{ConditionHighMem, "high_mem"},
	flagEntry[Condition]{ConditionVeryHighMem, "very_high_mem"},
	flagEntry[Condition]{ConditionLowEphemeral, "low_ephemeral"},
	flagEntry[Condition]{ConditionLowCard, "low_card"},
	flagEntry[Condition]{ConditionEphHighFrag, "eph_high_frag"},
	flagEntry[Condition]{ConditionMaxHighFrag, "max_high_frag"},
	flagEntry[Condition]{ConditionMaxHighFragE, "max_high_frag_e"},
	flagEntry[Condition]{ConditionMaxHighFragM, "max_high_frag_m"},
	flagEntry[Condition]{ConditionMaxHighFragVM, "max_high_frag_vm"},
	flagEntry[Condition]{ConditionMaxGen1, "max_gen1"},
	flagEntry[Condition]{ConditionBeforeOOM, "before_oom"},
	flagEntry[Condition]{ConditionGen2TooSmall, "gen2_too_small"},
	flagEntry[Condition]{ConditionInducedNoForce, "induced_noforce"},
	flagEntry[Condition]{ConditionBeforeBGC, "before_bgc"},
	flagEntry[Condition]{ConditionAlmostMaxAlloc, "almost_max_alloc"},
	flagEntry[Condition]{ConditionJoinedAvoidUnproductive, "joined_avoid_unproductive"},
	flagEntry[Condition]{ConditionJoinedPMInducedFullGC, "joined_pm_induced_fullgc"},
	flagEntry[Condition]{ConditionJoinedPMAllocLOH, "joined_pm_alloc_loh"},
	flagEntry[Condition]{ConditionJoinedGen1InPM, "joined_gen1_in_pm"},
	flagEntry[Condition]{ConditionJoinedLimitBeforeOOM, "joined_limit_before_oom"},
	flagEntry[Condition]{ConditionJoinedLimitLOHFrag, "joined_limit_loh_frag"},
	flagEntry[Condition]{ConditionJoinedLimitLOHReclaim, "joined_limit_loh_reclaim"},
	flagEntry[Condition]{ConditionJoinedServoInitial, "joined_servo_initial"},
	flagEntry[Condition]{ConditionJoinedServoNGC, "joined_servo_ngc"},
	flagEntry[Condition]{ConditionJoinedServoBGC, "joined_servo_bgc"},
	flagEntry[Condition]{ConditionJoinedServoPostpone, "joined_servo_postpone"},
	flagEntry[Condition]{ConditionJoinedStressMix, "joined_stress_mix"},
	flagEntry[Condition]{ConditionJoinedStress, "joined_stress"},
	flagEntry[Condition]{ConditionMax, "gcrc_max"},
)

func (c Condition) String() string {
	return ConditionTable.format(c)
}

func DecodeCondemnConditions(packed uint32) ConditionSet {
	return ConditionTable.Decode(packed)
}
