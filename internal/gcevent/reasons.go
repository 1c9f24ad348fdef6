package gcevent

import "fmt"

// Reason is the trigger reported in GCStart.
type Reason uint32

const (
	ReasonAllocSmall Reason = iota
	ReasonInduced
	ReasonLowMemory
	ReasonEmpty
	ReasonAllocLarge
	ReasonOutOfSpaceSOH
	ReasonOutOfSpaceLOH
	ReasonInducedNotForced
	ReasonInternal
	ReasonInducedLowMemory
	ReasonInducedCompacting
	ReasonLowMemoryHost
	ReasonPMFullGC
	ReasonLowMemoryHostBlocking
	ReasonBgcTuningSOH
	ReasonBgcTuningLOH
	ReasonBgcStepping
	ReasonInducedAggressive
)

var reasonNames = [...]string{
	ReasonAllocSmall:            "AllocSmall",
	ReasonInduced:               "Induced",
	ReasonLowMemory:             "LowMemory",
	ReasonEmpty:                 "Empty",
	ReasonAllocLarge:            "AllocLarge",
	ReasonOutOfSpaceSOH:         "OutOfSpaceSOH",
	ReasonOutOfSpaceLOH:         "OutOfSpaceLOH",
	ReasonInducedNotForced:      "InducedNotForced",
	ReasonInternal:              "Internal",
	ReasonInducedLowMemory:      "InducedLowMemory",
	ReasonInducedCompacting:     "InducedCompacting",
	ReasonLowMemoryHost:         "LowMemoryHost",
	ReasonPMFullGC:              "PMFullGC",
	ReasonLowMemoryHostBlocking: "LowMemoryHostBlocking",
	ReasonBgcTuningSOH:          "BgcTuningSOH",
	ReasonBgcTuningLOH:          "BgcTuningLOH",
	ReasonBgcStepping:           "BgcStepping",
	ReasonInducedAggressive:     "InducedAggressive",
}

// Known reports whether r is part of the reason vocabulary this build understands.
func (r Reason) Known() bool {
	return int(r) < len(reasonNames)
}

func (r Reason) String() string {
	if r.Known() {
		return reasonNames[r]
	}
	return fmt.Sprintf("Unknown(%d)", uint32(r))
}

// IsInduced is true for collections requested by user code rather than the allocator.
func (r Reason) IsInduced() bool {
	switch r {
	case ReasonInduced, ReasonInducedNotForced, ReasonInducedCompacting, ReasonInducedAggressive:
		return true
	}
	return false
}

// PauseMode is the latency mode the collection ran under.
type PauseMode int32

const (
	PauseModeUnknown             PauseMode = -1
	PauseModeBatch               PauseMode = 0
	PauseModeInteractive         PauseMode = 1 // concurrent/background collections allowed
	PauseModeLowLatency          PauseMode = 2
	PauseModeSustainedLowLatency PauseMode = 3
	PauseModeNoGC                PauseMode = 4
)

func (p PauseMode) String() string {
	switch p {
	case PauseModeBatch:
		return "Batch"
	case PauseModeInteractive:
		return "Interactive"
	case PauseModeLowLatency:
		return "LowLatency"
	case PauseModeSustainedLowLatency:
		return "SustainedLowLatency"
	case PauseModeNoGC:
		return "NoGC"
	case PauseModeUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("Unknown(%d)", int32(p))
	}
}
