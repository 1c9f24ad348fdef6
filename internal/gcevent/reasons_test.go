package gcevent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReasonIsInduced(t *testing.T) {
	induced := map[uint32]bool{1: true, 7: true, 10: true, 17: true}

	for code := uint32(0); code < 20; code++ {
		assert.Equal(t, induced[code], Reason(code).IsInduced(), "reason %d", code)
	}
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "AllocSmall", ReasonAllocSmall.String())
	assert.Equal(t, "InducedAggressive", Reason(17).String())
	assert.Equal(t, "Unknown(42)", Reason(42).String())
	assert.False(t, Reason(18).Known())
}

func TestPauseModeString(t *testing.T) {
	assert.Equal(t, "Batch", PauseModeBatch.String())
	assert.Equal(t, "Interactive", PauseMode(1).String())
	assert.Equal(t, "Unknown", PauseModeUnknown.String())
	assert.Equal(t, "Unknown(9)", PauseMode(9).String())
}
