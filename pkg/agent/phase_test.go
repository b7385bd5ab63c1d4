package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhaseString(t *testing.T) {
	names := map[Phase]string{
		PhaseRetrieving:   "retrieving",
		PhaseAssessing:    "assessing",
		PhaseDeciding:     "deciding",
		PhaseRefining:     "refining",
		PhaseSynthesizing: "synthesizing",
		PhaseDone:         "done",
		Phase(99):         "unknown",
	}
	for phase, want := range names {
		assert.Equal(t, want, phase.String())
	}
}

func TestPhaseNext(t *testing.T) {
	assert.Equal(t, PhaseAssessing, PhaseRetrieving.Next())
	assert.Equal(t, PhaseDeciding, PhaseAssessing.Next())
	assert.Equal(t, PhaseRefining, PhaseDeciding.Next())
	assert.Equal(t, PhaseSynthesizing, PhaseRefining.Next())
	assert.Equal(t, PhaseDone, PhaseSynthesizing.Next())
	assert.Equal(t, PhaseDone, PhaseDone.Next())
}
