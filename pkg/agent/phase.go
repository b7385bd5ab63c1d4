// Copyright 2025 The Dowser Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agent

import "log/slog"

// Phase names the stages of one answer invocation.
type Phase int

const (
	PhaseRetrieving Phase = iota
	PhaseAssessing
	PhaseDeciding
	PhaseRefining
	PhaseSynthesizing
	PhaseDone
)

// Next returns the phase that follows in the linear order. Deciding
// branches at runtime: the loop either moves on to Refining for another
// pass or jumps straight to Synthesizing.
func (p Phase) Next() Phase {
	if p >= PhaseDone {
		return PhaseDone
	}
	return p + 1
}

func (p Phase) String() string {
	switch p {
	case PhaseRetrieving:
		return "retrieving"
	case PhaseAssessing:
		return "assessing"
	case PhaseDeciding:
		return "deciding"
	case PhaseRefining:
		return "refining"
	case PhaseSynthesizing:
		return "synthesizing"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

func logPhase(p Phase) {
	slog.Debug("Entering phase", "phase", p.String())
}
