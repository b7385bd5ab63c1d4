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

// Package memory persists distilled observations between sessions. A
// note records one fact worth keeping: what a user asked about, what
// the knowledge base could not answer, a preference stated in chat.
// Notes compete for bounded space, so each carries an importance score
// and access statistics that feed a retention priority.
package memory

import (
	"math"
	"time"
)

// Note kinds. The kind nudges retention priority: distilled knowledge
// outlives conversational chatter.
const (
	KindConversation = "conversation"
	KindKnowledge    = "knowledge"
	KindEvent        = "system_event"
)

// Note is one remembered observation.
type Note struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	Kind         string    `json:"kind"`
	Importance   float64   `json:"importance"`
	AccessCount  int       `json:"access_count"`
	Tags         []string  `json:"tags,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
}

// Priority blends importance, access frequency, recency and kind into
// a single retention score in [0, 1]. Overflow eviction removes the
// lowest-priority notes first.
//
// Importance contributes up to 0.3, access frequency up to 0.4 (0.2
// per access), and recency up to 0.2 decaying linearly to zero over
// windowDays. Knowledge notes get a 0.1 bonus, system events 0.05.
func (n Note) Priority(now time.Time, windowDays int) float64 {
	if windowDays <= 0 {
		windowDays = 90
	}

	score := n.Importance * 0.3
	score += math.Min(float64(n.AccessCount)*0.2, 0.4)

	if n.CreatedAt.IsZero() {
		score += 0.1
	} else {
		days := now.Sub(n.CreatedAt).Hours() / 24
		recency := math.Max(0, 1-days/float64(windowDays))
		score += recency * 0.2
	}

	switch n.Kind {
	case KindKnowledge:
		score += 0.1
	case KindEvent:
		score += 0.05
	}

	return math.Max(0, math.Min(1, score))
}
