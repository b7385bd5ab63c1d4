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

// Package rank merges ranked result lists from different retrieval modes
// into a single ranking and runs the retrieval fan-out for hybrid search.
package rank

import (
	"sort"

	"github.com/dowser-io/dowser/pkg/config"
	"github.com/dowser-io/dowser/pkg/store"
)

// Fuser combines rankings produced by different retrieval backends.
//
// The default method is reciprocal rank fusion, which scores a document by
// the sum of 1/(c+rank) over the rankings that contain it, with 1-based
// ranks. The rank constant c dampens the gap between the top positions, so
// a document that appears mid-list in both rankings can outscore one that
// appears at the top of only one.
type Fuser struct {
	method       string
	rankConstant int
	weights      []float64
}

// NewFuser creates a fuser from the search configuration. Rankings passed
// to Fuse are weighted positionally: the first ranking gets VectorWeight,
// the second KeywordWeight, any further rankings weight 1.
func NewFuser(cfg config.SearchConfig) *Fuser {
	cfg.SetDefaults()
	return &Fuser{
		method:       cfg.Fusion,
		rankConstant: cfg.RankConstant,
		weights:      []float64{cfg.VectorWeight, cfg.KeywordWeight},
	}
}

// Method returns the configured fusion method.
func (f *Fuser) Method() string {
	return f.method
}

// Fuse merges the given rankings into one list ordered by fused score,
// highest first. Documents are deduplicated by ID and the first occurrence
// supplies the document value. Ties are broken by ID ascending so the
// ordering is stable across runs.
func (f *Fuser) Fuse(rankings ...[]store.Document) []store.Document {
	type fusedDoc struct {
		doc   store.Document
		score float64
	}

	byID := make(map[string]int)
	var fused []fusedDoc

	for ri, ranking := range rankings {
		var norms []float64
		if f.method == "weighted" || f.method == "max" {
			norms = normalizeScores(ranking)
		}

		for pos, doc := range ranking {
			if doc.ID == "" {
				continue
			}

			var contribution float64
			switch f.method {
			case "weighted":
				contribution = f.weightAt(ri) * norms[pos]
			case "max":
				contribution = norms[pos]
			default:
				contribution = 1 / float64(f.rankConstant+pos+1)
			}

			idx, seen := byID[doc.ID]
			if !seen {
				idx = len(fused)
				byID[doc.ID] = idx
				fused = append(fused, fusedDoc{doc: doc})
			}
			if f.method == "max" {
				if contribution > fused[idx].score {
					fused[idx].score = contribution
				}
			} else {
				fused[idx].score += contribution
			}
		}
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].doc.ID < fused[j].doc.ID
	})

	out := make([]store.Document, len(fused))
	for i, fd := range fused {
		fd.doc.Score = fd.score
		out[i] = fd.doc
	}
	return out
}

func (f *Fuser) weightAt(i int) float64 {
	if i < len(f.weights) {
		return f.weights[i]
	}
	return 1
}

// normalizeScores maps a ranking's scores onto [0, 1] by dividing by the
// ranking's own maximum. Retrieval backends score on different scales
// (cosine similarity vs matched term counts), so raw scores never mix
// directly. A ranking without positive scores falls back to reciprocal
// position to keep its ordering.
func normalizeScores(ranking []store.Document) []float64 {
	var maxScore float64
	for _, doc := range ranking {
		if doc.Score > maxScore {
			maxScore = doc.Score
		}
	}

	norms := make([]float64, len(ranking))
	for i, doc := range ranking {
		if maxScore > 0 {
			norms[i] = doc.Score / maxScore
		} else {
			norms[i] = 1 / float64(i+1)
		}
	}
	return norms
}
