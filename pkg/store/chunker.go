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

package store

import (
	"strings"
	"unicode"

	"github.com/dowser-io/dowser/pkg/config"
)

// Chunk is one piece of a split document.
type Chunk struct {
	// Content is the chunk text.
	Content string

	// Index is the 0-based chunk position within the document.
	Index int

	// Total is the number of chunks the document produced.
	Total int

	// Start and End are byte offsets into the original content.
	Start int
	End   int
}

// Chunker splits document content into pieces of roughly the
// configured size, with optional overlap between consecutive pieces.
// When preserve_words is set the cut snaps back to whitespace so
// words stay whole.
type Chunker struct {
	size          int
	overlap       int
	preserveWords bool
}

// NewChunker builds a chunker from cfg, filling in defaults for zero
// values.
func NewChunker(cfg config.ChunkingConfig) *Chunker {
	cfg.SetDefaults()
	return &Chunker{
		size:          cfg.Size,
		overlap:       cfg.Overlap,
		preserveWords: config.BoolValue(cfg.PreserveWords, true),
	}
}

// Chunk splits content. Content at or under the chunk size comes back
// as a single chunk, empty content produces none.
func (c *Chunker) Chunk(content string) []Chunk {
	if content == "" {
		return nil
	}
	if len(content) <= c.size {
		return []Chunk{{Content: content, Index: 0, Total: 1, Start: 0, End: len(content)}}
	}

	var chunks []Chunk
	start := 0
	for start < len(content) {
		end := min(start+c.size, len(content))
		if end < len(content) && c.preserveWords {
			// Snap back to the last whitespace in the window. A
			// window with no whitespace is cut as is.
			if cut := strings.LastIndexFunc(content[start:end], unicode.IsSpace); cut > 0 {
				end = start + cut
			}
		}

		chunks = append(chunks, Chunk{
			Content: content[start:end],
			Index:   len(chunks),
			Start:   start,
			End:     end,
		})

		if end >= len(content) {
			break
		}

		next := end - c.overlap
		if next <= start {
			// The overlap would stall progress, move past the cut.
			next = end
		}
		start = skipSpace(content, next)
	}

	for i := range chunks {
		chunks[i].Total = len(chunks)
	}
	return chunks
}

// skipSpace advances past whitespace so a chunk never begins with the
// separator the previous cut stopped at.
func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}
