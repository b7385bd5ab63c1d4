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

// Document is the unit of retrieval. Sources produce one Document per
// file or row, ingestion splits it into chunks and indexes each chunk
// as its own Document, and searches return scored chunk Documents.
type Document struct {
	// ID uniquely identifies the document. Chunk IDs derive
	// deterministically from the parent document ID.
	ID string `json:"id"`

	// Content is the document text.
	Content string `json:"content"`

	// Metadata carries provenance such as path, title and chunk
	// position, plus whatever the source attached.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Score is the relevance assigned by the backend that returned
	// the document. Scores from different backends are not directly
	// comparable.
	Score float64 `json:"score,omitempty"`

	// Source names which configured source the document came from.
	Source string `json:"source,omitempty"`
}

// Title returns the title from metadata, falling back to the ID.
func (d Document) Title() string {
	if title, ok := d.Metadata["title"].(string); ok && title != "" {
		return title
	}
	return d.ID
}

// Path returns the originating file path when the document came from
// a directory source, empty otherwise.
func (d Document) Path() string {
	if path, ok := d.Metadata["path"].(string); ok {
		return path
	}
	return ""
}
