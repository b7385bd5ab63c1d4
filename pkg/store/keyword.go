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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// KeywordIndex is an in-memory inverted index for exact-term search.
// Identifiers, error codes and names that embeddings blur keep their
// exact-match behavior here.
type KeywordIndex struct {
	mu       sync.RWMutex
	postings map[string]map[string]struct{} // term to document IDs
	docs     map[string]Document
}

// NewKeywordIndex builds an empty index.
func NewKeywordIndex() *KeywordIndex {
	return &KeywordIndex{
		postings: make(map[string]map[string]struct{}),
		docs:     make(map[string]Document),
	}
}

// Index adds documents, replacing any previous entry with the same ID.
// Documents without an ID are skipped.
func (idx *KeywordIndex) Index(docs ...Document) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, doc := range docs {
		if doc.ID == "" {
			continue
		}
		idx.removeLocked(doc.ID)
		idx.docs[doc.ID] = doc
		for term := range tokenize(doc.Content) {
			ids, ok := idx.postings[term]
			if !ok {
				ids = make(map[string]struct{})
				idx.postings[term] = ids
			}
			ids[doc.ID] = struct{}{}
		}
	}
}

// Remove drops documents by ID. Unknown IDs are ignored.
func (idx *KeywordIndex) Remove(ids ...string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, id := range ids {
		idx.removeLocked(id)
	}
}

func (idx *KeywordIndex) removeLocked(id string) {
	doc, ok := idx.docs[id]
	if !ok {
		return
	}
	for term := range tokenize(doc.Content) {
		ids := idx.postings[term]
		delete(ids, id)
		if len(ids) == 0 {
			delete(idx.postings, term)
		}
	}
	delete(idx.docs, id)
}

// RemoveMatching drops every document whose metadata matches filter
// and returns the removed IDs. An empty filter removes nothing.
func (idx *KeywordIndex) RemoveMatching(filter map[string]any) []string {
	if len(filter) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var removed []string
	for id, doc := range idx.docs {
		if metadataMatches(doc.Metadata, filter) {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		idx.removeLocked(id)
	}
	return removed
}

// Has reports whether a document ID is indexed.
func (idx *KeywordIndex) Has(id string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.docs[id]
	return ok
}

// Len returns the number of indexed documents.
func (idx *KeywordIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Search returns up to topK documents ranked by how many query terms
// they contain. Ties break by document ID so results are stable.
func (idx *KeywordIndex) Search(query string, topK int, filter map[string]any) []Document {
	terms := tokenize(query)
	if len(terms) == 0 || topK <= 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	matched := make(map[string]float64)
	for term := range terms {
		for id := range idx.postings[term] {
			matched[id]++
		}
	}

	results := make([]Document, 0, len(matched))
	for id, score := range matched {
		doc := idx.docs[id]
		if len(filter) > 0 && !metadataMatches(doc.Metadata, filter) {
			continue
		}
		doc.Score = score
		results = append(results, doc)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// Save writes the indexed documents to path as JSON. Postings are
// rebuilt on load, so only the documents themselves are persisted.
func (idx *KeywordIndex) Save(path string) error {
	idx.mu.RLock()
	docs := make([]Document, 0, len(idx.docs))
	for _, doc := range idx.docs {
		docs = append(docs, doc)
	}
	idx.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("failed to encode keyword index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write keyword index: %w", err)
	}
	return nil
}

// Load reads documents previously written by Save and indexes them.
// A missing file is not an error.
func (idx *KeywordIndex) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read keyword index: %w", err)
	}

	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("failed to decode keyword index: %w", err)
	}
	idx.Index(docs...)
	return nil
}

// tokenize lowercases text and splits it into searchable terms. Terms
// of one or two characters are dropped.
func tokenize(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]{}")
		if len(word) > 2 {
			terms[word] = struct{}{}
		}
	}
	return terms
}

// metadataMatches reports whether metadata satisfies every filter
// entry. Values compare by their string form, matching how the vector
// backends store metadata.
func metadataMatches(metadata map[string]any, filter map[string]any) bool {
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
