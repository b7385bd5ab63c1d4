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
	"fmt"
	"path/filepath"
	"strings"
)

// PatternFilter decides which files a directory source picks up.
// Patterns come in three forms:
//
//   - "*.ext" and ".ext" match file extensions
//   - bare names ("node_modules", ".git") match path segments
//   - anything else matches with filepath.Match against the path
//     relative to the source root, and against the base name when the
//     pattern has no separator
//
// A leading "**/" matches the base name at any depth, a trailing
// "/**" matches a whole subtree.
type PatternFilter struct {
	includeExts  map[string]struct{}
	includeNames map[string]struct{}
	includeGlobs []string

	excludeExts  map[string]struct{}
	excludeNames map[string]struct{}
	excludeGlobs []string
}

// NewPatternFilter compiles include and exclude patterns. An empty
// include list admits every file.
func NewPatternFilter(include, exclude []string) (*PatternFilter, error) {
	f := &PatternFilter{
		includeExts:  make(map[string]struct{}),
		includeNames: make(map[string]struct{}),
		excludeExts:  make(map[string]struct{}),
		excludeNames: make(map[string]struct{}),
	}
	for _, pattern := range include {
		if err := f.add(pattern, true); err != nil {
			return nil, err
		}
	}
	for _, pattern := range exclude {
		if err := f.add(pattern, false); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *PatternFilter) add(pattern string, include bool) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return fmt.Errorf("empty pattern")
	}

	exts, names, globs := f.excludeExts, f.excludeNames, &f.excludeGlobs
	if include {
		exts, names, globs = f.includeExts, f.includeNames, &f.includeGlobs
	}

	switch {
	case strings.HasPrefix(pattern, "*.") && !strings.ContainsAny(pattern[2:], "*?[/"):
		exts[strings.ToLower(pattern[1:])] = struct{}{}
	case strings.HasPrefix(pattern, ".") && !strings.ContainsAny(pattern, "*?[/"):
		// A dot pattern reads as an extension (".md") or as a dot
		// directory (".git"), so register it as both.
		exts[strings.ToLower(pattern)] = struct{}{}
		names[pattern] = struct{}{}
	case !strings.ContainsAny(pattern, "*?[/"):
		names[pattern] = struct{}{}
	default:
		if _, err := filepath.Match(strings.TrimPrefix(pattern, "**/"), "probe"); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		*globs = append(*globs, pattern)
	}
	return nil
}

// ShouldInclude reports whether the file at relPath (slash-separated,
// relative to the source root) passes the filters.
func (f *PatternFilter) ShouldInclude(relPath string) bool {
	base := filepath.Base(relPath)
	ext := strings.ToLower(filepath.Ext(relPath))

	if _, ok := f.excludeExts[ext]; ok {
		return false
	}
	for _, segment := range strings.Split(relPath, "/") {
		if _, ok := f.excludeNames[segment]; ok {
			return false
		}
	}
	for _, pattern := range f.excludeGlobs {
		if globMatches(pattern, relPath, base) {
			return false
		}
	}

	if len(f.includeExts) == 0 && len(f.includeNames) == 0 && len(f.includeGlobs) == 0 {
		return true
	}
	if _, ok := f.includeExts[ext]; ok {
		return true
	}
	for _, segment := range strings.Split(relPath, "/") {
		if _, ok := f.includeNames[segment]; ok {
			return true
		}
	}
	for _, pattern := range f.includeGlobs {
		if globMatches(pattern, relPath, base) {
			return true
		}
	}
	return false
}

// ShouldSkipDir reports whether a directory subtree can be pruned
// from the walk entirely.
func (f *PatternFilter) ShouldSkipDir(relPath string) bool {
	base := filepath.Base(relPath)
	if _, ok := f.excludeNames[base]; ok {
		return true
	}
	for _, pattern := range f.excludeGlobs {
		if globMatches(pattern, relPath, base) {
			return true
		}
	}
	return false
}

func globMatches(pattern, relPath, base string) bool {
	if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
		if matched, _ := filepath.Match(rest, base); matched {
			return true
		}
	}
	if dir, ok := strings.CutSuffix(pattern, "/**"); ok {
		if relPath == dir || strings.HasPrefix(relPath, dir+"/") {
			return true
		}
	}
	if matched, _ := filepath.Match(pattern, relPath); matched {
		return true
	}
	if !strings.Contains(pattern, "/") {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
