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
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dowser-io/dowser/pkg/config"
)

// Channel sizes for source discovery. Errors are per-document and
// non-fatal, so the error channel stays small.
const (
	discoveryDocBuffer = 100
	discoveryErrBuffer = 10
)

// Source yields documents for ingestion.
type Source interface {
	// Name identifies the source in logs and document metadata.
	Name() string

	// Discover streams the source's documents. Both channels close
	// when discovery finishes. Errors on the error channel are
	// per-document and non-fatal.
	Discover(ctx context.Context) (<-chan Document, <-chan error)

	// Close releases source resources.
	Close() error
}

// NewSource builds a source from cfg. SQL sources resolve their
// connection through databases and pool.
func NewSource(cfg config.SourceConfig, databases map[string]config.DatabaseConfig, pool *config.DBPool) (Source, error) {
	switch cfg.Type {
	case "directory":
		return NewDirectorySource(cfg)
	case "sql":
		return NewSQLSource(cfg, databases, pool)
	default:
		return nil, fmt.Errorf("unknown source type: %q", cfg.Type)
	}
}

// DirectorySource walks a directory tree and yields one document per
// file that passes the include and exclude filters. PDF, Word and
// Excel files go through the parser registry, everything else is read
// as text.
type DirectorySource struct {
	root    string
	cfg     config.SourceConfig
	filter  *PatternFilter
	parsers *ParserRegistry
}

// NewDirectorySource builds a directory source rooted at cfg.Path.
func NewDirectorySource(cfg config.SourceConfig) (*DirectorySource, error) {
	cfg.SetDefaults()
	if cfg.Path == "" {
		return nil, fmt.Errorf("directory source requires a path")
	}

	root, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %q: %w", cfg.Path, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to access %q: %w", cfg.Path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", cfg.Path)
	}

	filter, err := NewPatternFilter(cfg.Include, cfg.Exclude)
	if err != nil {
		return nil, fmt.Errorf("invalid source patterns: %w", err)
	}

	return &DirectorySource{
		root:    root,
		cfg:     cfg,
		filter:  filter,
		parsers: NewParserRegistry(),
	}, nil
}

// Name implements Source.
func (s *DirectorySource) Name() string {
	return "directory:" + s.cfg.Path
}

// Root returns the absolute root directory.
func (s *DirectorySource) Root() string {
	return s.root
}

// Discover implements Source.
func (s *DirectorySource) Discover(ctx context.Context) (<-chan Document, <-chan error) {
	docs := make(chan Document, discoveryDocBuffer)
	errs := make(chan error, discoveryErrBuffer)

	go func() {
		defer close(docs)
		defer close(errs)

		walkErr := filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				sendDiscoveryError(ctx, errs, fmt.Errorf("failed to access %s: %w", path, err))
				return nil
			}

			rel := s.relPath(path)
			if entry.IsDir() {
				if path != s.root && s.filter.ShouldSkipDir(rel) {
					return filepath.SkipDir
				}
				return nil
			}
			if !s.filter.ShouldInclude(rel) {
				return nil
			}

			doc, err := s.ReadDocument(ctx, path)
			if err != nil {
				sendDiscoveryError(ctx, errs, err)
				return nil
			}
			if doc == nil {
				return nil
			}

			select {
			case docs <- *doc:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if walkErr != nil && ctx.Err() == nil {
			sendDiscoveryError(ctx, errs, walkErr)
		}
	}()

	return docs, errs
}

// ReadDocument builds the document for one file. Empty files, files
// over the size limit and binaries without a parser return nil.
func (s *DirectorySource) ReadDocument(ctx context.Context, path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return nil, nil
	}
	if info.Size() > s.cfg.MaxFileSize {
		slog.Debug("Skipping file over size limit",
			"path", path, "size", info.Size(), "limit", s.cfg.MaxFileSize)
		return nil, nil
	}

	var content string
	if s.parsers.CanParse(path) {
		content, err = s.parsers.Parse(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if bytes.IndexByte(data, 0) != -1 {
			// Binary file without a registered parser.
			return nil, nil
		}
		content = string(data)
	}
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	base := filepath.Base(path)
	return &Document{
		ID:      path,
		Content: content,
		Source:  s.Name(),
		Metadata: map[string]any{
			"path":          path,
			"rel_path":      s.relPath(path),
			"title":         strings.TrimSuffix(base, filepath.Ext(base)),
			"mime":          detectMimeType(path),
			"last_modified": info.ModTime().Unix(),
		},
	}, nil
}

// Close implements Source.
func (s *DirectorySource) Close() error {
	return nil
}

// relPath returns path relative to the source root, slash-separated.
func (s *DirectorySource) relPath(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func sendDiscoveryError(ctx context.Context, errs chan<- error, err error) {
	select {
	case errs <- err:
	case <-ctx.Done():
	}
}

// detectMimeType maps a file extension to a MIME type for document
// metadata.
func detectMimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".html", ".htm":
		return "text/html"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".xml":
		return "application/xml"
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".go", ".py", ".js", ".ts", ".java", ".rs", ".c", ".h", ".cpp", ".rb", ".sh":
		return "text/x-source"
	default:
		return "text/plain"
	}
}
