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
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/dowser-io/dowser/pkg/config"
)

var sqlIdentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLSource reads documents from the rows of a relational table. Each
// row becomes one document: the configured content columns join into
// the body, the title and metadata columns ride along as metadata.
type SQLSource struct {
	cfg *config.SQLSourceConfig
	db  *sql.DB
}

// NewSQLSource builds a SQL source. The connection comes from pool
// using the database configuration cfg.SQL.Database refers to.
func NewSQLSource(cfg config.SourceConfig, databases map[string]config.DatabaseConfig, pool *config.DBPool) (*SQLSource, error) {
	if cfg.SQL == nil {
		return nil, fmt.Errorf("sql source requires a sql block")
	}
	if pool == nil {
		return nil, fmt.Errorf("sql source requires a database pool")
	}

	spec := cfg.SQL
	dbCfg, ok := databases[spec.Database]
	if !ok {
		return nil, fmt.Errorf("unknown database %q", spec.Database)
	}

	// Table and column names are interpolated into the query text,
	// so only plain identifiers are accepted.
	idents := []string{spec.Table, spec.IDColumn}
	idents = append(idents, spec.ContentColumns...)
	idents = append(idents, spec.MetadataColumns...)
	if spec.TitleColumn != "" {
		idents = append(idents, spec.TitleColumn)
	}
	for _, ident := range idents {
		if !sqlIdentPattern.MatchString(ident) {
			return nil, fmt.Errorf("invalid identifier %q", ident)
		}
	}

	db, err := pool.Get(&dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %q: %w", spec.Database, err)
	}

	return &SQLSource{cfg: spec, db: db}, nil
}

// Name implements Source.
func (s *SQLSource) Name() string {
	return "sql:" + s.cfg.Table
}

// Discover implements Source.
func (s *SQLSource) Discover(ctx context.Context) (<-chan Document, <-chan error) {
	docs := make(chan Document, discoveryDocBuffer)
	errs := make(chan error, discoveryErrBuffer)

	go func() {
		defer close(docs)
		defer close(errs)

		rows, err := s.db.QueryContext(ctx, s.buildQuery())
		if err != nil {
			sendDiscoveryError(ctx, errs, fmt.Errorf("query on %s failed: %w", s.cfg.Table, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			doc, err := s.scanRow(rows)
			if err != nil {
				sendDiscoveryError(ctx, errs, err)
				continue
			}
			if doc == nil {
				continue
			}
			select {
			case docs <- *doc:
			case <-ctx.Done():
				return
			}
		}
		if err := rows.Err(); err != nil && ctx.Err() == nil {
			sendDiscoveryError(ctx, errs, fmt.Errorf("row iteration on %s failed: %w", s.cfg.Table, err))
		}
	}()

	return docs, errs
}

func (s *SQLSource) buildQuery() string {
	columns := make([]string, 0, 2+len(s.cfg.ContentColumns)+len(s.cfg.MetadataColumns))
	columns = append(columns, s.cfg.IDColumn)
	columns = append(columns, s.cfg.ContentColumns...)
	if s.cfg.TitleColumn != "" {
		columns = append(columns, s.cfg.TitleColumn)
	}
	columns = append(columns, s.cfg.MetadataColumns...)

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), s.cfg.Table)
	if s.cfg.WhereClause != "" {
		query += " WHERE " + s.cfg.WhereClause
	}
	return query
}

// scanRow converts one row into a document. Rows with no content
// return nil.
func (s *SQLSource) scanRow(rows *sql.Rows) (*Document, error) {
	total := 1 + len(s.cfg.ContentColumns) + len(s.cfg.MetadataColumns)
	if s.cfg.TitleColumn != "" {
		total++
	}

	values := make([]sql.NullString, total)
	targets := make([]any, total)
	for i := range values {
		targets[i] = &values[i]
	}
	if err := rows.Scan(targets...); err != nil {
		return nil, fmt.Errorf("failed to scan row from %s: %w", s.cfg.Table, err)
	}

	pos := 0
	id := values[pos].String
	pos++
	if id == "" {
		return nil, fmt.Errorf("row in %s has an empty %s", s.cfg.Table, s.cfg.IDColumn)
	}

	var parts []string
	for range s.cfg.ContentColumns {
		if v := values[pos].String; strings.TrimSpace(v) != "" {
			parts = append(parts, v)
		}
		pos++
	}
	content := strings.Join(parts, "\n\n")
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	metadata := map[string]any{
		"table":        s.cfg.Table,
		s.cfg.IDColumn: id,
	}
	if s.cfg.TitleColumn != "" {
		if title := values[pos].String; title != "" {
			metadata["title"] = title
		}
		pos++
	}
	for _, column := range s.cfg.MetadataColumns {
		if values[pos].Valid {
			metadata[column] = values[pos].String
		}
		pos++
	}

	return &Document{
		ID:       fmt.Sprintf("%s:%s", s.cfg.Table, id),
		Content:  content,
		Source:   s.Name(),
		Metadata: metadata,
	}, nil
}

// Close implements Source. The connection belongs to the pool, so
// there is nothing to release here.
func (s *SQLSource) Close() error {
	return nil
}
