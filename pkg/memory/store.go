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

package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dowser-io/dowser/pkg/config"
)

// ErrNotAdmitted reports that a note's importance fell below the
// admission threshold and nothing was stored.
var ErrNotAdmitted = errors.New("note importance below admission threshold")

const (
	defaultRecallLimit = 5
	pruneAgeDays       = 30
	pruneAccessFloor   = 2
)

const createNotesTableSQL = `
CREATE TABLE IF NOT EXISTS memory_notes (
    id VARCHAR(64) NOT NULL,
    content TEXT NOT NULL,
    kind VARCHAR(50) NOT NULL,
    importance REAL NOT NULL,
    access_count INTEGER NOT NULL,
    tags TEXT,
    created_at TIMESTAMP NOT NULL,
    last_accessed TIMESTAMP NOT NULL,
    PRIMARY KEY (id)
);

CREATE INDEX IF NOT EXISTS idx_memory_notes_kind ON memory_notes(kind);
CREATE INDEX IF NOT EXISTS idx_memory_notes_created_at ON memory_notes(created_at);
`

const noteColumns = "id, content, kind, importance, access_count, tags, created_at, last_accessed"

// Store persists notes in a relational database. SQLite serves as the
// embedded default; PostgreSQL and MySQL share the schema for
// deployments that already run one.
type Store struct {
	db      *sql.DB
	dialect string
	cfg     config.MemoryConfig
	mu      sync.Mutex
}

// New builds a note store on an existing connection and creates the
// schema if it is missing.
func New(db *sql.DB, dialect string, cfg config.MemoryConfig) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if dialect == "sqlite3" {
		dialect = "sqlite"
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect %q (supported: postgres, mysql, sqlite)", dialect)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid memory config: %w", err)
	}

	s := &Store{db: db, dialect: dialect, cfg: cfg}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize memory schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, createNotesTableSQL)
	return err
}

// Remember stores a note and returns it with its assigned ID and
// timestamps. Zero importance defaults to 0.5 and an empty kind to
// conversation. Notes below the admission threshold return
// ErrNotAdmitted. Storing past the cap evicts the lowest-priority
// notes.
func (s *Store) Remember(ctx context.Context, note Note) (*Note, error) {
	note.Content = strings.TrimSpace(note.Content)
	if note.Content == "" {
		return nil, fmt.Errorf("note content is empty")
	}
	if note.Kind == "" {
		note.Kind = KindConversation
	}
	if note.Importance == 0 {
		note.Importance = 0.5
	}
	if note.Importance < 0 || note.Importance > 1 {
		return nil, fmt.Errorf("importance must be between 0 and 1, got %g", note.Importance)
	}
	if note.Importance < s.cfg.MinImportance {
		return nil, ErrNotAdmitted
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	note.ID = uuid.NewString()
	note.AccessCount = 0
	note.CreatedAt = now
	note.LastAccessed = now

	tags, err := encodeTags(note.Tags)
	if err != nil {
		return nil, err
	}

	query := s.rebind(`INSERT INTO memory_notes (` + noteColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query,
		note.ID, note.Content, note.Kind, note.Importance,
		note.AccessCount, tags, note.CreatedAt, note.LastAccessed,
	); err != nil {
		return nil, fmt.Errorf("failed to store note: %w", err)
	}
	slog.Debug("Stored note", "id", note.ID, "kind", note.Kind, "importance", note.Importance)

	evicted, err := s.pruneOverflowLocked(ctx)
	if err != nil {
		slog.Warn("Overflow pruning failed", "error", err)
	} else if evicted > 0 {
		slog.Info("Evicted low-priority notes", "count", evicted, "cap", s.cfg.MaxNotes)
	}

	return &note, nil
}

// Get loads a note by ID and bumps its access stats. A missing note
// returns nil without error.
func (s *Store) Get(ctx context.Context, id string) (*Note, error) {
	if id == "" {
		return nil, fmt.Errorf("note id is empty")
	}

	query := s.rebind(`SELECT ` + noteColumns + ` FROM memory_notes WHERE id = ?`)
	note, err := scanNote(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load note %s: %w", id, err)
	}

	now := time.Now().UTC()
	if err := s.bumpAccess(ctx, []string{id}, now); err != nil {
		return nil, err
	}
	note.AccessCount++
	note.LastAccessed = now
	return &note, nil
}

// Recall returns up to limit notes ranked by how many query terms they
// contain. Recalled notes have their access stats bumped, which feeds
// back into retention priority.
func (s *Store) Recall(ctx context.Context, query string, limit int) ([]Note, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultRecallLimit
	}

	notes, err := s.selectAll(ctx)
	if err != nil {
		return nil, err
	}

	type scored struct {
		note  Note
		score int
	}
	matches := make([]scored, 0, len(notes))
	for _, note := range notes {
		noteTerms := tokenize(note.Content)
		count := 0
		for term := range terms {
			if _, ok := noteTerms[term]; ok {
				count++
			}
		}
		if count > 0 {
			matches = append(matches, scored{note: note, score: count})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.note.Importance != b.note.Importance {
			return a.note.Importance > b.note.Importance
		}
		if !a.note.LastAccessed.Equal(b.note.LastAccessed) {
			return a.note.LastAccessed.After(b.note.LastAccessed)
		}
		return a.note.ID < b.note.ID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	now := time.Now().UTC()
	recalled := make([]Note, 0, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		note := m.note
		note.AccessCount++
		note.LastAccessed = now
		recalled = append(recalled, note)
		ids = append(ids, note.ID)
	}
	if err := s.bumpAccess(ctx, ids, now); err != nil {
		return nil, err
	}
	return recalled, nil
}

// Reorder returns every note ranked by the given strategy: importance,
// recency, access, or priority (the blended retention score). An empty
// strategy means priority.
func (s *Store) Reorder(ctx context.Context, strategy string) ([]Note, error) {
	if strategy == "" {
		strategy = "priority"
	}

	now := time.Now().UTC()
	var better func(a, b Note) bool
	switch strategy {
	case "importance":
		better = func(a, b Note) bool { return a.Importance > b.Importance }
	case "recency":
		better = func(a, b Note) bool { return a.LastAccessed.After(b.LastAccessed) }
	case "access":
		better = func(a, b Note) bool { return a.AccessCount > b.AccessCount }
	case "priority":
		better = func(a, b Note) bool {
			return a.Priority(now, s.cfg.RecencyWindowDays) > b.Priority(now, s.cfg.RecencyWindowDays)
		}
	default:
		return nil, fmt.Errorf("unknown reorder strategy %q (valid: importance, recency, access, priority)", strategy)
	}

	notes, err := s.selectAll(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(notes, func(i, j int) bool {
		a, b := notes[i], notes[j]
		if better(a, b) {
			return true
		}
		if better(b, a) {
			return false
		}
		return a.ID < b.ID
	})
	return notes, nil
}

// Prune removes notes by strategy: importance deletes notes below the
// admission threshold, age deletes notes older than 30 days, access
// deletes notes recalled fewer than 2 times, overflow trims to the cap
// by lowest priority. An empty strategy means overflow. Returns the
// number of notes removed.
func (s *Store) Prune(ctx context.Context, strategy string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch strategy {
	case "importance":
		return s.execDelete(ctx, `DELETE FROM memory_notes WHERE importance < ?`, s.cfg.MinImportance)
	case "age":
		cutoff := time.Now().UTC().AddDate(0, 0, -pruneAgeDays)
		return s.execDelete(ctx, `DELETE FROM memory_notes WHERE created_at < ?`, cutoff)
	case "access":
		return s.execDelete(ctx, `DELETE FROM memory_notes WHERE access_count < ?`, pruneAccessFloor)
	case "overflow", "":
		return s.pruneOverflowLocked(ctx)
	default:
		return 0, fmt.Errorf("unknown prune strategy %q (valid: importance, age, access, overflow)", strategy)
	}
}

// pruneOverflowLocked evicts the lowest-priority notes until the count
// is back at the cap. Caller holds s.mu.
func (s *Store) pruneOverflowLocked(ctx context.Context) (int, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return 0, err
	}
	if count <= s.cfg.MaxNotes {
		return 0, nil
	}

	notes, err := s.selectAll(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	sort.Slice(notes, func(i, j int) bool {
		pi := notes[i].Priority(now, s.cfg.RecencyWindowDays)
		pj := notes[j].Priority(now, s.cfg.RecencyWindowDays)
		if pi != pj {
			return pi < pj
		}
		return notes[i].ID < notes[j].ID
	})

	excess := len(notes) - s.cfg.MaxNotes
	ids := make([]string, 0, excess)
	for _, note := range notes[:excess] {
		ids = append(ids, note.ID)
	}
	return s.deleteIDs(ctx, ids)
}

// Forget removes a note. Unknown IDs are a no-op.
func (s *Store) Forget(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("note id is empty")
	}
	_, err := s.execDelete(ctx, `DELETE FROM memory_notes WHERE id = ?`, id)
	return err
}

// Count returns the number of stored notes.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_notes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count notes: %w", err)
	}
	return count, nil
}

// Stats summarizes the stored notes.
type Stats struct {
	TotalNotes    int            `json:"total_notes"`
	Kinds         map[string]int `json:"kinds,omitempty"`
	AvgImportance float64        `json:"avg_importance"`
	AvgAccess     float64        `json:"avg_access"`
	Oldest        time.Time      `json:"oldest"`
	Newest        time.Time      `json:"newest"`
}

// Stats computes aggregate statistics over all notes.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	notes, err := s.selectAll(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalNotes: len(notes),
		Kinds:      make(map[string]int),
	}
	if len(notes) == 0 {
		return stats, nil
	}

	var importanceSum, accessSum float64
	for _, note := range notes {
		stats.Kinds[note.Kind]++
		importanceSum += note.Importance
		accessSum += float64(note.AccessCount)
		if stats.Oldest.IsZero() || note.CreatedAt.Before(stats.Oldest) {
			stats.Oldest = note.CreatedAt
		}
		if note.CreatedAt.After(stats.Newest) {
			stats.Newest = note.CreatedAt
		}
	}
	stats.AvgImportance = importanceSum / float64(len(notes))
	stats.AvgAccess = accessSum / float64(len(notes))
	return stats, nil
}

// Close implements the component lifecycle. The connection belongs to
// the pool, so there is nothing to release here.
func (s *Store) Close() error {
	return nil
}

func (s *Store) selectAll(ctx context.Context) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+noteColumns+` FROM memory_notes`)
	if err != nil {
		return nil, fmt.Errorf("failed to load notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return notes, nil
}

func (s *Store) bumpAccess(ctx context.Context, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?, ", len(ids)-1) + "?"
	args := make([]any, 0, len(ids)+1)
	args = append(args, now)
	for _, id := range ids {
		args = append(args, id)
	}

	query := s.rebind(fmt.Sprintf(
		`UPDATE memory_notes SET access_count = access_count + 1, last_accessed = ? WHERE id IN (%s)`,
		placeholders,
	))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update access stats: %w", err)
	}
	return nil
}

func (s *Store) deleteIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?, ", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.execDelete(ctx, fmt.Sprintf(`DELETE FROM memory_notes WHERE id IN (%s)`, placeholders), args...)
}

func (s *Store) execDelete(ctx context.Context, query string, args ...any) (int, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notes: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// rebind rewrites ? placeholders into the $N form PostgreSQL expects.
// SQLite and MySQL take ? as is.
func (s *Store) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (Note, error) {
	var n Note
	var tags sql.NullString
	if err := row.Scan(
		&n.ID, &n.Content, &n.Kind, &n.Importance,
		&n.AccessCount, &tags, &n.CreatedAt, &n.LastAccessed,
	); err != nil {
		return Note{}, err
	}
	n.Tags = decodeTags(tags.String)
	return n, nil
}

func encodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "", nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(data), nil
}

func decodeTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
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
