package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dowser-io/dowser/pkg/config"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func drainSource(t *testing.T, source Source) []Document {
	t.Helper()
	docs, err := collectDocuments(context.Background(), source)
	require.NoError(t, err)
	return docs
}

func TestDirectorySourceDiscover(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "readme.md"), "# Readme\n\nhello world")
	writeTestFile(t, filepath.Join(dir, "sub", "guide.txt"), "guide content")
	writeTestFile(t, filepath.Join(dir, ".git", "config"), "ignored")
	writeTestFile(t, filepath.Join(dir, "node_modules", "pkg.md"), "ignored")
	writeTestFile(t, filepath.Join(dir, "empty.md"), "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob.bin"), []byte("\x00binary\x00"), 0o644))

	cfg := config.SourceConfig{Type: "directory", Path: dir}
	source, err := NewDirectorySource(cfg)
	require.NoError(t, err)
	defer source.Close()

	docs := drainSource(t, source)
	require.Len(t, docs, 2)
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Metadata["rel_path"].(string) < docs[j].Metadata["rel_path"].(string)
	})

	readme := docs[0]
	assert.Equal(t, filepath.Join(dir, "readme.md"), readme.ID)
	assert.Equal(t, "# Readme\n\nhello world", readme.Content)
	assert.Equal(t, "readme.md", readme.Metadata["rel_path"])
	assert.Equal(t, "readme", readme.Metadata["title"])
	assert.Equal(t, "text/markdown", readme.Metadata["mime"])
	assert.Equal(t, "directory:"+dir, readme.Source)

	guide := docs[1]
	assert.Equal(t, "sub/guide.txt", guide.Metadata["rel_path"])
	assert.Equal(t, "guide", guide.Metadata["title"])
}

func TestDirectorySourceIncludePatterns(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "keep.md"), "kept")
	writeTestFile(t, filepath.Join(dir, "drop.txt"), "dropped")

	source, err := NewDirectorySource(config.SourceConfig{
		Type:    "directory",
		Path:    dir,
		Include: []string{"*.md"},
	})
	require.NoError(t, err)
	defer source.Close()

	docs := drainSource(t, source)
	require.Len(t, docs, 1)
	assert.Equal(t, "keep.md", docs[0].Metadata["rel_path"])
}

func TestDirectorySourceMaxFileSize(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "small.md"), "tiny")
	writeTestFile(t, filepath.Join(dir, "large.md"), "this file is over the limit")

	source, err := NewDirectorySource(config.SourceConfig{
		Type:        "directory",
		Path:        dir,
		MaxFileSize: 10,
	})
	require.NoError(t, err)
	defer source.Close()

	docs := drainSource(t, source)
	require.Len(t, docs, 1)
	assert.Equal(t, "small.md", docs[0].Metadata["rel_path"])
}

func TestDirectorySourceRejectsBadPath(t *testing.T) {
	_, err := NewDirectorySource(config.SourceConfig{Type: "directory", Path: ""})
	require.Error(t, err)

	_, err = NewDirectorySource(config.SourceConfig{
		Type: "directory",
		Path: filepath.Join(t.TempDir(), "missing"),
	})
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "plain.txt")
	writeTestFile(t, file, "not a directory")
	_, err = NewDirectorySource(config.SourceConfig{Type: "directory", Path: file})
	require.Error(t, err)
}

func TestSQLSourceDiscover(t *testing.T) {
	dbCfg := config.DatabaseConfig{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "kb.db"),
	}
	databases := map[string]config.DatabaseConfig{"main": dbCfg}

	pool := config.NewDBPool()
	defer pool.Close()

	db, err := pool.Get(&dbCfg)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE articles (id INTEGER PRIMARY KEY, title TEXT, body TEXT, extra TEXT, category TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO articles VALUES
		(1, 'Setup', 'install the binary', 'extra notes', 'ops'),
		(2, 'Tuning', 'adjust the knobs', NULL, 'perf'),
		(3, 'Blank', '', NULL, 'misc')`)
	require.NoError(t, err)

	source, err := NewSQLSource(config.SourceConfig{
		Type: "sql",
		SQL: &config.SQLSourceConfig{
			Database:        "main",
			Table:           "articles",
			IDColumn:        "id",
			ContentColumns:  []string{"body", "extra"},
			TitleColumn:     "title",
			MetadataColumns: []string{"category"},
		},
	}, databases, pool)
	require.NoError(t, err)
	defer source.Close()
	assert.Equal(t, "sql:articles", source.Name())

	docs := drainSource(t, source)
	require.Len(t, docs, 2)
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	first := docs[0]
	assert.Equal(t, "articles:1", first.ID)
	assert.Equal(t, "install the binary\n\nextra notes", first.Content)
	assert.Equal(t, "Setup", first.Metadata["title"])
	assert.Equal(t, "ops", first.Metadata["category"])
	assert.Equal(t, "articles", first.Metadata["table"])
	assert.Equal(t, "sql:articles", first.Source)

	second := docs[1]
	assert.Equal(t, "articles:2", second.ID)
	assert.Equal(t, "adjust the knobs", second.Content)
}

func TestSQLSourceWhereClause(t *testing.T) {
	dbCfg := config.DatabaseConfig{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "kb.db"),
	}
	databases := map[string]config.DatabaseConfig{"main": dbCfg}

	pool := config.NewDBPool()
	defer pool.Close()

	db, err := pool.Get(&dbCfg)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT, published INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO notes VALUES (1, 'published note', 1), (2, 'draft note', 0)`)
	require.NoError(t, err)

	source, err := NewSQLSource(config.SourceConfig{
		Type: "sql",
		SQL: &config.SQLSourceConfig{
			Database:       "main",
			Table:          "notes",
			IDColumn:       "id",
			ContentColumns: []string{"body"},
			WhereClause:    "published = 1",
		},
	}, databases, pool)
	require.NoError(t, err)
	defer source.Close()

	docs := drainSource(t, source)
	require.Len(t, docs, 1)
	assert.Equal(t, "notes:1", docs[0].ID)
}

func TestSQLSourceValidation(t *testing.T) {
	databases := map[string]config.DatabaseConfig{
		"main": {Driver: "sqlite", Database: filepath.Join(t.TempDir(), "kb.db")},
	}
	pool := config.NewDBPool()
	defer pool.Close()

	_, err := NewSQLSource(config.SourceConfig{
		Type: "sql",
		SQL: &config.SQLSourceConfig{
			Database:       "missing",
			Table:          "articles",
			IDColumn:       "id",
			ContentColumns: []string{"body"},
		},
	}, databases, pool)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown database")

	_, err = NewSQLSource(config.SourceConfig{
		Type: "sql",
		SQL: &config.SQLSourceConfig{
			Database:       "main",
			Table:          "articles; DROP TABLE users",
			IDColumn:       "id",
			ContentColumns: []string{"body"},
		},
	}, databases, pool)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid identifier")
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "text/markdown", detectMimeType("a/b.md"))
	assert.Equal(t, "application/pdf", detectMimeType("x.pdf"))
	assert.Equal(t, "text/x-source", detectMimeType("main.go"))
	assert.Equal(t, "text/plain", detectMimeType("notes"))
}
