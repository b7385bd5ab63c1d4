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
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// maxSheetCells bounds how many cells are extracted per sheet.
const maxSheetCells = 1000

// Parser extracts plain text from one family of binary document
// formats.
type Parser interface {
	// Extensions lists the extensions the parser handles, lowercase
	// with the leading dot.
	Extensions() []string

	// Parse extracts text from the file at path.
	Parse(ctx context.Context, path string) (string, error)
}

// ParserRegistry dispatches files to parsers by extension.
type ParserRegistry struct {
	parsers map[string]Parser
}

// NewParserRegistry builds a registry with the built-in parsers for
// PDF, Word and Excel files.
func NewParserRegistry() *ParserRegistry {
	registry := &ParserRegistry{parsers: make(map[string]Parser)}
	registry.Register(&PDFParser{})
	registry.Register(&WordParser{})
	registry.Register(&ExcelParser{})
	return registry
}

// Register adds a parser for its extensions, replacing earlier
// registrations.
func (r *ParserRegistry) Register(parser Parser) {
	for _, ext := range parser.Extensions() {
		r.parsers[ext] = parser
	}
}

// CanParse reports whether a parser is registered for the file.
func (r *ParserRegistry) CanParse(path string) bool {
	_, ok := r.parsers[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Parse extracts text using the parser registered for the file's
// extension.
func (r *ParserRegistry) Parse(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	parser, ok := r.parsers[ext]
	if !ok {
		return "", fmt.Errorf("no parser registered for %q", ext)
	}
	return parser.Parse(ctx, path)
}

// PDFParser extracts text from PDF files page by page.
type PDFParser struct{}

// Extensions implements Parser.
func (p *PDFParser) Extensions() []string { return []string{".pdf"} }

// Parse implements Parser. Pages that fail to decode are skipped.
func (p *PDFParser) Parse(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat PDF: %w", err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return "", fmt.Errorf("failed to read PDF: %w", err)
	}

	var pages []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, fmt.Sprintf("--- Page %d ---\n%s", pageNum, text))
	}

	if len(pages) == 0 {
		return "", fmt.Errorf("no extractable text in PDF")
	}
	return strings.Join(pages, "\n\n"), nil
}

// WordParser extracts text from docx files.
type WordParser struct{}

// Extensions implements Parser.
func (p *WordParser) Extensions() []string { return []string{".docx"} }

// Parse implements Parser.
func (p *WordParser) Parse(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	reader, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer reader.Close()

	content := stripDocxMarkup(reader.Editable().GetContent())
	if content == "" {
		return "", fmt.Errorf("no extractable text in docx")
	}
	return content, nil
}

var docxTagPattern = regexp.MustCompile(`<[^>]+>`)

var docxEntities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
)

// stripDocxMarkup reduces the document XML to plain text: paragraph
// ends become newlines, remaining tags are dropped and entities are
// unescaped.
func stripDocxMarkup(content string) string {
	content = strings.ReplaceAll(content, "</w:p>", "\n")
	content = docxTagPattern.ReplaceAllString(content, "")
	content = docxEntities.Replace(content)

	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// ExcelParser extracts cell values from Excel workbooks sheet by
// sheet. Extraction is capped at maxSheetCells cells per sheet.
type ExcelParser struct{}

// Extensions implements Parser.
func (p *ExcelParser) Extensions() []string {
	return []string{".xlsx", ".xlsm", ".xltx", ".xltm"}
}

// Parse implements Parser.
func (p *ExcelParser) Parse(ctx context.Context, path string) (string, error) {
	workbook, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to open workbook: %w", err)
	}
	defer workbook.Close()

	var sections []string
	for _, sheet := range workbook.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			continue
		}

		var section strings.Builder
		fmt.Fprintf(&section, "--- Sheet: %s ---\n", sheet)
		cells := 0
		for rowIndex, row := range rows {
			if cells >= maxSheetCells {
				section.WriteString("... (truncated)\n")
				break
			}
			for colIndex, value := range row {
				if value == "" {
					continue
				}
				if cells >= maxSheetCells {
					break
				}
				fmt.Fprintf(&section, "%s%d: %s\n", columnLetter(colIndex), rowIndex+1, value)
				cells++
			}
		}
		if cells > 0 {
			sections = append(sections, section.String())
		}
	}

	if len(sections) == 0 {
		return "", fmt.Errorf("no extractable content in workbook")
	}
	return strings.Join(sections, "\n"), nil
}

// columnLetter converts a 0-based column index to its spreadsheet
// letter (A, B, ... Z, AA, AB).
func columnLetter(index int) string {
	letters := ""
	for index >= 0 {
		letters = string(rune('A'+index%26)) + letters
		index = index/26 - 1
	}
	return letters
}
