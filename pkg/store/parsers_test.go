package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExcelParserExtractsCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")

	workbook := excelize.NewFile()
	require.NoError(t, workbook.SetCellValue("Sheet1", "A1", "region"))
	require.NoError(t, workbook.SetCellValue("Sheet1", "B1", "revenue"))
	require.NoError(t, workbook.SetCellValue("Sheet1", "A2", "emea"))
	require.NoError(t, workbook.SetCellValue("Sheet1", "B2", 1200))
	require.NoError(t, workbook.SaveAs(path))
	require.NoError(t, workbook.Close())

	content, err := (&ExcelParser{}).Parse(context.Background(), path)
	require.NoError(t, err)

	assert.Contains(t, content, "--- Sheet: Sheet1 ---")
	assert.Contains(t, content, "A1: region")
	assert.Contains(t, content, "B1: revenue")
	assert.Contains(t, content, "A2: emea")
	assert.Contains(t, content, "B2: 1200")
}

func TestParserRegistryDispatch(t *testing.T) {
	registry := NewParserRegistry()

	assert.True(t, registry.CanParse("a.pdf"))
	assert.True(t, registry.CanParse("b.PDF"))
	assert.True(t, registry.CanParse("c.docx"))
	assert.True(t, registry.CanParse("d.xlsx"))
	assert.False(t, registry.CanParse("e.md"))

	_, err := registry.Parse(context.Background(), "e.md")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no parser")
}

func TestStripDocxMarkup(t *testing.T) {
	input := `<w:p><w:r><w:t>Hello &amp; welcome</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Second paragraph</w:t></w:r></w:p>`

	assert.Equal(t, "Hello & welcome\nSecond paragraph", stripDocxMarkup(input))
}

func TestColumnLetter(t *testing.T) {
	cases := map[int]string{
		0:   "A",
		1:   "B",
		25:  "Z",
		26:  "AA",
		27:  "AB",
		51:  "AZ",
		52:  "BA",
		701: "ZZ",
		702: "AAA",
	}
	for index, want := range cases {
		assert.Equal(t, want, columnLetter(index), "index %d", index)
	}
}
