package document

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTempFile(t *testing.T, content, ext string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paper-test"+ext)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// createTempPDF 生成每个字符串占一页的PDF
func createTempPDF(t *testing.T, pageTexts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paper-test.pdf")

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	for _, text := range pageTexts {
		pdf.AddPage()
		pdf.MultiCell(0, 10, text, "", "", false)
	}
	require.NoError(t, pdf.OutputFileAndClose(path))
	return path
}

func TestPDFLoaderPages(t *testing.T) {
	path := createTempPDF(t,
		"Synergizing reasoning and acting in language models.",
		"Second page about HotpotQA and Fever.",
	)

	pages, err := NewPDFLoader().Load(path)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, 0, pages[0].Index)
	assert.Equal(t, 1, pages[1].Index)
	assert.Equal(t, path, pages[0].Source)
	assert.Contains(t, pages[0].Text, "reasoning")
	assert.Contains(t, pages[1].Text, "HotpotQA")
}

func TestPDFLoaderReader(t *testing.T) {
	path := createTempPDF(t, "Reader based loading works.")
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	pages, err := NewPDFLoader().LoadReader(file, "upload.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "upload.pdf", pages[0].Source)
	assert.Contains(t, pages[0].Text, "Reader")
}

func TestPDFLoaderInvalidFile(t *testing.T) {
	path := createTempFile(t, "this is not a pdf at all", ".pdf")

	_, err := NewPDFLoader().Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParse), "got %v", err)
}

func TestPDFLoaderTruncatedFile(t *testing.T) {
	path := createTempPDF(t, "Truncated document.")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)/3], 0644))

	_, err = NewPDFLoader().Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
}

func TestPDFLoaderMissingFile(t *testing.T) {
	_, err := NewPDFLoader().Load(filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.NotErrorIs(t, err, ErrParse)
}

func TestPlainTextLoader(t *testing.T) {
	path := createTempFile(t, "Hello, this is a plain text file.\nSecond line.", ".txt")

	pages, err := NewPlainTextLoader().Load(path)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Contains(t, pages[0].Text, "plain text file")
	assert.Equal(t, path, pages[0].Source)
}

func TestMarkdownLoader(t *testing.T) {
	path := createTempFile(t, "# Title\n\nThis is a **markdown** file.\n\n- Item 1\n- Item 2", ".md")

	pages, err := NewMarkdownLoader().Load(path)
	require.NoError(t, err)
	require.Len(t, pages, 1)

	text := pages[0].Text
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "This is a markdown file.")
	assert.Contains(t, text, "- Item 1")
	assert.NotContains(t, text, "**")
	assert.NotContains(t, text, "<")
}

func TestStripMarkup(t *testing.T) {
	input := "## Summary\n\nThe paper proposes **ReAct** & evaluates it on `ALFWorld`.\n\nSecond <em>paragraph</em>."
	out := StripMarkup(input)

	assert.Equal(t, "Summary\n\nThe paper proposes ReAct & evaluates it on ALFWorld.\n\nSecond paragraph.", out)
}

func TestStripMarkupPlainTextUnchanged(t *testing.T) {
	input := "ReAct combines reasoning and acting.\n\nIt outperforms baselines."
	assert.Equal(t, input, StripMarkup(input))
}

func TestStripMarkupKeepsLiteralText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"ordered list", "1. Reason\n2. Act\n3. Observe", "1. Reason\n2. Act\n3. Observe"},
		{"ordered list start", "3. Third\n4. Fourth", "3. Third\n4. Fourth"},
		{"bullet list", "Steps:\n\n- Reason\n- Act", "Steps:\n\n- Reason\n- Act"},
		{"comparison", "The bound holds when a<b and c>d in practice.", "The bound holds when a<b and c>d in practice."},
		{"spaced comparison", "Accuracy < 50% when k > 3.", "Accuracy < 50% when k > 3."},
		{"dollar amounts", "It costs $5 and $10 per run.", "It costs $5 and $10 per run."},
		{"inline tag", "Use <strong>ReAct</strong> here.", "Use ReAct here."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripMarkup(tt.input))
		})
	}
}

func TestLoaderFactory(t *testing.T) {
	tests := []struct {
		path     string
		expected interface{}
	}{
		{"paper.pdf", &PDFLoader{}},
		{"notes.MD", &MarkdownLoader{}},
		{"notes.markdown", &MarkdownLoader{}},
		{"abstract.txt", &PlainTextLoader{}},
	}
	for _, tt := range tests {
		loader, err := LoaderFactory(tt.path)
		require.NoError(t, err, tt.path)
		assert.IsType(t, tt.expected, loader)
	}

	binary := createTempFile(t, "PK\x03\x04\x14\x00\x06\x00binary", ".docx")
	_, err := LoaderFactory(binary)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.ErrorIs(t, err, ErrParse)
}

func TestLoaderFactorySniffsContent(t *testing.T) {
	pdfPath := createTempPDF(t, "A paper saved without an extension.")
	bare := filepath.Join(t.TempDir(), "react")
	data, err := os.ReadFile(pdfPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(bare, data, 0644))

	loader, err := LoaderFactory(bare)
	require.NoError(t, err)
	assert.IsType(t, &PDFLoader{}, loader)

	pages, err := loader.Load(bare)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Contains(t, pages[0].Text, "without an extension")

	text := createTempFile(t, "Plain notes about ReAct.", ".notes")
	loader, err = LoaderFactory(text)
	require.NoError(t, err)
	assert.IsType(t, &PlainTextLoader{}, loader)

	_, err = LoaderFactory(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.NotErrorIs(t, err, ErrParse)
}
