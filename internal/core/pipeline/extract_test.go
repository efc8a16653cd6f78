package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asura-ai/asura/internal/models"
)

func TestClassifyFile(t *testing.T) {
	cases := []struct {
		filename string
		wantType string
		wantExt  string
	}{
		{"report.pdf", models.FileTypePDF, "pdf"},
		{"REPORT.PDF", models.FileTypePDF, "pdf"},
		{"notes.txt", models.FileTypeText, "txt"},
		{"readme.md", models.FileTypeText, "md"},
		{"main.go", models.FileTypeCode, "go"},
		{"config.json", models.FileTypeCode, "json"},
		{"photo.JPEG", models.FileTypeImage, "jpeg"},
		{"data.csv", models.FileTypeSpreadsheet, "csv"},
		{"legacy.xls", models.FileTypeSpreadsheet, "xls"},
		{"archive.tar.gz", models.FileTypeOther, "gz"},
		{"noextension", models.FileTypeOther, ""},
		{"weird.zzz", models.FileTypeOther, "zzz"},
	}
	for _, tc := range cases {
		gotType, gotExt := ClassifyFile(tc.filename)
		assert.Equal(t, tc.wantType, gotType, tc.filename)
		assert.Equal(t, tc.wantExt, gotExt, tc.filename)
	}
}

func TestExtractTextVerbatimDecode(t *testing.T) {
	content := "Q3 revenue: 4.2M USD\nDecision: expand to EMEA in 2026."

	for _, name := range []string{"plan.txt", "plan.md", "handler.go", "data.csv"} {
		res, err := ExtractText([]byte(content), name)
		require.NoError(t, err, name)
		assert.Equal(t, content, res.Text, name)
		assert.True(t, res.Success)
		assert.Empty(t, res.Warnings)
		assert.Equal(t, 10, res.WordCount)
	}
}

func TestExtractTextMetadata(t *testing.T) {
	data := []byte("alpha beta gamma")
	res, err := ExtractText(data, "words.txt")
	require.NoError(t, err)

	assert.Equal(t, HashContent(data), res.ContentHash)
	assert.Equal(t, int64(len(data)), res.FileSize)
	assert.Equal(t, 3, res.WordCount)
	assert.Equal(t, 16, res.CharCount)
	assert.Equal(t, "words.txt", res.Filename)
	assert.Equal(t, "txt", res.Extension)
}

func TestExtractTextImageWarnsWithoutFailing(t *testing.T) {
	res, err := ExtractText([]byte{0x89, 0x50, 0x4e, 0x47}, "diagram.png")
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.True(t, res.Success)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "OCR")
}

func TestExtractTextLegacySpreadsheetWarns(t *testing.T) {
	res, err := ExtractText([]byte("not really a workbook"), "accounts.xls")
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "legacy spreadsheet")
}

func TestExtractTextUnknownExtensionWarns(t *testing.T) {
	res, err := ExtractText([]byte("???"), "mystery.zzz")
	require.NoError(t, err)
	assert.Equal(t, models.FileTypeOther, res.FileType)
	assert.Empty(t, res.Text)
	assert.NotEmpty(t, res.Warnings)
}

func TestExtractTextWhitespaceOnlyWarnsNotErrors(t *testing.T) {
	res, err := ExtractText([]byte("   \n\t  "), "blank.txt")
	require.NoError(t, err)
	assert.Zero(t, res.WordCount)
	assert.NotEmpty(t, res.Warnings)
}

func TestExtractTextInvalidPDF(t *testing.T) {
	_, err := ExtractText([]byte("definitely not a pdf"), "broken.pdf")
	require.Error(t, err)

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, CodePDFParseError, pe.Code)
	assert.Contains(t, pe.Message, "broken.pdf")
}
