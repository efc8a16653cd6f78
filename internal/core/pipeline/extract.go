package pipeline

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"

	"github.com/asura-ai/asura/internal/models"
)

// ExtractionResult carries everything downstream stages need about a file.
type ExtractionResult struct {
	Text        string
	FileType    string
	ContentHash string
	FileSize    int64
	WordCount   int
	CharCount   int
	Filename    string
	Extension   string
	Success     bool
	Warnings    []string
}

var extensionTypes = map[string]string{
	"pdf": models.FileTypePDF,

	"png": models.FileTypeImage, "jpg": models.FileTypeImage, "jpeg": models.FileTypeImage,
	"gif": models.FileTypeImage, "webp": models.FileTypeImage, "bmp": models.FileTypeImage,
	"svg": models.FileTypeImage, "tiff": models.FileTypeImage,

	"txt": models.FileTypeText, "md": models.FileTypeText, "markdown": models.FileTypeText,
	"log": models.FileTypeText, "text": models.FileTypeText,

	"go": models.FileTypeCode, "js": models.FileTypeCode, "ts": models.FileTypeCode,
	"jsx": models.FileTypeCode, "tsx": models.FileTypeCode, "py": models.FileTypeCode,
	"java": models.FileTypeCode, "c": models.FileTypeCode, "cpp": models.FileTypeCode,
	"h": models.FileTypeCode, "rb": models.FileTypeCode, "rs": models.FileTypeCode,
	"sh": models.FileTypeCode, "html": models.FileTypeCode, "css": models.FileTypeCode,
	"json": models.FileTypeCode, "yaml": models.FileTypeCode, "yml": models.FileTypeCode,
	"xml": models.FileTypeCode, "sql": models.FileTypeCode, "toml": models.FileTypeCode,

	"csv": models.FileTypeSpreadsheet, "tsv": models.FileTypeSpreadsheet,
	"xls": models.FileTypeSpreadsheet, "xlsx": models.FileTypeSpreadsheet,
}

// ClassifyFile maps a filename to one of the six file types by its extension
// (case-insensitive, last dot wins). Unknown or missing extensions are "other".
func ClassifyFile(filename string) (fileType, ext string) {
	ext = strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return models.FileTypeOther, ""
	}
	if t, ok := extensionTypes[ext]; ok {
		return t, ext
	}
	return models.FileTypeOther, ext
}

// ExtractText classifies the file and extracts UTF-8 text where feasible.
//
// Plain text, code and CSV/TSV bytes are decoded verbatim. PDFs go through
// docconv; a parse failure is a hard PDF_PARSE_ERROR. Images, legacy
// spreadsheet formats and unrecognized extensions yield empty text plus a
// warning rather than an error (OCR and legacy spreadsheet parsing are out of
// scope). Empty or whitespace-only text also produces a warning, not an error.
func ExtractText(data []byte, filename string) (*ExtractionResult, error) {
	fileType, ext := ClassifyFile(filename)

	res := &ExtractionResult{
		FileType:    fileType,
		ContentHash: HashContent(data),
		FileSize:    int64(len(data)),
		Filename:    filename,
		Extension:   ext,
	}

	switch fileType {
	case models.FileTypeText, models.FileTypeCode:
		res.Text = string(data)

	case models.FileTypeSpreadsheet:
		if ext == "csv" || ext == "tsv" {
			res.Text = string(data)
		} else {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("legacy spreadsheet format .%s is not supported; no text extracted", ext))
		}

	case models.FileTypePDF:
		out, err := docconv.Convert(bytes.NewReader(data), "application/pdf", false)
		if err != nil {
			return nil, NewError(CodePDFParseError,
				fmt.Sprintf("failed to parse PDF %q", filename)).WithCause(err)
		}
		res.Text = out.Body

	case models.FileTypeImage:
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("image file %q requires OCR, which is not supported; no text extracted", filename))

	default:
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("unrecognized file extension for %q; no text extracted", filename))
	}

	if strings.TrimSpace(res.Text) == "" && len(res.Warnings) == 0 {
		res.Warnings = append(res.Warnings, "extracted text is empty")
	}

	res.WordCount = len(strings.Fields(res.Text))
	res.CharCount = len([]rune(res.Text))
	res.Success = true
	return res, nil
}
