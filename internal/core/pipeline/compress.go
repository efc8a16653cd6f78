package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/asura-ai/asura/internal/core"
	"github.com/asura-ai/asura/internal/models"
)

// Artisan Cut: the lossy-but-information-preserving compression policy applied
// to extracted text before embedding. The model is asked to propose a
// description and then to review and correct its own JSON in a second pass.
const proposeSystemPrompt = `You compress documents into dense descriptions. Keep every number, date, named entity and decision. Remove verbose prose, filler and repetition. Respond with a single JSON object: {"filename": string, "file_type": string, "description": string}. No other text.`

const refineSystemPrompt = `You previously compressed a document into a JSON object. Review your own output below for missing numbers, dates, entities or decisions and for malformed JSON. Respond with the corrected JSON object only, same shape: {"filename": string, "file_type": string, "description": string}.`

// CompressionResult holds the refined description plus both raw model
// responses, retained for diagnostics.
type CompressionResult struct {
	Description string
	ProposeRaw  string
	RefineRaw   string
}

type compressedDoc struct {
	Filename    string `json:"filename"`
	FileType    string `json:"file_type"`
	Description string `json:"description"`
}

// Compressor wraps the hosted LLM behind the two-pass Artisan Cut contract.
type Compressor struct {
	llm      core.LLMProvider
	maxChars int
}

func NewCompressor(llm core.LLMProvider, maxChars int) *Compressor {
	return &Compressor{llm: llm, maxChars: maxChars}
}

// Compress validates its inputs, then issues the propose and refine calls.
// All validation failures are raised before any network call.
func (c *Compressor) Compress(ctx context.Context, text, filename, fileType string) (*CompressionResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewError(CodeEmptyContent, "no content to compress")
	}
	if c.maxChars > 0 && len([]rune(text)) > c.maxChars {
		return nil, NewError(CodeValidationError,
			fmt.Sprintf("content length %d exceeds the %d character limit", len([]rune(text)), c.maxChars)).
			WithDetails(map[string]any{"length": len([]rune(text)), "maxLength": c.maxChars})
	}
	if !models.ValidFileType(fileType) {
		return nil, NewError(CodeInvalidFileType, fmt.Sprintf("unrecognized file type %q", fileType))
	}
	if c.llm == nil {
		return nil, NewError(CodeAPIError, "LLM provider is not configured")
	}

	userPrompt := fmt.Sprintf("Filename: %s\nFile type: %s\n\nContent:\n%s", filename, fileType, text)

	proposeRaw, err := c.llm.Generate(ctx, proposeSystemPrompt, userPrompt)
	if err != nil {
		return nil, mapLLMError(err, "propose call failed")
	}

	refinePrompt := fmt.Sprintf("Filename: %s\nFile type: %s\n\nPrevious output:\n%s\n\nOriginal content:\n%s",
		filename, fileType, proposeRaw, text)

	refineRaw, err := c.llm.Generate(ctx, refineSystemPrompt, refinePrompt)
	if err != nil {
		return nil, mapLLMError(err, "refine call failed")
	}

	doc, err := parseCompressedDoc(refineRaw)
	if err != nil {
		return nil, err
	}

	return &CompressionResult{
		Description: doc.Description,
		ProposeRaw:  proposeRaw,
		RefineRaw:   refineRaw,
	}, nil
}

// parseCompressedDoc tolerates fenced code blocks, "thinking" preambles and
// surrounding prose: it extracts the first well-formed JSON object from the
// raw model output before validating its shape.
func parseCompressedDoc(raw string) (*compressedDoc, error) {
	jsonText, ok := extractJSONObject(raw)
	if !ok {
		return nil, NewError(CodeJSONParseError, "no JSON object found in model response").
			WithDetails(map[string]any{"raw": raw})
	}

	var doc compressedDoc
	if err := json.Unmarshal([]byte(jsonText), &doc); err != nil {
		return nil, NewError(CodeJSONParseError, "model response is not valid JSON").
			WithDetails(map[string]any{"raw": raw}).WithCause(err)
	}

	if doc.Filename == "" || doc.Description == "" {
		return nil, NewError(CodeValidationError, "model response is missing required fields").
			WithDetails(map[string]any{"raw": raw})
	}
	if !models.ValidFileType(doc.FileType) {
		return nil, NewError(CodeValidationError,
			fmt.Sprintf("model response carries invalid file_type %q", doc.FileType)).
			WithDetails(map[string]any{"raw": raw})
	}
	return &doc, nil
}

// extractJSONObject returns the first balanced top-level JSON object in s.
// String literals and escapes are respected so braces inside values don't
// confuse the depth tracking.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// mapLLMError translates transport-level failures into the flat taxonomy:
// 429 becomes RATE_LIMIT, 401/403 become an authentication API_ERROR, and
// everything else is a generic API_ERROR.
func mapLLMError(err error, msg string) *Error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 429:
			return NewError(CodeRateLimit, "LLM API rate limit exceeded").WithCause(err)
		case 401, 403:
			return NewError(CodeAPIError, "LLM API authentication failed").WithCause(err)
		}
	}
	return NewError(CodeAPIError, fmt.Sprintf("%s: %v", msg, err)).WithCause(err)
}
