// Package extract pulls text and structural metadata out of PDF files.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"
)

// Extraction is the raw material the document pipeline works from. Title and
// Author come from the PDF info dictionary and are last-resort values;
// registry metadata overrides them later.
type Extraction struct {
	Text      string
	Title     string
	Author    string
	PageCount int
}

// Extractor produces an Extraction from a file on disk.
type Extractor interface {
	Extract(ctx context.Context, path string) (Extraction, error)
}

// PDFExtractor reads PDFs with relaxed validation, since scanned papers in
// the wild are frequently malformed.
type PDFExtractor struct {
	conf   *model.Configuration
	logger *zerolog.Logger
}

func NewPDF(logger *zerolog.Logger) *PDFExtractor {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	return &PDFExtractor{
		conf:   conf,
		logger: logger,
	}
}

// Extract returns the document's text, info-dictionary metadata, and page
// count. An unreadable file is a hard error; a readable file with
// unextractable text yields an Extraction with empty text, since review can
// still proceed from registry metadata.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (Extraction, error) {
	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}

	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return Extraction{}, fmt.Errorf("read pdf %s: %w", filepath.Base(path), err)
	}

	result := Extraction{PageCount: pageCount}
	result.Title, result.Author = e.infoDict(path)
	result.Text = e.text(path)

	return result, nil
}

// infoDict parses the human-readable info listing for Title and Author.
func (e *PDFExtractor) infoDict(path string) (title, author string) {
	lines, err := api.InfoFile(path, nil, e.conf)
	if err != nil {
		e.logger.Debug().Err(err).Str("file", filepath.Base(path)).Msg("pdf info unavailable")
		return "", ""
	}

	for _, line := range lines {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "Title":
			title = value
		case "Author":
			author = value
		}
	}

	return title, author
}

// text extracts per-page content streams into a scratch directory and
// decodes the text operators. Best-effort: any failure degrades to empty
// text.
func (e *PDFExtractor) text(path string) string {
	scratch, err := os.MkdirTemp("", "paperbot-extract-*")
	if err != nil {
		e.logger.Warn().Err(err).Msg("scratch dir for text extraction")
		return ""
	}
	defer os.RemoveAll(scratch)

	if err := api.ExtractContentFile(path, scratch, nil, e.conf); err != nil {
		e.logger.Warn().Err(err).Str("file", filepath.Base(path)).Msg("content extraction failed")
		return ""
	}

	entries, err := os.ReadDir(scratch)
	if err != nil {
		return ""
	}

	var pages []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(scratch, entry.Name()))
		if err != nil {
			continue
		}

		if page := decodeTextOperators(string(raw)); page != "" {
			pages = append(pages, page)
		}
	}

	return strings.Join(pages, "\n\n")
}
