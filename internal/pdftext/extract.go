// Package pdftext extracts the plain text of PDF documents page by page.
package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/logger"
	"github.com/ledongthuc/pdf"
)

var (
	// ErrUnreadablePDF is returned when the document cannot be parsed.
	ErrUnreadablePDF = errors.New("unreadable PDF document")
	// ErrEmptyDocument is returned for a zero-length upload.
	ErrEmptyDocument = errors.New("empty PDF document")
)

// Extractor implements core.TextExtractor on top of ledongthuc/pdf.
type Extractor struct {
	log *logger.Logger
}

// New creates an Extractor.
func New(log *logger.Logger) *Extractor {
	return &Extractor{log: log}
}

// Extract returns the text of every page in order. A page without a
// content stream, or whose text cannot be decoded, contributes an empty
// string.
func (e *Extractor) Extract(ctx context.Context, document []byte) (pages []string, err error) {
	if len(document) == 0 {
		return nil, ErrEmptyDocument
	}

	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if recovered := recover(); recovered != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", ErrUnreadablePDF, recovered)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(document), int64(len(document)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadablePDF, err)
	}

	total := reader.NumPage()
	pages = make([]string, 0, total)

	for index := 1; index <= total; index++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		pages = append(pages, e.pageText(reader.Page(index), index))
	}

	return pages, nil
}

func (e *Extractor) pageText(page pdf.Page, number int) string {
	if page.V.IsNull() || page.V.Key("Contents").IsNull() {
		return ""
	}

	text, err := page.GetPlainText(nil)
	if err != nil {
		e.log.Warn("Page %d has no extractable text: %v", number, err)

		return ""
	}

	return text
}

// JoinPages concatenates the non-empty pages, each followed by a newline.
func JoinPages(pages []string) string {
	var builder strings.Builder

	for _, page := range pages {
		if page == "" {
			continue
		}

		builder.WriteString(page)
		builder.WriteByte('\n')
	}

	return builder.String()
}
