// Package extract turns uploaded files into plain text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"github.com/vibeee34/chatbot-gemini/src/core/rag"
	"github.com/vibeee34/chatbot-gemini/src/infrastructure/integrations/unstructured"
	"github.com/vibeee34/chatbot-gemini/src/log"
)

const mimePDF = "application/pdf"

// Partitioner extracts document elements with a remote service.
type Partitioner interface {
	Partition(ctx context.Context, filename string, content []byte) ([]unstructured.UnstructuredElement, error)
}

// Extractor reads PDFs and plain text. PDFs go to the partitioner when one
// is configured and are parsed locally otherwise.
type Extractor struct {
	partitioner Partitioner
}

func New(partitioner Partitioner) *Extractor {
	return &Extractor{partitioner: partitioner}
}

func (e *Extractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	mtype := mimetype.Detect(data)

	switch {
	case mtype.Is(mimePDF):
		if e.partitioner != nil {
			return e.partition(ctx, filename, data)
		}
		return PDFText(data)
	case isText(mtype):
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %s is not valid UTF-8", rag.ErrUnreadableDocument, filename)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %s (%s)", rag.ErrUnsupportedDocument, filename, mtype.String())
	}
}

func (e *Extractor) partition(ctx context.Context, filename string, data []byte) (string, error) {
	elements, err := e.partitioner.Partition(ctx, filename, data)
	if err != nil {
		var se *unstructured.StatusError
		if errors.As(err, &se) && se.StatusCode < 500 {
			return "", fmt.Errorf("%w: %v", rag.ErrUnreadableDocument, err)
		}
		return "", fmt.Errorf("%w: partition %s: %v", rag.ErrServiceUnavailable, filename, err)
	}
	log.Debug("partitioned document", "file", filename, "elements", len(elements))
	return unstructured.Text(elements), nil
}

func isText(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// PDFText concatenates the text of every page, each followed by a newline.
// Pages without text are skipped.
func PDFText(data []byte) (text string, err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: pdf parser: %v", rag.ErrUnreadableDocument, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", rag.ErrUnreadableDocument, err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", rag.ErrUnreadableDocument, i, err)
		}
		if pageText == "" {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
