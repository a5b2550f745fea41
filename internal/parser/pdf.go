package parser

import (
	"bytes"
	"fmt"

	"cdas-go/internal/model"

	"github.com/ledongthuc/pdf"
)

// pageSource abstracts a paginated document so page alignment can be checked
// independently of the PDF decoder.
type pageSource interface {
	NumPage() int
	PageText(num int) (string, error)
}

type pdfPages struct {
	r *pdf.Reader
}

func (p pdfPages) NumPage() int {
	return p.r.NumPage()
}

func (p pdfPages) PageText(num int) (string, error) {
	page := p.r.Page(num)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

func parsePDF(content []byte) (pages []model.Page, err error) {
	// the decoder panics on some truncated xref tables
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: open PDF: %v", ErrUnsupportedFormat, r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: open PDF: %v", ErrUnsupportedFormat, err)
	}
	return collectPages(pdfPages{r: r})
}

// collectPages emits one Page per physical page, keeping empty pages so that
// numbering stays aligned with the source.
func collectPages(src pageSource) ([]model.Page, error) {
	n := src.NumPage()
	pages := make([]model.Page, 0, n)
	for i := 1; i <= n; i++ {
		text, err := src.PageText(i)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, model.Page{Number: i, Text: text})
	}
	return pages, nil
}
