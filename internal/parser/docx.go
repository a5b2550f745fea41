package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"cdas-go/internal/model"
)

// docxDocumentXMLPath is the main document body inside a .docx zip.
const docxDocumentXMLPath = "word/document.xml"

// parseDOCX flattens every paragraph of the document body into a single page,
// one paragraph per line. Page breaks are not detected.
func parseDOCX(content []byte) ([]model.Page, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: open DOCX: %v", ErrUnsupportedFormat, err)
	}
	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxDocumentXMLPath {
			body = f
			break
		}
	}
	if body == nil {
		return nil, fmt.Errorf("%w: open DOCX: %s not found", ErrUnsupportedFormat, docxDocumentXMLPath)
	}
	rc, err := body.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open DOCX: %v", ErrUnsupportedFormat, err)
	}
	defer rc.Close()

	paragraphs, err := readParagraphs(rc)
	if err != nil {
		return nil, fmt.Errorf("read DOCX body: %w", err)
	}
	return []model.Page{{Number: 1, Text: strings.Join(paragraphs, "\n")}}, nil
}

// readParagraphs walks WordprocessingML and returns the text of each <w:p>.
// <w:tab/> and <w:br/> inside a run become a tab and a newline.
func readParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		paragraphs []string
		current    strings.Builder
		inPara     bool
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inPara = true
				current.Reset()
			case "t":
				inText = true
			case "tab":
				if inPara {
					current.WriteByte('\t')
				}
			case "br", "cr":
				if inPara {
					current.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if inPara {
					paragraphs = append(paragraphs, current.String())
				}
				inPara = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText && inPara {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}
