// Package parser 将上传文件的原始字节按扩展名解析为按页的纯文本。
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"cdas-go/internal/model"
)

// ErrUnsupportedFormat 表示扩展名无法识别，或对应的解码器无法打开文件。
var ErrUnsupportedFormat = errors.New("unsupported document format")

// TextExtractor 是外部全文抽取服务（Apache Tika）的最小接口。
type TextExtractor interface {
	ExtractText(ctx context.Context, fileReader io.Reader, fileName string) (string, error)
}

// Parser 根据文件扩展名分派到对应的解码器。
type Parser struct {
	extractor TextExtractor
}

// New 创建解析器。extractor 可以为 nil，此时 .doc 文件按 .docx 尝试解析。
func New(extractor TextExtractor) *Parser {
	return &Parser{extractor: extractor}
}

// SupportedExtensions 返回可以解析的扩展名（含前导点，"" 表示无扩展名）。
func SupportedExtensions() []string {
	return []string{".pdf", ".docx", ".doc", ".txt", ""}
}

// IsSupported 判断文件名的扩展名是否可被解析。
func IsSupported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, s := range SupportedExtensions() {
		if s == ext {
			return true
		}
	}
	return false
}

// Parse 将 content 解析为按页的文本，页码从 1 开始且与源文档保持一致。
func (p *Parser) Parse(ctx context.Context, content []byte, filename string) ([]model.Page, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return parsePDF(content)
	case ".docx":
		return parseDOCX(content)
	case ".doc":
		if p.extractor != nil {
			text, err := p.extractor.ExtractText(ctx, bytes.NewReader(content), filename)
			if err != nil {
				return nil, fmt.Errorf("extract %s via tika: %w", filename, err)
			}
			return []model.Page{{Number: 1, Text: text}}, nil
		}
		return parseDOCX(content)
	case ".txt", "":
		return parsePlain(content), nil
	default:
		return nil, fmt.Errorf("%w: unsupported file extension %q", ErrUnsupportedFormat, ext)
	}
}
