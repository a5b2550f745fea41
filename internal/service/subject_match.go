package service

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"cdas-go/internal/model"
)

// SubjectMatch 是根据文件名识别出的学科。
type SubjectMatch struct {
	ID   uint
	Name string
}

// DetectSubject 根据文件名猜测学科：去掉扩展名得到 stem，取第一个 "_" 之后的部分
// 作为候选名；按顺序第一个名称出现在 stem 中、或与候选名完全相同的学科胜出。
// 识别是启发式的，没有匹配时返回 nil。
func DetectSubject(filename string, subjects []model.Subject) *SubjectMatch {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	candidate := stem
	if _, after, ok := strings.Cut(stem, "_"); ok {
		candidate = after
	}
	for _, s := range subjects {
		if s.Name == "" {
			continue
		}
		if strings.Contains(stem, s.Name) || s.Name == candidate {
			return &SubjectMatch{ID: s.ID, Name: s.Name}
		}
	}
	return nil
}

// 引用上下文默认参数
const (
	DefaultReferenceChunks  = 6
	referenceSnippetRunes   = 360
	referenceSnippetEllipse = "..."
)

// BuildReferenceContext 把检索到的切片格式化为 prompt 中的参考资料，每个切片一行：
//
//	[chunk_id=12-3-0 subject=数学 page=3] 摘要文本...
//
// 最多取前 maxChunks 个切片，摘要把空白折叠为单个空格并截断到 360 个字符。
func BuildReferenceContext(chunks []model.ChunkRecord, maxChunks int) string {
	if maxChunks <= 0 {
		maxChunks = DefaultReferenceChunks
	}
	lines := make([]string, 0, min(len(chunks), maxChunks))
	for _, c := range chunks {
		if len(lines) == maxChunks {
			break
		}
		var meta []string
		if c.SubjectName != "" {
			meta = append(meta, "subject="+c.SubjectName)
		} else if c.SubjectID != nil {
			meta = append(meta, fmt.Sprintf("subject_id=%d", *c.SubjectID))
		}
		if c.Page > 0 {
			meta = append(meta, fmt.Sprintf("page=%d", c.Page))
		}
		header := "chunk_id=" + c.ID
		if len(meta) > 0 {
			header += " " + strings.Join(meta, " ")
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", header, summarizeText(c.Text, referenceSnippetRunes)))
	}
	return strings.Join(lines, "\n")
}

func summarizeText(text string, maxRunes int) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(cleaned) <= maxRunes {
		return cleaned
	}
	runes := []rune(cleaned)
	return string(runes[:maxRunes]) + referenceSnippetEllipse
}
