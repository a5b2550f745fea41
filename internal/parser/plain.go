package parser

import (
	"strings"
	"unicode/utf8"

	"cdas-go/internal/model"
)

// parsePlain decodes content as UTF-8. Invalid sequences are replaced with
// the replacement character instead of failing.
func parsePlain(content []byte) []model.Page {
	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\uFFFD")
	}
	return []model.Page{{Number: 1, Text: text}}
}
