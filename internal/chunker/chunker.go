// Package chunker splits per-page text into overlapping windows of
// whitespace-delimited tokens.
package chunker

import (
	"fmt"
	"strings"

	"cdas-go/internal/model"
)

// ChunkID returns the stable identifier of a chunk: {document_id}-{page}-{order}.
func ChunkID(documentID uint, page, order int) string {
	return fmt.Sprintf("%d-%d-%d", documentID, page, order)
}

// Chunk splits every page independently into windows of chunkSize tokens.
// The next window starts at max(0, end-overlap) but always advances by at
// least one token, so a misconfigured overlap >= chunkSize still terminates.
// Pages without tokens produce no chunks. Token counting uses strings.Fields,
// which undercounts text without whitespace word boundaries such as Chinese.
func Chunk(documentID uint, pages []model.Page, chunkSize, overlap int) []model.Chunk {
	if chunkSize < 1 {
		chunkSize = 1
	}
	if overlap < 0 {
		overlap = 0
	}

	var chunks []model.Chunk
	for _, page := range pages {
		tokens := strings.Fields(page.Text)
		if len(tokens) == 0 {
			continue
		}
		start, order := 0, 0
		for start < len(tokens) {
			end := min(len(tokens), start+chunkSize)
			window := tokens[start:end]
			chunks = append(chunks, model.Chunk{
				ID:         ChunkID(documentID, page.Number, order),
				DocumentID: documentID,
				Page:       page.Number,
				Order:      order,
				TokenCount: len(window),
				Text:       strings.Join(window, " "),
			})
			if end == len(tokens) {
				break
			}
			next := max(0, end-overlap)
			if next <= start {
				next = start + 1
			}
			start = next
			order++
		}
	}
	return chunks
}
