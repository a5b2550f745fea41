// Package tasks defines the messages that are sent to Kafka.
package tasks

import "time"

// EventType 是文档生命周期事件的类型。
type EventType string

const (
	EventDocumentIndexed EventType = "document.indexed"
	EventDocumentFailed  EventType = "document.failed"
	EventDocumentDeleted EventType = "document.deleted"
)

// DocumentEvent 在文档完成索引、索引失败或被删除时发布。
type DocumentEvent struct {
	Type        EventType `json:"type"`
	DocumentID  uint      `json:"document_id"`
	Filename    string    `json:"filename"`
	Status      string    `json:"status"`
	Source      string    `json:"source,omitempty"`
	ChunkCount  int       `json:"chunk_count,omitempty"`
	SubjectID   *uint     `json:"subject_id,omitempty"`
	SubjectName string    `json:"subject_name,omitempty"`
	ErrorMsg    string    `json:"error_msg,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
