// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"time"

	"gorm.io/datatypes"
)

// ParsingStatus 是文档解析状态机：uploaded -> indexing -> ready | failed。
type ParsingStatus string

const (
	StatusUploaded ParsingStatus = "uploaded"
	StatusIndexing ParsingStatus = "indexing"
	StatusReady    ParsingStatus = "ready"
	StatusFailed   ParsingStatus = "failed"
)

// DocumentSource 标记文档来源：用户上传或系统预置。
type DocumentSource string

const (
	SourceUser   DocumentSource = "user"
	SourceSystem DocumentSource = "system"
)

// DocumentMetadata 是文档的自由元数据，以 JSON 列存储。
type DocumentMetadata struct {
	PageCount   int    `json:"page_count"`
	ChunkCount  int    `json:"chunk_count"`
	SubjectID   *uint  `json:"subject_id,omitempty"`
	SubjectName string `json:"subject_name,omitempty"`
}

// Document 定义了 documents 表的 ORM 模型。
// 它记录了每个上传文件的元数据和解析状态。
type Document struct {
	ID            uint                                `gorm:"primaryKey;autoIncrement" json:"id"`
	Filename      string                              `gorm:"type:varchar(255);not null" json:"filename"`
	UploadDate    time.Time                           `gorm:"not null;index" json:"upload_date"`
	ParsingStatus ParsingStatus                       `gorm:"type:varchar(20);not null;default:uploaded" json:"status"`
	FilePath      string                              `gorm:"type:varchar(512)" json:"file_path,omitempty"`
	MimeType      string                              `gorm:"type:varchar(100)" json:"mime_type,omitempty"`
	SizeBytes     int64                               `json:"size_bytes"`
	Metadata      datatypes.JSONType[DocumentMetadata] `json:"metadata"`
	ErrorMsg      string                              `gorm:"type:text" json:"error_msg,omitempty"`
	Source        DocumentSource                      `gorm:"type:varchar(20);not null;default:user" json:"source"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// Meta 返回解码后的元数据。
func (d *Document) Meta() DocumentMetadata {
	return d.Metadata.Data()
}

// SetMeta 替换文档的元数据。
func (d *Document) SetMeta(meta DocumentMetadata) {
	d.Metadata = datatypes.NewJSONType(meta)
}
