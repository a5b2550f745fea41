package model

// Page 是解析器输出的单页文本，页码从 1 开始。它不会被单独持久化。
type Page struct {
	Number int
	Text   string
}

// Chunk 是可检索的文本单元，只保存在向量库中。
// ID 的格式为 {document_id}-{page}-{order}，order 在每页内从 0 开始计数。
type Chunk struct {
	ID          string
	DocumentID  uint
	Page        int
	Order       int
	TokenCount  int
	Text        string
	SubjectID   *uint
	SubjectName string
}

// ChunkRecord 是检索结果返回给内部调用方（例如作业生成的 prompt 构造）的结构。
type ChunkRecord struct {
	ID          string  `json:"id"`
	DocumentID  uint    `json:"document_id"`
	Page        int     `json:"page"`
	Order       int     `json:"order"`
	Text        string  `json:"text"`
	SubjectID   *uint   `json:"subject_id,omitempty"`
	SubjectName string  `json:"subject_name,omitempty"`
	Score       float64 `json:"score,omitempty"`
}
