// Package vectorstore 保存切片向量并提供带过滤条件的相似度检索。
//
// 每条记录以切片 ID 为主键，携带 document_id / page / order / subject 元数据，
// 删除与检索都通过 Filter 按文档或学科限定范围。
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"cdas-go/internal/config"
	"cdas-go/pkg/es"
)

// ErrDimensionMismatch 表示向量维度与集合已固定的维度不一致。
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// ErrEmptyFilter 防止无条件删除整个集合。
var ErrEmptyFilter = errors.New("delete requires a document or subject filter")

// Metadata 是随向量一起保存的切片元数据。
type Metadata struct {
	DocumentID  uint
	Page        int
	Order       int
	ChunkID     string
	SubjectID   *uint
	SubjectName string
}

// Entry 是一次 Upsert 的单条记录。
type Entry struct {
	ID        string
	Embedding []float32
	Text      string
	Metadata  Metadata
}

// Hit 是检索结果。Score 为余弦相似度，Get 返回的结果 Score 为 0。
type Hit struct {
	ID       string
	Text     string
	Metadata Metadata
	Score    float64
}

// Filter 限定操作范围。各字段之间为 AND 关系，SubjectIDs 内部为 OR。
type Filter struct {
	DocumentID *uint
	SubjectIDs []uint
}

// ByDocument 构造按文档过滤的 Filter。
func ByDocument(id uint) Filter {
	return Filter{DocumentID: &id}
}

// IsEmpty 判断过滤条件是否为空。
func (f Filter) IsEmpty() bool {
	return f.DocumentID == nil && len(f.SubjectIDs) == 0
}

// Store 定义了向量库的操作。
type Store interface {
	// Upsert 按 ID 插入或覆盖记录。
	Upsert(ctx context.Context, entries []Entry) error
	// Delete 删除满足过滤条件的记录，没有匹配时不报错。
	Delete(ctx context.Context, filter Filter) error
	// Query 返回与 embedding 最相似的至多 topK 条记录，按相似度降序。
	Query(ctx context.Context, embedding []float32, topK int, filter Filter) ([]Hit, error)
	// Get 返回满足过滤条件的全部记录，按 (document_id, page, order) 排序。
	Get(ctx context.Context, filter Filter) ([]Hit, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// New 根据配置创建向量库后端。dims 仅用于新建 Elasticsearch 索引；已有索引沿用其映射中的维度。
func New(ctx context.Context, cfg config.VectorStoreConfig, dims int) (Store, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocal(cfg.PersistDir, cfg.Collection)
	case "elasticsearch":
		client, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			return nil, fmt.Errorf("初始化 Elasticsearch 客户端失败: %w", err)
		}
		indexDims, err := es.EnsureIndex(ctx, client, cfg.Elasticsearch.IndexName, dims)
		if err != nil {
			return nil, err
		}
		return NewElasticsearch(client, cfg.Elasticsearch.IndexName, indexDims), nil
	default:
		return nil, fmt.Errorf("unknown vector store backend: %s (supported: local, elasticsearch)", cfg.Backend)
	}
}
