// Package service 提供了文档入库与知识检索的业务逻辑。
package service

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cdas-go/internal/chunker"
	"cdas-go/internal/config"
	"cdas-go/internal/model"
	"cdas-go/internal/parser"
	"cdas-go/internal/repository"
	"cdas-go/internal/vectorstore"
	"cdas-go/pkg/embedding"
	"cdas-go/pkg/kafka"
	"cdas-go/pkg/log"
	"cdas-go/pkg/rerank"
	"cdas-go/pkg/storage"
	"cdas-go/pkg/tasks"

	"gorm.io/gorm"
)

var (
	// ErrDocumentNotFound 表示文档 ID 不存在。
	ErrDocumentNotFound = errors.New("document not found")
	// ErrIngestion 包装解析、切片、向量化、入库阶段的失败，失败原因会记录到文档上。
	ErrIngestion = errors.New("ingestion failed")
)

// DocumentParser 把原始文件解析为按页的文本。
type DocumentParser interface {
	Parse(ctx context.Context, content []byte, filename string) ([]model.Page, error)
}

// UploadInput 是一次上传的输入。MimeType 只作记录，解析按扩展名分派。
type UploadInput struct {
	Filename string
	MimeType string
	Content  []byte
	Source   model.DocumentSource
}

// SeedResult 汇总一次目录导入的结果。
type SeedResult struct {
	Imported  int
	Skipped   int
	Failed    int
	Documents []model.Document
}

// InventoryService 接口定义了文档入库、管理与检索操作。
type InventoryService interface {
	// Upload 保存文件并运行 解析→切片→向量化→入库 流水线。
	// 流水线失败时文档被标记为 failed 并正常返回；只有关系库错误会作为 error 返回。
	Upload(ctx context.Context, in UploadInput) (*model.Document, error)
	// QueryChunks 返回与 query 最相关的至多 limit 个切片，subjectIDs 非空时只在这些学科内检索。
	QueryChunks(ctx context.Context, query string, subjectIDs []uint, limit int) ([]model.ChunkRecord, error)
	ListDocuments(ctx context.Context) ([]model.Document, error)
	GetDocument(ctx context.Context, id uint) (*model.Document, error)
	// DeleteDocument 删除向量、文件目录与文档记录，三者都会尝试，任一失败则返回合并后的错误。
	DeleteDocument(ctx context.Context, id uint) error
	// DocumentChunks 按 (page, order) 返回文档的全部切片。
	DocumentChunks(ctx context.Context, id uint) ([]model.ChunkRecord, error)
	// SeedDirectory 把目录中受支持的文件作为系统文档导入，已导入过的文件名会被跳过。
	SeedDirectory(ctx context.Context, dir string) (*SeedResult, error)
}

// InventoryDeps 汇总 InventoryService 的协作组件。
type InventoryDeps struct {
	Documents repository.DocumentRepository
	Subjects  repository.SubjectRepository
	Parser    DocumentParser
	Blobs     storage.BlobStore
	Vectors   vectorstore.Store
	Embedder  embedding.Provider
	Reranker  rerank.Provider
	Events    kafka.Publisher
}

type inventoryService struct {
	InventoryDeps
	chunking  config.ChunkingConfig
	retrieval config.RetrievalConfig
}

// NewInventoryService 创建一个新的 InventoryService 实例。Events 为空时不发布事件。
func NewInventoryService(deps InventoryDeps, chunking config.ChunkingConfig, retrieval config.RetrievalConfig) InventoryService {
	if deps.Events == nil {
		deps.Events = kafka.NopPublisher{}
	}
	if retrieval.CandidateMultiplier < 1 {
		retrieval.CandidateMultiplier = 1
	}
	if retrieval.DefaultLimit < 1 {
		retrieval.DefaultLimit = 10
	}
	if retrieval.MaxLimit < 1 {
		retrieval.MaxLimit = 100
	}
	if retrieval.MaxCandidates < 1 {
		retrieval.MaxCandidates = 1000
	}
	return &inventoryService{InventoryDeps: deps, chunking: chunking, retrieval: retrieval}
}

func (s *inventoryService) Upload(ctx context.Context, in UploadInput) (*model.Document, error) {
	filename := filepath.Base(strings.TrimSpace(in.Filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		filename = "uploaded"
	}
	source := in.Source
	if source == "" {
		source = model.SourceUser
	}

	doc := &model.Document{
		Filename:      filename,
		UploadDate:    time.Now(),
		ParsingStatus: model.StatusUploaded,
		MimeType:      in.MimeType,
		SizeBytes:     int64(len(in.Content)),
		Source:        source,
	}
	if err := s.Documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("创建文档记录失败: %w", err)
	}
	log.Infof("[InventoryService] 文档记录已创建, id: %d, filename: %s, size: %d", doc.ID, filename, doc.SizeBytes)

	path, err := s.Blobs.Save(ctx, doc.ID, filepath.Ext(filename), in.Content)
	if err != nil {
		return s.markFailed(ctx, doc, fmt.Errorf("%w: save file: %w", ErrIngestion, err))
	}
	doc.FilePath = path
	doc.ParsingStatus = model.StatusIndexing
	if err := s.Documents.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("更新文档状态失败: %w", err)
	}

	match := s.detectSubject(ctx, filename)
	meta := model.DocumentMetadata{}
	if match != nil {
		meta.SubjectID = &match.ID
		meta.SubjectName = match.Name
	}
	doc.SetMeta(meta)

	pageCount, chunkCount, err := s.index(ctx, doc, in.Content, match)
	if err != nil {
		return s.markFailed(ctx, doc, err)
	}

	meta.PageCount = pageCount
	meta.ChunkCount = chunkCount
	doc.SetMeta(meta)
	doc.ParsingStatus = model.StatusReady
	doc.ErrorMsg = ""
	if err := s.Documents.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("更新文档状态失败: %w", err)
	}
	log.Infof("[InventoryService] 文档索引完成, id: %d, pages: %d, chunks: %d", doc.ID, pageCount, chunkCount)
	s.publish(ctx, tasks.EventDocumentIndexed, doc)
	return doc, nil
}

// index 运行 解析→切片→向量化→入库，返回页数与切片数。
func (s *inventoryService) index(ctx context.Context, doc *model.Document, content []byte, match *SubjectMatch) (int, int, error) {
	pages, err := s.Parser.Parse(ctx, content, doc.Filename)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: parse: %w", ErrIngestion, err)
	}

	chunks := chunker.Chunk(doc.ID, pages, s.chunking.ChunkSize, s.chunking.Overlap)
	texts := make([]string, len(chunks))
	for i := range chunks {
		if match != nil {
			chunks[i].SubjectID = &match.ID
			chunks[i].SubjectName = match.Name
		}
		texts[i] = chunks[i].Text
	}

	vectors := s.Embedder.Embed(ctx, texts)
	if len(vectors) != len(chunks) {
		return 0, 0, fmt.Errorf("%w: embed: got %d vectors for %d chunks", ErrIngestion, len(vectors), len(chunks))
	}

	// 重新入库时先清掉旧切片，避免参数变化后残留
	if err := s.Vectors.Delete(ctx, vectorstore.ByDocument(doc.ID)); err != nil {
		return 0, 0, fmt.Errorf("%w: clear stale chunks: %w", ErrIngestion, err)
	}
	entries := make([]vectorstore.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = vectorstore.Entry{
			ID:        c.ID,
			Embedding: vectors[i],
			Text:      c.Text,
			Metadata: vectorstore.Metadata{
				DocumentID:  c.DocumentID,
				Page:        c.Page,
				Order:       c.Order,
				ChunkID:     c.ID,
				SubjectID:   c.SubjectID,
				SubjectName: c.SubjectName,
			},
		}
	}
	if err := s.Vectors.Upsert(ctx, entries); err != nil {
		return 0, 0, fmt.Errorf("%w: upsert: %w", ErrIngestion, err)
	}
	return len(pages), len(chunks), nil
}

// markFailed 记录失败原因并尽力清理已写入的向量。
func (s *inventoryService) markFailed(ctx context.Context, doc *model.Document, cause error) (*model.Document, error) {
	log.Warnf("[InventoryService] 文档索引失败, id: %d, filename: %s, error: %v", doc.ID, doc.Filename, cause)
	if err := s.Vectors.Delete(ctx, vectorstore.ByDocument(doc.ID)); err != nil {
		log.Warnf("[InventoryService] 清理失败文档的向量失败, id: %d, error: %v", doc.ID, err)
	}
	doc.ParsingStatus = model.StatusFailed
	doc.ErrorMsg = cause.Error()
	if err := s.Documents.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("更新文档状态失败: %w", err)
	}
	s.publish(ctx, tasks.EventDocumentFailed, doc)
	return doc, nil
}

func (s *inventoryService) detectSubject(ctx context.Context, filename string) *SubjectMatch {
	if s.Subjects == nil {
		return nil
	}
	subjects, err := s.Subjects.FindAll(ctx)
	if err != nil {
		log.Warnf("[InventoryService] 读取学科列表失败, 跳过学科识别: %v", err)
		return nil
	}
	return DetectSubject(filename, subjects)
}

func (s *inventoryService) publish(ctx context.Context, eventType tasks.EventType, doc *model.Document) {
	meta := doc.Meta()
	event := tasks.DocumentEvent{
		Type:        eventType,
		DocumentID:  doc.ID,
		Filename:    doc.Filename,
		Status:      string(doc.ParsingStatus),
		Source:      string(doc.Source),
		ChunkCount:  meta.ChunkCount,
		SubjectID:   meta.SubjectID,
		SubjectName: meta.SubjectName,
		ErrorMsg:    doc.ErrorMsg,
		OccurredAt:  time.Now(),
	}
	if err := s.Events.Publish(ctx, event); err != nil {
		log.Warnf("[InventoryService] 发布文档事件失败, type: %s, id: %d, error: %v", eventType, doc.ID, err)
	}
}

func (s *inventoryService) QueryChunks(ctx context.Context, query string, subjectIDs []uint, limit int) ([]model.ChunkRecord, error) {
	records := []model.ChunkRecord{}
	query = strings.TrimSpace(query)
	if query == "" {
		return records, nil
	}
	if limit <= 0 {
		limit = s.retrieval.DefaultLimit
	}
	limit = min(limit, s.retrieval.MaxLimit)

	vectors := s.Embedder.Embed(ctx, []string{query})
	if len(vectors) != 1 {
		return records, nil
	}

	topK := s.candidateCount(limit)
	hits, err := s.Vectors.Query(ctx, vectors[0], topK, vectorstore.Filter{SubjectIDs: subjectIDs})
	if errors.Is(err, vectorstore.ErrDimensionMismatch) {
		log.Warnf("[InventoryService] 查询向量维度与向量库不一致, 返回空结果: %v", err)
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}
	if len(hits) == 0 {
		return records, nil
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	order := s.Reranker.Rerank(ctx, query, texts)

	seen := make(map[int]bool, len(order))
	for _, idx := range order {
		if len(records) == limit {
			break
		}
		if idx < 0 || idx >= len(hits) || seen[idx] {
			continue
		}
		seen[idx] = true
		records = append(records, toRecord(hits[idx]))
	}
	log.Infof("[InventoryService] 检索完成, candidates: %d, returned: %d", len(hits), len(records))
	return records, nil
}

// candidateCount 返回 limit*CandidateMultiplier，不少于 limit 且不超过 MaxCandidates。
func (s *inventoryService) candidateCount(limit int) int {
	if limit > s.retrieval.MaxCandidates/s.retrieval.CandidateMultiplier {
		return max(limit, s.retrieval.MaxCandidates)
	}
	return limit * s.retrieval.CandidateMultiplier
}

func toRecord(h vectorstore.Hit) model.ChunkRecord {
	return model.ChunkRecord{
		ID:          h.ID,
		DocumentID:  h.Metadata.DocumentID,
		Page:        h.Metadata.Page,
		Order:       h.Metadata.Order,
		Text:        h.Text,
		SubjectID:   h.Metadata.SubjectID,
		SubjectName: h.Metadata.SubjectName,
		Score:       h.Score,
	}
}

func (s *inventoryService) ListDocuments(ctx context.Context) ([]model.Document, error) {
	return s.Documents.FindAll(ctx)
}

func (s *inventoryService) GetDocument(ctx context.Context, id uint) (*model.Document, error) {
	doc, err := s.Documents.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *inventoryService) DeleteDocument(ctx context.Context, id uint) error {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	var errs []error
	if err := s.Vectors.Delete(ctx, vectorstore.ByDocument(id)); err != nil {
		errs = append(errs, fmt.Errorf("删除向量失败: %w", err))
	}
	if err := s.Blobs.RemoveAll(ctx, id); err != nil {
		errs = append(errs, fmt.Errorf("删除文件目录失败: %w", err))
	}
	if err := s.Documents.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = fmt.Errorf("%w: id %d", ErrDocumentNotFound, id)
		}
		errs = append(errs, fmt.Errorf("删除文档记录失败: %w", err))
	}
	if len(errs) > 0 {
		log.Errorf("[InventoryService] 删除文档未完全成功, id: %d, errors: %v", id, errs)
		return errors.Join(errs...)
	}

	log.Infof("[InventoryService] 文档已删除, id: %d, filename: %s", id, doc.Filename)
	s.publish(ctx, tasks.EventDocumentDeleted, doc)
	return nil
}

func (s *inventoryService) DocumentChunks(ctx context.Context, id uint) ([]model.ChunkRecord, error) {
	if _, err := s.GetDocument(ctx, id); err != nil {
		return nil, err
	}
	hits, err := s.Vectors.Get(ctx, vectorstore.ByDocument(id))
	if err != nil {
		return nil, fmt.Errorf("读取文档切片失败: %w", err)
	}
	records := make([]model.ChunkRecord, 0, len(hits))
	for _, h := range hits {
		records = append(records, toRecord(h))
	}
	return records, nil
}

func (s *inventoryService) SeedDirectory(ctx context.Context, dir string) (*SeedResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("读取导入目录失败: %w", err)
	}

	result := &SeedResult{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !parser.IsSupported(name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		_, err := s.Documents.FindByFilenameAndSource(ctx, name, model.SourceSystem)
		if err == nil {
			result.Skipped++
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return result, fmt.Errorf("查询已导入文档失败: %w", err)
		}

		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warnf("[InventoryService] 读取文件失败, 跳过: %s, error: %v", name, err)
			result.Failed++
			continue
		}
		doc, err := s.Upload(ctx, UploadInput{
			Filename: name,
			MimeType: mime.TypeByExtension(filepath.Ext(name)),
			Content:  content,
			Source:   model.SourceSystem,
		})
		if err != nil {
			return result, err
		}
		if doc.ParsingStatus == model.StatusFailed {
			result.Failed++
		} else {
			result.Imported++
		}
		result.Documents = append(result.Documents, *doc)
	}
	log.Infof("[InventoryService] 目录导入完成, dir: %s, imported: %d, skipped: %d, failed: %d",
		dir, result.Imported, result.Skipped, result.Failed)
	return result, nil
}
