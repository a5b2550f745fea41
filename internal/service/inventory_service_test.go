package service

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"cdas-go/internal/config"
	"cdas-go/internal/model"
	"cdas-go/internal/parser"
	"cdas-go/internal/repository"
	"cdas-go/internal/vectorstore"
	"cdas-go/pkg/database"
	"cdas-go/pkg/embedding"
	"cdas-go/pkg/rerank"
	"cdas-go/pkg/storage"
	"cdas-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder 使用确定性的回退向量，并记录调用次数。
type countingEmbedder struct {
	mu    sync.Mutex
	dims  int
	calls int
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) [][]float32 {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return embedding.FallbackVectors(texts, e.dims)
}

func (e *countingEmbedder) Dimensions() int { return e.dims }

type shortEmbedder struct{}

func (shortEmbedder) Embed(context.Context, []string) [][]float32 { return nil }
func (shortEmbedder) Dimensions() int                             { return 8 }

type countingReranker struct {
	calls   int
	reverse bool
}

func (r *countingReranker) Rerank(_ context.Context, _ string, documents []string) []int {
	r.calls++
	order := rerank.Identity(len(documents))
	if r.reverse {
		for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}
	return order
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []tasks.DocumentEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e tasks.DocumentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []tasks.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tasks.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type failingBlobs struct{}

func (failingBlobs) Save(context.Context, uint, string, []byte) (string, error) {
	return "", errors.New("disk full")
}
func (failingBlobs) RemoveAll(context.Context, uint) error { return nil }

// topKRecorder 记录向量检索请求的 topK。
type topKRecorder struct {
	vectorstore.Store
	topK   int
	filter vectorstore.Filter
}

func (r *topKRecorder) Query(ctx context.Context, emb []float32, topK int, filter vectorstore.Filter) ([]vectorstore.Hit, error) {
	r.topK = topK
	r.filter = filter
	return r.Store.Query(ctx, emb, topK, filter)
}

type fixture struct {
	svc         InventoryService
	deps        InventoryDeps
	subjects    SubjectService
	embedder    *countingEmbedder
	reranker    *countingReranker
	events      *recordingPublisher
	documentDir string
	vectors     vectorstore.Store
	chunking    config.ChunkingConfig
	retrieval   config.RetrievalConfig
}

func newFixture(t *testing.T, chunkSize, overlap int) *fixture {
	t.Helper()
	root := t.TempDir()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(root, "cdas.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	vectors, err := vectorstore.NewLocal(filepath.Join(root, "chroma"), "cdas-documents")
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	f := &fixture{
		embedder:    &countingEmbedder{dims: 8},
		reranker:    &countingReranker{},
		events:      &recordingPublisher{},
		documentDir: filepath.Join(root, "documents"),
		vectors:     vectors,
		chunking:    config.ChunkingConfig{ChunkSize: chunkSize, Overlap: overlap},
		retrieval:   config.RetrievalConfig{CandidateMultiplier: 3, DefaultLimit: 10},
	}
	subjectRepo := repository.NewSubjectRepository(db)
	f.subjects = NewSubjectService(subjectRepo)
	f.deps = InventoryDeps{
		Documents: repository.NewDocumentRepository(db),
		Subjects:  subjectRepo,
		Parser:    parser.New(nil),
		Blobs:     storage.NewLocal(f.documentDir),
		Vectors:   vectors,
		Embedder:  f.embedder,
		Reranker:  f.reranker,
		Events:    f.events,
	}
	f.svc = NewInventoryService(f.deps, f.chunking, f.retrieval)
	return f
}

func (f *fixture) with(mutate func(*InventoryDeps)) InventoryService {
	deps := f.deps
	mutate(&deps)
	return NewInventoryService(deps, f.chunking, f.retrieval)
}

func uploadText(t *testing.T, svc InventoryService, name, text string) *model.Document {
	t.Helper()
	doc, err := svc.Upload(context.Background(), UploadInput{Filename: name, MimeType: "text/plain", Content: []byte(text)})
	require.NoError(t, err)
	return doc
}

func chunkIDs(records []model.ChunkRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestUpload_EndToEndPlainText(t *testing.T) {
	f := newFixture(t, 2, 1)
	ctx := context.Background()

	doc := uploadText(t, f.svc, "notes.txt", "alpha beta gamma delta")
	assert.Equal(t, model.StatusReady, doc.ParsingStatus)
	assert.Empty(t, doc.ErrorMsg)
	assert.Equal(t, model.SourceUser, doc.Source)
	assert.Equal(t, int64(22), doc.SizeBytes)
	assert.Equal(t, 1, doc.Meta().PageCount)
	assert.Equal(t, 3, doc.Meta().ChunkCount)
	assert.Equal(t, filepath.Join(f.documentDir, fmtID(doc.ID), "orig.txt"), doc.FilePath)
	assert.FileExists(t, doc.FilePath)

	chunks, err := f.svc.DocumentChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	prefix := fmtID(doc.ID)
	assert.Equal(t, []string{prefix + "-1-0", prefix + "-1-1", prefix + "-1-2"}, chunkIDs(chunks))
	assert.Equal(t, "alpha beta", chunks[0].Text)
	assert.Equal(t, "beta gamma", chunks[1].Text)
	assert.Equal(t, "gamma delta", chunks[2].Text)
	for i, c := range chunks {
		assert.Equal(t, i, c.Order)
		assert.Equal(t, 1, c.Page)
	}

	stored, err := f.svc.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReady, stored.ParsingStatus)
	assert.Equal(t, []tasks.EventType{tasks.EventDocumentIndexed}, f.events.types())
}

func TestUpload_ReuploadIsIdempotentAtDataLevel(t *testing.T) {
	f := newFixture(t, 2, 1)
	ctx := context.Background()
	doc := uploadText(t, f.svc, "notes.txt", "alpha beta gamma delta")

	// 同一文档再次入库不会产生重复切片
	_, _, err := f.svc.(*inventoryService).index(ctx, doc, []byte("alpha beta gamma delta"), nil)
	require.NoError(t, err)
	n, err := f.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestUpload_FailureIsolation(t *testing.T) {
	f := newFixture(t, 2, 1)

	bad := uploadText(t, f.svc, "table.csv", "a,b,c")
	assert.Equal(t, model.StatusFailed, bad.ParsingStatus)
	assert.NotEmpty(t, bad.ErrorMsg)
	assert.Contains(t, bad.ErrorMsg, parser.ErrUnsupportedFormat.Error())
	assert.FileExists(t, bad.FilePath)

	good := uploadText(t, f.svc, "ok.txt", "alpha beta gamma")
	assert.Equal(t, model.StatusReady, good.ParsingStatus)

	stored, err := f.svc.GetDocument(context.Background(), bad.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, stored.ParsingStatus)
	assert.Equal(t, bad.ErrorMsg, stored.ErrorMsg)
	assert.Equal(t, []tasks.EventType{tasks.EventDocumentFailed, tasks.EventDocumentIndexed}, f.events.types())
}

func TestUpload_FileWriteFailureMarksFailed(t *testing.T) {
	f := newFixture(t, 2, 1)
	svc := f.with(func(d *InventoryDeps) { d.Blobs = failingBlobs{} })

	doc := uploadText(t, svc, "ok.txt", "alpha beta")
	assert.Equal(t, model.StatusFailed, doc.ParsingStatus)
	assert.Contains(t, doc.ErrorMsg, "disk full")
	assert.Zero(t, f.embedder.calls)
}

func TestUpload_EmbeddingCountMismatchMarksFailed(t *testing.T) {
	f := newFixture(t, 2, 1)
	svc := f.with(func(d *InventoryDeps) { d.Embedder = shortEmbedder{} })

	doc := uploadText(t, svc, "ok.txt", "alpha beta gamma")
	assert.Equal(t, model.StatusFailed, doc.ParsingStatus)
	n, err := f.vectors.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpload_EmptyDocumentIsReadyWithoutChunks(t *testing.T) {
	f := newFixture(t, 2, 1)
	doc := uploadText(t, f.svc, "empty.txt", "  \n ")
	assert.Equal(t, model.StatusReady, doc.ParsingStatus)
	assert.Equal(t, 0, doc.Meta().ChunkCount)
}

func TestUpload_SubjectTagging(t *testing.T) {
	f := newFixture(t, 3, 0)
	ctx := context.Background()
	require.NoError(t, f.subjects.EnsurePresets(ctx))
	subjects, err := f.subjects.List(ctx)
	require.NoError(t, err)
	ids := map[string]uint{}
	for _, s := range subjects {
		ids[s.Name] = s.ID
	}

	math := uploadText(t, f.svc, "义务教育_数学.txt", "勾股 定理 证明")
	require.NotNil(t, math.Meta().SubjectID)
	assert.Equal(t, ids["数学"], *math.Meta().SubjectID)
	assert.Equal(t, "数学", math.Meta().SubjectName)

	untagged := uploadText(t, f.svc, "misc.txt", "勾股 定理 证明")
	assert.Nil(t, untagged.Meta().SubjectID)

	chunks, err := f.svc.DocumentChunks(ctx, math.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.NotNil(t, chunks[0].SubjectID)
	assert.Equal(t, "数学", chunks[0].SubjectName)

	scoped, err := f.svc.QueryChunks(ctx, "勾股 定理 证明", []uint{ids["数学"]}, 10)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, math.ID, scoped[0].DocumentID)

	other, err := f.svc.QueryChunks(ctx, "勾股 定理 证明", []uint{ids["语文"]}, 10)
	require.NoError(t, err)
	assert.Empty(t, other)

	all, err := f.svc.QueryChunks(ctx, "勾股 定理 证明", nil, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestQueryChunks_EmptyQueryShortCircuits(t *testing.T) {
	f := newFixture(t, 2, 1)
	for _, q := range []string{"", "   \t"} {
		got, err := f.svc.QueryChunks(context.Background(), q, nil, 10)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
	assert.Zero(t, f.embedder.calls)
	assert.Zero(t, f.reranker.calls)
}

func TestQueryChunks_EmptyCollection(t *testing.T) {
	f := newFixture(t, 2, 1)
	got, err := f.svc.QueryChunks(context.Background(), "anything", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, f.reranker.calls)
}

func TestQueryChunks_BestMatchFirstAndCandidateMultiplier(t *testing.T) {
	f := newFixture(t, 2, 1)
	recorder := &topKRecorder{Store: f.vectors}
	svc := f.with(func(d *InventoryDeps) { d.Vectors = recorder })
	doc := uploadText(t, svc, "notes.txt", "alpha beta gamma delta")

	got, err := svc.QueryChunks(context.Background(), "beta gamma", []uint{4}, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, recorder.topK)
	assert.Equal(t, []uint{4}, recorder.filter.SubjectIDs)
	assert.Empty(t, got)

	got, err = svc.QueryChunks(context.Background(), "beta gamma", nil, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, fmtID(doc.ID)+"-1-1", got[0].ID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
}

func TestQueryChunks_RerankOrderAndTruncation(t *testing.T) {
	f := newFixture(t, 2, 1)
	f.reranker.reverse = true
	uploadText(t, f.svc, "notes.txt", "alpha beta gamma delta")

	plain, err := f.svc.QueryChunks(context.Background(), "alpha beta", nil, 10)
	require.NoError(t, err)
	require.Len(t, plain, 3)

	top, err := f.svc.QueryChunks(context.Background(), "alpha beta", nil, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	// 逆序重排后，相似度最高的切片排在最后
	assert.NotEqual(t, "alpha beta", top[0].Text)
	assert.Equal(t, "alpha beta", plain[len(plain)-1].Text)
}

func TestQueryChunks_HugeLimitIsClamped(t *testing.T) {
	f := newFixture(t, 2, 1)
	recorder := &topKRecorder{Store: f.vectors}
	svc := f.with(func(d *InventoryDeps) { d.Vectors = recorder })
	uploadText(t, svc, "notes.txt", "alpha beta gamma delta")

	got, err := svc.QueryChunks(context.Background(), "alpha beta", nil, math.MaxInt64/2)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	// limit 截断到默认的 100，候选数为 100*3
	assert.Equal(t, 300, recorder.topK)

	got, err = svc.QueryChunks(context.Background(), "alpha beta", nil, math.MaxInt)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestQueryChunks_RespectsConfiguredCaps(t *testing.T) {
	f := newFixture(t, 2, 1)
	recorder := &topKRecorder{Store: f.vectors}
	deps := f.deps
	deps.Vectors = recorder
	svc := NewInventoryService(deps, f.chunking, config.RetrievalConfig{
		CandidateMultiplier: 3, DefaultLimit: 10, MaxLimit: 2, MaxCandidates: 4,
	})
	uploadText(t, svc, "notes.txt", "alpha beta gamma delta")

	got, err := svc.QueryChunks(context.Background(), "alpha beta", nil, 50)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 4, recorder.topK)

	got, err = svc.QueryChunks(context.Background(), "alpha beta", nil, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 3, recorder.topK)
}

func TestQueryChunks_DimensionMismatchIsEmpty(t *testing.T) {
	f := newFixture(t, 2, 1)
	uploadText(t, f.svc, "notes.txt", "alpha beta gamma delta")

	svc := f.with(func(d *InventoryDeps) { d.Embedder = &countingEmbedder{dims: 4} })
	got, err := svc.QueryChunks(context.Background(), "alpha beta", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeleteDocument_Cascade(t *testing.T) {
	f := newFixture(t, 2, 1)
	ctx := context.Background()
	doc := uploadText(t, f.svc, "notes.txt", "alpha beta gamma delta")
	keep := uploadText(t, f.svc, "keep.txt", "alpha beta")

	before, err := f.svc.QueryChunks(ctx, "alpha beta", nil, 10)
	require.NoError(t, err)
	assert.Contains(t, documentIDs(before), doc.ID)

	require.NoError(t, f.svc.DeleteDocument(ctx, doc.ID))

	after, err := f.svc.QueryChunks(ctx, "alpha beta", nil, 10)
	require.NoError(t, err)
	assert.NotContains(t, documentIDs(after), doc.ID)
	assert.Contains(t, documentIDs(after), keep.ID)
	assert.NoDirExists(t, filepath.Join(f.documentDir, fmtID(doc.ID)))
	assert.DirExists(t, filepath.Join(f.documentDir, fmtID(keep.ID)))

	_, err = f.svc.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.ErrorIs(t, f.svc.DeleteDocument(ctx, doc.ID), ErrDocumentNotFound)
	_, err = f.svc.DocumentChunks(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	types := f.events.types()
	assert.Equal(t, tasks.EventDocumentDeleted, types[len(types)-1])
}

func TestListDocuments_MostRecentFirst(t *testing.T) {
	f := newFixture(t, 2, 1)
	first := uploadText(t, f.svc, "a.txt", "a")
	second := uploadText(t, f.svc, "b.txt", "b")

	docs, err := f.svc.ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, second.ID, docs[0].ID)
	assert.Equal(t, first.ID, docs[1].ID)
}

func TestSeedDirectory_ImportsOnce(t *testing.T) {
	f := newFixture(t, 4, 1)
	ctx := context.Background()
	require.NoError(t, f.subjects.EnsurePresets(ctx))

	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("课程标准_语文.txt", "识字 与 写字 阅读 与 鉴赏")
	write("物理课程标准.txt", "物质 运动 与 相互作用")
	write("table.csv", "a,b")
	write(".hidden.txt", "secret")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	res, err := f.svc.SeedDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Zero(t, res.Skipped)
	assert.Zero(t, res.Failed)
	for _, d := range res.Documents {
		assert.Equal(t, model.SourceSystem, d.Source)
		assert.NotNil(t, d.Meta().SubjectID, d.Filename)
	}

	again, err := f.svc.SeedDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Zero(t, again.Imported)
	assert.Equal(t, 2, again.Skipped)

	docs, err := f.svc.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	_, err = f.svc.SeedDirectory(ctx, filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func documentIDs(records []model.ChunkRecord) []uint {
	ids := make([]uint, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.DocumentID)
	}
	return ids
}

func fmtID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
