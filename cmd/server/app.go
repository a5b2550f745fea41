package main

import (
	"context"
	"errors"
	"fmt"

	"cdas-go/internal/config"
	"cdas-go/internal/parser"
	"cdas-go/internal/repository"
	"cdas-go/internal/service"
	"cdas-go/internal/vectorstore"
	"cdas-go/pkg/database"
	"cdas-go/pkg/embedding"
	"cdas-go/pkg/kafka"
	"cdas-go/pkg/log"
	"cdas-go/pkg/rerank"
	"cdas-go/pkg/storage"
	"cdas-go/pkg/tika"
)

// app 持有进程内共享的组件，由 buildApp 按配置一次性装配。
type app struct {
	cfg       *config.Config
	inventory service.InventoryService
	subjects  service.SubjectService
	closers   []func() error
}

// buildApp 加载配置并装配全部依赖。
func buildApp(ctx context.Context, path string) (*app, error) {
	// 1. 初始化配置
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	log.Info("日志记录器初始化成功")

	a := &app{cfg: cfg}

	// 3. 初始化数据库和 Redis
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { return database.Close(db) })

	var cache embedding.Cache
	redisClient, err := database.NewRedis(ctx, cfg.Database.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	if redisClient != nil {
		cache = repository.NewEmbeddingCacheRepository(redisClient)
		a.closers = append(a.closers, redisClient.Close)
	}

	// 4. 初始化文件存储与向量库
	blobs, err := newBlobStore(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, err
	}
	vectors, err := vectorstore.New(ctx, cfg.VectorStore, cfg.Embedding.Dimensions)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, vectors.Close)

	events := kafka.NewPublisher(cfg.Kafka)
	a.closers = append(a.closers, events.Close)

	// 5. 初始化 Service (依赖注入)
	var extractor parser.TextExtractor
	if tikaClient := tika.NewClient(cfg.Tika); tikaClient != nil {
		extractor = tikaClient
	}

	subjectRepo := repository.NewSubjectRepository(db)
	a.subjects = service.NewSubjectService(subjectRepo)
	if err := a.subjects.EnsurePresets(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.inventory = service.NewInventoryService(service.InventoryDeps{
		Documents: repository.NewDocumentRepository(db),
		Subjects:  subjectRepo,
		Parser:    parser.New(extractor),
		Blobs:     blobs,
		Vectors:   vectors,
		Embedder:  embedding.NewClient(cfg.Embedding, cache),
		Reranker:  rerank.NewClient(cfg.Rerank),
		Events:    events,
	}, cfg.Chunking, cfg.Retrieval)

	return a, nil
}

func newBlobStore(ctx context.Context, cfg config.StorageConfig) (storage.BlobStore, error) {
	if cfg.Backend == "minio" {
		return storage.NewMinIO(ctx, cfg.MinIO)
	}
	return storage.NewLocal(cfg.DocumentsDir), nil
}

// Close 按装配的逆序关闭组件并刷新日志。
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	log.Sync()
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("关闭组件失败: %w", err)
	}
	return nil
}
