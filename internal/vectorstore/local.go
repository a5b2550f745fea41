package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"cdas-go/pkg/embedding"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// collectionRow 记录集合名与首次写入时固定下来的维度。
type collectionRow struct {
	Name       string `gorm:"primaryKey;type:varchar(255)"`
	Dimensions int    `gorm:"not null"`
	CreatedAt  time.Time
}

func (collectionRow) TableName() string { return "collections" }

// vectorRow 是单个切片向量，Embedding 为小端 float32 序列。
type vectorRow struct {
	ID          string `gorm:"primaryKey;type:varchar(64)"`
	DocumentID  uint   `gorm:"not null;index"`
	Page        int    `gorm:"not null"`
	ChunkOrder  int    `gorm:"not null"`
	SubjectID   *uint  `gorm:"index"`
	SubjectName string `gorm:"type:varchar(50)"`
	Text        string `gorm:"type:text"`
	Embedding   []byte `gorm:"not null"`
}

func (vectorRow) TableName() string { return "chunk_vectors" }

// localStore 是基于 sqlite 文件的向量集合，检索为暴力余弦相似度。
type localStore struct {
	db         *gorm.DB
	collection string
}

// NewLocal 打开（或创建）{persistDir}/{collection}.db。
func NewLocal(persistDir, collection string) (Store, error) {
	if collection == "" {
		return nil, errors.New("collection name is required")
	}
	if err := os.MkdirAll(persistDir, 0o755); err != nil {
		return nil, fmt.Errorf("create vector store dir: %w", err)
	}
	path := filepath.Join(persistDir, collection+".db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_journal_mode=WAL"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open vector store %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite 只允许单写者
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&collectionRow{}, &vectorRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate vector store: %w", err)
	}
	return &localStore{db: db, collection: collection}, nil
}

// dimensions 返回集合已固定的维度，尚未写入过时返回 0。
func (s *localStore) dimensions(tx *gorm.DB) (int, error) {
	var row collectionRow
	err := tx.Where("name = ?", s.collection).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.Dimensions, nil
}

func (s *localStore) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dims, err := s.dimensions(tx)
		if err != nil {
			return err
		}
		if dims == 0 {
			dims = len(entries[0].Embedding)
			if dims == 0 {
				return fmt.Errorf("%w: empty embedding for %s", ErrDimensionMismatch, entries[0].ID)
			}
			if err := tx.Create(&collectionRow{Name: s.collection, Dimensions: dims}).Error; err != nil {
				return err
			}
		}

		rows := make([]vectorRow, 0, len(entries))
		for _, e := range entries {
			if len(e.Embedding) != dims {
				return fmt.Errorf("%w: %s has %d dimensions, collection %q has %d",
					ErrDimensionMismatch, e.ID, len(e.Embedding), s.collection, dims)
			}
			rows = append(rows, vectorRow{
				ID:          e.ID,
				DocumentID:  e.Metadata.DocumentID,
				Page:        e.Metadata.Page,
				ChunkOrder:  e.Metadata.Order,
				SubjectID:   e.Metadata.SubjectID,
				SubjectName: e.Metadata.SubjectName,
				Text:        e.Text,
				Embedding:   embedding.EncodeVector(e.Embedding),
			})
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).CreateInBatches(rows, 200).Error
	})
}

func (s *localStore) Delete(ctx context.Context, filter Filter) error {
	if filter.IsEmpty() {
		return ErrEmptyFilter
	}
	return applyFilter(s.db.WithContext(ctx), filter).Delete(&vectorRow{}).Error
}

func (s *localStore) Query(ctx context.Context, query []float32, topK int, filter Filter) ([]Hit, error) {
	db := s.db.WithContext(ctx)
	dims, err := s.dimensions(db)
	if err != nil {
		return nil, err
	}
	if dims == 0 || topK <= 0 {
		return []Hit{}, nil
	}
	if len(query) != dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection %q has %d",
			ErrDimensionMismatch, len(query), s.collection, dims)
	}

	var rows []vectorRow
	if err := applyFilter(db, filter).Find(&rows).Error; err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		vec, err := embedding.DecodeVector(r.Embedding)
		if err != nil {
			return nil, fmt.Errorf("decode vector %s: %w", r.ID, err)
		}
		hit := r.hit()
		hit.Score = cosine(query, vec)
		hits = append(hits, hit)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *localStore) Get(ctx context.Context, filter Filter) ([]Hit, error) {
	var rows []vectorRow
	err := applyFilter(s.db.WithContext(ctx), filter).
		Order("document_id, page, chunk_order").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, r.hit())
	}
	return hits, nil
}

func (s *localStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&vectorRow{}).Count(&n).Error
	return n, err
}

func (s *localStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r vectorRow) hit() Hit {
	return Hit{
		ID:   r.ID,
		Text: r.Text,
		Metadata: Metadata{
			DocumentID:  r.DocumentID,
			Page:        r.Page,
			Order:       r.ChunkOrder,
			ChunkID:     r.ID,
			SubjectID:   r.SubjectID,
			SubjectName: r.SubjectName,
		},
	}
}

func applyFilter(db *gorm.DB, filter Filter) *gorm.DB {
	if filter.DocumentID != nil {
		db = db.Where("document_id = ?", *filter.DocumentID)
	}
	if len(filter.SubjectIDs) > 0 {
		db = db.Where("subject_id IN ?", filter.SubjectIDs)
	}
	return db
}

// cosine 返回余弦相似度，任一向量为零向量时返回 0。
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
