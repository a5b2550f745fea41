// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"

	"cdas-go/internal/model"

	"gorm.io/gorm"
)

// DocumentRepository 接口定义了文档记录的数据持久化操作。
type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	FindByID(ctx context.Context, id uint) (*model.Document, error)
	// FindAll 按上传时间倒序返回全部文档，时间相同时按 ID 倒序。
	FindAll(ctx context.Context) ([]model.Document, error)
	FindByFilenameAndSource(ctx context.Context, filename string, source model.DocumentSource) (*model.Document, error)
	Update(ctx context.Context, doc *model.Document) error
	UpdateStatus(ctx context.Context, id uint, status model.ParsingStatus) error
	Delete(ctx context.Context, id uint) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// FindByID 未找到时返回 gorm.ErrRecordNotFound。
func (r *documentRepository) FindByID(ctx context.Context, id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindAll(ctx context.Context) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).Order("upload_date DESC").Order("id DESC").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) FindByFilenameAndSource(ctx context.Context, filename string, source model.DocumentSource) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("filename = ? AND source = ?", filename, source).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Update 保存文档的全部字段。
func (r *documentRepository) Update(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Save(doc).Error
}

func (r *documentRepository) UpdateStatus(ctx context.Context, id uint, status model.ParsingStatus) error {
	return r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Update("parsing_status", status).Error
}

// Delete 删除文档记录，记录不存在时返回 gorm.ErrRecordNotFound。
func (r *documentRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&model.Document{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
