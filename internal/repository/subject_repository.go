package repository

import (
	"context"

	"cdas-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubjectRepository 接口定义了学科的数据操作方法。
type SubjectRepository interface {
	FindAll(ctx context.Context) ([]model.Subject, error)
	FindBatchByIDs(ctx context.Context, ids []uint) ([]model.Subject, error)
	// CreateIfMissing 按 code 插入学科，已存在的学科保持不变。
	CreateIfMissing(ctx context.Context, subjects []model.Subject) error
}

type subjectRepository struct {
	db *gorm.DB
}

// NewSubjectRepository 创建一个新的 SubjectRepository 实例。
func NewSubjectRepository(db *gorm.DB) SubjectRepository {
	return &subjectRepository{db: db}
}

// FindAll 按 ID 顺序返回全部学科。
func (r *subjectRepository) FindAll(ctx context.Context) ([]model.Subject, error) {
	var subjects []model.Subject
	err := r.db.WithContext(ctx).Order("id").Find(&subjects).Error
	return subjects, err
}

func (r *subjectRepository) FindBatchByIDs(ctx context.Context, ids []uint) ([]model.Subject, error) {
	var subjects []model.Subject
	if len(ids) == 0 {
		return subjects, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&subjects).Error
	return subjects, err
}

func (r *subjectRepository) CreateIfMissing(ctx context.Context, subjects []model.Subject) error {
	if len(subjects) == 0 {
		return nil
	}
	rows := make([]model.Subject, len(subjects))
	copy(rows, subjects)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(&rows).Error
}
