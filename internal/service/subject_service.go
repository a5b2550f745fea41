package service

import (
	"context"
	"fmt"

	"cdas-go/internal/model"
	"cdas-go/internal/repository"
	"cdas-go/pkg/log"
)

// SubjectService 接口定义了学科相关的操作。
type SubjectService interface {
	// EnsurePresets 插入缺失的预置学科，已有学科不做修改。
	EnsurePresets(ctx context.Context) error
	List(ctx context.Context) ([]model.Subject, error)
}

type subjectService struct {
	subjectRepo repository.SubjectRepository
}

// NewSubjectService 创建一个新的 SubjectService 实例。
func NewSubjectService(subjectRepo repository.SubjectRepository) SubjectService {
	return &subjectService{subjectRepo: subjectRepo}
}

func (s *subjectService) EnsurePresets(ctx context.Context) error {
	if err := s.subjectRepo.CreateIfMissing(ctx, model.PresetSubjects); err != nil {
		return fmt.Errorf("初始化预置学科失败: %w", err)
	}
	log.Infof("[SubjectService] 预置学科已就绪, 共 %d 个", len(model.PresetSubjects))
	return nil
}

func (s *subjectService) List(ctx context.Context) ([]model.Subject, error) {
	return s.subjectRepo.FindAll(ctx)
}
