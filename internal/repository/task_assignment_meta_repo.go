package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/roneel47/UniTask-Pro/internal/model"
)

// TaskAssignmentMetaRepository 分配批次数据访问接口（批次创建后只读，仅可删除）
type TaskAssignmentMetaRepository interface {
	Create(ctx context.Context, meta *model.TaskAssignmentMeta) error
	GetByID(ctx context.Context, id string) (*model.TaskAssignmentMeta, error)
	ListByAdmin(ctx context.Context, adminUSN string) ([]model.TaskAssignmentMeta, error)
	Delete(ctx context.Context, id string) error
	DeleteByAdmin(ctx context.Context, adminUSN string) (int64, error)
}

type taskAssignmentMetaRepo struct {
	db *gorm.DB
}

// NewTaskAssignmentMetaRepo 创建 TaskAssignmentMetaRepository 实例
func NewTaskAssignmentMetaRepo(db *gorm.DB) TaskAssignmentMetaRepository {
	return &taskAssignmentMetaRepo{db: db}
}

func (r *taskAssignmentMetaRepo) Create(ctx context.Context, meta *model.TaskAssignmentMeta) error {
	return r.db.WithContext(ctx).Create(meta).Error
}

func (r *taskAssignmentMetaRepo) GetByID(ctx context.Context, id string) (*model.TaskAssignmentMeta, error) {
	if !validID(id) {
		return nil, gorm.ErrRecordNotFound
	}
	var meta model.TaskAssignmentMeta
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&meta).Error; err != nil {
		return nil, err
	}
	return &meta, nil
}

func (r *taskAssignmentMetaRepo) ListByAdmin(ctx context.Context, adminUSN string) ([]model.TaskAssignmentMeta, error) {
	var metas []model.TaskAssignmentMeta
	err := r.db.WithContext(ctx).
		Where("assigning_admin_usn = ?", model.NormalizeUSN(adminUSN)).
		Order("created_at DESC").
		Find(&metas).Error
	if err != nil {
		return nil, err
	}
	return metas, nil
}

func (r *taskAssignmentMetaRepo) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return gorm.ErrRecordNotFound
	}
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.TaskAssignmentMeta{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *taskAssignmentMetaRepo) DeleteByAdmin(ctx context.Context, adminUSN string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("assigning_admin_usn = ?", model.NormalizeUSN(adminUSN)).
		Delete(&model.TaskAssignmentMeta{})
	return result.RowsAffected, result.Error
}
