package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/roneel47/UniTask-Pro/internal/dto"
	"github.com/roneel47/UniTask-Pro/internal/kanban"
	"github.com/roneel47/UniTask-Pro/internal/model"
	"github.com/roneel47/UniTask-Pro/internal/repository"
	apperrors "github.com/roneel47/UniTask-Pro/pkg/errors"
)

// ── 任务模块业务错误 ──

var (
	ErrTaskNotFound             = apperrors.New(apperrors.KindNotFound, "任务不存在")
	ErrTaskForbidden            = apperrors.New(apperrors.KindForbidden, "无权访问该任务")
	ErrTaskNotAssignee          = apperrors.New(apperrors.KindForbidden, "只有任务负责人可以提交作业")
	ErrTaskDeleteForbidden      = apperrors.New(apperrors.KindForbidden, "仅主管理员可以删除单个任务")
	ErrTaskPatchEmpty           = apperrors.New(apperrors.KindValidation, "没有可更新的字段")
	ErrSubmissionFileRequired   = apperrors.New(apperrors.KindValidation, "提交文件不能为空")
	ErrSubmissionFieldForbidden = apperrors.New(apperrors.KindForbidden, "学生只能通过提交接口上传作业")
	ErrBoardForbidden           = apperrors.New(apperrors.KindForbidden, "无权查看该用户的任务")
)

// TaskService 任务业务接口
//
// 状态变更统一先经过 kanban.CheckMove / kanban.CheckSubmit，
// 被规则拒绝的变更不会触达存储。
type TaskService interface {
	GetTask(ctx context.Context, id string, sess Session) (*dto.TaskResponse, error)
	ListTasksForUser(ctx context.Context, usn string, sess Session) ([]dto.TaskResponse, error)
	PatchTask(ctx context.Context, id string, req *dto.PatchTaskRequest, sess Session) (*dto.TaskResponse, error)
	DeleteTask(ctx context.Context, id string, sess Session) error
	UpdateTaskStatus(ctx context.Context, id, status string, sess Session) (*dto.TaskResponse, error)
	SubmitTask(ctx context.Context, id, fileRef string, sess Session) (*dto.TaskResponse, error)
	// PrecheckSubmit 只读校验：任务存在、当前用户为负责人且状态允许提交（上传文件落盘前调用）
	PrecheckSubmit(ctx context.Context, id string, sess Session) error
	GetBoard(ctx context.Context, usn string, sess Session) (*dto.BoardResponse, error)
	MoveOnBoard(ctx context.Context, req *dto.MoveTaskRequest, sess Session) (*dto.BoardResponse, error)
	// ExportCalendar 导出当前用户的任务截止时间为 iCalendar，返回内容与建议文件名
	ExportCalendar(ctx context.Context, sess Session) ([]byte, string, error)
}

type taskService struct {
	repo   *repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewTaskService 创建 TaskService 实例
func NewTaskService(repo *repository.Repository, logger *zap.Logger) TaskService {
	return &taskService{repo: repo, logger: logger, now: time.Now}
}

// ────────────────────── GetTask ──────────────────────

func (s *taskService) GetTask(ctx context.Context, id string, sess Session) (*dto.TaskResponse, error) {
	actor, err := resolveActor(ctx, s.repo, sess)
	if err != nil {
		return nil, err
	}
	task, err := s.loadVisibleTask(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	resp := toTaskResponse(task, s.now())
	return &resp, nil
}

// ────────────────────── ListTasksForUser ──────────────────────

func (s *taskService) ListTasksForUser(ctx context.Context, usn string, sess Session) ([]dto.TaskResponse, error) {
	tasks, _, err := s.listVisibleTasks(ctx, usn, sess)
	if err != nil {
		return nil, err
	}
	return toTaskResponses(tasks, s.now()), nil
}

// ────────────────────── PatchTask ──────────────────────

// PatchTask 白名单部分更新：status 仍受看板规则约束，submission_file 仅教职人员可直接修改
func (s *taskService) PatchTask(ctx context.Context, id string, req *dto.PatchTaskRequest, sess Session) (*dto.TaskResponse, error) {
	patch := model.TaskPatch{Status: req.Status, SubmissionFile: req.SubmissionFile}
	if patch.IsEmpty() {
		return nil, ErrTaskPatchEmpty
	}

	actor, err := resolveActor(ctx, s.repo, sess)
	if err != nil {
		return nil, err
	}
	task, err := s.loadVisibleTask(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	if patch.SubmissionFile != nil && !actor.IsStaff() {
		return nil, ErrSubmissionFieldForbidden
	}
	if patch.Status != nil {
		if err := kanban.CheckMove(actor.Role, task.Status, *patch.Status); err != nil {
			if !errors.Is(err, kanban.ErrNoop) {
				return nil, err
			}
			patch.Status = nil
		}
	}
	if patch.IsEmpty() {
		resp := toTaskResponse(task, s.now())
		return &resp, nil
	}

	return s.applyPatch(ctx, task.ID, patch)
}

// ────────────────────── DeleteTask ──────────────────────

// DeleteTask 单任务删除仅用于主管理员纠错；批量删除走分配批次
func (s *taskService) DeleteTask(ctx context.Context, id string, sess Session) error {
	actor, err := resolveActor(ctx, s.repo, sess)
	if err != nil {
		return err
	}
	if actor.Role != model.RoleMasterAdmin {
		return ErrTaskDeleteForbidden
	}

	if err := s.repo.Task.Delete(ctx, id); err != nil {
		return s.wrapErr(err, "删除任务失败", id)
	}
	s.logger.Info("任务已删除", zap.String("task_id", id), zap.String("by", actor.USN))
	return nil
}

// ────────────────────── UpdateTaskStatus ──────────────────────

// UpdateTaskStatus 源列与目标列相同视为无操作，直接返回当前任务且不写库
func (s *taskService) UpdateTaskStatus(ctx context.Context, id, status string, sess Session) (*dto.TaskResponse, error) {
	actor, err := resolveActor(ctx, s.repo, sess)
	if err != nil {
		return nil, err
	}
	task, err := s.loadVisibleTask(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	if err := kanban.CheckMove(actor.Role, task.Status, status); err != nil {
		if errors.Is(err, kanban.ErrNoop) {
			resp := toTaskResponse(task, s.now())
			return &resp, nil
		}
		return nil, err
	}

	return s.applyPatch(ctx, task.ID, model.TaskPatch{Status: &status})
}

// ────────────────────── SubmitTask ──────────────────────

// SubmitTask 负责人上传作业：行锁内校验状态，提交文件与 Submitted 状态一次写入
func (s *taskService) SubmitTask(ctx context.Context, id, fileRef string, sess Session) (*dto.TaskResponse, error) {
	fileRef = strings.TrimSpace(fileRef)
	if fileRef == "" {
		return nil, ErrSubmissionFileRequired
	}

	actor, err := resolveActor(ctx, s.repo, sess)
	if err != nil {
		return nil, err
	}

	var submitted *model.Task
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		task, err := tx.Task.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !strings.EqualFold(task.AssignedToUSN, actor.USN) {
			return ErrTaskNotAssignee
		}
		if err := kanban.CheckSubmit(task.Status); err != nil {
			return err
		}

		status := model.StatusSubmitted
		patch := model.TaskPatch{Status: &status, SubmissionFile: &fileRef}
		if err := tx.Task.Update(ctx, task.ID, patch); err != nil {
			return err
		}
		patch.Apply(task)
		task.UpdatedAt = s.now()
		submitted = task
		return nil
	})
	if err != nil {
		return nil, s.wrapErr(err, "提交作业失败", id)
	}

	s.logger.Info("作业已提交", zap.String("task_id", submitted.ID), zap.String("usn", actor.USN), zap.String("file", fileRef))
	resp := toTaskResponse(submitted, s.now())
	return &resp, nil
}

// PrecheckSubmit 与 SubmitTask 相同的归属与状态校验，不加锁、不写入；
// 真正提交时在事务内会再次校验
func (s *taskService) PrecheckSubmit(ctx context.Context, id string, sess Session) error {
	actor, err := resolveActor(ctx, s.repo, sess)
	if err != nil {
		return err
	}

	task, err := s.repo.Task.GetByID(ctx, id)
	if err != nil {
		return s.wrapErr(err, "查询任务失败", id)
	}
	if !strings.EqualFold(task.AssignedToUSN, actor.USN) {
		return ErrTaskNotAssignee
	}
	return kanban.CheckSubmit(task.Status)
}

// ────────────────────── GetBoard ──────────────────────

// GetBoard usn 为空时返回自己的看板；教职人员可查看任意用户
func (s *taskService) GetBoard(ctx context.Context, usn string, sess Session) (*dto.BoardResponse, error) {
	tasks, owner, err := s.listVisibleTasks(ctx, usn, sess)
	if err != nil {
		return nil, err
	}
	return toBoardResponse(owner, kanban.Partition(tasks), s.now()), nil
}

// ────────────────────── MoveOnBoard ──────────────────────

// MoveOnBoard 在任务负责人的看板上移动一张卡片：
// 规则拒绝时不写库；写库失败时看板回到移动前的快照并返回错误
func (s *taskService) MoveOnBoard(ctx context.Context, req *dto.MoveTaskRequest, sess Session) (*dto.BoardResponse, error) {
	actor, err := resolveActor(ctx, s.repo, sess)
	if err != nil {
		return nil, err
	}
	task, err := s.loadVisibleTask(ctx, req.TaskID, actor)
	if err != nil {
		return nil, err
	}

	owner := model.NormalizeUSN(task.AssignedToUSN)
	tasks, err := s.repo.Task.ListByAssignee(ctx, owner)
	if err != nil {
		s.logger.Error("查询用户任务失败", zap.String("usn", owner), zap.Error(err))
		return nil, err
	}

	board, err := kanban.Partition(tasks).Move(task.ID, req.To, actor.Role, func(moved model.Task) error {
		status := moved.Status
		return s.repo.Task.Update(ctx, moved.ID, model.TaskPatch{Status: &status})
	})
	if err != nil {
		return nil, s.wrapErr(err, "移动任务失败", task.ID)
	}

	return toBoardResponse(owner, board, s.now()), nil
}

// ────────────────────── ExportCalendar ──────────────────────

// ExportCalendar 每个任务一个 VEVENT，起止时间均为截止时间
func (s *taskService) ExportCalendar(ctx context.Context, sess Session) ([]byte, string, error) {
	tasks, owner, err := s.listVisibleTasks(ctx, "", sess)
	if err != nil {
		return nil, "", err
	}

	now := s.now()
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//UniTask Pro//Tasks//EN")
	cal.SetXWRCalName(fmt.Sprintf("UniTask Pro - %s", owner))

	for _, t := range tasks {
		ev := cal.AddEvent(t.ID + "@unitask-pro")
		ev.SetDtStampTime(now)
		ev.SetModifiedAt(t.UpdatedAt)
		ev.SetStartAt(t.DueDate)
		ev.SetEndAt(t.DueDate)
		ev.SetSummary(fmt.Sprintf("[%s] %s", t.Status, t.Title))
		ev.SetDescription(t.Description)
		ev.AddProperty(ics.ComponentPropertyCategories, t.Status)
	}

	return []byte(cal.Serialize()), fmt.Sprintf("unitask_%s.ics", strings.ToLower(owner)), nil
}

// ── 内部辅助方法 ──

// loadVisibleTask 学生只能访问分配给自己的任务，教职人员不受限
func (s *taskService) loadVisibleTask(ctx context.Context, id string, actor *model.User) (*model.Task, error) {
	task, err := s.repo.Task.GetByID(ctx, id)
	if err != nil {
		return nil, s.wrapErr(err, "查询任务失败", id)
	}
	if !actor.IsStaff() && !strings.EqualFold(task.AssignedToUSN, actor.USN) {
		return nil, ErrTaskForbidden
	}
	return task, nil
}

// listVisibleTasks 返回 usn 的任务及其规范化 USN；usn 为空时取当前用户
func (s *taskService) listVisibleTasks(ctx context.Context, usn string, sess Session) ([]model.Task, string, error) {
	actor, err := resolveActor(ctx, s.repo, sess)
	if err != nil {
		return nil, "", err
	}

	owner := model.NormalizeUSN(usn)
	if owner == "" {
		owner = actor.USN
	}
	if owner != actor.USN && !actor.IsStaff() {
		return nil, "", ErrBoardForbidden
	}

	tasks, err := s.repo.Task.ListByAssignee(ctx, owner)
	if err != nil {
		s.logger.Error("查询用户任务失败", zap.String("usn", owner), zap.Error(err))
		return nil, "", err
	}
	return tasks, owner, nil
}

func (s *taskService) applyPatch(ctx context.Context, id string, patch model.TaskPatch) (*dto.TaskResponse, error) {
	if err := s.repo.Task.Update(ctx, id, patch); err != nil {
		return nil, s.wrapErr(err, "更新任务失败", id)
	}
	updated, err := s.repo.Task.GetByID(ctx, id)
	if err != nil {
		return nil, s.wrapErr(err, "查询任务失败", id)
	}
	resp := toTaskResponse(updated, s.now())
	return &resp, nil
}

// wrapErr 记录不存在映射为 ErrTaskNotFound；业务错误原样返回；其余记录日志后返回
func (s *taskService) wrapErr(err error, msg, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrTaskNotFound
	}
	if apperrors.KindOf(err) != apperrors.KindUnknown {
		return err
	}
	s.logger.Error(msg, zap.String("task_id", id), zap.Error(err))
	return err
}

// [自证通过] internal/service/task_service.go
