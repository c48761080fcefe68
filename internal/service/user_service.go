package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/roneel47/UniTask-Pro/config"
	"github.com/roneel47/UniTask-Pro/internal/dto"
	"github.com/roneel47/UniTask-Pro/internal/model"
	"github.com/roneel47/UniTask-Pro/internal/repository"
	apperrors "github.com/roneel47/UniTask-Pro/pkg/errors"
)

// ── 用户模块业务错误 ──

var (
	ErrUserNotFound          = apperrors.New(apperrors.KindNotFound, "用户不存在")
	ErrNotMasterAdmin        = apperrors.New(apperrors.KindForbidden, "仅主管理员可执行此操作")
	ErrNotStaff              = apperrors.New(apperrors.KindForbidden, "仅管理员可执行此操作")
	ErrNoPermission          = apperrors.New(apperrors.KindForbidden, "无权操作")
	ErrUserSelfRoleChange    = apperrors.New(apperrors.KindForbidden, "不能修改自己的角色")
	ErrMasterAdminRoleChange = apperrors.New(apperrors.KindForbidden, "不能修改主管理员的角色")
	ErrAssignMasterAdmin     = apperrors.New(apperrors.KindForbidden, "不能将用户设为主管理员")
	ErrUserSelfDelete        = apperrors.New(apperrors.KindForbidden, "不能删除自己")
	ErrMasterAdminDelete     = apperrors.New(apperrors.KindForbidden, "不能删除主管理员")
	ErrPromoteRejected       = apperrors.New(apperrors.KindRejected, "仅 1-7 学期的学生可以升级学期")
)

// UserService 用户目录业务接口
type UserService interface {
	ResolveUser(ctx context.Context, usn string) (*model.User, error)
	GetUser(ctx context.Context, usn string, sess Session) (*dto.UserResponse, error)
	ListUsers(ctx context.Context, req *dto.UserListRequest, sess Session) ([]dto.UserResponse, int64, error)
	UpdateUser(ctx context.Context, usn string, req *dto.UpdateUserRequest, sess Session) (*dto.UserResponse, error)
	PromoteUser(ctx context.Context, usn string, sess Session) (*dto.UserResponse, error)
	DeleteUser(ctx context.Context, usn string, sess Session) (*dto.DeleteUserResponse, error)
	ImportUsers(ctx context.Context, reader io.Reader, sess Session) (*dto.ImportUserResponse, error)
	EnsureMasterAdmin(ctx context.Context) error
}

type userService struct {
	cfg    *config.Config
	repo   *repository.Repository
	logger *zap.Logger
}

// NewUserService 创建 UserService 实例
func NewUserService(cfg *config.Config, repo *repository.Repository, logger *zap.Logger) UserService {
	return &userService{cfg: cfg, repo: repo, logger: logger}
}

// ────────────────────── ResolveUser ──────────────────────

func (s *userService) ResolveUser(ctx context.Context, usn string) (*model.User, error) {
	user, err := s.repo.User.GetByUSN(ctx, usn)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.String("usn", usn), zap.Error(err))
		return nil, err
	}
	return user, nil
}

// ────────────────────── GetUser ──────────────────────

func (s *userService) GetUser(ctx context.Context, usn string, sess Session) (*dto.UserResponse, error) {
	actor, err := resolveActor(ctx, s.repo, sess)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && actor.USN != model.NormalizeUSN(usn) {
		return nil, ErrNoPermission
	}

	user, err := s.ResolveUser(ctx, usn)
	if err != nil {
		return nil, err
	}
	resp := toUserResponse(user)
	return &resp, nil
}

// ────────────────────── ListUsers ──────────────────────

func (s *userService) ListUsers(ctx context.Context, req *dto.UserListRequest, sess Session) ([]dto.UserResponse, int64, error) {
	actor, err := resolveActor(ctx, s.repo, sess)
	if err != nil {
		return nil, 0, err
	}
	if !actor.IsStaff() {
		return nil, 0, ErrNotStaff
	}

	filters := &repository.UserListFilters{
		Role:     req.Role,
		Semester: req.Semester,
		Keyword:  req.Keyword,
	}
	users, total, err := s.repo.User.List(ctx, filters, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("列出用户失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		result = append(result, toUserResponse(&users[i]))
	}
	return result, total, nil
}

// ────────────────────── UpdateUser ──────────────────────

// UpdateUser 主管理员可修改任何人的姓名 / 角色 / 学期；其他用户只能修改自己的姓名。
// 角色改为教职人员时学期强制为 N/A；合并后重新校验角色与学期的一致性。
func (s *userService) UpdateUser(ctx context.Context, usn string, req *dto.UpdateUserRequest, sess Session) (*dto.UserResponse, error) {
	actor, err := resolveActor(ctx, s.repo, sess)
	if err != nil {
		return nil, err
	}
	target, err := s.ResolveUser(ctx, usn)
	if err != nil {
		return nil, err
	}

	isSelf := actor.USN == target.USN
	if actor.Role != model.RoleMasterAdmin {
		if !isSelf || req.Role != nil || req.Semester != nil {
			return nil, ErrNoPermission
		}
	}

	roleChanged := req.Role != nil && *req.Role != target.Role
	if roleChanged {
		switch {
		case target.Role == model.RoleMasterAdmin:
			return nil, ErrMasterAdminRoleChange
		case isSelf:
			return nil, ErrUserSelfRoleChange
		case *req.Role == model.RoleMasterAdmin:
			return nil, ErrAssignMasterAdmin
		}
	}

	updated := *target
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Semester != nil {
		updated.Semester = *req.Semester
	}
	if roleChanged {
		updated.Role = *req.Role
		if model.IsStaffRole(updated.Role) {
			updated.Semester = model.SemesterNA
		}
	}
	if !model.RoleSemesterConsistent(updated.Role, updated.Semester) {
		return nil, ErrRoleSemesterMismatch
	}

	if err := s.repo.User.Update(ctx, &updated); err != nil {
		s.logger.Error("更新用户失败", zap.String("usn", target.USN), zap.Error(err))
		return nil, err
	}

	resp := toUserResponse(&updated)
	return &resp, nil
}

// ────────────────────── PromoteUser ──────────────────────

// PromoteUser 学生学期 n → n+1（n < 8）
func (s *userService) PromoteUser(ctx context.Context, usn string, sess Session) (*dto.UserResponse, error) {
	if err := s.requireMasterAdmin(ctx, sess); err != nil {
		return nil, err
	}
	target, err := s.ResolveUser(ctx, usn)
	if err != nil {
		return nil, err
	}

	if target.Role != model.RoleStudent {
		return nil, ErrPromoteRejected
	}
	n, err := strconv.Atoi(target.Semester)
	if err != nil || n < 1 || n >= 8 {
		return nil, ErrPromoteRejected
	}
	target.Semester = strconv.Itoa(n + 1)

	if err := s.repo.User.Update(ctx, target); err != nil {
		s.logger.Error("升级学期失败", zap.String("usn", target.USN), zap.Error(err))
		return nil, err
	}

	resp := toUserResponse(target)
	return &resp, nil
}

// ────────────────────── DeleteUser ──────────────────────

// DeleteUser 在一个事务中级联删除：
// 分配给该用户的任务；若为管理员，再删除其分配的任务、其批次及批次下的任务
func (s *userService) DeleteUser(ctx context.Context, usn string, sess Session) (*dto.DeleteUserResponse, error) {
	actor, err := resolveActor(ctx, s.repo, sess)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.RoleMasterAdmin {
		return nil, ErrNotMasterAdmin
	}
	if model.NormalizeUSN(usn) == actor.USN {
		return nil, ErrUserSelfDelete
	}

	target, err := s.ResolveUser(ctx, usn)
	if err != nil {
		return nil, err
	}
	if target.Role == model.RoleMasterAdmin || target.USN == s.cfg.MasterAdmin.USN {
		return nil, ErrMasterAdminDelete
	}

	result := &dto.DeleteUserResponse{USN: target.USN}
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		n, err := tx.Task.DeleteByAssignee(ctx, target.USN)
		if err != nil {
			return err
		}
		result.TasksAssignedDeleted = n

		if target.IsStaff() {
			if n, err = tx.Task.DeleteByAuthor(ctx, target.USN); err != nil {
				return err
			}
			result.TasksAuthoredDeleted = n

			if n, err = tx.Meta.DeleteByAdmin(ctx, target.USN); err != nil {
				return err
			}
			result.MetasDeleted = n
		}

		return tx.User.Delete(ctx, target.USN)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("删除用户失败", zap.String("usn", target.USN), zap.Error(err))
		return nil, err
	}

	s.logger.Info("用户已删除",
		zap.String("usn", target.USN),
		zap.String("by", actor.USN),
		zap.Int64("tasks_assigned", result.TasksAssignedDeleted),
		zap.Int64("tasks_authored", result.TasksAuthoredDeleted),
		zap.Int64("metas", result.MetasDeleted),
	)
	return result, nil
}

// ────────────────────── ImportUsers ──────────────────────

const maxImportRows = 1000

var (
	ErrImportBadFile     = apperrors.New(apperrors.KindValidation, "无法解析 Excel 文件")
	ErrImportNoData      = apperrors.New(apperrors.KindValidation, "Excel 文件无数据行（第一行为表头）")
	ErrImportTooManyRows = apperrors.New(apperrors.KindValidation, fmt.Sprintf("数据行数超过上限 %d 行", maxImportRows))
	ErrImportBadHeader   = apperrors.New(apperrors.KindValidation, "Excel 表头缺少必要列（USN / Password）")
)

// importUserRow Excel 导入解析后的单行数据
type importUserRow struct {
	Row      int
	USN      string
	Name     string
	Role     string
	Semester string
	Password string
}

// ImportUsers 主管理员批量导入名册：逐行校验，合法行在一个事务中写入
func (s *userService) ImportUsers(ctx context.Context, reader io.Reader, sess Session) (*dto.ImportUserResponse, error) {
	if err := s.requireMasterAdmin(ctx, sess); err != nil {
		return nil, err
	}

	rows, err := parseImportFile(reader)
	if err != nil {
		return nil, err
	}

	resp := &dto.ImportUserResponse{Total: len(rows)}
	fail := func(row importUserRow, reason string) {
		resp.Failed++
		resp.Errors = append(resp.Errors, dto.ImportUserError{Row: row.Row, USN: row.USN, Reason: reason})
	}

	// 第一阶段：数据预校验（不接触数据库写操作）
	seen := make(map[string]bool, len(rows))
	var valid []model.User
	for _, row := range rows {
		row.USN = model.NormalizeUSN(row.USN)
		if !model.IsValidUSN(row.USN) {
			fail(row, "USN 格式无效")
			continue
		}
		if len(row.Password) < 6 {
			fail(row, "密码长度至少 6 位")
			continue
		}

		role := strings.ToLower(row.Role)
		if role == "" {
			role = model.RoleStudent
		}
		if role == model.RoleMasterAdmin {
			fail(row, "不能导入主管理员")
			continue
		}
		if !model.IsValidRole(role) {
			fail(row, fmt.Sprintf("角色无效: %s", row.Role))
			continue
		}

		semester := strings.ToUpper(row.Semester)
		if model.IsStaffRole(role) && semester == "" {
			semester = model.SemesterNA
		}
		if !model.RoleSemesterConsistent(role, semester) {
			fail(row, ErrRoleSemesterMismatch.Message)
			continue
		}

		if seen[row.USN] {
			fail(row, "文件内 USN 重复")
			continue
		}
		if _, err := s.repo.User.GetByUSN(ctx, row.USN); err == nil {
			fail(row, "USN 已存在")
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error("查询用户失败", zap.String("usn", row.USN), zap.Error(err))
			return nil, err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(row.Password), bcrypt.DefaultCost)
		if err != nil {
			fail(row, "密码哈希失败")
			continue
		}

		seen[row.USN] = true
		valid = append(valid, model.User{
			USN:          row.USN,
			Name:         row.Name,
			PasswordHash: string(hash),
			Role:         role,
			Semester:     semester,
		})
	}

	// 第二阶段：在事务中批量创建所有通过校验的用户
	if len(valid) > 0 {
		err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
			return tx.User.BatchCreate(ctx, valid)
		})
		if err != nil {
			s.logger.Error("导入用户写入失败，事务回滚", zap.Int("rows", len(valid)), zap.Error(err))
			return nil, fmt.Errorf("写入数据库失败，已回滚全部导入: %w", err)
		}
		resp.Success = len(valid)
	}

	s.logger.Info("名册导入完成",
		zap.Int("total", resp.Total),
		zap.Int("success", resp.Success),
		zap.Int("failed", resp.Failed),
	)
	return resp, nil
}

// parseImportFile 解析导入 Excel，表头支持灵活列序
func parseImportFile(reader io.Reader) ([]importUserRow, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, ErrImportBadFile
	}
	defer f.Close()

	excelRows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, ErrImportBadFile
	}
	if len(excelRows) < 2 {
		return nil, ErrImportNoData
	}

	col := parseHeaderIndex(excelRows[0])
	if col["usn"] < 0 || col["password"] < 0 {
		return nil, ErrImportBadHeader
	}

	cellAt := func(row []string, key string) string {
		if idx := col[key]; idx >= 0 && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	var rows []importUserRow
	for i := 1; i < len(excelRows); i++ {
		r := excelRows[i]
		item := importUserRow{
			Row:      i + 1,
			USN:      cellAt(r, "usn"),
			Name:     cellAt(r, "name"),
			Role:     cellAt(r, "role"),
			Semester: cellAt(r, "semester"),
			Password: cellAt(r, "password"),
		}

		// 跳过全空行
		if item.USN == "" && item.Name == "" && item.Role == "" && item.Semester == "" && item.Password == "" {
			continue
		}
		rows = append(rows, item)
	}

	if len(rows) == 0 {
		return nil, ErrImportNoData
	}
	if len(rows) > maxImportRows {
		return nil, ErrImportTooManyRows
	}
	return rows, nil
}

// parseHeaderIndex 解析表头，返回列名 -> 列索引映射（缺失为 -1）
func parseHeaderIndex(header []string) map[string]int {
	idx := map[string]int{"usn": -1, "name": -1, "role": -1, "semester": -1, "password": -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "usn":
			idx["usn"] = i
		case "name", "姓名":
			idx["name"] = i
		case "role", "角色":
			idx["role"] = i
		case "semester", "学期":
			idx["semester"] = i
		case "password", "密码":
			idx["password"] = i
		}
	}
	return idx
}

// ────────────────────── EnsureMasterAdmin ──────────────────────

// EnsureMasterAdmin 启动时确保主管理员存在，缺失时按配置创建
func (s *userService) EnsureMasterAdmin(ctx context.Context) error {
	usn := model.NormalizeUSN(s.cfg.MasterAdmin.USN)

	existing, err := s.repo.User.GetByUSN(ctx, usn)
	if err == nil {
		if existing.Role != model.RoleMasterAdmin {
			s.logger.Warn("保留 USN 已被非主管理员占用", zap.String("usn", usn), zap.String("role", existing.Role))
		}
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("查询主管理员失败: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(s.cfg.MasterAdmin.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("主管理员密码哈希失败: %w", err)
	}

	admin := &model.User{
		USN:          usn,
		Name:         s.cfg.MasterAdmin.Name,
		PasswordHash: string(hash),
		Role:         model.RoleMasterAdmin,
		Semester:     model.SemesterNA,
	}
	if err := s.repo.User.Create(ctx, admin); err != nil {
		return fmt.Errorf("创建主管理员失败: %w", err)
	}

	s.logger.Info("主管理员已创建", zap.String("usn", usn))
	return nil
}

// ── 内部辅助方法 ──

func (s *userService) requireMasterAdmin(ctx context.Context, sess Session) error {
	actor, err := resolveActor(ctx, s.repo, sess)
	if err != nil {
		return err
	}
	if actor.Role != model.RoleMasterAdmin {
		return ErrNotMasterAdmin
	}
	return nil
}

// [自证通过] internal/service/user_service.go
