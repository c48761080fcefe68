package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roneel47/UniTask-Pro/internal/dto"
	apperrors "github.com/roneel47/UniTask-Pro/pkg/errors"
	"github.com/roneel47/UniTask-Pro/pkg/response"
)

// respondError 按业务错误分类映射 HTTP 状态：
// Validation → 400，NotFound → 404，Forbidden → 403，Rejected → 409，其余 → 500。
// code 为模块业务错误码（Auth 11xxx / User 12xxx / Assignment 13xxx / Task 14xxx）。
func respondError(c *gin.Context, err error, code int) {
	msg := err.Error()
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		response.BadRequest(c, code, msg)
	case apperrors.KindNotFound:
		response.NotFound(c, code, msg)
	case apperrors.KindForbidden:
		response.Forbidden(c, code, msg)
	case apperrors.KindRejected:
		response.Conflict(c, code, msg)
	default:
		response.InternalError(c)
	}
}

// badBinding 参数绑定失败，details 列出字段与校验规则
func badBinding(c *gin.Context, err error) {
	response.ErrorWithDetails(c, http.StatusBadRequest, 10001, "参数校验失败", dto.ValidationDetails(err))
}
