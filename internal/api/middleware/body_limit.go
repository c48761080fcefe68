package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/roneel47/UniTask-Pro/pkg/response"
)

// BodyLimit 请求体大小限制：multipart 上传（作业提交、名册导入）使用 uploadMax，其余请求使用 jsonMax。
// Content-Length 已知且超限时直接返回 413；未知时由 http.MaxBytesReader 在读取阶段截断。
func BodyLimit(jsonMax, uploadMax int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil {
			c.Next()
			return
		}

		limit := jsonMax
		if strings.HasPrefix(c.ContentType(), "multipart/") {
			limit = uploadMax
		}

		if c.Request.ContentLength > limit {
			response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
			c.Abort()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
