package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roneel47/UniTask-Pro/internal/service"
	"github.com/roneel47/UniTask-Pro/pkg/response"
)

// 中间件注入的上下文键
const (
	ctxUSN      = "usn"
	ctxRole     = "role"
	ctxSemester = "semester"
	ctxTokenJTI = "token_jti"
	ctxTokenExp = "token_exp"
)

// MustGetUSN 从 Gin 上下文中安全提取 usn。
// JWT 中间件未注入时写入 401 响应并返回 false，调用方应直接 return。
func MustGetUSN(c *gin.Context) (string, bool) {
	v, exists := c.Get(ctxUSN)
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetSession 组装 service.Session；角色缺失同样视为未认证
func MustGetSession(c *gin.Context) (service.Session, bool) {
	usn, ok := MustGetUSN(c)
	if !ok {
		return service.Session{}, false
	}
	role := c.GetString(ctxRole)
	if role == "" {
		response.Unauthorized(c, 10002, "未认证")
		return service.Session{}, false
	}
	return service.Session{USN: usn, Role: role, Semester: c.GetString(ctxSemester)}, true
}

// tokenMeta 当前 Access Token 的 jti 与过期时间（登出拉黑用）
func tokenMeta(c *gin.Context) (string, time.Time) {
	jti := c.GetString(ctxTokenJTI)
	exp, _ := c.Get(ctxTokenExp)
	t, _ := exp.(time.Time)
	return jti, t
}
