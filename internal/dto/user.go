package dto

// ── 用户模块 DTO ──

// UserListRequest 用户列表查询参数
type UserListRequest struct {
	PaginationRequest
	Role     string `form:"role"     binding:"omitempty,oneof=student admin master-admin"`
	Semester string `form:"semester" binding:"omitempty,semester"`
	Keyword  string `form:"keyword"  binding:"omitempty,max=50"`
}

// UpdateUserRequest 更新用户信息请求（仅更新非 nil 字段）
type UpdateUserRequest struct {
	Name     *string `json:"name"     binding:"omitempty,max=100"`
	Role     *string `json:"role"     binding:"omitempty,oneof=student admin master-admin"`
	Semester *string `json:"semester" binding:"omitempty,semester"`
}

// DeleteUserResponse 删除用户的级联结果
type DeleteUserResponse struct {
	USN                  string `json:"usn"`
	TasksAssignedDeleted int64  `json:"tasks_assigned_deleted"`
	TasksAuthoredDeleted int64  `json:"tasks_authored_deleted"`
	MetasDeleted         int64  `json:"metas_deleted"`
}

// ImportUserResponse 批量导入用户响应
type ImportUserResponse struct {
	Total   int               `json:"total"`
	Success int               `json:"success"`
	Failed  int               `json:"failed"`
	Errors  []ImportUserError `json:"errors,omitempty"`
}

// ImportUserError 导入错误详情
type ImportUserError struct {
	Row    int    `json:"row"`
	USN    string `json:"usn,omitempty"`
	Reason string `json:"reason"`
}
