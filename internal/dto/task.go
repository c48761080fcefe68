package dto

import "time"

// ── 任务模块 DTO ──

// PatchTaskRequest 任务部分更新，仅允许以下字段；
// 未知字段在绑定阶段即被拒绝（见 router 中的 DisallowUnknownFields 设置）
type PatchTaskRequest struct {
	Status         *string `json:"status"          binding:"omitempty,task_status"`
	SubmissionFile *string `json:"submission_file" binding:"omitempty,max=255"`
}

// UpdateTaskStatusRequest 状态变更请求
type UpdateTaskStatusRequest struct {
	Status string `json:"status" binding:"required,task_status"`
}

// MoveTaskRequest 看板拖拽请求
type MoveTaskRequest struct {
	TaskID string `json:"task_id" binding:"required"`
	To     string `json:"to"      binding:"required,task_status"`
}

// BoardQuery 看板查询参数；usn 为空时查看自己的看板
type BoardQuery struct {
	USN string `form:"usn" binding:"omitempty,usn"`
}

// TaskResponse 任务信息
type TaskResponse struct {
	ID                   string    `json:"id"`
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	DueDate              time.Time `json:"due_date"`
	Status               string    `json:"status"`
	AssignedToUSN        string    `json:"assigned_to_usn"`
	AssignedToSemester   string    `json:"assigned_to_semester"`
	AssigningAdminUSN    string    `json:"assigning_admin_usn"`
	SubmissionFile       *string   `json:"submission_file,omitempty"`
	TaskAssignmentMetaID string    `json:"task_assignment_meta_id"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
	Urgency              string    `json:"urgency"` // overdue | urgent | soon | normal，读取时计算
}

// BoardColumnResponse 看板列
type BoardColumnResponse struct {
	Status string         `json:"status"`
	Tasks  []TaskResponse `json:"tasks"`
}

// BoardResponse 看板
type BoardResponse struct {
	USN     string                `json:"usn"`
	Columns []BoardColumnResponse `json:"columns"`
}
