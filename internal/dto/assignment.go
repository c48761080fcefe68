package dto

import "time"

// ── 任务分配模块 DTO ──

// CreateAssignmentRequest 创建分配请求
// target 为 "all"（整个学期的学生）或具体 USN
type CreateAssignmentRequest struct {
	Title       string    `json:"title"       binding:"required,max=200"`
	Description string    `json:"description" binding:"required"`
	DueDate     time.Time `json:"due_date"    binding:"required"`
	Semester    string    `json:"semester"    binding:"required,semester"`
	Target      string    `json:"target"      binding:"required,max=32"`
}

// AssignmentMetaResponse 分配批次
type AssignmentMetaResponse struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	DueDate            time.Time `json:"due_date"`
	AssignedToSemester string    `json:"assigned_to_semester"`
	AssignedToTarget   string    `json:"assigned_to_target"`
	AssigningAdminUSN  string    `json:"assigning_admin_usn"`
	CreatedAt          time.Time `json:"created_at"`
}

// CreateAssignmentResponse 创建结果
// matched=0 表示学期内没有学生，这是成功结果，与指定 USN 不存在（404）不同
type CreateAssignmentResponse struct {
	Meta    AssignmentMetaResponse `json:"meta"`
	Tasks   []TaskResponse         `json:"tasks"`
	Matched int                    `json:"matched"`
}

// AssignmentDetailResponse 批次详情及进度统计
type AssignmentDetailResponse struct {
	Meta         AssignmentMetaResponse `json:"meta"`
	Tasks        []TaskResponse         `json:"tasks"`
	StatusCounts map[string]int         `json:"status_counts"`
}

// DeleteAssignmentResponse 删除批次结果
type DeleteAssignmentResponse struct {
	ID           string `json:"id"`
	TasksDeleted int64  `json:"tasks_deleted"`
}
