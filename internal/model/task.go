package model

import "time"

// Task 任务表 对应 tasks
// 每条任务只属于一个具体用户；AssignedToSemester / AssigningAdminUSN 为冗余字段，创建后不可修改
type Task struct {
	ID                   string    `gorm:"type:uuid;primaryKey"                          json:"id"`
	Title                string    `gorm:"type:varchar(200);not null"                    json:"title"`
	Description          string    `gorm:"type:text;not null"                            json:"description"`
	DueDate              time.Time `gorm:"not null"                                      json:"due_date"`
	Status               string    `gorm:"type:varchar(20);not null;default:'To Be Started'" json:"status"`
	AssignedToUSN        string    `gorm:"type:varchar(32);not null"                     json:"assigned_to_usn"`
	AssignedToSemester   string    `gorm:"type:varchar(3);not null"                      json:"assigned_to_semester"`
	AssigningAdminUSN    string    `gorm:"type:varchar(32);not null"                     json:"assigning_admin_usn"`
	SubmissionFile       *string   `gorm:"type:varchar(255)"                             json:"submission_file,omitempty"`
	TaskAssignmentMetaID string    `gorm:"type:uuid;not null"                            json:"task_assignment_meta_id"`
	BaseModel
}

// TableName 指定表名
func (Task) TableName() string { return "tasks" }

// TaskPatch 任务部分更新的白名单字段
// 标识、创建时间、分配人、学期、批次引用均不在此列，只能在创建时写入
type TaskPatch struct {
	Status         *string
	SubmissionFile *string
}

// IsEmpty 补丁是否未包含任何字段
func (p TaskPatch) IsEmpty() bool {
	return p.Status == nil && p.SubmissionFile == nil
}

// Apply 将补丁合并到任务上（仅内存）
func (p TaskPatch) Apply(t *Task) {
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.SubmissionFile != nil {
		file := *p.SubmissionFile
		t.SubmissionFile = &file
	}
}
