package model

import "time"

// TaskAssignmentMeta 任务分配批次表 对应 task_assignment_metas
// 一次分配动作生成一条记录，删除时级联删除其下全部任务；创建后不可修改
type TaskAssignmentMeta struct {
	ID                 string    `gorm:"type:uuid;primaryKey"          json:"id"`
	Title              string    `gorm:"type:varchar(200);not null"    json:"title"`
	Description        string    `gorm:"type:text;not null"            json:"description"`
	DueDate            time.Time `gorm:"not null"                      json:"due_date"`
	AssignedToSemester string    `gorm:"type:varchar(3);not null"      json:"assigned_to_semester"`
	AssignedToTarget   string    `gorm:"type:varchar(32);not null"     json:"assigned_to_target"` // "all" 或具体 USN
	AssigningAdminUSN  string    `gorm:"type:varchar(32);not null;index" json:"assigning_admin_usn"`
	CreatedAt          time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName 指定表名
func (TaskAssignmentMeta) TableName() string { return "task_assignment_metas" }
