package model

import (
	"regexp"
	"strings"
)

// ── 角色 ──

const (
	RoleStudent     = "student"
	RoleAdmin       = "admin"
	RoleMasterAdmin = "master-admin"
)

// IsValidRole 判断角色是否合法
func IsValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleAdmin, RoleMasterAdmin:
		return true
	}
	return false
}

// IsStaffRole admin 与 master-admin 统称教职人员
func IsStaffRole(role string) bool {
	return role == RoleAdmin || role == RoleMasterAdmin
}

// ── 学期 ──

// SemesterNA 教职人员的学期哨兵值
const SemesterNA = "N/A"

// Semesters 全部合法学期取值（"1".."8" + "N/A"）
var Semesters = []string{"1", "2", "3", "4", "5", "6", "7", "8", SemesterNA}

// IsValidSemester 判断学期取值是否合法
func IsValidSemester(semester string) bool {
	for _, s := range Semesters {
		if s == semester {
			return true
		}
	}
	return false
}

// IsStudentSemester 学生可用学期（不含 N/A）
func IsStudentSemester(semester string) bool {
	return semester != SemesterNA && IsValidSemester(semester)
}

// RoleSemesterConsistent 角色与学期是否一致：
// 学生必须属于 1..8 学期；教职人员学期固定为 N/A
func RoleSemesterConsistent(role, semester string) bool {
	if role == RoleStudent {
		return IsStudentSemester(semester)
	}
	return semester == SemesterNA
}

// ── 任务状态 ──

const (
	StatusToBeStarted = "To Be Started"
	StatusInProgress  = "In Progress"
	StatusCompleted   = "Completed"
	StatusSubmitted   = "Submitted"
	StatusDone        = "Done"
)

// TaskStatuses 看板列，按固定顺序排列
var TaskStatuses = []string{
	StatusToBeStarted,
	StatusInProgress,
	StatusCompleted,
	StatusSubmitted,
	StatusDone,
}

// IsValidTaskStatus 判断任务状态是否合法
func IsValidTaskStatus(status string) bool {
	for _, s := range TaskStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// ── 分配目标 ──

// TargetAll 按学期全体学生分配
const TargetAll = "all"

// IsTargetAll 目标是否为整个学期
func IsTargetAll(target string) bool {
	return strings.EqualFold(strings.TrimSpace(target), TargetAll)
}

// NormalizeUSN USN 统一去空格并转为大写
func NormalizeUSN(usn string) string {
	return strings.ToUpper(strings.TrimSpace(usn))
}

// usnPattern USN 仅由字母数字组成
var usnPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,32}$`)

// IsValidUSN 判断 USN 格式是否合法（比较前先去空格，大小写不敏感）。
// "all" 是分配目标保留字，不能作为 USN。
func IsValidUSN(usn string) bool {
	usn = strings.TrimSpace(usn)
	return usnPattern.MatchString(usn) && !strings.EqualFold(usn, TargetAll)
}
