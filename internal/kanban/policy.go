// Package kanban 任务看板投影：固定的状态列、按角色的拖拽规则、分列与截止时间紧急度。
//
// 这里的规则是写入前的闸门：任务存储本身接受任意合法状态，
// 调用方必须先经过 CheckMove / CheckSubmit，再发起更新。
package kanban

import (
	"errors"

	apperrors "github.com/roneel47/UniTask-Pro/pkg/errors"

	"github.com/roneel47/UniTask-Pro/internal/model"
)

var (
	// ErrNoop 源列与目标列相同，不应触发任何写入
	ErrNoop = errors.New("状态未变化")

	ErrUnknownStatus  = apperrors.New(apperrors.KindValidation, "未知的任务状态")
	ErrMoveRejected   = apperrors.New(apperrors.KindRejected, "学生不能将任务移入 Done，也不能移出 Submitted / Done")
	ErrSubmitRejected = apperrors.New(apperrors.KindRejected, "仅 In Progress 或 Completed 状态的任务可以提交")
)

// Normalize 将未知状态归入第一列，与看板分列的兜底规则一致
func Normalize(status string) string {
	if model.IsValidTaskStatus(status) {
		return status
	}
	return model.StatusToBeStarted
}

// Index 返回状态在列顺序中的位置；未知状态返回 -1
func Index(status string) int {
	for i, s := range model.TaskStatuses {
		if s == status {
			return i
		}
	}
	return -1
}

// CheckMove 判断 role 能否把任务从 from 列移动到 to 列
//
//   - to 非法 → ErrUnknownStatus
//   - from == to → ErrNoop
//   - 学生：目标为 Done、或当前处于 Submitted / Done → ErrMoveRejected
//   - admin / master-admin：不受限制
func CheckMove(role, from, to string) error {
	if !model.IsValidTaskStatus(to) {
		return ErrUnknownStatus
	}
	from = Normalize(from)
	if from == to {
		return ErrNoop
	}
	if model.IsStaffRole(role) {
		return nil
	}
	if to == model.StatusDone {
		return ErrMoveRejected
	}
	if from == model.StatusSubmitted || from == model.StatusDone {
		return ErrMoveRejected
	}
	return nil
}

// CheckSubmit 上传提交只允许从 In Progress / Completed 发起
func CheckSubmit(status string) error {
	if status == model.StatusInProgress || status == model.StatusCompleted {
		return nil
	}
	return ErrSubmitRejected
}
