package kanban

import "time"

// Urgency 截止时间紧急度，读取时按当前时间计算，不做定时刷新
type Urgency string

const (
	UrgencyOverdue Urgency = "overdue" // 已过截止时间
	UrgencyUrgent  Urgency = "urgent"  // 24 小时内到期
	UrgencySoon    Urgency = "soon"    // 1~3 天内到期
	UrgencyNormal  Urgency = "normal"
)

// UrgencyOf 计算 due 相对 now 的紧急度
func UrgencyOf(due, now time.Time) Urgency {
	left := due.Sub(now)
	switch {
	case left < 0:
		return UrgencyOverdue
	case left < 24*time.Hour:
		return UrgencyUrgent
	case left < 4*24*time.Hour:
		return UrgencySoon
	default:
		return UrgencyNormal
	}
}
