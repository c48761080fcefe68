package kanban

import (
	"errors"
	"sort"

	apperrors "github.com/roneel47/UniTask-Pro/pkg/errors"

	"github.com/roneel47/UniTask-Pro/internal/model"
)

var ErrTaskNotOnBoard = apperrors.New(apperrors.KindNotFound, "任务不在当前看板中")

// Column 看板中的一列
type Column struct {
	Status string       `json:"status"`
	Tasks  []model.Task `json:"tasks"`
}

// Board 按固定列顺序排列的看板
type Board struct {
	Columns []Column `json:"columns"`
}

// Partition 将任务按状态分列：
// 每个状态恰好一列且顺序固定；未知状态落入第一列；列内按截止时间升序，相同截止时间保持原顺序
func Partition(tasks []model.Task) Board {
	board := emptyBoard()
	for _, t := range tasks {
		idx := Index(Normalize(t.Status))
		board.Columns[idx].Tasks = append(board.Columns[idx].Tasks, t)
	}
	for i := range board.Columns {
		sortByDueDate(board.Columns[i].Tasks)
	}
	return board
}

func emptyBoard() Board {
	cols := make([]Column, len(model.TaskStatuses))
	for i, s := range model.TaskStatuses {
		cols[i] = Column{Status: s, Tasks: []model.Task{}}
	}
	return Board{Columns: cols}
}

func sortByDueDate(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].DueDate.Before(tasks[j].DueDate)
	})
}

// Column 返回指定状态的列；状态非法时返回 nil
func (b Board) Column(status string) *Column {
	idx := Index(status)
	if idx < 0 || idx >= len(b.Columns) {
		return nil
	}
	return &b.Columns[idx]
}

// Find 定位任务所在列与列内下标
func (b Board) Find(taskID string) (col, idx int, ok bool) {
	for ci, c := range b.Columns {
		for ti, t := range c.Tasks {
			if t.ID == taskID {
				return ci, ti, true
			}
		}
	}
	return 0, 0, false
}

// Len 看板中的任务总数
func (b Board) Len() int {
	n := 0
	for _, c := range b.Columns {
		n += len(c.Tasks)
	}
	return n
}

// Clone 深拷贝列切片，作为乐观更新前的快照
func (b Board) Clone() Board {
	cols := make([]Column, len(b.Columns))
	for i, c := range b.Columns {
		tasks := make([]model.Task, len(c.Tasks))
		copy(tasks, c.Tasks)
		cols[i] = Column{Status: c.Status, Tasks: tasks}
	}
	return Board{Columns: cols}
}

// CommitFunc 确认一次移动（通常是持久化状态更新），返回错误时回滚到快照
type CommitFunc func(moved model.Task) error

// Move 两阶段乐观移动：
//  1. 校验规则（规则拒绝时不调用 commit）；
//  2. 在副本上应用移动并调用 commit；
//  3. commit 失败时返回移动前的快照与错误，成功时返回新看板。
//
// 同列移动视为无操作：返回原看板，不调用 commit。
func (b Board) Move(taskID, to, role string, commit CommitFunc) (Board, error) {
	ci, ti, ok := b.Find(taskID)
	if !ok {
		return b, ErrTaskNotOnBoard
	}
	from := b.Columns[ci].Status

	if err := CheckMove(role, from, to); err != nil {
		if errors.Is(err, ErrNoop) {
			return b, nil
		}
		return b, err
	}

	snapshot := b.Clone()
	next := b.Clone()

	moved := next.Columns[ci].Tasks[ti]
	next.Columns[ci].Tasks = append(next.Columns[ci].Tasks[:ti], next.Columns[ci].Tasks[ti+1:]...)
	moved.Status = to

	dest := next.Column(to)
	dest.Tasks = append(dest.Tasks, moved)
	sortByDueDate(dest.Tasks)

	if commit != nil {
		if err := commit(moved); err != nil {
			return snapshot, err
		}
	}
	return next, nil
}
