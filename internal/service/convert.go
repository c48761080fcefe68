package service

import (
	"time"

	"github.com/roneel47/UniTask-Pro/internal/dto"
	"github.com/roneel47/UniTask-Pro/internal/kanban"
	"github.com/roneel47/UniTask-Pro/internal/model"
)

// ── model → dto ──

func toUserResponse(u *model.User) dto.UserResponse {
	return dto.UserResponse{
		USN:       u.USN,
		Name:      u.Name,
		Role:      u.Role,
		Semester:  u.Semester,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toMetaResponse(m *model.TaskAssignmentMeta) dto.AssignmentMetaResponse {
	return dto.AssignmentMetaResponse{
		ID:                 m.ID,
		Title:              m.Title,
		Description:        m.Description,
		DueDate:            m.DueDate,
		AssignedToSemester: m.AssignedToSemester,
		AssignedToTarget:   m.AssignedToTarget,
		AssigningAdminUSN:  m.AssigningAdminUSN,
		CreatedAt:          m.CreatedAt,
	}
}

// toTaskResponse 紧急度按 now 在读取时计算，不落库
func toTaskResponse(t *model.Task, now time.Time) dto.TaskResponse {
	return dto.TaskResponse{
		ID:                   t.ID,
		Title:                t.Title,
		Description:          t.Description,
		DueDate:              t.DueDate,
		Status:               t.Status,
		AssignedToUSN:        t.AssignedToUSN,
		AssignedToSemester:   t.AssignedToSemester,
		AssigningAdminUSN:    t.AssigningAdminUSN,
		SubmissionFile:       t.SubmissionFile,
		TaskAssignmentMetaID: t.TaskAssignmentMetaID,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
		Urgency:              string(kanban.UrgencyOf(t.DueDate, now)),
	}
}

func toTaskResponses(tasks []model.Task, now time.Time) []dto.TaskResponse {
	result := make([]dto.TaskResponse, 0, len(tasks))
	for i := range tasks {
		result = append(result, toTaskResponse(&tasks[i], now))
	}
	return result
}

func toBoardResponse(usn string, board kanban.Board, now time.Time) *dto.BoardResponse {
	cols := make([]dto.BoardColumnResponse, 0, len(board.Columns))
	for _, c := range board.Columns {
		cols = append(cols, dto.BoardColumnResponse{
			Status: c.Status,
			Tasks:  toTaskResponses(c.Tasks, now),
		})
	}
	return &dto.BoardResponse{USN: usn, Columns: cols}
}
