package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/roneel47/UniTask-Pro/internal/model"
	"github.com/roneel47/UniTask-Pro/internal/repository"
	apperrors "github.com/roneel47/UniTask-Pro/pkg/errors"
)

// Session 当前请求的认证上下文，由 Handler 从 JWT 中间件注入的字段构造后显式传入。
// Role / Semester 是签发 Token 时的快照；授权判断前统一通过 resolveActor 重新查询用户。
type Session struct {
	USN      string
	Role     string
	Semester string
}

var ErrSessionUserGone = apperrors.New(apperrors.KindForbidden, "当前登录用户不存在或已被删除")

// resolveActor 按会话 USN 重新解析操作者
func resolveActor(ctx context.Context, repo *repository.Repository, sess Session) (*model.User, error) {
	user, err := repo.User.GetByUSN(ctx, sess.USN)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionUserGone
		}
		return nil, err
	}
	return user, nil
}
