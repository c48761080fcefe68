package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/roneel47/UniTask-Pro/config"
	"github.com/roneel47/UniTask-Pro/internal/model"
	"github.com/roneel47/UniTask-Pro/internal/repository"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	users map[string]*model.User // key: 大写 USN
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	user.USN = model.NormalizeUSN(user.USN)
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	m.users[user.USN] = user
	return nil
}

func (m *mockUserRepo) BatchCreate(ctx context.Context, users []model.User) error {
	for i := range users {
		u := users[i]
		_ = m.Create(ctx, &u)
	}
	return nil
}

func (m *mockUserRepo) GetByUSN(_ context.Context, usn string) (*model.User, error) {
	if u, ok := m.users[model.NormalizeUSN(usn)]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) List(_ context.Context, filters *repository.UserListFilters, offset, limit int) ([]model.User, int64, error) {
	var all []model.User
	for _, u := range m.users {
		if filters != nil {
			if filters.Role != "" && u.Role != filters.Role {
				continue
			}
			if filters.Semester != "" && u.Semester != filters.Semester {
				continue
			}
			if kw := strings.ToLower(filters.Keyword); kw != "" &&
				!strings.Contains(strings.ToLower(u.USN), kw) && !strings.Contains(strings.ToLower(u.Name), kw) {
				continue
			}
		}
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].USN < all[j].USN })

	total := int64(len(all))
	if offset > len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockUserRepo) ListStudentsBySemester(_ context.Context, semester string) ([]model.User, error) {
	var result []model.User
	for _, u := range m.users {
		if u.Role == model.RoleStudent && u.Semester == semester {
			result = append(result, *u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].USN < result[j].USN })
	return result, nil
}

func (m *mockUserRepo) Update(_ context.Context, user *model.User) error {
	cp := *user
	cp.UpdatedAt = time.Now()
	m.users[cp.USN] = &cp
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, usn string) error {
	key := model.NormalizeUSN(usn)
	if _, ok := m.users[key]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.users, key)
	return nil
}

// ── Mock TaskRepository ──

type mockTaskRepo struct {
	tasks   map[string]*model.Task
	metas   *mockMetaRepo
	updates int   // Update 成功调用次数
	failErr error // 非 nil 时 Update 返回该错误（模拟存储故障）
}

func newMockTaskRepo(metas *mockMetaRepo) *mockTaskRepo {
	return &mockTaskRepo{tasks: make(map[string]*model.Task), metas: metas}
}

func (m *mockTaskRepo) BatchCreate(_ context.Context, tasks []model.Task) error {
	for i := range tasks {
		t := tasks[i]
		m.tasks[t.ID] = &t
	}
	return nil
}

func (m *mockTaskRepo) GetByID(_ context.Context, id string) (*model.Task, error) {
	if t, ok := m.tasks[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockTaskRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Task, error) {
	// 在 mock 中与 GetByID 行为一致
	return m.GetByID(ctx, id)
}

func (m *mockTaskRepo) ListByAssignee(_ context.Context, usn string) ([]model.Task, error) {
	return m.filter(func(t *model.Task) bool { return strings.EqualFold(t.AssignedToUSN, usn) }), nil
}

func (m *mockTaskRepo) ListByMeta(_ context.Context, metaID string) ([]model.Task, error) {
	return m.filter(func(t *model.Task) bool { return t.TaskAssignmentMetaID == metaID }), nil
}

func (m *mockTaskRepo) Update(_ context.Context, id string, patch model.TaskPatch) error {
	if m.failErr != nil {
		return m.failErr
	}
	t, ok := m.tasks[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	patch.Apply(t)
	t.UpdatedAt = time.Now()
	m.updates++
	return nil
}

func (m *mockTaskRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.tasks[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *mockTaskRepo) DeleteByMeta(_ context.Context, metaID string) (int64, error) {
	return m.deleteWhere(func(t *model.Task) bool { return t.TaskAssignmentMetaID == metaID }), nil
}

func (m *mockTaskRepo) DeleteByAssignee(_ context.Context, usn string) (int64, error) {
	return m.deleteWhere(func(t *model.Task) bool { return strings.EqualFold(t.AssignedToUSN, usn) }), nil
}

func (m *mockTaskRepo) DeleteByAuthor(_ context.Context, adminUSN string) (int64, error) {
	return m.deleteWhere(func(t *model.Task) bool {
		if t.AssigningAdminUSN == adminUSN {
			return true
		}
		meta, ok := m.metas.metas[t.TaskAssignmentMetaID]
		return ok && meta.AssigningAdminUSN == adminUSN
	}), nil
}

func (m *mockTaskRepo) filter(keep func(t *model.Task) bool) []model.Task {
	var result []model.Task
	for _, t := range m.tasks {
		if keep(t) {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].DueDate.Equal(result[j].DueDate) {
			return result[i].DueDate.Before(result[j].DueDate)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (m *mockTaskRepo) deleteWhere(match func(t *model.Task) bool) int64 {
	var n int64
	for id, t := range m.tasks {
		if match(t) {
			delete(m.tasks, id)
			n++
		}
	}
	return n
}

// ── Mock TaskAssignmentMetaRepository ──

type mockMetaRepo struct {
	metas map[string]*model.TaskAssignmentMeta
}

func newMockMetaRepo() *mockMetaRepo {
	return &mockMetaRepo{metas: make(map[string]*model.TaskAssignmentMeta)}
}

func (m *mockMetaRepo) Create(_ context.Context, meta *model.TaskAssignmentMeta) error {
	m.metas[meta.ID] = meta
	return nil
}

func (m *mockMetaRepo) GetByID(_ context.Context, id string) (*model.TaskAssignmentMeta, error) {
	if meta, ok := m.metas[id]; ok {
		cp := *meta
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockMetaRepo) ListByAdmin(_ context.Context, adminUSN string) ([]model.TaskAssignmentMeta, error) {
	var result []model.TaskAssignmentMeta
	for _, meta := range m.metas {
		if strings.EqualFold(meta.AssigningAdminUSN, adminUSN) {
			result = append(result, *meta)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *mockMetaRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.metas[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.metas, id)
	return nil
}

func (m *mockMetaRepo) DeleteByAdmin(_ context.Context, adminUSN string) (int64, error) {
	var n int64
	for id, meta := range m.metas {
		if meta.AssigningAdminUSN == adminUSN {
			delete(m.metas, id)
			n++
		}
	}
	return n, nil
}

// ── 测试辅助 ──

const (
	testMasterUSN = "MASTERADMIN1"
	testPassword  = "password123"
)

type mockRepos struct {
	users *mockUserRepo
	tasks *mockTaskRepo
	metas *mockMetaRepo
}

// setupTestRepos 组装未绑定数据库的 Repository：Transaction 直接以自身调用回调
func setupTestRepos() (*repository.Repository, *mockRepos) {
	metas := newMockMetaRepo()
	m := &mockRepos{
		users: newMockUserRepo(),
		tasks: newMockTaskRepo(metas),
		metas: metas,
	}
	repo := &repository.Repository{User: m.users, Task: m.tasks, Meta: m.metas}
	return repo, m
}

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:               "test-secret-key-for-unit-testing-2026",
			AccessTokenTTL:          15 * time.Minute,
			RefreshTokenTTLDefault:  24 * time.Hour,
			RefreshTokenTTLRemember: 7 * 24 * time.Hour,
		},
		MasterAdmin: config.MasterAdminConfig{
			USN:      testMasterUSN,
			Name:     "Master Administrator",
			Password: "MasterPass!456",
		},
	}
}

var testLogger = zap.NewNop()

func createTestUser(users *mockUserRepo, usn, role, semester string) *model.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	user := &model.User{
		USN:          model.NormalizeUSN(usn),
		Name:         "测试用户 " + usn,
		PasswordHash: string(hash),
		Role:         role,
		Semester:     semester,
	}
	_ = users.Create(context.Background(), user)
	return user
}

func sessionOf(u *model.User) Session {
	return Session{USN: u.USN, Role: u.Role, Semester: u.Semester}
}

// createTestTask 直接写入一条任务（绕过分配流程）
func createTestTask(tasks *mockTaskRepo, id, assignee, status string, due time.Time) *model.Task {
	t := &model.Task{
		ID:                   id,
		Title:                "任务 " + id,
		Description:          "描述",
		DueDate:              due,
		Status:               status,
		AssignedToUSN:        model.NormalizeUSN(assignee),
		AssignedToSemester:   "3",
		AssigningAdminUSN:    "ADMIN1",
		TaskAssignmentMetaID: "meta-" + id,
	}
	tasks.tasks[id] = t
	return t
}
