package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/roneel47/UniTask-Pro/config"
	"github.com/roneel47/UniTask-Pro/internal/dto"
	"github.com/roneel47/UniTask-Pro/internal/kanban"
	"github.com/roneel47/UniTask-Pro/internal/model"
	"github.com/roneel47/UniTask-Pro/internal/service"
	"github.com/roneel47/UniTask-Pro/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
	binding.EnableDecoderDisallowUnknownFields = true
	dto.RegisterValidators()
}

// ═══════════════════════════════════════════════════════════
// Mock Services
// ═══════════════════════════════════════════════════════════

// ── Mock AuthService ──

type mockAuthService struct {
	registerResult   *dto.UserResponse
	registerErr      error
	loginResult      *dto.TokenResponse
	loginErr         error
	refreshResult    *dto.TokenResponse
	refreshErr       error
	refreshGot       string
	logoutErr        error
	logoutJTI        string
	getCurrentResult *dto.UserResponse
	getCurrentErr    error
	changePassErr    error
}

func (m *mockAuthService) Register(_ context.Context, _ *dto.RegisterRequest) (*dto.UserResponse, error) {
	return m.registerResult, m.registerErr
}
func (m *mockAuthService) Login(_ context.Context, _ *dto.LoginRequest) (*dto.TokenResponse, error) {
	return m.loginResult, m.loginErr
}
func (m *mockAuthService) RefreshToken(_ context.Context, token string) (*dto.TokenResponse, error) {
	m.refreshGot = token
	return m.refreshResult, m.refreshErr
}
func (m *mockAuthService) Logout(_ context.Context, jti string, _ time.Time, _ string) error {
	m.logoutJTI = jti
	return m.logoutErr
}
func (m *mockAuthService) GetCurrentUser(_ context.Context, _ string) (*dto.UserResponse, error) {
	return m.getCurrentResult, m.getCurrentErr
}
func (m *mockAuthService) ChangePassword(_ context.Context, _ string, _ *dto.ChangePasswordRequest) error {
	return m.changePassErr
}

// ── Mock UserService ──

type mockUserService struct {
	listResult  []dto.UserResponse
	listTotal   int64
	listErr     error
	userResult  *dto.UserResponse
	userErr     error
	deleteErr   error
	importErr   error
	importCalls int
}

func (m *mockUserService) ResolveUser(_ context.Context, _ string) (*model.User, error) {
	return nil, m.userErr
}
func (m *mockUserService) GetUser(_ context.Context, _ string, _ service.Session) (*dto.UserResponse, error) {
	return m.userResult, m.userErr
}
func (m *mockUserService) ListUsers(_ context.Context, _ *dto.UserListRequest, _ service.Session) ([]dto.UserResponse, int64, error) {
	return m.listResult, m.listTotal, m.listErr
}
func (m *mockUserService) UpdateUser(_ context.Context, _ string, _ *dto.UpdateUserRequest, _ service.Session) (*dto.UserResponse, error) {
	return m.userResult, m.userErr
}
func (m *mockUserService) PromoteUser(_ context.Context, _ string, _ service.Session) (*dto.UserResponse, error) {
	return m.userResult, m.userErr
}
func (m *mockUserService) DeleteUser(_ context.Context, usn string, _ service.Session) (*dto.DeleteUserResponse, error) {
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	return &dto.DeleteUserResponse{USN: usn}, nil
}
func (m *mockUserService) ImportUsers(_ context.Context, _ io.Reader, _ service.Session) (*dto.ImportUserResponse, error) {
	m.importCalls++
	if m.importErr != nil {
		return nil, m.importErr
	}
	return &dto.ImportUserResponse{Total: 1, Success: 1}, nil
}
func (m *mockUserService) EnsureMasterAdmin(_ context.Context) error { return nil }

// ── Mock AssignmentService ──

type mockAssignmentService struct {
	createResult *dto.CreateAssignmentResponse
	createErr    error
	deleteErr    error
	exportErr    error
}

func (m *mockAssignmentService) CreateAssignment(_ context.Context, _ *dto.CreateAssignmentRequest, _ service.Session) (*dto.CreateAssignmentResponse, error) {
	return m.createResult, m.createErr
}
func (m *mockAssignmentService) DeleteAssignment(_ context.Context, id string, _ service.Session) (*dto.DeleteAssignmentResponse, error) {
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	return &dto.DeleteAssignmentResponse{ID: id, TasksDeleted: 3}, nil
}
func (m *mockAssignmentService) ListAssignmentsForAdmin(_ context.Context, _ string, _ service.Session) ([]dto.AssignmentMetaResponse, error) {
	return []dto.AssignmentMetaResponse{}, nil
}
func (m *mockAssignmentService) GetAssignment(_ context.Context, _ string, _ service.Session) (*dto.AssignmentDetailResponse, error) {
	return &dto.AssignmentDetailResponse{}, nil
}
func (m *mockAssignmentService) ExportProgress(_ context.Context, _ string, _ service.Session) (*bytes.Buffer, string, error) {
	if m.exportErr != nil {
		return nil, "", m.exportErr
	}
	return bytes.NewBufferString("xlsx"), "progress_abcd1234.xlsx", nil
}

// ── Mock TaskService ──

type mockTaskService struct {
	taskResult  *dto.TaskResponse
	taskErr     error
	boardResult *dto.BoardResponse
	boardErr    error
	boardUSN    string
	submitRef   string
	submitErr   error
	precheckErr error
	prechecked  []string
	calendar    []byte
}

func (m *mockTaskService) GetTask(_ context.Context, _ string, _ service.Session) (*dto.TaskResponse, error) {
	return m.taskResult, m.taskErr
}
func (m *mockTaskService) ListTasksForUser(_ context.Context, _ string, _ service.Session) ([]dto.TaskResponse, error) {
	return []dto.TaskResponse{}, m.taskErr
}
func (m *mockTaskService) PatchTask(_ context.Context, _ string, _ *dto.PatchTaskRequest, _ service.Session) (*dto.TaskResponse, error) {
	return m.taskResult, m.taskErr
}
func (m *mockTaskService) DeleteTask(_ context.Context, _ string, _ service.Session) error {
	return m.taskErr
}
func (m *mockTaskService) UpdateTaskStatus(_ context.Context, _, _ string, _ service.Session) (*dto.TaskResponse, error) {
	return m.taskResult, m.taskErr
}
func (m *mockTaskService) SubmitTask(_ context.Context, _, fileRef string, _ service.Session) (*dto.TaskResponse, error) {
	m.submitRef = fileRef
	return m.taskResult, m.submitErr
}
func (m *mockTaskService) PrecheckSubmit(_ context.Context, id string, _ service.Session) error {
	m.prechecked = append(m.prechecked, id)
	return m.precheckErr
}
func (m *mockTaskService) GetBoard(_ context.Context, usn string, _ service.Session) (*dto.BoardResponse, error) {
	m.boardUSN = usn
	return m.boardResult, m.boardErr
}
func (m *mockTaskService) MoveOnBoard(_ context.Context, _ *dto.MoveTaskRequest, _ service.Session) (*dto.BoardResponse, error) {
	return m.boardResult, m.boardErr
}
func (m *mockTaskService) ExportCalendar(_ context.Context, _ service.Session) ([]byte, string, error) {
	return m.calendar, "unitask_alice.ics", nil
}

// ═══════════════════════════════════════════════════════════
// Test Helpers
// ═══════════════════════════════════════════════════════════

func setAuth(c *gin.Context, role string) {
	c.Set("usn", "ALICE")
	c.Set("role", role)
	c.Set("semester", "3")
	c.Set("token_jti", "test-jti")
	c.Set("token_exp", time.Now().Add(15*time.Minute))
}

// withAuth 包装 handler，先注入认证信息
func withAuth(role string, fn gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		setAuth(c, role)
		fn(c)
	}
}

func jsonBody(v interface{}) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func parseResponse(w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

// ═══════════════════════════════════════════════════════════
// AuthHandler Tests
// ═══════════════════════════════════════════════════════════

func TestAuthHandler_Login_Success(t *testing.T) {
	mock := &mockAuthService{
		loginResult: &dto.TokenResponse{AccessToken: "test-access-token", RefreshToken: "test-refresh-token", ExpiresIn: 900},
	}
	h := NewAuthHandler(mock, nil)

	r := gin.New()
	r.POST("/auth/login", h.Login)
	w := serve(r, jsonRequest("POST", "/auth/login", jsonBody(dto.LoginRequest{USN: "1ms21cs001", Password: "Test1234"})))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	found := false
	for _, c := range w.Result().Cookies() {
		if c.Name == refreshCookieName {
			found = true
			if c.Value != "test-refresh-token" || !c.HttpOnly {
				t.Errorf("refresh_token cookie 不符: %+v", c)
			}
		}
	}
	if !found {
		t.Error("expected refresh_token cookie to be set")
	}
}

func TestAuthHandler_Login_BadJSON(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, nil)

	r := gin.New()
	r.POST("/auth/login", h.Login)
	w := serve(r, jsonRequest("POST", "/auth/login", strings.NewReader("invalid json")))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAuthHandler_Login_InvalidUSNFormat(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, nil)

	r := gin.New()
	r.POST("/auth/login", h.Login)
	w := serve(r, jsonRequest("POST", "/auth/login", jsonBody(map[string]string{"usn": "bad usn!", "password": "x"})))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if resp := parseResponse(w); !strings.Contains(resp.Details, "usn") {
		t.Errorf("details 应指出 usn 字段，实际=%q", resp.Details)
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{loginErr: service.ErrInvalidCredentials}, nil)

	r := gin.New()
	r.POST("/auth/login", h.Login)
	w := serve(r, jsonRequest("POST", "/auth/login", jsonBody(dto.LoginRequest{USN: "1MS21CS001", Password: "wrong"})))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 11001 {
		t.Errorf("expected error code 11001, got %d", resp.Code)
	}
}

func TestAuthHandler_Register_Conflict(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{registerErr: service.ErrUSNExists}, nil)

	r := gin.New()
	r.POST("/auth/register", h.Register)
	w := serve(r, jsonRequest("POST", "/auth/register", jsonBody(dto.RegisterRequest{
		USN: "1MS21CS001", Password: "secret1", Role: model.RoleStudent, Semester: "3",
	})))

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestAuthHandler_Register_BadSemester(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, nil)

	r := gin.New()
	r.POST("/auth/register", h.Register)
	w := serve(r, jsonRequest("POST", "/auth/register", jsonBody(dto.RegisterRequest{
		USN: "1MS21CS001", Password: "secret1", Role: model.RoleStudent, Semester: "9",
	})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAuthHandler_RefreshToken_MissingToken(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, nil)

	r := gin.New()
	r.POST("/auth/refresh", h.RefreshToken)
	w := serve(r, jsonRequest("POST", "/auth/refresh", jsonBody(map[string]string{})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAuthHandler_RefreshToken_FromCookie(t *testing.T) {
	mock := &mockAuthService{refreshResult: &dto.TokenResponse{AccessToken: "new-access", RefreshToken: "new-refresh"}}
	h := NewAuthHandler(mock, nil)

	r := gin.New()
	r.POST("/auth/refresh", h.RefreshToken)
	req := httptest.NewRequest("POST", "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "cookie-refresh"})
	w := serve(r, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if mock.refreshGot != "cookie-refresh" {
		t.Errorf("应使用 Cookie 中的 Token，实际=%s", mock.refreshGot)
	}
}

func TestAuthHandler_RefreshToken_Invalid(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{refreshErr: service.ErrTokenInvalid}, nil)

	r := gin.New()
	r.POST("/auth/refresh", h.RefreshToken)
	w := serve(r, jsonRequest("POST", "/auth/refresh", jsonBody(dto.RefreshTokenRequest{RefreshToken: "old"})))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuthHandler_GetCurrentUser_Unauthenticated(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, nil)

	r := gin.New()
	r.GET("/auth/me", h.GetCurrentUser)
	w := serve(r, httptest.NewRequest("GET", "/auth/me", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuthHandler_ChangePassword_Wrong(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{changePassErr: service.ErrWrongPassword}, nil)

	r := gin.New()
	r.PUT("/auth/password", withAuth(model.RoleStudent, h.ChangePassword))
	w := serve(r, jsonRequest("PUT", "/auth/password", jsonBody(dto.ChangePasswordRequest{OldPassword: "Old12345", NewPassword: "New12345"})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAuthHandler_Logout_Success(t *testing.T) {
	mock := &mockAuthService{}
	h := NewAuthHandler(mock, nil)

	r := gin.New()
	r.POST("/auth/logout", withAuth(model.RoleStudent, h.Logout))
	w := serve(r, httptest.NewRequest("POST", "/auth/logout", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if mock.logoutJTI != "test-jti" {
		t.Errorf("应拉黑当前 Access Token 的 jti，实际=%s", mock.logoutJTI)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == refreshCookieName && c.MaxAge >= 0 {
			t.Error("expected refresh_token cookie to be cleared")
		}
	}
}

// ═══════════════════════════════════════════════════════════
// UserHandler Tests
// ═══════════════════════════════════════════════════════════

func TestUserHandler_ListUsers_Page(t *testing.T) {
	mock := &mockUserService{listResult: []dto.UserResponse{{USN: "S1"}, {USN: "S2"}}, listTotal: 5}
	h := NewUserHandler(mock)

	r := gin.New()
	r.GET("/users", withAuth(model.RoleAdmin, h.ListUsers))
	w := serve(r, httptest.NewRequest("GET", "/users?semester=3&page=1&page_size=2", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Data response.PageData `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Data.Pagination.TotalPages != 3 {
		t.Errorf("expected 3 pages, got %d", body.Data.Pagination.TotalPages)
	}
}

func TestUserHandler_ListUsers_BadSemester(t *testing.T) {
	h := NewUserHandler(&mockUserService{})

	r := gin.New()
	r.GET("/users", withAuth(model.RoleAdmin, h.ListUsers))
	w := serve(r, httptest.NewRequest("GET", "/users?semester=12", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestUserHandler_GetUser_NotFound(t *testing.T) {
	h := NewUserHandler(&mockUserService{userErr: service.ErrUserNotFound})

	r := gin.New()
	r.GET("/users/:usn", withAuth(model.RoleAdmin, h.GetUser))
	w := serve(r, httptest.NewRequest("GET", "/users/NOBODY", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 12001 {
		t.Errorf("expected error code 12001, got %d", resp.Code)
	}
}

func TestUserHandler_DeleteUser_Forbidden(t *testing.T) {
	h := NewUserHandler(&mockUserService{deleteErr: service.ErrMasterAdminDelete})

	r := gin.New()
	r.DELETE("/users/:usn", withAuth(model.RoleMasterAdmin, h.DeleteUser))
	w := serve(r, httptest.NewRequest("DELETE", "/users/MASTERADMIN1", nil))

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestUserHandler_ImportUsers_MissingFile(t *testing.T) {
	mock := &mockUserService{}
	h := NewUserHandler(mock)

	r := gin.New()
	r.POST("/users/import", withAuth(model.RoleMasterAdmin, h.ImportUsers))
	w := serve(r, httptest.NewRequest("POST", "/users/import", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if mock.importCalls != 0 {
		t.Error("缺少文件时不应调用 Service")
	}
}

// ═══════════════════════════════════════════════════════════
// AssignmentHandler Tests
// ═══════════════════════════════════════════════════════════

func validAssignmentBody() map[string]interface{} {
	return map[string]interface{}{
		"title":       "Lab 1",
		"description": "Linked list",
		"due_date":    time.Now().Add(72 * time.Hour).Format(time.RFC3339),
		"semester":    "3",
		"target":      "all",
	}
}

func TestAssignmentHandler_Create_Success(t *testing.T) {
	mock := &mockAssignmentService{createResult: &dto.CreateAssignmentResponse{Matched: 3}}
	h := NewAssignmentHandler(mock)

	r := gin.New()
	r.POST("/assignments", withAuth(model.RoleAdmin, h.CreateAssignment))
	w := serve(r, jsonRequest("POST", "/assignments", jsonBody(validAssignmentBody())))

	if w.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", w.Code)
	}
}

func TestAssignmentHandler_Create_MissingTitle(t *testing.T) {
	h := NewAssignmentHandler(&mockAssignmentService{})
	body := validAssignmentBody()
	delete(body, "title")

	r := gin.New()
	r.POST("/assignments", withAuth(model.RoleAdmin, h.CreateAssignment))
	w := serve(r, jsonRequest("POST", "/assignments", jsonBody(body)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAssignmentHandler_Create_TargetNotFound(t *testing.T) {
	h := NewAssignmentHandler(&mockAssignmentService{createErr: service.ErrAssignmentTargetNotFound})

	r := gin.New()
	r.POST("/assignments", withAuth(model.RoleAdmin, h.CreateAssignment))
	w := serve(r, jsonRequest("POST", "/assignments", jsonBody(validAssignmentBody())))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 13003 {
		t.Errorf("expected error code 13003, got %d", resp.Code)
	}
}

func TestAssignmentHandler_Delete_NotOwner(t *testing.T) {
	h := NewAssignmentHandler(&mockAssignmentService{deleteErr: service.ErrAssignmentNotOwner})

	r := gin.New()
	r.DELETE("/assignments/:id", withAuth(model.RoleAdmin, h.DeleteAssignment))
	w := serve(r, httptest.NewRequest("DELETE", "/assignments/abc", nil))

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestAssignmentHandler_Export(t *testing.T) {
	h := NewAssignmentHandler(&mockAssignmentService{})

	r := gin.New()
	r.GET("/assignments/:id/export", withAuth(model.RoleAdmin, h.ExportProgress))
	w := serve(r, httptest.NewRequest("GET", "/assignments/abc/export", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("Content-Type 不符: %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "progress_abcd1234.xlsx") {
		t.Errorf("Content-Disposition 不符: %s", cd)
	}
}

// ═══════════════════════════════════════════════════════════
// TaskHandler Tests
// ═══════════════════════════════════════════════════════════

const testTaskID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

// newTestTaskHandler 上传目录为临时目录下的 uploads 子目录，便于检查是否写到目录之外
func newTestTaskHandler(t *testing.T, mock *mockTaskService) (*TaskHandler, string) {
	dir := filepath.Join(t.TempDir(), "uploads")
	return NewTaskHandler(mock, &config.UploadConfig{Dir: dir, MaxSizeMB: 1}), dir
}

// countFiles 统计 root 下（含子目录）的普通文件数
func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			n++
		}
		return nil
	})
	return n
}

func submitRequest(t *testing.T, target string, content []byte) *http.Request {
	t.Helper()
	body, ct := multipartFile(t, "file", "report.pdf", content)
	req := httptest.NewRequest("POST", target, body)
	req.Header.Set("Content-Type", ct)
	return req
}

func TestTaskHandler_PatchTask_UnknownFieldRejected(t *testing.T) {
	mock := &mockTaskService{taskResult: &dto.TaskResponse{ID: "t1"}}
	h, _ := newTestTaskHandler(t, mock)

	r := gin.New()
	r.PATCH("/tasks/:id", withAuth(model.RoleAdmin, h.PatchTask))
	w := serve(r, jsonRequest("PATCH", "/tasks/t1", jsonBody(map[string]string{"assigned_to_usn": "BOB"})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("未知字段应被拒绝，expected 400, got %d", w.Code)
	}
}

func TestTaskHandler_UpdateStatus_Rejected(t *testing.T) {
	h, _ := newTestTaskHandler(t, &mockTaskService{taskErr: kanban.ErrMoveRejected})

	r := gin.New()
	r.PUT("/tasks/:id/status", withAuth(model.RoleStudent, h.UpdateStatus))
	w := serve(r, jsonRequest("PUT", "/tasks/t1/status", jsonBody(dto.UpdateTaskStatusRequest{Status: model.StatusDone})))

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 14002 {
		t.Errorf("expected error code 14002, got %d", resp.Code)
	}
}

func TestTaskHandler_UpdateStatus_UnknownStatus(t *testing.T) {
	h, _ := newTestTaskHandler(t, &mockTaskService{})

	r := gin.New()
	r.PUT("/tasks/:id/status", withAuth(model.RoleStudent, h.UpdateStatus))
	w := serve(r, jsonRequest("PUT", "/tasks/t1/status", jsonBody(dto.UpdateTaskStatusRequest{Status: "Archived"})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestTaskHandler_GetTask_NotFound(t *testing.T) {
	h, _ := newTestTaskHandler(t, &mockTaskService{taskErr: service.ErrTaskNotFound})

	r := gin.New()
	r.GET("/tasks/:id", withAuth(model.RoleStudent, h.GetTask))
	w := serve(r, httptest.NewRequest("GET", "/tasks/missing", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestTaskHandler_GetTask_InternalError(t *testing.T) {
	h, _ := newTestTaskHandler(t, &mockTaskService{taskErr: errors.New("db down")})

	r := gin.New()
	r.GET("/tasks/:id", withAuth(model.RoleStudent, h.GetTask))
	w := serve(r, httptest.NewRequest("GET", "/tasks/t1", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestTaskHandler_GetBoard_PassesUSN(t *testing.T) {
	mock := &mockTaskService{boardResult: &dto.BoardResponse{USN: "BOB"}}
	h, _ := newTestTaskHandler(t, mock)

	r := gin.New()
	r.GET("/tasks/board", withAuth(model.RoleAdmin, h.GetBoard))
	w := serve(r, httptest.NewRequest("GET", "/tasks/board?usn=bob", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if mock.boardUSN != "bob" {
		t.Errorf("usn 查询参数应透传给 Service，实际=%s", mock.boardUSN)
	}
}

func TestTaskHandler_MoveOnBoard_MissingTask(t *testing.T) {
	h, _ := newTestTaskHandler(t, &mockTaskService{})

	r := gin.New()
	r.PUT("/tasks/board/move", withAuth(model.RoleStudent, h.MoveOnBoard))
	w := serve(r, jsonRequest("PUT", "/tasks/board/move", jsonBody(map[string]string{"to": model.StatusInProgress})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func multipartFile(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := new(bytes.Buffer)
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("创建 multipart 失败: %v", err)
	}
	fw.Write(content)
	mw.Close()
	return buf, mw.FormDataContentType()
}

func TestTaskHandler_SubmitTask_SavesFile(t *testing.T) {
	mock := &mockTaskService{taskResult: &dto.TaskResponse{ID: testTaskID, Status: model.StatusSubmitted}}
	h, dir := newTestTaskHandler(t, mock)

	r := gin.New()
	r.POST("/tasks/:id/submit", withAuth(model.RoleStudent, h.SubmitTask))
	w := serve(r, submitRequest(t, "/tasks/"+testTaskID+"/submit", []byte("%PDF-1.4")))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(mock.prechecked) != 1 || mock.prechecked[0] != testTaskID {
		t.Errorf("落盘前应先做提交校验，实际: %v", mock.prechecked)
	}
	if !strings.HasSuffix(mock.submitRef, "_report.pdf") {
		t.Errorf("fileRef 应以原文件名结尾，实际=%s", mock.submitRef)
	}
	if _, err := os.Stat(filepath.Join(dir, testTaskID, mock.submitRef)); err != nil {
		t.Errorf("文件应保存在上传目录: %v", err)
	}
}

func TestTaskHandler_SubmitTask_RejectedRemovesFile(t *testing.T) {
	mock := &mockTaskService{submitErr: kanban.ErrSubmitRejected}
	h, dir := newTestTaskHandler(t, mock)

	r := gin.New()
	r.POST("/tasks/:id/submit", withAuth(model.RoleStudent, h.SubmitTask))
	w := serve(r, submitRequest(t, "/tasks/"+testTaskID+"/submit", []byte("data")))

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	if n := countFiles(t, dir); n != 0 {
		t.Errorf("提交被拒绝时应删除已保存的文件，剩余 %d 个", n)
	}
}

func TestTaskHandler_SubmitTask_DotDotIDWritesNothing(t *testing.T) {
	mock := &mockTaskService{}
	h, dir := newTestTaskHandler(t, mock)
	parent := filepath.Dir(dir)

	r := gin.New()
	r.POST("/tasks/:id/submit", withAuth(model.RoleStudent, h.SubmitTask))
	w := serve(r, submitRequest(t, "/tasks/%2e%2e/submit", []byte("data")))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if len(mock.prechecked) != 0 || mock.submitRef != "" {
		t.Error("非法任务 id 不应调用 Service")
	}
	if n := countFiles(t, parent); n != 0 {
		t.Errorf("非法任务 id 不应写入任何文件，实际 %d 个", n)
	}
}

func TestTaskHandler_SubmitTask_PrecheckFailsWritesNothing(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"任务不存在", service.ErrTaskNotFound, http.StatusNotFound},
		{"非负责人", service.ErrTaskNotAssignee, http.StatusForbidden},
		{"状态不允许提交", kanban.ErrSubmitRejected, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock := &mockTaskService{precheckErr: tc.err}
			h, dir := newTestTaskHandler(t, mock)

			r := gin.New()
			r.POST("/tasks/:id/submit", withAuth(model.RoleStudent, h.SubmitTask))
			w := serve(r, submitRequest(t, "/tasks/"+testTaskID+"/submit", []byte("data")))

			if w.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, w.Code)
			}
			if mock.submitRef != "" {
				t.Error("校验失败时不应调用 SubmitTask")
			}
			if n := countFiles(t, filepath.Dir(dir)); n != 0 {
				t.Errorf("校验失败时不应写入文件，实际 %d 个", n)
			}
		})
	}
}

func TestTaskHandler_SubmitTask_TooLarge(t *testing.T) {
	mock := &mockTaskService{}
	h, _ := newTestTaskHandler(t, mock)

	r := gin.New()
	r.POST("/tasks/:id/submit", withAuth(model.RoleStudent, h.SubmitTask))
	w := serve(r, submitRequest(t, "/tasks/"+testTaskID+"/submit", bytes.Repeat([]byte("x"), 2<<20)))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}
	if mock.submitRef != "" {
		t.Error("超限文件不应调用 Service")
	}
}

func TestTaskHandler_UploadPathStaysInsideDir(t *testing.T) {
	h, dir := newTestTaskHandler(t, &mockTaskService{})

	if p, ok := h.uploadPath(testTaskID, "abcd1234_report.pdf"); !ok || filepath.Dir(filepath.Dir(p)) != dir {
		t.Errorf("合法路径应位于上传目录内，实际=%s", p)
	}
	for _, id := range []string{"..", "../..", ""} {
		if _, ok := h.uploadPath(id, ".."); ok {
			t.Errorf("id=%q 的路径不应被接受", id)
		}
	}
}

func TestTaskHandler_ExportCalendar(t *testing.T) {
	h, _ := newTestTaskHandler(t, &mockTaskService{calendar: []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n")})

	r := gin.New()
	r.GET("/tasks/calendar.ics", withAuth(model.RoleStudent, h.ExportCalendar))
	w := serve(r, httptest.NewRequest("GET", "/tasks/calendar.ics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type 不符: %s", ct)
	}
}

func TestTaskHandler_Unauthenticated(t *testing.T) {
	h, _ := newTestTaskHandler(t, &mockTaskService{})

	r := gin.New()
	r.GET("/tasks/board", h.GetBoard)
	w := serve(r, httptest.NewRequest("GET", "/tasks/board", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}
