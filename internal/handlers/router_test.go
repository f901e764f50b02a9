package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/avtotestprime/avtotest-service/internal/auth"
	"github.com/avtotestprime/avtotest-service/internal/repositories/postgres"
	"github.com/avtotestprime/avtotest-service/internal/services"
	"github.com/avtotestprime/avtotest-service/internal/storage"
	"github.com/avtotestprime/avtotest-service/internal/utils"
	"github.com/avtotestprime/avtotest-service/internal/validator"
	"github.com/avtotestprime/avtotest-service/pkg"
)

type testServer struct {
	router   *gin.Engine
	services services.ServiceManager
	admin    *http.Cookie
	user     *http.Cookie
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := pkg.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	images, err := storage.NewLocalStorage(t.TempDir(), "/media/")
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}

	repo := postgres.NewPostgreSQLRepository(postgres.RepositoryConfig{DB: db, ProgressTTL: time.Hour, Logger: log})
	sm := services.NewServiceManager(repo, log, validator.New(), services.ServiceManagerConfig{
		Images: images,
		Tokens: auth.NewTokenManager("handler-test-secret", time.Hour),
	})
	ctx := context.Background()
	if err := sm.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := sm.User().SeedAdmin(ctx, "admin", "admin-pass"); err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if _, err := sm.User().CreateUser(ctx, &services.CreateUserRequest{Username: "driver", Password: "driver-pass"}); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		_, err := sm.Question().Add(ctx, &services.CreateQuestionRequest{
			Text:          fmt.Sprintf("Question %d", i+1),
			Variants:      []services.VariantInput{{Letter: "A", Text: "Right"}, {Letter: "B", Text: "Wrong"}},
			CorrectAnswer: "A",
		}, nil)
		if err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	router := gin.New()
	SetupMiddleware(router, utils.NewSlogLogger(log))
	NewHandlerManager(sm, utils.NewSlogLogger(log), RouterConfig{}).SetupRoutes(router)

	s := &testServer{router: router, services: sm}
	s.admin = s.login(t, "admin", "admin-pass")
	s.user = s.login(t, "driver", "driver-pass")
	return s
}

func (s *testServer) do(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func formRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func (s *testServer) login(t *testing.T, username, password string) *http.Cookie {
	t.Helper()
	w := s.do(formRequest(http.MethodPost, "/login/", url.Values{"username": {username}, "password": {password}}), nil)
	if w.Code != http.StatusFound {
		t.Fatalf("login %s: status = %d, body = %s", username, w.Code, w.Body.String())
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName && c.Value != "" {
			return c
		}
	}
	t.Fatalf("login %s: no session cookie", username)
	return nil
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/health", nil), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", body["status"])
	}
}

func TestAccessControl(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		path     string
		accept   string
		user     func() *http.Cookie
		want     int
		location string
	}{
		{"anonymous browser", "/questions/", "text/html", func() *http.Cookie { return nil }, http.StatusFound, "/login/?next=%2Fquestions%2F"},
		{"anonymous api client", "/questions/", "application/json", func() *http.Cookie { return nil }, http.StatusUnauthorized, ""},
		{"user on panel", "/panel/", "application/json", func() *http.Cookie { return s.user }, http.StatusForbidden, ""},
		{"admin on panel", "/panel/", "application/json", func() *http.Cookie { return s.admin }, http.StatusOK, ""},
		{"user on questions", "/questions/", "application/json", func() *http.Cookie { return s.user }, http.StatusOK, ""},
		{"public login page", "/login/", "application/json", func() *http.Cookie { return nil }, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("Accept", tt.accept)
			w := s.do(req, tt.user())
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
			if tt.location != "" && w.Header().Get("Location") != tt.location {
				t.Errorf("Location = %q, want %q", w.Header().Get("Location"), tt.location)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		target   string
		username string
		password string
		want     int
		location string
	}{
		{"wrong password", "/login/", "driver", "nope", http.StatusUnauthorized, ""},
		{"user lands on dashboard", "/login/", "driver", "driver-pass", http.StatusFound, "/dashboard/"},
		{"admin lands on panel", "/login/", "admin", "admin-pass", http.StatusFound, "/panel/"},
		{"next is honoured", "/login/?next=%2Fbookmarks%2F", "driver", "driver-pass", http.StatusFound, "/bookmarks/"},
		{"foreign next is ignored", "/login/?next=%2F%2Fevil.example", "driver", "driver-pass", http.StatusFound, "/dashboard/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{"username": {tt.username}, "password": {tt.password}}
			w := s.do(formRequest(http.MethodPost, tt.target, form), nil)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.location != "" && w.Header().Get("Location") != tt.location {
				t.Errorf("Location = %q, want %q", w.Header().Get("Location"), tt.location)
			}
		})
	}
}

func TestIndexRedirectsByRole(t *testing.T) {
	s := newTestServer(t)

	for cookie, want := range map[*http.Cookie]string{nil: "/login/", s.user: "/dashboard/", s.admin: "/panel/"} {
		w := s.do(httptest.NewRequest(http.MethodGet, "/", nil), cookie)
		if w.Code != http.StatusFound || w.Header().Get("Location") != want {
			t.Errorf("GET / = %d %q, want 302 %q", w.Code, w.Header().Get("Location"), want)
		}
	}
}

func TestLogoutClearsSession(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodPost, "/logout/", nil), s.user)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/login/" {
		t.Fatalf("logout = %d %q", w.Code, w.Header().Get("Location"))
	}
	cleared := false
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("session cookie was not cleared")
	}
}

func TestToggleBookmark(t *testing.T) {
	s := newTestServer(t)

	xhr := httptest.NewRequest(http.MethodPost, "/bookmark/toggle/1/", nil)
	xhr.Header.Set("X-Requested-With", "XMLHttpRequest")
	w := s.do(xhr, s.user)
	if w.Code != http.StatusOK {
		t.Fatalf("xhr toggle status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "added" {
		t.Errorf("status = %q, want added", body["status"])
	}

	tests := []struct {
		name     string
		referer  string
		location string
	}{
		{"same-site referer", "http://example.com/questions/1/", "/questions/1/"},
		{"foreign referer", "http://evil.example/page", "/questions/"},
		{"no referer", "", "/questions/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/bookmark/toggle/1/", nil)
			if tt.referer != "" {
				req.Header.Set("Referer", tt.referer)
			}
			w := s.do(req, s.user)
			if w.Code != http.StatusFound || w.Header().Get("Location") != tt.location {
				t.Errorf("toggle = %d %q, want 302 %q", w.Code, w.Header().Get("Location"), tt.location)
			}
		})
	}

	missing := httptest.NewRequest(http.MethodPost, "/bookmark/toggle/999/", nil)
	missing.Header.Set("X-Requested-With", "XMLHttpRequest")
	if w := s.do(missing, s.user); w.Code != http.StatusNotFound {
		t.Errorf("unknown question status = %d, want 404", w.Code)
	}
}

func TestTestFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(formRequest(http.MethodPost, "/test/start/", url.Values{"num_questions": {"2"}}), s.user)
	if w.Code != http.StatusFound {
		t.Fatalf("start status = %d, body = %s", w.Code, w.Body.String())
	}
	takePath := w.Header().Get("Location")
	var sessionID uint
	if _, err := fmt.Sscanf(takePath, "/test/%d/", &sessionID); err != nil {
		t.Fatalf("start Location = %q", takePath)
	}

	take := httptest.NewRequest(http.MethodGet, takePath, nil)
	take.Header.Set("Accept", "application/json")
	w = s.do(take, s.user)
	if w.Code != http.StatusOK {
		t.Fatalf("take status = %d", w.Code)
	}
	var taken services.TakeTestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &taken); err != nil {
		t.Fatalf("decode take: %v", err)
	}
	if len(taken.QuestionIDs) != 2 || len(taken.Questions) != 2 {
		t.Fatalf("take returned %d ids and %d questions, want 2", len(taken.QuestionIDs), len(taken.Questions))
	}
	for _, q := range taken.Questions {
		if q.CorrectAnswer != "" {
			t.Errorf("question %d leaks its correct answer", q.ID)
		}
	}

	// someone else's browser cannot see the session
	other := httptest.NewRequest(http.MethodGet, takePath, nil)
	if w := s.do(other, s.admin); w.Code != http.StatusFound || w.Header().Get("Location") != testStartPath {
		t.Errorf("foreign take = %d %q, want redirect to start", w.Code, w.Header().Get("Location"))
	}

	submit := url.Values{
		"time_spent": {"42"},
		fmt.Sprintf("answer_%d", taken.QuestionIDs[0]): {"a"},
		fmt.Sprintf("answer_%d", taken.QuestionIDs[1]): {"B"},
	}
	w = s.do(formRequest(http.MethodPost, takePath+"submit/", submit), s.user)
	if w.Code != http.StatusFound || w.Header().Get("Location") != resultPath(sessionID) {
		t.Fatalf("submit = %d %q", w.Code, w.Header().Get("Location"))
	}

	// completed sessions send the browser to the result
	if w := s.do(httptest.NewRequest(http.MethodGet, takePath, nil), s.user); w.Header().Get("Location") != resultPath(sessionID) {
		t.Errorf("take after submit Location = %q", w.Header().Get("Location"))
	}
	if w := s.do(formRequest(http.MethodPost, takePath+"submit/", submit), s.user); w.Header().Get("Location") != resultPath(sessionID) {
		t.Errorf("second submit Location = %q", w.Header().Get("Location"))
	}

	w = s.do(httptest.NewRequest(http.MethodGet, resultPath(sessionID), nil), s.user)
	if w.Code != http.StatusOK {
		t.Fatalf("result status = %d", w.Code)
	}
	var result services.TestResultResponse
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Session.CorrectAnswers != 1 || result.Session.WrongAnswers != 1 || result.ScorePercent != 50 {
		t.Errorf("result = %d correct, %d wrong, %d%%; want 1, 1, 50%%",
			result.Session.CorrectAnswers, result.Session.WrongAnswers, result.ScorePercent)
	}
	if result.Session.TimeSpent != 42 {
		t.Errorf("TimeSpent = %d, want 42", result.Session.TimeSpent)
	}
}

func TestStartTestRejectsBadCount(t *testing.T) {
	s := newTestServer(t)

	w := s.do(formRequest(http.MethodPost, "/test/start/", url.Values{"num_questions": {"many"}}), s.user)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Errors) != 1 || body.Errors[0].Field != "num_questions" {
		t.Errorf("errors = %+v", body.Errors)
	}
}

func TestPanelQuestions(t *testing.T) {
	s := newTestServer(t)

	form := url.Values{
		"text":           {"Which sign means stop?"},
		"variant_a":      {"Red octagon"},
		"variant_b":      {"Yellow triangle"},
		"variant_c":      {"  "},
		"correct_answer": {"a"},
	}
	w := s.do(formRequest(http.MethodPost, "/panel/questions/add/", form), s.admin)
	if w.Code != http.StatusFound || w.Header().Get("Location") != panelQuestionsPath {
		t.Fatalf("add = %d %q, body = %s", w.Code, w.Header().Get("Location"), w.Body.String())
	}

	q, err := s.services.Question().AdminGet(context.Background(), 4)
	if err != nil {
		t.Fatalf("AdminGet() error = %v", err)
	}
	if q.Number != 4 || len(q.Variants) != 2 || q.CorrectAnswer != "A" {
		t.Errorf("added question = %+v", q)
	}

	bad := url.Values{"text": {"No options"}, "correct_answer": {"A"}}
	if w := s.do(formRequest(http.MethodPost, "/panel/questions/add/", bad), s.admin); w.Code != http.StatusBadRequest {
		t.Errorf("add without variants status = %d, want 400", w.Code)
	}

	w = s.do(formRequest(http.MethodPost, "/panel/questions/4/edit/", url.Values{"text": {"Edited"}}), s.admin)
	if w.Code != http.StatusFound {
		t.Fatalf("edit status = %d, body = %s", w.Code, w.Body.String())
	}
	if q, _ := s.services.Question().AdminGet(context.Background(), 4); q.Text != "Edited" || len(q.Variants) != 2 {
		t.Errorf("edited question = %+v, want new text and kept variants", q)
	}

	w = s.do(httptest.NewRequest(http.MethodGet, "/panel/questions/export/", nil), s.admin)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != xlsxContentType {
		t.Errorf("export = %d %q", w.Code, w.Header().Get("Content-Type"))
	}

	if w := s.do(httptest.NewRequest(http.MethodPost, "/panel/questions/4/delete/", nil), s.admin); w.Code != http.StatusFound {
		t.Errorf("delete status = %d", w.Code)
	}
	if _, err := s.services.Question().AdminGet(context.Background(), 4); err == nil {
		t.Error("question still exists after delete")
	}
}

func TestPanelUsers(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/panel/users/add/", strings.NewReader(`{"username":"learner","password":"learner-pass"}`))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(req, s.admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("add status = %d, body = %s", w.Code, w.Body.String())
	}
	var body struct {
		RedirectTo string `json:"redirect_to"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.RedirectTo != panelUsersPath {
		t.Errorf("redirect_to = %q, want %q", body.RedirectTo, panelUsersPath)
	}

	dup := formRequest(http.MethodPost, "/panel/users/add/", url.Values{"username": {"learner"}, "password": {"x"}})
	if w := s.do(dup, s.admin); w.Code != http.StatusBadRequest {
		t.Errorf("duplicate username status = %d, want 400", w.Code)
	}

	// administrators are not managed from the panel
	if w := s.do(httptest.NewRequest(http.MethodGet, "/panel/users/1/edit/", nil), s.admin); w.Code != http.StatusNotFound {
		t.Errorf("admin edit page status = %d, want 404", w.Code)
	}
}
