package services

import (
	"context"
	"io"
	"time"

	"github.com/avtotestprime/avtotest-service/internal/auth"
	"github.com/avtotestprime/avtotest-service/internal/models"
	"github.com/avtotestprime/avtotest-service/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type CreateQuestionRequest = validator.QuestionCreateRequest
type UpdateQuestionRequest = validator.QuestionUpdateRequest
type VariantInput = validator.VariantInput

type LoginRequest = validator.LoginRequest
type ProfileUpdateRequest = validator.ProfileUpdateRequest
type CreateUserRequest = validator.UserCreateRequest
type UpdateUserRequest = validator.UserUpdateRequest

type StartTestRequest = validator.StartTestRequest
type SaveAnswerRequest = validator.SaveAnswerRequest
type SubmitTestRequest = validator.SubmitTestRequest

// ImageUpload is an image file attached to a question form
type ImageUpload struct {
	Filename string
	Reader   io.Reader
}

type QuestionResponse struct {
	ID            uint             `json:"id"`
	Number        int              `json:"number"`
	Text          string           `json:"text"`
	ImageURL      string           `json:"image_url,omitempty"`
	Variants      []models.Variant `json:"variants"`
	CorrectAnswer string           `json:"correct_answer,omitempty"`
	IsBookmarked  bool             `json:"is_bookmarked"`
}

type QuestionListResponse struct {
	Questions     []*QuestionResponse `json:"questions"`
	UserBookmarks []uint              `json:"user_bookmarks"`
	Query         string              `json:"query,omitempty"`
	Total         int                 `json:"total"`
}

type ImportRowError struct {
	Row     int      `json:"row"`
	Errors  []string `json:"errors"`
	Snippet string   `json:"snippet,omitempty"`
}

type ImportResult struct {
	Created int              `json:"created"`
	Failed  []ImportRowError `json:"failed"`
}

type StartTestInfo struct {
	TotalAvailable int64 `json:"total_available"`
}

type TakeTestResponse struct {
	Session          *models.TestSession `json:"session"`
	Questions        []*QuestionResponse `json:"questions"`
	QuestionIDs      []uint              `json:"question_ids"`
	Answers          map[uint]string     `json:"answers"`
	Current          int                 `json:"current"`
	TimeLimit        int                 `json:"time_limit"`
	RemainingSeconds int                 `json:"remaining_seconds"`
}

type AnswerResult struct {
	QuestionID     uint             `json:"question_id"`
	Number         int              `json:"number"`
	Text           string           `json:"text"`
	ImageURL       string           `json:"image_url,omitempty"`
	Variants       []models.Variant `json:"variants"`
	CorrectAnswer  string           `json:"correct_answer"`
	SelectedAnswer string           `json:"selected_answer"`
	IsCorrect      bool             `json:"is_correct"`
}

type TestResultResponse struct {
	Session      *models.TestSession `json:"session"`
	ScorePercent int                 `json:"score_percent"`
	Answers      []*AnswerResult     `json:"answers"`
}

// SessionSummary is a completed test as listed on dashboards
type SessionSummary struct {
	ID             uint      `json:"id"`
	UserID         uint      `json:"user_id"`
	Username       string    `json:"username,omitempty"`
	TotalQuestions int       `json:"total_questions"`
	CorrectAnswers int       `json:"correct_answers"`
	WrongAnswers   int       `json:"wrong_answers"`
	ScorePercent   int       `json:"score_percent"`
	TimeSpent      int       `json:"time_spent"`
	CreatedAt      time.Time `json:"created_at"`
}

type UserDashboard struct {
	TotalQuestions int64 `json:"total_questions"`
	BookmarkCount  int64 `json:"bookmark_count"`
	TestCount      int   `json:"test_count"`
	AvgScore       int   `json:"avg_score"`
}

type UserStatistics struct {
	TotalTests             int               `json:"total_tests"`
	AvgScore               int               `json:"avg_score"`
	BestScore              int               `json:"best_score"`
	TotalQuestionsAnswered int               `json:"total_questions_answered"`
	TotalCorrect           int               `json:"total_correct"`
	RecentSessions         []*SessionSummary `json:"recent_sessions"`
}

type AdminDashboard struct {
	TotalQuestions int64             `json:"total_questions"`
	TotalUsers     int64             `json:"total_users"`
	TotalTests     int               `json:"total_tests"`
	RecentTests    []*SessionSummary `json:"recent_tests"`
}

type UserStat struct {
	UserID     uint   `json:"user_id"`
	Username   string `json:"username"`
	TotalTests int    `json:"total_tests"`
	AvgScore   int    `json:"avg_score"`
}

type AdminStatistics struct {
	UserStats []*UserStat `json:"user_stats"`
}

// Identity is the authenticated caller of a request
type Identity struct {
	User           *models.User
	BrowserSession string
}

// LoginResult carries a freshly signed session cookie value
type LoginResult struct {
	User       *models.User
	Token      string
	ExpiresAt  time.Time
	RedirectTo string
}

// ===== SERVICE INTERFACES =====

type QuestionService interface {
	// Reader operations, bookmarks resolved for userID
	List(ctx context.Context, userID uint) (*QuestionListResponse, error)
	Search(ctx context.Context, userID uint, query string) (*QuestionListResponse, error)
	Get(ctx context.Context, id uint, userID uint) (*QuestionResponse, error)

	// Administration
	AdminList(ctx context.Context) ([]*QuestionResponse, error)
	AdminGet(ctx context.Context, id uint) (*QuestionResponse, error)
	Add(ctx context.Context, req *CreateQuestionRequest, image *ImageUpload) (*QuestionResponse, error)
	Edit(ctx context.Context, id uint, req *UpdateQuestionRequest, image *ImageUpload) (*QuestionResponse, error)
	Delete(ctx context.Context, id uint) error

	// Spreadsheet exchange
	Export(ctx context.Context, w io.Writer) error
	Import(ctx context.Context, r io.Reader) (*ImportResult, error)
}

type BookmarkService interface {
	Toggle(ctx context.Context, userID, questionID uint) (models.BookmarkStatus, error)
	List(ctx context.Context, userID uint) (*QuestionListResponse, error)
	IDs(ctx context.Context, userID uint) ([]uint, error)
	Count(ctx context.Context, userID uint) (int64, error)
}

type TestService interface {
	StartInfo(ctx context.Context) (*StartTestInfo, error)
	Start(ctx context.Context, userID uint, browserSession string, requested int) (*models.TestSession, error)
	Take(ctx context.Context, sessionID, userID uint, browserSession string) (*TakeTestResponse, error)
	SaveAnswer(ctx context.Context, sessionID, userID uint, browserSession string, req *SaveAnswerRequest) error
	Submit(ctx context.Context, sessionID, userID uint, browserSession string, req *SubmitTestRequest) (*models.TestSession, error)
	Result(ctx context.Context, sessionID, userID uint) (*TestResultResponse, error)

	// CleanupStale removes never-completed sessions older than maxAge
	CleanupStale(ctx context.Context, maxAge time.Duration) (int64, error)
}

type StatisticsService interface {
	UserDashboard(ctx context.Context, userID uint) (*UserDashboard, error)
	UserStatistics(ctx context.Context, userID uint) (*UserStatistics, error)
	AdminDashboard(ctx context.Context) (*AdminDashboard, error)
	AdminStatistics(ctx context.Context) (*AdminStatistics, error)
	ExportAdminStatistics(ctx context.Context, w io.Writer) error
}

type UserService interface {
	// Session lifecycle
	Login(ctx context.Context, req *LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, browserSession string) error
	Authenticate(ctx context.Context, token string) (*Identity, error)
	AuthenticateExternal(ctx context.Context, bearerToken string) (*Identity, error)
	ExternalEnabled() bool

	// Own account
	UpdateProfile(ctx context.Context, identity *Identity, req *ProfileUpdateRequest) (*LoginResult, error)

	// Administration of regular accounts
	ListUsers(ctx context.Context) ([]*models.User, error)
	GetUser(ctx context.Context, id uint) (*models.User, error)
	CreateUser(ctx context.Context, req *CreateUserRequest) (*models.User, error)
	UpdateUser(ctx context.Context, id uint, req *UpdateUserRequest) (*models.User, error)
	DeleteUser(ctx context.Context, id uint) error

	// SeedAdmin creates the initial administrator when no account has that name
	SeedAdmin(ctx context.Context, username, password string) error
}

// ExternalVerifier validates single sign-on bearer tokens
type ExternalVerifier interface {
	Verify(token string) (*auth.ExternalIdentity, error)
}

// ServiceManager interface for managing all services
type ServiceManager interface {
	Question() QuestionService
	Bookmark() BookmarkService
	Test() TestService
	Statistics() StatisticsService
	User() UserService

	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	HealthCheck(ctx context.Context) error
}
