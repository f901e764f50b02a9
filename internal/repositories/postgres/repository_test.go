package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/avtotestprime/avtotest-service/internal/models"
	"github.com/avtotestprime/avtotest-service/internal/repositories"
	"github.com/avtotestprime/avtotest-service/pkg"
)

func newTestRepository(t *testing.T) (repositories.Repository, *gorm.DB) {
	t.Helper()

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

	return NewPostgreSQLRepository(RepositoryConfig{DB: db, ProgressTTL: time.Hour}), db
}

func mustQuestion(t *testing.T, repo repositories.Repository, number int, text string, variants ...string) *models.Question {
	t.Helper()
	q := &models.Question{Number: number, Text: text, CorrectAnswer: "A"}
	list := make([]models.Variant, len(variants))
	for i, v := range variants {
		list[i] = models.Variant{Letter: string(models.VariantLetters[i]), Text: v}
	}
	if err := q.SetVariants(list); err != nil {
		t.Fatalf("SetVariants: %v", err)
	}
	if err := repo.Question().Create(context.Background(), nil, q); err != nil {
		t.Fatalf("create question: %v", err)
	}
	return q
}

func mustUser(t *testing.T, repo repositories.Repository, username string, admin bool) *models.User {
	t.Helper()
	u := &models.User{Username: username, PasswordHash: "x", IsAdmin: admin}
	if err := repo.User().Create(context.Background(), nil, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func mustSession(t *testing.T, repo repositories.Repository, userID uint, total, correct int) *models.TestSession {
	t.Helper()
	ctx := context.Background()
	s := &models.TestSession{UserID: userID, TotalQuestions: total}
	if err := repo.TestSession().Create(ctx, nil, s); err != nil {
		t.Fatalf("create session: %v", err)
	}
	s.CorrectAnswers = correct
	s.WrongAnswers = total - correct
	ok, err := repo.TestSession().Complete(ctx, nil, s)
	if err != nil || !ok {
		t.Fatalf("complete session: ok=%v err=%v", ok, err)
	}
	return s
}

func TestQuestionRepository_ListOrderAndNextNumber(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	next, err := repo.Question().NextNumber(ctx, nil)
	if err != nil || next != 1 {
		t.Fatalf("NextNumber() on empty bank = %d, %v; want 1", next, err)
	}

	mustQuestion(t, repo, 7, "Seventh", "a", "b")
	mustQuestion(t, repo, 2, "Second", "a", "b")

	list, err := repo.Question().List(ctx, nil)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].Number != 2 || list[1].Number != 7 {
		t.Errorf("List() not ordered by number: %+v", list)
	}

	next, err = repo.Question().NextNumber(ctx, nil)
	if err != nil || next != 8 {
		t.Errorf("NextNumber() = %d, %v; want 8", next, err)
	}

	count, err := repo.Question().Count(ctx, nil)
	if err != nil || count != 2 {
		t.Errorf("Count() = %d, %v; want 2", count, err)
	}
}

func TestQuestionRepository_Search(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	mustQuestion(t, repo, 1, "Speed limit in town", "50 km/h", "90 km/h")
	mustQuestion(t, repo, 12, "Overtaking rules", "Allowed on the left", "Never")
	mustQuestion(t, repo, 3, "Знак Уступите дорогу", "Да", "Нет")

	tests := []struct {
		name  string
		query string
		want  []int
	}{
		{"question text, any case", "SPEED", []int{1}},
		{"variant text", "left", []int{12}},
		{"number substring", "2", []int{12}},
		{"non-ascii folds", "уступите", []int{3}},
		{"empty returns all", "", []int{1, 3, 12}},
		{"spaces are part of the query", "limit ", []int{1}},
		{"trailing space is not dropped", "town ", nil},
		{"no match", "parking", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Question().Search(ctx, nil, tt.query)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Search(%q) returned %d questions, want %d", tt.query, len(got), len(tt.want))
			}
			for i, q := range got {
				if q.Number != tt.want[i] {
					t.Errorf("Search(%q)[%d].Number = %d, want %d", tt.query, i, q.Number, tt.want[i])
				}
			}
		})
	}
}

func TestQuestionRepository_DeleteCascades(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	user := mustUser(t, repo, "alice", false)
	q := mustQuestion(t, repo, 1, "Q", "a", "b")

	if err := repo.Bookmark().Create(ctx, nil, &models.Bookmark{UserID: user.ID, QuestionID: q.ID}); err != nil {
		t.Fatalf("create bookmark: %v", err)
	}
	session := mustSession(t, repo, user.ID, 1, 1)
	if err := repo.Answer().CreateBatch(ctx, nil, []*models.TestAnswer{
		{SessionID: session.ID, QuestionID: q.ID, SelectedAnswer: "A", IsCorrect: true},
	}); err != nil {
		t.Fatalf("create answers: %v", err)
	}

	if err := repo.Question().Delete(ctx, nil, q.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	var bookmarks, answers int64
	db.Model(&models.Bookmark{}).Count(&bookmarks)
	db.Model(&models.TestAnswer{}).Count(&answers)
	if bookmarks != 0 || answers != 0 {
		t.Errorf("after delete: %d bookmarks, %d answers; want 0, 0", bookmarks, answers)
	}

	// the session itself keeps its tallies
	if _, err := repo.TestSession().GetByID(ctx, nil, session.ID); err != nil {
		t.Errorf("session removed with question: %v", err)
	}

	if err := repo.Question().Delete(ctx, nil, q.ID); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestQuestionRepository_MigrateLegacyVariants(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	legacy := &models.Question{Number: 1, Text: "old", CorrectAnswer: "B", VariantA: "yes", VariantB: "no", VariantC: ""}
	if err := db.Create(legacy).Error; err != nil {
		t.Fatalf("create legacy: %v", err)
	}
	mustQuestion(t, repo, 2, "new", "x", "y")

	n, err := repo.Question().MigrateLegacyVariants(ctx, nil)
	if err != nil || n != 1 {
		t.Fatalf("MigrateLegacyVariants() = %d, %v; want 1", n, err)
	}

	got, err := repo.Question().GetByID(ctx, nil, legacy.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	variants := got.Variants()
	if len(variants) != 2 || variants[0].Letter != "A" || variants[1].Text != "no" {
		t.Errorf("migrated variants = %+v", variants)
	}

	n, err = repo.Question().MigrateLegacyVariants(ctx, nil)
	if err != nil || n != 0 {
		t.Errorf("second MigrateLegacyVariants() = %d, %v; want 0", n, err)
	}
}

func TestBookmarkRepository(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	user := mustUser(t, repo, "bob", false)
	q1 := mustQuestion(t, repo, 5, "five", "a")
	q2 := mustQuestion(t, repo, 3, "three", "a")

	for _, q := range []*models.Question{q1, q2} {
		if err := repo.Bookmark().Create(ctx, nil, &models.Bookmark{UserID: user.ID, QuestionID: q.ID}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	list, err := repo.Bookmark().ListQuestions(ctx, nil, user.ID)
	if err != nil {
		t.Fatalf("ListQuestions() error = %v", err)
	}
	if len(list) != 2 || list[0].Number != 3 {
		t.Errorf("ListQuestions() = %+v, want numbers 3, 5", list)
	}

	removed, err := repo.Bookmark().Delete(ctx, nil, user.ID, q1.ID)
	if err != nil || !removed {
		t.Errorf("Delete() = %v, %v; want true", removed, err)
	}
	removed, err = repo.Bookmark().Delete(ctx, nil, user.ID, q1.ID)
	if err != nil || removed {
		t.Errorf("second Delete() = %v, %v; want false", removed, err)
	}

	exists, _ := repo.Bookmark().Exists(ctx, nil, user.ID, q2.ID)
	count, _ := repo.Bookmark().CountByUser(ctx, nil, user.ID)
	if !exists || count != 1 {
		t.Errorf("Exists() = %v, CountByUser() = %d; want true, 1", exists, count)
	}
}

func TestTestSessionRepository_CompleteOnlyOnce(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	user := mustUser(t, repo, "carol", false)
	s := &models.TestSession{UserID: user.ID, TotalQuestions: 4}
	if err := repo.TestSession().Create(ctx, nil, s); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	s.CorrectAnswers, s.WrongAnswers, s.TimeSpent = 3, 1, 60
	ok, err := repo.TestSession().Complete(ctx, nil, s)
	if err != nil || !ok {
		t.Fatalf("Complete() = %v, %v; want true", ok, err)
	}

	again := &models.TestSession{ID: s.ID, CorrectAnswers: 0, WrongAnswers: 4}
	ok, err = repo.TestSession().Complete(ctx, nil, again)
	if err != nil || ok {
		t.Fatalf("second Complete() = %v, %v; want false", ok, err)
	}

	stored, err := repo.TestSession().GetByID(ctx, nil, s.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !stored.Completed || stored.CorrectAnswers != 3 || stored.CompletedAt == nil {
		t.Errorf("stored session = %+v", stored)
	}
}

func TestTestSessionRepository_DeleteStale(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	user := mustUser(t, repo, "dave", false)
	q := mustQuestion(t, repo, 1, "Q", "a")

	old := &models.TestSession{UserID: user.ID, TotalQuestions: 1, CreatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := &models.TestSession{UserID: user.ID, TotalQuestions: 1}
	for _, s := range []*models.TestSession{old, fresh} {
		if err := repo.TestSession().Create(ctx, nil, s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	if err := repo.Answer().CreateBatch(ctx, nil, []*models.TestAnswer{{SessionID: old.ID, QuestionID: q.ID}}); err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	done := mustSession(t, repo, user.ID, 1, 1)
	db.Model(&models.TestSession{}).Where("id = ?", done.ID).Update("created_at", time.Now().Add(-72*time.Hour))

	deleted, err := repo.TestSession().DeleteStale(ctx, nil, time.Now().Add(-24*time.Hour))
	if err != nil || deleted != 1 {
		t.Fatalf("DeleteStale() = %d, %v; want 1", deleted, err)
	}

	var remaining int64
	if err := db.Model(&models.TestSession{}).Where("user_id = ?", user.ID).Count(&remaining).Error; err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if remaining != 2 {
		t.Errorf("%d sessions left, want fresh and completed kept", remaining)
	}
	if _, err := repo.TestSession().GetByID(ctx, nil, old.ID); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("GetByID(stale) error = %v, want ErrNotFound", err)
	}
}

func TestUserRepository_DeleteCascades(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	user := mustUser(t, repo, "erin", false)
	other := mustUser(t, repo, "frank", false)
	q := mustQuestion(t, repo, 1, "Q", "a")

	s := mustSession(t, repo, user.ID, 1, 1)
	mustSession(t, repo, other.ID, 1, 0)
	if err := repo.Answer().CreateBatch(ctx, nil, []*models.TestAnswer{{SessionID: s.ID, QuestionID: q.ID, SelectedAnswer: "A", IsCorrect: true}}); err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	if err := repo.Bookmark().Create(ctx, nil, &models.Bookmark{UserID: user.ID, QuestionID: q.ID}); err != nil {
		t.Fatalf("bookmark: %v", err)
	}

	if err := repo.User().Delete(ctx, nil, user.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	var sessions, answers, bookmarks int64
	db.Model(&models.TestSession{}).Count(&sessions)
	db.Model(&models.TestAnswer{}).Count(&answers)
	db.Model(&models.Bookmark{}).Count(&bookmarks)
	if sessions != 1 || answers != 0 || bookmarks != 0 {
		t.Errorf("after delete: sessions=%d answers=%d bookmarks=%d; want 1, 0, 0", sessions, answers, bookmarks)
	}

	if _, err := repo.User().GetByID(ctx, nil, user.ID); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
}

func TestUserRepository_ExistsAndNonAdmin(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	admin := mustUser(t, repo, "admin", true)
	mustUser(t, repo, "zoe", false)
	mustUser(t, repo, "adam", false)

	exists, err := repo.User().ExistsByUsername(ctx, nil, "admin", nil)
	if err != nil || !exists {
		t.Errorf("ExistsByUsername(admin) = %v, %v; want true", exists, err)
	}
	exists, _ = repo.User().ExistsByUsername(ctx, nil, "admin", &admin.ID)
	if exists {
		t.Error("ExistsByUsername() should ignore the excluded id")
	}

	users, err := repo.User().ListNonAdmin(ctx, nil)
	if err != nil {
		t.Fatalf("ListNonAdmin() error = %v", err)
	}
	if len(users) != 2 || users[0].Username != "adam" {
		t.Errorf("ListNonAdmin() = %+v, want adam, zoe", users)
	}
	if n, _ := repo.User().CountNonAdmin(ctx, nil); n != 2 {
		t.Errorf("CountNonAdmin() = %d, want 2", n)
	}
}

func TestDashboardRepository_SessionScores(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	u1 := mustUser(t, repo, "u1", false)
	u2 := mustUser(t, repo, "u2", false)
	mustSession(t, repo, u1.ID, 10, 7)
	mustSession(t, repo, u1.ID, 4, 4)
	mustSession(t, repo, u2.ID, 3, 1)

	open := &models.TestSession{UserID: u1.ID, TotalQuestions: 5}
	if err := repo.TestSession().Create(ctx, nil, open); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	mine, err := repo.Dashboard().SessionScores(ctx, nil, &u1.ID)
	if err != nil {
		t.Fatalf("SessionScores() error = %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("SessionScores(u1) = %d sessions, want 2 completed", len(mine))
	}

	all, err := repo.Dashboard().SessionScores(ctx, nil, nil)
	if err != nil || len(all) != 3 {
		t.Errorf("SessionScores(nil) = %d, %v; want 3", len(all), err)
	}

	recent, err := repo.Dashboard().RecentCompletedTests(ctx, nil, nil, 2)
	if err != nil || len(recent) != 2 {
		t.Fatalf("RecentCompletedTests() = %d, %v; want 2", len(recent), err)
	}
	if recent[0].User == nil {
		t.Error("RecentCompletedTests() should preload the user")
	}
}

func TestWithTransaction_RollsBack(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if err := tx.User().Create(ctx, nil, &models.User{Username: "ghost"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTransaction() error = %v, want boom", err)
	}

	if exists, _ := repo.User().ExistsByUsername(ctx, nil, "ghost", nil); exists {
		t.Error("user created inside a rolled back transaction is visible")
	}
}

func TestWithTransaction_InvalidatesCacheAfterCommit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	_, db := newTestRepository(t)
	repo := NewPostgreSQLRepository(RepositoryConfig{DB: db, RedisClient: client, ProgressTTL: time.Hour})
	ctx := context.Background()
	const countKey = "question:count"

	mustQuestion(t, repo, 1, "First", "a")
	if n, err := repo.Question().Count(ctx, nil); err != nil || n != 1 {
		t.Fatalf("Count() = %d, %v; want 1", n, err)
	}
	if !mr.Exists(countKey) {
		t.Fatal("Count() did not cache the bank size")
	}

	err := repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		q := &models.Question{Number: 2, Text: "Second", CorrectAnswer: "A"}
		if err := tx.Question().Create(ctx, nil, q); err != nil {
			return err
		}
		if n, err := tx.Question().Count(ctx, nil); err != nil || n != 2 {
			t.Errorf("Count() inside transaction = %d, %v; want 2", n, err)
		}
		if !mr.Exists(countKey) {
			t.Error("cache invalidated before commit")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTransaction() error = %v", err)
	}
	if mr.Exists(countKey) {
		t.Error("cached count survived the commit")
	}
	if n, _ := repo.Question().Count(ctx, nil); n != 2 {
		t.Errorf("Count() after commit = %d, want 2", n)
	}

	boom := errors.New("boom")
	err = repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if err := tx.Question().Create(ctx, nil, &models.Question{Number: 3, Text: "Third", CorrectAnswer: "A"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTransaction() error = %v, want boom", err)
	}
	if !mr.Exists(countKey) {
		t.Error("rolled back transaction invalidated the cache")
	}
	if n, _ := repo.Question().Count(ctx, nil); n != 2 {
		t.Errorf("Count() after rollback = %d, want 2", n)
	}
}
