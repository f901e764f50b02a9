package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/avtotestprime/avtotest-service/internal/cache"
	"github.com/avtotestprime/avtotest-service/internal/repositories"
	"github.com/avtotestprime/avtotest-service/internal/repositories/progress"
)

// PostgreSQLRepository implements the main Repository interface
type PostgreSQLRepository struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cacheManager *cache.CacheManager

	// Repository instances
	question    repositories.QuestionRepository
	bookmark    repositories.BookmarkRepository
	testSession repositories.TestSessionRepository
	answer      repositories.AnswerRepository
	user        repositories.UserRepository
	dashboard   repositories.DashboardRepository
	progress    repositories.ProgressRepository
}

// RepositoryConfig holds configuration for repository initialization
type RepositoryConfig struct {
	DB          *gorm.DB
	RedisClient *redis.Client
	// ProgressTTL bounds how long an unfinished test survives without activity
	ProgressTTL time.Duration
	Logger      *slog.Logger
}

// NewPostgreSQLRepository creates a new repository manager with all sub-repositories
func NewPostgreSQLRepository(config RepositoryConfig) repositories.Repository {
	cacheManager := cache.NewCacheManager(config.RedisClient)

	repo := &PostgreSQLRepository{
		db:           config.DB,
		redisClient:  config.RedisClient,
		cacheManager: cacheManager,
	}
	repo.bind(config.DB, nil)

	// In-flight progress lives outside the database
	if config.RedisClient != nil {
		repo.progress = progress.NewRedisStore(cacheManager.Progress, config.ProgressTTL)
	} else {
		repo.progress = progress.NewMemoryStore(config.ProgressTTL)
	}

	return repo
}

// bind builds every database-backed sub-repository on db, which may be a
// transaction. Cache invalidations go through invalidations when non-nil.
func (r *PostgreSQLRepository) bind(db *gorm.DB, invalidations *Invalidations) {
	r.question = NewQuestionPostgreSQL(db, r.cacheManager, invalidations)
	r.bookmark = NewBookmarkPostgreSQL(db, r.cacheManager, invalidations)
	r.testSession = NewTestSessionPostgreSQL(db)
	r.answer = NewAnswerPostgreSQL(db)
	r.user = NewUserPostgreSQL(db, r.cacheManager, invalidations)
	r.dashboard = NewDashboardRepository(db, r.cacheManager)
}

// Question returns the question repository
func (r *PostgreSQLRepository) Question() repositories.QuestionRepository {
	return r.question
}

// Bookmark returns the bookmark repository
func (r *PostgreSQLRepository) Bookmark() repositories.BookmarkRepository {
	return r.bookmark
}

// TestSession returns the test session repository
func (r *PostgreSQLRepository) TestSession() repositories.TestSessionRepository {
	return r.testSession
}

// Answer returns the answer repository
func (r *PostgreSQLRepository) Answer() repositories.AnswerRepository {
	return r.answer
}

// User returns the user repository
func (r *PostgreSQLRepository) User() repositories.UserRepository {
	return r.user
}

// Dashboard returns the dashboard repository
func (r *PostgreSQLRepository) Dashboard() repositories.DashboardRepository {
	return r.dashboard
}

// Progress returns the in-flight test state store
func (r *PostgreSQLRepository) Progress() repositories.ProgressRepository {
	return r.progress
}

// WithTransaction executes a function within a database transaction. Cache
// invalidations raised inside run only after a successful commit.
func (r *PostgreSQLRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	invalidations := &Invalidations{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &PostgreSQLRepository{
			db:           tx,
			redisClient:  r.redisClient,
			cacheManager: r.cacheManager,
			progress:     r.progress,
		}
		txRepo.bind(tx, invalidations)

		return fn(txRepo)
	})
	if err != nil {
		return err
	}

	invalidations.flush(ctx)
	return nil
}

// Ping checks the health of database and cache connections
func (r *PostgreSQLRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if r.redisClient != nil {
		if err := r.cacheManager.HealthCheck(ctx); err != nil {
			return fmt.Errorf("cache ping failed: %w", err)
		}
	}

	return nil
}

// Close closes all connections
func (r *PostgreSQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			return fmt.Errorf("failed to close Redis: %w", err)
		}
	}

	return nil
}

// RepositoryManager implements the RepositoryManager interface
type RepositoryManager struct {
	config RepositoryConfig
	repo   repositories.Repository
}

// NewRepositoryManager creates a new repository manager
func NewRepositoryManager(config RepositoryConfig) repositories.RepositoryManager {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &RepositoryManager{
		config: config,
	}
}

// Initialize checks connectivity, builds the repository and upgrades
// questions still stored in the four-column layout.
func (rm *RepositoryManager) Initialize() error {
	if rm.config.DB == nil {
		return fmt.Errorf("database connection is required")
	}

	sqlDB, err := rm.config.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	if rm.config.RedisClient != nil {
		if _, err := rm.config.RedisClient.Ping(ctx).Result(); err != nil {
			return fmt.Errorf("Redis connection failed: %w", err)
		}
	}

	rm.repo = NewPostgreSQLRepository(rm.config)

	migrated, err := rm.repo.Question().MigrateLegacyVariants(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("legacy variant migration failed: %w", err)
	}
	if migrated > 0 {
		rm.config.Logger.Info("Migrated legacy question variants", "count", migrated)
	}

	return nil
}

// GetRepository returns the repository instance
func (rm *RepositoryManager) GetRepository() repositories.Repository {
	return rm.repo
}

// HealthCheck checks the health of all repository connections
func (rm *RepositoryManager) HealthCheck(ctx context.Context) error {
	if rm.repo == nil {
		return fmt.Errorf("repository not initialized")
	}

	return rm.repo.Ping(ctx)
}

// Shutdown gracefully shuts down all repository connections
func (rm *RepositoryManager) Shutdown(ctx context.Context) error {
	if rm.repo == nil {
		return nil
	}

	return rm.repo.Close()
}
