package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/avtotestprime/avtotest-service/internal/auth"
	"github.com/avtotestprime/avtotest-service/internal/events"
	"github.com/avtotestprime/avtotest-service/internal/repositories"
	"github.com/avtotestprime/avtotest-service/internal/storage"
	"github.com/avtotestprime/avtotest-service/internal/validator"
)

// ServiceManagerConfig holds the collaborators services share
type ServiceManagerConfig struct {
	Images    storage.ImageStorage
	Publisher events.EventPublisher
	Tokens    *auth.TokenManager

	// External verifies single sign-on tokens; nil disables it
	External ExternalVerifier
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	// Dependencies
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	config    ServiceManagerConfig

	// Service instances
	questionService   QuestionService
	bookmarkService   BookmarkService
	testService       TestService
	statisticsService StatisticsService
	userService       UserService

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager with all dependencies
func NewServiceManager(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, config ServiceManagerConfig) ServiceManager {
	if config.Publisher == nil {
		config.Publisher = events.NewMockEventPublisher(logger)
	}
	return &serviceManager{
		repo:      repo,
		logger:    logger,
		validator: validator,
		config:    config,
	}
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	if sm.config.Images == nil {
		return fmt.Errorf("image storage is required")
	}
	if sm.config.Tokens == nil {
		return fmt.Errorf("token manager is required")
	}

	sm.questionService = NewQuestionService(sm.repo, sm.logger, sm.validator, sm.config.Images, sm.config.Publisher)
	sm.bookmarkService = NewBookmarkService(sm.repo, sm.logger, sm.config.Images)
	sm.testService = NewTestSessionService(sm.repo, sm.logger, sm.validator, sm.config.Images, sm.config.Publisher)
	sm.statisticsService = NewStatisticsService(sm.repo, sm.logger)
	sm.userService = NewUserService(sm.repo, sm.logger, sm.validator, sm.config.Tokens, sm.config.External, sm.config.Publisher)

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully", "sso_enabled", sm.config.External != nil)

	return nil
}

// Service getters
func (sm *serviceManager) Question() QuestionService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.questionService
}

func (sm *serviceManager) Bookmark() BookmarkService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.bookmarkService
}

func (sm *serviceManager) Test() TestService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.testService
}

func (sm *serviceManager) Statistics() StatisticsService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.statisticsService
}

func (sm *serviceManager) User() UserService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.userService
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}
	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if err := sm.config.Publisher.Close(); err != nil {
		sm.logger.Error("Failed to close event publisher", "error", err)
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down completed")

	return nil
}
