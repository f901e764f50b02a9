package repositories

import "context"

// Repository aggregates every persistent store the service uses
type Repository interface {
	// Question bank
	Question() QuestionRepository
	Bookmark() BookmarkRepository

	// Test sessions
	TestSession() TestSessionRepository
	Answer() AnswerRepository

	// Accounts
	User() UserRepository

	// Aggregates for dashboards and statistics
	Dashboard() DashboardRepository

	// In-flight test state (ephemeral, not part of transactions)
	Progress() ProgressRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	// Initialize repositories with database connections
	Initialize() error

	// Get repository instance
	GetRepository() Repository

	// Health check for all repositories
	HealthCheck(ctx context.Context) error

	// Graceful shutdown
	Shutdown(ctx context.Context) error
}
