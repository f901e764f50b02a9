package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avtotestprime/avtotest-service/internal/auth"
	"github.com/avtotestprime/avtotest-service/internal/events"
	"github.com/avtotestprime/avtotest-service/internal/models"
	"github.com/avtotestprime/avtotest-service/internal/repositories"
	"github.com/avtotestprime/avtotest-service/internal/validator"
)

const (
	adminHome = "/panel/"
	userHome  = "/dashboard/"
)

type userService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	tokens    *auth.TokenManager
	external  ExternalVerifier
	publisher events.EventPublisher
}

// NewUserService builds the account service. external may be nil when
// single sign-on is not configured.
func NewUserService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, tokens *auth.TokenManager, external ExternalVerifier, publisher events.EventPublisher) UserService {
	return &userService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		tokens:    tokens,
		external:  external,
		publisher: publisher,
	}
}

// ===== SESSION LIFECYCLE =====

func (s *userService) Login(ctx context.Context, req *LoginRequest) (*LoginResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, NewValidationError(err)
	}

	user, err := s.repo.User().GetByUsername(ctx, nil, req.Username)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			s.logger.Info("Login rejected", "username", req.Username, "reason", "unknown user")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("Login rejected", "username", req.Username, "reason", "wrong password")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := time.Now()
	if err := s.repo.User().TouchLastLogin(ctx, nil, user.ID, now); err != nil {
		s.logger.Warn("Failed to record last login", "user_id", user.ID, "error", err)
	} else {
		user.LastLoginAt = &now
	}

	result, err := s.issue(user, "")
	if err != nil {
		return nil, err
	}

	s.logger.Info("User logged in", "user_id", user.ID, "role", user.Role())
	return result, nil
}

// Logout drops every in-progress test of the browser session
func (s *userService) Logout(ctx context.Context, browserSession string) error {
	if browserSession == "" {
		return nil
	}
	if err := s.repo.Progress().DeleteAll(ctx, browserSession); err != nil {
		return fmt.Errorf("failed to clear test progress: %w", err)
	}
	return nil
}

func (s *userService) Authenticate(ctx context.Context, token string) (*Identity, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, ErrUnauthorized
	}

	user, err := s.repo.User().GetByID(ctx, nil, claims.UserID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !s.tokens.Current(claims, user.PasswordHash) {
		s.logger.Debug("Session token predates a password change", "user_id", user.ID)
		return nil, ErrUnauthorized
	}

	return &Identity{User: user, BrowserSession: claims.BrowserSession()}, nil
}

func (s *userService) ExternalEnabled() bool {
	return s.external != nil
}

// AuthenticateExternal maps a single sign-on token onto a local account,
// creating it on first use. The role follows the external account.
func (s *userService) AuthenticateExternal(ctx context.Context, bearerToken string) (*Identity, error) {
	if s.external == nil {
		return nil, ErrUnauthorized
	}

	ext, err := s.external.Verify(bearerToken)
	if err != nil {
		s.logger.Debug("External token rejected", "error", err)
		return nil, ErrUnauthorized
	}

	user, err := s.repo.User().GetByUsername(ctx, nil, ext.Username)
	switch {
	case err == nil:
		if user.IsAdmin != ext.IsAdmin {
			user.IsAdmin = ext.IsAdmin
			if err := s.repo.User().Update(ctx, nil, user); err != nil {
				return nil, fmt.Errorf("failed to sync external user: %w", err)
			}
		}
	case repositories.IsNotFoundError(err):
		user = &models.User{Username: ext.Username, IsAdmin: ext.IsAdmin}
		if err := s.repo.User().Create(ctx, nil, user); err != nil {
			return nil, fmt.Errorf("failed to provision external user: %w", err)
		}
		s.logger.Info("External user provisioned", "user_id", user.ID, "username", user.Username)
		s.publishChange(ctx, user, events.ActionCreated)
	default:
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &Identity{User: user, BrowserSession: fmt.Sprintf("sso-%d", user.ID)}, nil
}

// ===== OWN ACCOUNT =====

func (s *userService) UpdateProfile(ctx context.Context, identity *Identity, req *ProfileUpdateRequest) (*LoginResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, NewValidationError(err)
	}

	user := identity.User
	if req.NewUsername != "" && req.NewUsername != user.Username {
		if err := s.ensureUsernameFree(ctx, req.NewUsername, &user.ID); err != nil {
			return nil, err
		}
		user.Username = req.NewUsername
	}
	if req.NewPassword != "" {
		hash, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	if err := s.repo.User().Update(ctx, nil, user); err != nil {
		if repositories.IsDuplicateError(err) {
			return nil, usernameTaken()
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	s.logger.Info("Profile updated", "user_id", user.ID)
	s.publishChange(ctx, user, events.ActionUpdated)
	return s.issue(user, identity.BrowserSession)
}

// ===== ADMINISTRATION =====

func (s *userService) ListUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.repo.User().ListNonAdmin(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// GetUser returns a regular account; administrators are not managed here
func (s *userService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.repo.User().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.IsAdmin {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *userService) CreateUser(ctx context.Context, req *CreateUserRequest) (*models.User, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, NewValidationError(err)
	}
	if err := s.ensureUsernameFree(ctx, req.Username, nil); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{Username: req.Username, PasswordHash: hash}
	if err := s.repo.User().Create(ctx, nil, user); err != nil {
		if repositories.IsDuplicateError(err) {
			return nil, usernameTaken()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User created", "user_id", user.ID, "username", user.Username)
	s.publishChange(ctx, user, events.ActionCreated)
	return user, nil
}

func (s *userService) UpdateUser(ctx context.Context, id uint, req *UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, NewValidationError(err)
	}

	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Username != user.Username {
		if err := s.ensureUsernameFree(ctx, req.Username, &user.ID); err != nil {
			return nil, err
		}
		user.Username = req.Username
	}
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	if err := s.repo.User().Update(ctx, nil, user); err != nil {
		if repositories.IsDuplicateError(err) {
			return nil, usernameTaken()
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	s.logger.Info("User updated", "user_id", user.ID)
	s.publishChange(ctx, user, events.ActionUpdated)
	return user, nil
}

// DeleteUser removes a regular account with everything it owns
func (s *userService) DeleteUser(ctx context.Context, id uint) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.User().Delete(ctx, nil, id); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	s.logger.Info("User deleted", "user_id", id, "username", user.Username)
	s.publishChange(ctx, user, events.ActionDeleted)
	return nil
}

func (s *userService) SeedAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}

	exists, err := s.repo.User().ExistsByUsername(ctx, nil, username, nil)
	if err != nil {
		return fmt.Errorf("failed to check administrator: %w", err)
	}
	if exists {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	admin := &models.User{Username: username, PasswordHash: hash, IsAdmin: true}
	if err := s.repo.User().Create(ctx, nil, admin); err != nil {
		return fmt.Errorf("failed to create administrator: %w", err)
	}

	s.logger.Info("Administrator seeded", "user_id", admin.ID, "username", username)
	return nil
}

// ===== HELPERS =====

func (s *userService) issue(user *models.User, browserSession string) (*LoginResult, error) {
	token, claims, err := s.tokens.Issue(user.ID, user.PasswordHash, browserSession)
	if err != nil {
		return nil, err
	}

	redirect := userHome
	if user.IsAdmin {
		redirect = adminHome
	}
	return &LoginResult{
		User:       user,
		Token:      token,
		ExpiresAt:  claims.ExpiresAt.Time,
		RedirectTo: redirect,
	}, nil
}

func (s *userService) ensureUsernameFree(ctx context.Context, username string, excludeID *uint) error {
	taken, err := s.repo.User().ExistsByUsername(ctx, nil, username, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if taken {
		return usernameTaken()
	}
	return nil
}

func usernameTaken() error {
	return newFieldValidationError("username", "unique", "a user with that username already exists")
}

func (s *userService) publishChange(ctx context.Context, user *models.User, action string) {
	event := events.NewEvent(events.TopicUserChanged, events.UserChangedEvent{
		UserID:   user.ID,
		Username: user.Username,
		Action:   action,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish user event", "user_id", user.ID, "error", err)
	}
}
