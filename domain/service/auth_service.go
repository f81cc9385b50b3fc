package service

import (
	"context"
	"errors"

	"github.com/zquestz/nexus/domain/model"
	"github.com/zquestz/nexus/domain/port/outbound"
	"github.com/zquestz/nexus/domain/validation"
)

// AuthService verifies login credentials against the user store.
type AuthService struct {
	users  outbound.UserRepository
	hasher outbound.PasswordHasher
	logger outbound.Logger
}

func NewAuthService(
	users outbound.UserRepository,
	hasher outbound.PasswordHasher,
	logger outbound.Logger,
) *AuthService {
	return &AuthService{
		users:  users,
		hasher: hasher,
		logger: logger,
	}
}

// Login authenticates the username case-insensitively. On an empty store the
// first successful login creates the account as an enabled admin, so a fresh
// server is claimable without out-of-band setup.
func (s *AuthService) Login(ctx context.Context, username, password string) (*model.User, []model.Permission, *model.Error) {
	if verr := validation.Username(username); verr != nil {
		return nil, nil, verr
	}
	if verr := validation.Password(password); verr != nil {
		return nil, nil, verr
	}

	count, err := s.users.CountUsers(ctx)
	if err != nil {
		s.logger.Error("Failed to count users during login", "error", err)
		return nil, nil, model.NewError(model.ErrKindDatabase)
	}
	if count == 0 {
		user, berr := s.bootstrapAdmin(ctx, username, password)
		if berr == nil {
			return user, nil, nil
		}
		if !errors.Is(berr, outbound.ErrUsernameTaken) {
			s.logger.Error("Failed to create initial admin", "error", berr)
			return nil, nil, model.NewError(model.ErrKindDatabase)
		}
		// Lost the race against a concurrent first login; fall through to
		// the normal credential check.
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, outbound.ErrNotFound) {
		// Burn a hash so unknown usernames cost the same as bad passwords.
		_, _ = s.hasher.Hash(password)
		return nil, nil, model.NewError(model.ErrKindInvalidCredentials)
	}
	if err != nil {
		s.logger.Error("Failed to load user during login", "username", username, "error", err)
		return nil, nil, model.NewError(model.ErrKindDatabase)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("Failed to verify password hash", "userID", user.ID, "error", err)
		return nil, nil, model.NewError(model.ErrKindDatabase)
	}
	if !ok {
		return nil, nil, model.NewError(model.ErrKindInvalidCredentials)
	}
	if !user.Enabled {
		return nil, nil, model.NewError(model.ErrKindAccountDisabledByAdmin)
	}

	perms, err := s.users.Permissions(ctx, user.ID)
	if err != nil {
		s.logger.Error("Failed to load permissions during login", "userID", user.ID, "error", err)
		return nil, nil, model.NewError(model.ErrKindDatabase)
	}

	s.logger.Info("User authenticated", "userID", user.ID, "username", user.Username)
	return user, perms, nil
}

func (s *AuthService) bootstrapAdmin(ctx context.Context, username, password string) (*model.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Username:     username,
		PasswordHash: hash,
		IsAdmin:      true,
		Enabled:      true,
	}
	if err := s.users.CreateUser(ctx, user, nil); err != nil {
		return nil, err
	}
	s.logger.Info("Created initial admin account", "userID", user.ID, "username", user.Username)
	return user, nil
}
