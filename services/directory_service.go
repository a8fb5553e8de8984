package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/princinho/userdirectory/models"
)

type Options struct {
	JWTSecret    []byte
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	PasswordCost int
}

// DirectoryService implements the user-facing use cases on top of the
// directory, the credential verifier, the session issuer and access control.
type DirectoryService struct {
	users    UserStore
	verifier *CredentialVerifier
	issuer   *SessionIssuer
	access   *AccessController
	log      *zap.Logger
}

func NewDirectoryService(users UserStore, sessions SessionStore, opts Options, log *zap.Logger) (*DirectoryService, error) {
	if len(opts.JWTSecret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}
	if log == nil {
		log = zap.NewNop()
	}

	verifier, err := NewCredentialVerifier(users, opts.PasswordCost)
	if err != nil {
		return nil, err
	}
	issuer := NewSessionIssuer(sessions, users, opts.JWTSecret, opts.AccessTTL, opts.RefreshTTL)

	return &DirectoryService{
		users:    users,
		verifier: verifier,
		issuer:   issuer,
		access:   NewAccessController(issuer, sessions),
		log:      log,
	}, nil
}

func (s *DirectoryService) Register(ctx context.Context, email, username, password, role string) (models.User, error) {
	if strings.TrimSpace(email) == "" {
		return models.User{}, fmt.Errorf("%w: email is required", models.ErrValidation)
	}
	if password == "" {
		return models.User{}, fmt.Errorf("%w: password is required", models.ErrValidation)
	}
	r, err := models.ParseRole(role)
	if err != nil {
		return models.User{}, err
	}

	hash, err := s.verifier.Hash(password)
	if err != nil {
		return models.User{}, err
	}
	user, err := s.users.Create(email, username, hash, r)
	if err != nil {
		return models.User{}, err
	}

	s.log.Info("user registered", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

func (s *DirectoryService) Login(ctx context.Context, email, password string) (models.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return models.Session{}, fmt.Errorf("%w: email and password are required", models.ErrValidation)
	}

	user, err := s.verifier.Verify(email, password)
	if err != nil {
		return models.Session{}, err
	}
	if !user.Enabled {
		return models.Session{}, models.ErrAccountDisabled
	}

	session, err := s.issuer.Issue(ctx, user)
	if err != nil {
		s.log.Warn("issue session failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return models.Session{}, err
	}

	s.log.Info("user logged in", zap.Int64("user_id", user.ID))
	return session, nil
}

func (s *DirectoryService) RefreshSession(ctx context.Context, refreshToken string) (models.Session, error) {
	session, err := s.issuer.Refresh(ctx, refreshToken)
	if err != nil {
		return models.Session{}, err
	}
	s.log.Info("session refreshed", zap.Int64("user_id", session.UserID))
	return session, nil
}

func (s *DirectoryService) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.access.Authenticate(ctx, accessToken)
	if err != nil {
		return err
	}
	if err := s.issuer.Revoke(ctx, claims.SessionID); err != nil {
		s.log.Warn("revoke session failed", zap.String("session_id", claims.SessionID), zap.Error(err))
		return err
	}
	s.log.Info("user logged out", zap.Int64("user_id", claims.UserID))
	return nil
}

func (s *DirectoryService) GetProfile(ctx context.Context, accessToken string) (models.User, error) {
	claims, err := s.access.Authenticate(ctx, accessToken)
	if err != nil {
		return models.User{}, err
	}
	return s.users.FindByID(claims.UserID)
}

// ChangePassword ends every session the caller holds, including the one used
// for this call, and then replaces the password. If the sessions cannot be
// revoked the password is left unchanged.
func (s *DirectoryService) ChangePassword(ctx context.Context, accessToken, newPassword string) error {
	claims, err := s.access.Authenticate(ctx, accessToken)
	if err != nil {
		return err
	}
	if newPassword == "" {
		return fmt.Errorf("%w: password is required", models.ErrValidation)
	}

	hash, err := s.verifier.Hash(newPassword)
	if err != nil {
		return err
	}
	// Sessions go first: a failure here leaves the old password in place.
	if err := s.issuer.RevokeAll(ctx, claims.UserID); err != nil {
		s.log.Warn("revoke sessions before password change failed", zap.Int64("user_id", claims.UserID), zap.Error(err))
		return err
	}
	if err := s.users.SetPassword(claims.UserID, hash); err != nil {
		return err
	}

	s.log.Info("password changed", zap.Int64("user_id", claims.UserID))
	return nil
}

func (s *DirectoryService) ListUsers(ctx context.Context, accessToken string) ([]models.User, error) {
	if _, err := s.authorize(ctx, accessToken, models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.users.ListAll(), nil
}

func (s *DirectoryService) GetUserByID(ctx context.Context, accessToken string, id int64) (models.User, error) {
	if _, err := s.authorize(ctx, accessToken, models.RoleAdmin); err != nil {
		return models.User{}, err
	}
	return s.users.FindByID(id)
}

// GetUsersByRole reports ErrNotFound when nothing matches, including for a
// role name outside the known set.
func (s *DirectoryService) GetUsersByRole(ctx context.Context, accessToken, role string) ([]models.User, error) {
	if _, err := s.authorize(ctx, accessToken, models.RoleAdmin); err != nil {
		return nil, err
	}
	users := s.users.FindByRole(models.Role(strings.TrimSpace(role)))
	if len(users) == 0 {
		return nil, models.ErrNotFound
	}
	return users, nil
}

// ToggleUserEnabled flips the enabled flag. Disabling a user also ends all of
// that user's sessions; if that fails the flag is not changed.
func (s *DirectoryService) ToggleUserEnabled(ctx context.Context, accessToken string, id int64) (models.User, error) {
	claims, err := s.authorize(ctx, accessToken, models.RoleAdmin)
	if err != nil {
		return models.User{}, err
	}

	current, err := s.users.FindByID(id)
	if err != nil {
		return models.User{}, err
	}
	// A user about to be disabled loses its sessions before the flag flips,
	// so a failed revoke leaves the account enabled.
	if current.Enabled {
		if err := s.issuer.RevokeAll(ctx, id); err != nil {
			s.log.Warn("revoke sessions before disable failed", zap.Int64("user_id", id), zap.Error(err))
			return models.User{}, err
		}
	}

	user, err := s.users.ToggleEnabled(id)
	if err != nil {
		return models.User{}, err
	}
	if !user.Enabled && !current.Enabled {
		// raced with a concurrent enable; the toggle disabled the account after all
		if err := s.issuer.RevokeAll(ctx, id); err != nil {
			s.log.Error("revoke sessions of disabled user failed", zap.Int64("user_id", id), zap.Error(err))
		}
	}

	s.log.Info("user enabled flag changed",
		zap.Int64("user_id", user.ID),
		zap.Bool("enabled", user.Enabled),
		zap.Int64("by", claims.UserID),
	)
	return user, nil
}

// AuthorizeAdmin authenticates the caller and requires the ADMIN role. Handlers
// use it to rank a bad caller above a malformed request.
func (s *DirectoryService) AuthorizeAdmin(ctx context.Context, accessToken string) error {
	_, err := s.authorize(ctx, accessToken, models.RoleAdmin)
	return err
}

func (s *DirectoryService) authorize(ctx context.Context, accessToken string, allowed ...models.Role) (models.SessionClaims, error) {
	claims, err := s.access.Authenticate(ctx, accessToken)
	if err != nil {
		return models.SessionClaims{}, err
	}
	if err := s.access.RequireRole(claims, allowed...); err != nil {
		return models.SessionClaims{}, err
	}
	return claims, nil
}
