package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/princinho/userdirectory/models"
	"github.com/princinho/userdirectory/utils"
)

const (
	DefaultAccessTTL  = 24 * time.Hour
	DefaultRefreshTTL = 14 * 24 * time.Hour
)

// SessionIssuer mints access tokens (signed JWTs) and opaque refresh tokens
// backed by a SessionStore entry.
type SessionIssuer struct {
	sessions   SessionStore
	users      UserStore
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewSessionIssuer(sessions SessionStore, users UserStore, secret []byte, accessTTL, refreshTTL time.Duration) *SessionIssuer {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &SessionIssuer{
		sessions:   sessions,
		users:      users,
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (i *SessionIssuer) Issue(ctx context.Context, user models.User) (models.Session, error) {
	refreshToken, err := utils.GenerateRefreshToken()
	if err != nil {
		return models.Session{}, fmt.Errorf("generate refresh token: %w", err)
	}

	now := i.now().UTC()
	rec := models.SessionRecord{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Role:        user.Role,
		RefreshHash: utils.HashRefreshToken(refreshToken),
		ExpiresAt:   now.Add(i.refreshTTL),
		CreatedAt:   now,
	}
	if err := i.sessions.Create(ctx, rec); err != nil {
		return models.Session{}, fmt.Errorf("create session: %w", err)
	}

	return i.mint(user, rec.ID, refreshToken, now)
}

// Refresh exchanges a refresh token for a new access token and a new refresh
// token. The presented token stops working once this returns successfully.
func (i *SessionIssuer) Refresh(ctx context.Context, refreshToken string) (models.Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return models.Session{}, fmt.Errorf("%w: no token provided", models.ErrInvalidToken)
	}

	oldHash := utils.HashRefreshToken(refreshToken)
	rec, err := i.sessions.GetByRefreshHash(ctx, oldHash)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return models.Session{}, models.ErrInvalidToken
		}
		return models.Session{}, fmt.Errorf("get refresh session: %w", err)
	}

	now := i.now().UTC()
	if !rec.Active(now) || !utils.VerifyRefreshToken(refreshToken, rec.RefreshHash) {
		return models.Session{}, models.ErrInvalidToken
	}

	user, err := i.users.FindByID(rec.UserID)
	if err != nil {
		return models.Session{}, models.ErrInvalidToken
	}
	if !user.Enabled {
		return models.Session{}, models.ErrAccountDisabled
	}

	newToken, err := utils.GenerateRefreshToken()
	if err != nil {
		return models.Session{}, fmt.Errorf("generate refresh token: %w", err)
	}
	err = i.sessions.Rotate(ctx, rec.ID, oldHash, utils.HashRefreshToken(newToken), now.Add(i.refreshTTL))
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return models.Session{}, models.ErrInvalidToken
		}
		return models.Session{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	return i.mint(user, rec.ID, newToken, now)
}

func (i *SessionIssuer) Parse(accessToken string) (models.SessionClaims, error) {
	return utils.ValidateToken(accessToken, i.secret, i.now())
}

func (i *SessionIssuer) Revoke(ctx context.Context, sessionID string) error {
	if err := i.sessions.Revoke(ctx, sessionID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (i *SessionIssuer) RevokeAll(ctx context.Context, userID int64) error {
	if err := i.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}

func (i *SessionIssuer) mint(user models.User, sessionID, refreshToken string, now time.Time) (models.Session, error) {
	accessToken, expiresAt, err := utils.GenerateAccessToken(i.secret, models.SessionClaims{
		UserID:    user.ID,
		SessionID: sessionID,
		Email:     user.Email,
		Role:      user.Role,
	}, i.accessTTL, now)
	if err != nil {
		return models.Session{}, fmt.Errorf("generate access token: %w", err)
	}

	return models.Session{
		UserID:       user.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Role:         user.Role,
	}, nil
}
