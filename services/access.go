package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/princinho/userdirectory/models"
)

type AccessController struct {
	issuer   *SessionIssuer
	sessions SessionStore
	now      func() time.Time
}

func NewAccessController(issuer *SessionIssuer, sessions SessionStore) *AccessController {
	return &AccessController{issuer: issuer, sessions: sessions, now: time.Now}
}

// Authenticate validates the access token and checks that the session it
// belongs to is still live. A malformed or expired token yields an error that
// matches both ErrUnauthenticated and ErrInvalidToken.
func (a *AccessController) Authenticate(ctx context.Context, accessToken string) (models.SessionClaims, error) {
	claims, err := a.issuer.Parse(accessToken)
	if err != nil {
		return models.SessionClaims{}, fmt.Errorf("%w: %w", models.ErrUnauthenticated, models.ErrInvalidToken)
	}

	rec, err := a.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return models.SessionClaims{}, fmt.Errorf("%w: session not found", models.ErrUnauthenticated)
		}
		return models.SessionClaims{}, fmt.Errorf("load session: %w", err)
	}
	if rec.UserID != claims.UserID || !rec.Active(a.now()) {
		return models.SessionClaims{}, fmt.Errorf("%w: session is no longer active", models.ErrUnauthenticated)
	}

	return claims, nil
}

func (a *AccessController) RequireRole(claims models.SessionClaims, allowed ...models.Role) error {
	for _, r := range allowed {
		if claims.Role == r {
			return nil
		}
	}
	return fmt.Errorf("%w: role %s may not perform this operation", models.ErrForbidden, claims.Role)
}
