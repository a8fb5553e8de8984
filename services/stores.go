package services

import (
	"context"
	"time"

	"github.com/princinho/userdirectory/models"
)

// UserStore is the user directory as seen by the services. It is implemented
// by database.UserDirectory.
type UserStore interface {
	Create(email, username, passwordHash string, role models.Role) (models.User, error)
	FindByID(id int64) (models.User, error)
	FindByEmail(email string) (models.User, error)
	FindByRole(role models.Role) []models.User
	ListAll() []models.User
	ToggleEnabled(id int64) (models.User, error)
	SetPassword(id int64, passwordHash string) error
}

// SessionStore holds the server-side half of issued sessions. Implemented by
// database.MemorySessionStore and database.RedisSessionStore.
type SessionStore interface {
	Create(ctx context.Context, session models.SessionRecord) error
	Get(ctx context.Context, sessionID string) (models.SessionRecord, error)
	GetByRefreshHash(ctx context.Context, refreshHash string) (models.SessionRecord, error)
	Rotate(ctx context.Context, sessionID, oldHash, newHash string, expiresAt time.Time) error
	Revoke(ctx context.Context, sessionID string) error
	RevokeAllForUser(ctx context.Context, userID int64) error
}
