package models

import "time"

// Session is what a caller receives after login or refresh.
type Session struct {
	UserID       int64     `json:"-"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Role         Role      `json:"role"`
}

// SessionRecord is the server-side half of a session. Only the SHA-256 of the
// refresh token is kept.
type SessionRecord struct {
	ID          string
	UserID      int64
	Role        Role
	RefreshHash string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	RevokedAt   *time.Time
}

func (s SessionRecord) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// SessionClaims is the identity carried by a validated access token.
type SessionClaims struct {
	UserID    int64
	SessionID string
	Email     string
	Role      Role
	ExpiresAt time.Time
}

// RefreshToken is a SessionRecord as stored in the refresh_tokens collection.
type RefreshToken struct {
	ID        string     `bson:"_id"`
	UserID    int64      `bson:"userId"`
	Role      Role       `bson:"role"`
	TokenHash string     `bson:"tokenHash"`
	ExpiresAt time.Time  `bson:"expiresAt"`
	CreatedAt time.Time  `bson:"createdAt"`
	RevokedAt *time.Time `bson:"revokedAt,omitempty"`
}
