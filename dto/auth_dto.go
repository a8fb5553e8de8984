package dto

import "time"

type RegisterUserDTO struct {
	Email    string `json:"email" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

type LoginDTO struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshDTO accepts the refresh token as "token" or "refreshToken".
type RefreshDTO struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

func (d RefreshDTO) Value() string {
	if d.Token != "" {
		return d.Token
	}
	return d.RefreshToken
}

type LoginResponseDTO struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Role         string    `json:"role"`
}

type RefreshResponseDTO struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}
