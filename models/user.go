package models

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
)

var knownRoles = []Role{RoleAdmin, RoleStudent, RoleTeacher}

// ParseRole accepts only the enumerated roles. Matching is exact: "admin" is not ADMIN.
func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(s)
	for _, r := range knownRoles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	Role         Role      `json:"role"`
	Enabled      bool      `json:"enabled"`
	PasswordHash string    `json:"-"` // never expose
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
