package services

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/princinho/userdirectory/models"
	"github.com/princinho/userdirectory/utils"
)

type CredentialVerifier struct {
	users     UserStore
	cost      int
	dummyHash string
}

func NewCredentialVerifier(users UserStore, cost int) (*CredentialVerifier, error) {
	filler, err := utils.NewOpaqueToken(16)
	if err != nil {
		return nil, fmt.Errorf("generate dummy password: %w", err)
	}
	dummy, err := utils.HashPassword(filler, cost)
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}
	return &CredentialVerifier{users: users, cost: cost, dummyHash: dummy}, nil
}

func (v *CredentialVerifier) Hash(password string) (string, error) {
	hash, err := utils.HashPassword(password, v.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: password exceeds 72 bytes", models.ErrValidation)
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// Verify returns ErrInvalidCredentials for an unknown email and for a wrong
// password alike. An unknown email still pays for one bcrypt comparison.
func (v *CredentialVerifier) Verify(email, password string) (models.User, error) {
	user, err := v.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			_ = utils.CheckPassword(v.dummyHash, password)
			return models.User{}, models.ErrInvalidCredentials
		}
		return models.User{}, err
	}

	if err := utils.CheckPassword(user.PasswordHash, password); err != nil {
		return models.User{}, models.ErrInvalidCredentials
	}
	return user, nil
}
