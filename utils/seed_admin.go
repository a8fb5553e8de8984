package utils

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/princinho/userdirectory/models"
)

type SeedUser struct {
	Email    string `yaml:"email"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
	Enabled  *bool  `yaml:"enabled"`
}

type seedFile struct {
	Users []SeedUser `yaml:"users"`
}

// UserSeeder is the part of the directory that seeding writes through.
type UserSeeder interface {
	Create(email, username, passwordHash string, role models.Role) (models.User, error)
	FindByEmail(email string) (models.User, error)
	ToggleEnabled(id int64) (models.User, error)
}

// LoadSeedFile reads the users list from a YAML file. The returned error wraps
// os.ErrNotExist when the file is absent.
func LoadSeedFile(path string) ([]SeedUser, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return f.Users, nil
}

// SeedUsers creates the given users in order, skipping emails that already
// exist. It returns how many were created.
func SeedUsers(dir UserSeeder, users []SeedUser, cost int) (int, error) {
	created := 0
	for _, su := range users {
		role, err := models.ParseRole(su.Role)
		if err != nil {
			return created, fmt.Errorf("seed user %q: %w", su.Email, err)
		}
		if su.Password == "" {
			return created, fmt.Errorf("seed user %q: missing password", su.Email)
		}

		if _, err := dir.FindByEmail(su.Email); err == nil {
			continue
		}

		hash, err := HashPassword(su.Password, cost)
		if err != nil {
			return created, fmt.Errorf("hash password for %q: %w", su.Email, err)
		}
		user, err := dir.Create(su.Email, su.Username, hash, role)
		if err != nil {
			if errors.Is(err, models.ErrEmailExists) {
				continue
			}
			return created, fmt.Errorf("seed user %q: %w", su.Email, err)
		}
		if su.Enabled != nil && !*su.Enabled {
			if _, err := dir.ToggleEnabled(user.ID); err != nil {
				return created, fmt.Errorf("disable seed user %q: %w", su.Email, err)
			}
		}
		created++
	}
	return created, nil
}

// SeedAdminUser inserts an ADMIN account only if the email is not taken yet.
// It reports whether a user was created.
func SeedAdminUser(dir UserSeeder, email, password string, cost int) (bool, error) {
	if email == "" || password == "" {
		return false, fmt.Errorf("missing ADMIN_EMAIL or ADMIN_PASSWORD")
	}
	n, err := SeedUsers(dir, []SeedUser{{
		Email:    email,
		Username: "admin",
		Password: password,
		Role:     string(models.RoleAdmin),
	}}, cost)
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	return n == 1, nil
}
