package database

import (
	"fmt"
	"sync"
	"time"

	"github.com/princinho/userdirectory/models"
	"github.com/princinho/userdirectory/utils"
)

// UserDirectory is the authoritative in-memory user set. All methods are safe
// for concurrent use and hand out copies, never references into the set.
type UserDirectory struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]*models.User
	byEmail map[string]int64
	order   []int64
	now     func() time.Time
}

func NewUserDirectory() *UserDirectory {
	return &UserDirectory{
		nextID:  1,
		byID:    make(map[int64]*models.User),
		byEmail: make(map[string]int64),
		now:     time.Now,
	}
}

func (d *UserDirectory) Create(email, username, passwordHash string, role models.Role) (models.User, error) {
	email = utils.NormalizeIdentifier(email)
	username = utils.NormalizeIdentifier(username)
	if email == "" {
		return models.User{}, fmt.Errorf("%w: email is required", models.ErrValidation)
	}
	if !role.Valid() {
		return models.User{}, fmt.Errorf("%w: unknown role %q", models.ErrValidation, role)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byEmail[email]; ok {
		return models.User{}, models.ErrEmailExists
	}

	now := d.now().UTC()
	u := &models.User{
		ID:           d.nextID,
		Email:        email,
		Username:     username,
		Role:         role,
		Enabled:      true,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	d.nextID++
	d.byID[u.ID] = u
	d.byEmail[email] = u.ID
	d.order = append(d.order, u.ID)

	return *u, nil
}

func (d *UserDirectory) FindByID(id int64) (models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byID[id]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	return *u, nil
}

func (d *UserDirectory) FindByEmail(email string) (models.User, error) {
	email = utils.NormalizeIdentifier(email)

	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[email]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	return *d.byID[id], nil
}

// FindByRole returns matching users in creation order; no match is an empty slice.
func (d *UserDirectory) FindByRole(role models.Role) []models.User {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]models.User, 0)
	for _, id := range d.order {
		if u := d.byID[id]; u.Role == role {
			out = append(out, *u)
		}
	}
	return out
}

func (d *UserDirectory) ListAll() []models.User {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]models.User, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, *d.byID[id])
	}
	return out
}

func (d *UserDirectory) ToggleEnabled(id int64) (models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.byID[id]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	u.Enabled = !u.Enabled
	u.UpdatedAt = d.now().UTC()
	return *u, nil
}

func (d *UserDirectory) SetPassword(id int64, passwordHash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.byID[id]
	if !ok {
		return models.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = d.now().UTC()
	return nil
}

func (d *UserDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}
