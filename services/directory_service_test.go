package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/princinho/userdirectory/database"
	"github.com/princinho/userdirectory/models"
	"github.com/princinho/userdirectory/utils"
)

func newTestService(t *testing.T, sessions SessionStore) *DirectoryService {
	t.Helper()

	users := database.NewUserDirectory()
	_, err := utils.SeedUsers(users, []utils.SeedUser{
		{Email: "admin@example.com", Username: "admin", Password: "adminpass", Role: "ADMIN"},
		{Email: "1@1.1", Username: "user1", Password: "pass", Role: "STUDENT"},
	}, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if sessions == nil {
		sessions = database.NewMemorySessionStore()
	}
	svc, err := NewDirectoryService(users, sessions, Options{
		JWTSecret:    []byte("test-secret"),
		AccessTTL:    time.Hour,
		RefreshTTL:   24 * time.Hour,
		PasswordCost: bcrypt.MinCost,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func login(t *testing.T, svc *DirectoryService, email, password string) models.Session {
	t.Helper()
	s, err := svc.Login(context.Background(), email, password)
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return s
}

func TestNewDirectoryServiceRequiresSecret(t *testing.T) {
	_, err := NewDirectoryService(database.NewUserDirectory(), database.NewMemorySessionStore(), Options{}, nil)
	if err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestLogin(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	s := login(t, svc, "1@1.1", "pass")
	if s.Role != models.RoleStudent || s.AccessToken == "" || s.RefreshToken == "" {
		t.Fatalf("unexpected session: %+v", s)
	}
	if s.UserID != 2 {
		t.Fatalf("expected user 2, got %d", s.UserID)
	}

	_, wrongPassword := svc.Login(ctx, "1@1.1", "nope")
	_, unknownEmail := svc.Login(ctx, "ghost@x.io", "pass")
	if !errors.Is(wrongPassword, models.ErrInvalidCredentials) || !errors.Is(unknownEmail, models.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v and %v", wrongPassword, unknownEmail)
	}
	if wrongPassword.Error() != unknownEmail.Error() {
		t.Fatalf("wrong password and unknown email must be indistinguishable: %q vs %q", wrongPassword, unknownEmail)
	}

	if _, err := svc.Login(ctx, "", "pass"); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRegister(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	u, err := svc.Register(ctx, "t@x.io", "teach", "pw", "TEACHER")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.ID != 3 || !u.Enabled || u.Role != models.RoleTeacher {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.PasswordHash == "pw" {
		t.Fatalf("password stored in clear")
	}
	login(t, svc, "t@x.io", "pw")

	if _, err := svc.Register(ctx, "t@x.io", "again", "pw", "STUDENT"); !errors.Is(err, models.ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
	if _, err := svc.Register(ctx, "r@x.io", "r", "pw", "teacher"); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown role, got %v", err)
	}
	if _, err := svc.Register(ctx, "r@x.io", "r", "", "STUDENT"); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty password, got %v", err)
	}
}

func TestAdminQueries(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	admin := login(t, svc, "admin@example.com", "adminpass")
	student := login(t, svc, "1@1.1", "pass")

	all, err := svc.ListUsers(ctx, admin.AccessToken)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != 1 || all[1].ID != 2 {
		t.Fatalf("unexpected listing: %+v", all)
	}

	u, err := svc.GetUserByID(ctx, admin.AccessToken, 2)
	if err != nil || u.Email != "1@1.1" {
		t.Fatalf("get 2: %+v %v", u, err)
	}
	if _, err := svc.GetUserByID(ctx, admin.AccessToken, 99); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	students, err := svc.GetUsersByRole(ctx, admin.AccessToken, "STUDENT")
	if err != nil || len(students) != 1 {
		t.Fatalf("by role: %+v %v", students, err)
	}
	for _, role := range []string{"TEACHER", "bogus"} {
		if _, err := svc.GetUsersByRole(ctx, admin.AccessToken, role); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("role %s: expected ErrNotFound, got %v", role, err)
		}
	}

	if _, err := svc.ListUsers(ctx, student.AccessToken); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for student, got %v", err)
	}
	if _, err := svc.GetUserByID(ctx, student.AccessToken, 1); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for student, got %v", err)
	}
	if _, err := svc.ToggleUserEnabled(ctx, student.AccessToken, 1); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for student, got %v", err)
	}
	if _, err := svc.ListUsers(ctx, "garbage"); !errors.Is(err, models.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestToggleUserEnabled(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	admin := login(t, svc, "admin@example.com", "adminpass")
	student := login(t, svc, "1@1.1", "pass")

	u, err := svc.ToggleUserEnabled(ctx, admin.AccessToken, 2)
	if err != nil || u.Enabled {
		t.Fatalf("disable: %+v %v", u, err)
	}

	if _, err := svc.GetProfile(ctx, student.AccessToken); !errors.Is(err, models.ErrUnauthenticated) {
		t.Fatalf("disabled user's session should be revoked, got %v", err)
	}
	if _, err := svc.RefreshSession(ctx, student.RefreshToken); !errors.Is(err, models.ErrInvalidToken) {
		t.Fatalf("disabled user's refresh token should be dead, got %v", err)
	}
	if _, err := svc.Login(ctx, "1@1.1", "pass"); !errors.Is(err, models.ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}

	u, err = svc.ToggleUserEnabled(ctx, admin.AccessToken, 2)
	if err != nil || !u.Enabled {
		t.Fatalf("enable: %+v %v", u, err)
	}
	login(t, svc, "1@1.1", "pass")

	if _, err := svc.ToggleUserEnabled(ctx, admin.AccessToken, 99); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRefreshSession(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	s := login(t, svc, "1@1.1", "pass")

	next, err := svc.RefreshSession(ctx, s.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.RefreshToken == s.RefreshToken {
		t.Fatalf("refresh token should rotate")
	}
	u, err := svc.GetProfile(ctx, next.AccessToken)
	if err != nil || u.ID != 2 {
		t.Fatalf("new access token should authenticate: %+v %v", u, err)
	}

	if _, err := svc.RefreshSession(ctx, s.RefreshToken); !errors.Is(err, models.ErrInvalidToken) {
		t.Fatalf("reused refresh token should be rejected, got %v", err)
	}
	for _, tok := range []string{"", "   ", "garbage"} {
		if _, err := svc.RefreshSession(ctx, tok); !errors.Is(err, models.ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestRefreshSessionConcurrentReuse(t *testing.T) {
	svc := newTestService(t, nil)
	s := login(t, svc, "1@1.1", "pass")

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.RefreshSession(context.Background(), s.RefreshToken); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("exactly one refresh should succeed, got %d", wins)
	}
}

func TestExpiredTokens(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	s := login(t, svc, "1@1.1", "pass")

	svc.issuer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err := svc.GetProfile(ctx, s.AccessToken)
	if !errors.Is(err, models.ErrUnauthenticated) || !errors.Is(err, models.ErrInvalidToken) {
		t.Fatalf("expired access token: got %v", err)
	}

	svc.issuer.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	if _, err := svc.RefreshSession(ctx, s.RefreshToken); !errors.Is(err, models.ErrInvalidToken) {
		t.Fatalf("expired refresh token: got %v", err)
	}
}

func TestLogout(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	first := login(t, svc, "1@1.1", "pass")
	second := login(t, svc, "1@1.1", "pass")

	if err := svc.Logout(ctx, first.AccessToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.GetProfile(ctx, first.AccessToken); !errors.Is(err, models.ErrUnauthenticated) {
		t.Fatalf("logged out token should fail, got %v", err)
	}
	if _, err := svc.RefreshSession(ctx, first.RefreshToken); !errors.Is(err, models.ErrInvalidToken) {
		t.Fatalf("logged out refresh token should fail, got %v", err)
	}
	if _, err := svc.GetProfile(ctx, second.AccessToken); err != nil {
		t.Fatalf("other session should survive logout: %v", err)
	}
	if err := svc.Logout(ctx, first.AccessToken); !errors.Is(err, models.ErrUnauthenticated) {
		t.Fatalf("second logout should be unauthenticated, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	s := login(t, svc, "1@1.1", "pass")

	if err := svc.ChangePassword(ctx, s.AccessToken, ""); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err := svc.ChangePassword(ctx, s.AccessToken, "newpass"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if _, err := svc.GetProfile(ctx, s.AccessToken); !errors.Is(err, models.ErrUnauthenticated) {
		t.Fatalf("sessions should be revoked after password change, got %v", err)
	}
	if _, err := svc.Login(ctx, "1@1.1", "pass"); !errors.Is(err, models.ErrInvalidCredentials) {
		t.Fatalf("old password should fail, got %v", err)
	}
	login(t, svc, "1@1.1", "newpass")

	if err := svc.ChangePassword(ctx, "garbage", "x"); !errors.Is(err, models.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestGetProfile(t *testing.T) {
	svc := newTestService(t, nil)
	s := login(t, svc, "admin@example.com", "adminpass")

	u, err := svc.GetProfile(context.Background(), s.AccessToken)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if u.ID != 1 || u.Role != models.RoleAdmin || u.Email != "admin@example.com" {
		t.Fatalf("unexpected profile: %+v", u)
	}
}

func TestServiceWithRedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := newTestService(t, database.NewRedisSessionStore(client))
	ctx := context.Background()

	s := login(t, svc, "1@1.1", "pass")
	next, err := svc.RefreshSession(ctx, s.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := svc.RefreshSession(ctx, s.RefreshToken); !errors.Is(err, models.ErrInvalidToken) {
		t.Fatalf("reused refresh token should be rejected, got %v", err)
	}
	if err := svc.Logout(ctx, next.AccessToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.GetProfile(ctx, next.AccessToken); !errors.Is(err, models.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated after logout, got %v", err)
	}
}

func TestPasswordOverBcryptLimit(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	long := strings.Repeat("a", 73)

	if _, err := svc.Register(ctx, "long@x.y", "long", long, "STUDENT"); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("register: expected ErrValidation, got %v", err)
	}

	s := login(t, svc, "1@1.1", "pass")
	if err := svc.ChangePassword(ctx, s.AccessToken, long); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("change password: expected ErrValidation, got %v", err)
	}
	if _, err := svc.GetProfile(ctx, s.AccessToken); err != nil {
		t.Fatalf("rejected change must not end the session: %v", err)
	}

	if _, err := svc.Register(ctx, "edge@x.y", "edge", strings.Repeat("b", 72), "STUDENT"); err != nil {
		t.Fatalf("72 bytes is within the limit: %v", err)
	}
}

// flakySessions fails RevokeAllForUser on demand.
type flakySessions struct {
	*database.MemorySessionStore
	failRevokeAll bool
}

func (f *flakySessions) RevokeAllForUser(ctx context.Context, userID int64) error {
	if f.failRevokeAll {
		return errors.New("session store unavailable")
	}
	return f.MemorySessionStore.RevokeAllForUser(ctx, userID)
}

func TestFailedRevokeLeavesUserUnchanged(t *testing.T) {
	sessions := &flakySessions{MemorySessionStore: database.NewMemorySessionStore()}
	svc := newTestService(t, sessions)
	ctx := context.Background()
	admin := login(t, svc, "admin@example.com", "adminpass")
	student := login(t, svc, "1@1.1", "pass")

	sessions.failRevokeAll = true

	if err := svc.ChangePassword(ctx, student.AccessToken, "newpass"); err == nil {
		t.Fatalf("expected change password to fail")
	}
	if _, err := svc.ToggleUserEnabled(ctx, admin.AccessToken, 2); err == nil {
		t.Fatalf("expected disable to fail")
	}

	sessions.failRevokeAll = false

	u, err := svc.GetUserByID(ctx, admin.AccessToken, 2)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !u.Enabled {
		t.Fatalf("failed disable must leave the account enabled")
	}
	login(t, svc, "1@1.1", "pass")
	if _, err := svc.Login(ctx, "1@1.1", "newpass"); !errors.Is(err, models.ErrInvalidCredentials) {
		t.Fatalf("failed change must keep the old password, got %v", err)
	}

	// enabling never needs a revoke
	if _, err := svc.ToggleUserEnabled(ctx, admin.AccessToken, 2); err != nil {
		t.Fatalf("disable: %v", err)
	}
	sessions.failRevokeAll = true
	if u, err := svc.ToggleUserEnabled(ctx, admin.AccessToken, 2); err != nil || !u.Enabled {
		t.Fatalf("enable: %+v %v", u, err)
	}
}

func TestAuthorizeAdmin(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	admin := login(t, svc, "admin@example.com", "adminpass")
	student := login(t, svc, "1@1.1", "pass")

	if err := svc.AuthorizeAdmin(ctx, admin.AccessToken); err != nil {
		t.Fatalf("admin: %v", err)
	}
	if err := svc.AuthorizeAdmin(ctx, student.AccessToken); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("student: expected ErrForbidden, got %v", err)
	}
	if err := svc.AuthorizeAdmin(ctx, "garbage"); !errors.Is(err, models.ErrUnauthenticated) {
		t.Fatalf("garbage: expected ErrUnauthenticated, got %v", err)
	}
}
