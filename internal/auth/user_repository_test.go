package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/database"
)

func newUser(username string, role Role) *User {
	return &User{
		Username:     username,
		DisplayName:  "Grower " + username,
		PasswordHash: fakeHash,
		Role:         role,
		IsActive:     true,
	}
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	ctx := context.Background()

	user := newUser("meadow", RoleUser)
	user.Email = "meadow@example.com"
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if user.ID == "" {
		t.Fatal("Create() should generate an ID")
	}

	byID, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	byName, err := repo.GetByUsername(ctx, "meadow")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}

	for _, got := range []*User{byID, byName} {
		if got.ID != user.ID || got.Username != "meadow" {
			t.Errorf("got %s/%s, want %s/meadow", got.ID, got.Username, user.ID)
		}
		if got.Email != "meadow@example.com" {
			t.Errorf("Email = %q", got.Email)
		}
		if got.Role != RoleUser || !got.IsActive {
			t.Errorf("Role = %q IsActive = %v", got.Role, got.IsActive)
		}
		if got.PasswordHash != fakeHash {
			t.Error("PasswordHash should round-trip")
		}
	}
}

func TestUserRepository_CreateErrors(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, newUser("taken", RoleUser)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		name    string
		user    *User
		wantErr error
	}{
		{"duplicate username", newUser("taken", RoleUser), ErrUsernameExists},
		{"bad username", newUser("has space", RoleUser), ErrInvalidUser},
		{"unknown role", newUser("rooty", Role("owner")), ErrInvalidUser},
		{"missing hash", &User{Username: "nohash", Role: RoleUser}, ErrInvalidUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Create(ctx, tt.user); !errors.Is(err, tt.wantErr) {
				t.Errorf("Create() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUserRepository_NotFound(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	ctx := context.Background()

	if _, err := repo.GetByUsername(ctx, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByUsername() error = %v, want ErrUserNotFound", err)
	}
	if err := repo.Delete(ctx, "usr-missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Delete() error = %v, want ErrUserNotFound", err)
	}
	if err := repo.UpdatePassword(ctx, "usr-missing", fakeHash); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UpdatePassword() error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_ListAndCount(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	ctx := context.Background()

	users, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if users == nil || len(users) != 0 {
		t.Errorf("List() on empty table = %v, want empty non-nil slice", users)
	}

	for _, name := range []string{"alder", "birch", "cedar"} {
		if err := repo.Create(ctx, newUser(name, RoleUser)); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}

	users, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 3 {
		t.Errorf("List() returned %d users, want 3", len(users))
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 3 {
		t.Errorf("Count() = %d, want 3", count)
	}
}

func TestUserRepository_UpdateAndDelete(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	ctx := context.Background()

	user := newUser("willow", RoleUser)
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	user.DisplayName = "Willow Farm"
	user.Role = RoleAdmin
	user.IsActive = false
	if err := repo.Update(ctx, user); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.DisplayName != "Willow Farm" || got.Role != RoleAdmin || got.IsActive {
		t.Errorf("after Update() got %+v", got)
	}

	if err := repo.Delete(ctx, user.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, user.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("after Delete() GetByID error = %v", err)
	}
}

func TestUserRepository_WithTxRollsBack(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	errAbort := errors.New("abort")
	err := database.RunInTx(ctx, db, func(tx *sql.Tx) error {
		if err := repo.WithTx(tx).Create(ctx, newUser("ephemeral", RoleUser)); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("RunInTx() error = %v, want errAbort", err)
	}

	if _, err := repo.GetByUsername(ctx, "ephemeral"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("user created in a rolled back transaction is visible: %v", err)
	}
}

func TestUser_FullName(t *testing.T) {
	u := &User{Username: "fern"}
	if u.FullName() != "fern" {
		t.Errorf("FullName() = %q, want username fallback", u.FullName())
	}
	u.DisplayName = "  Fern Gully "
	if u.FullName() != "Fern Gully" {
		t.Errorf("FullName() = %q", u.FullName())
	}
}
