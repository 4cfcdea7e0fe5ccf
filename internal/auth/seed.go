package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes for the seed admin password.
const seedPasswordBytes = 16

// SeedAdminUsername is the account created on first boot.
const SeedAdminUsername = "admin"

// SeedAdmin creates the initial admin account on first boot if no users
// exist. When password is empty a random one is generated and logged; it
// must be changed immediately.
//
// Returns the password in effect (empty if seeding was skipped).
func SeedAdmin(ctx context.Context, userRepo UserRepository, password string, logger *slog.Logger) (string, error) {
	count, err := userRepo.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Info("users exist, skipping admin seed")
		return "", nil
	}

	generated := password == ""
	if generated {
		b := make([]byte, seedPasswordBytes)
		if _, err := rand.Read(b); err != nil { //nolint:govet // shadow
			return "", fmt.Errorf("generating seed password: %w", err)
		}
		password = hex.EncodeToString(b)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	admin := &User{
		Username:     SeedAdminUsername,
		DisplayName:  "Administrator",
		PasswordHash: hash,
		Role:         RoleAdmin,
		IsActive:     true,
	}
	if err := userRepo.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}

	if generated {
		logger.Warn("seed admin account created",
			"username", SeedAdminUsername,
			"password", password,
			"action_required", "change this password immediately",
		)
	} else {
		logger.Info("seed admin account created", "username", SeedAdminUsername)
	}
	return password, nil
}
