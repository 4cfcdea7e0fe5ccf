package auth

import (
	"context"
	"errors"
	"sync"
)

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// Login checks a username and password.
//
// Unknown users, wrong passwords and malformed stored hashes all return
// ErrInvalidCredentials. Unknown usernames still pay for one Argon2id
// verification so response timing does not reveal which accounts exist.
// A correct password on a disabled account returns ErrUserInactive.
func Login(ctx context.Context, users UserRepository, username, password string) (*User, error) {
	user, err := users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			VerifyPassword(password, equaliserHash()) //nolint:errcheck // timing equaliser only
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}

func equaliserHash() string {
	dummyHashOnce.Do(func() {
		dummyHash, _ = HashPassword("irrigation-timing-equaliser") //nolint:errcheck // fallback is an empty hash
	})
	return dummyHash
}
