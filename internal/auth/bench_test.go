package auth

import "testing"

// Argon2id is intentionally slow; these benchmarks keep an eye on login cost.

func BenchmarkVerifyPassword(b *testing.B) {
	hash, err := HashPassword("correct-horse-battery-staple")
	if err != nil {
		b.Fatalf("HashPassword: %v", err)
	}

	b.ResetTimer()
	for b.Loop() {
		VerifyPassword("correct-horse-battery-staple", hash) //nolint:errcheck // benchmark
	}
}

// ParseToken runs on every dashboard request.
func BenchmarkParseToken(b *testing.B) {
	token, err := GenerateAccessToken(&User{ID: "usr-bench", Role: RoleUser}, testSecret, 15)
	if err != nil {
		b.Fatalf("GenerateAccessToken: %v", err)
	}

	b.ResetTimer()
	for b.Loop() {
		ParseToken(token, testSecret) //nolint:errcheck // benchmark
	}
}
