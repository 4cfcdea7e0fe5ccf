// Package auth provides dashboard authentication and authorisation for the
// irrigation service.
//
// It implements a two-tier role model (user → admin) with:
//   - Argon2id password hashing
//   - Short-lived HS256 JWT access tokens validated without a database hit
//   - A static role-permission mapping
//
// Field devices do not authenticate here; they present an API key that the
// device package resolves. Users never see other users' devices: a user
// controls the first active device they own.
package auth
