// Package auth handles accounts and cookie sessions.
//
// Passwords are bcrypt hashes. Session tokens are random, handed to the
// client once, and stored only as their SHA-256 digest. Login attempts are
// rate limited per client key.
package auth
