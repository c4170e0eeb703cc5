// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// Email is stored lower-cased and is unique. PasswordHash is a bcrypt hash;
// it is empty for accounts created through GitHub sign-in, which means
// password sign-in can never succeed for them. The `json:"-"` tag keeps the
// hash out of every API response.
//
// GitHubID is 0 for password accounts. When non-zero it is unique, so one
// GitHub account maps to exactly one user.
type User struct {
	ID           string    `json:"userId"    db:"id"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	Name         string    `json:"name"      db:"name"`
	GitHubID     int64     `json:"-"         db:"github_id"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// Public returns a copy of the user without the password hash. This is the
// only form of a user that leaves the credential store.
func (u User) Public() *User {
	u.PasswordHash = ""
	return &u
}
