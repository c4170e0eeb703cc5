package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/xid"
	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor; roughly 250ms per hash on a modern
// server.
const defaultCost = 12

// MaxPasswordBytes is bcrypt's input limit. Longer input is silently
// truncated by bcrypt, so Hash refuses it instead.
const MaxPasswordBytes = 72

// PasswordService provides bcrypt hashing and verification. The cost is a
// field so tests can drop it to bcrypt.MinCost.
type PasswordService struct {
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewPasswordService creates a PasswordService with the default cost (12).
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest creates a PasswordService with a custom cost.
// Tests in other packages pass bcrypt.MinCost (4). Do NOT use in production.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash hashes plaintext with bcrypt. The result embeds salt and cost and is
// stored as-is.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordBytes)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify returns nil if plaintext matches hash. The comparison is
// constant-time.
//
// An empty hash (accounts created through GitHub have none) never matches.
func (p *PasswordService) Verify(hash, plaintext string) error {
	if hash == "" {
		return fmt.Errorf("auth: account has no password")
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("auth: invalid password")
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

// VerifyNone does the bcrypt work of one Verify against a hash that matches
// no password, and discards the result. Sign-in calls it when there is no
// account (or no password) to check, so the response time does not reveal
// whether the email is registered.
func (p *PasswordService) VerifyNone(plaintext string) {
	p.dummyOnce.Do(func() {
		// Random input: the hash must not match any password a user can type.
		hashed, err := bcrypt.GenerateFromPassword([]byte(xid.New().String()+xid.New().String()), p.cost)
		if err == nil {
			p.dummyHash = hashed
		}
	})
	_ = bcrypt.CompareHashAndPassword(p.dummyHash, []byte(plaintext))
}
