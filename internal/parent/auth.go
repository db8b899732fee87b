package parent

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/goodtune/timeledger/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the cost factor for bcrypt password hashing.
const BcryptCost = 12

var (
	// ErrInvalidPassword is returned when the parent password does not match.
	ErrInvalidPassword = errors.New("invalid parent password")

	// ErrChildNotFound is returned when the family has no such child.
	ErrChildNotFound = errors.New("child not found")

	// ErrFamilyExists is returned when seeding over an existing family.
	ErrFamilyExists = errors.New("family already exists")

	// ErrNoFamily is returned when the remote store holds no family yet.
	ErrNoFamily = errors.New("no family data in remote store")
)

// HashPassword hashes a password using bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword verifies a password against a bcrypt hash.
func VerifyPassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// CheckPassword checks password against the family's sync password,
// which may be stored as a bcrypt hash or, for families created by
// older devices, in plain text.
func CheckPassword(ps *storage.ParentSettings, password string) error {
	stored := storage.DefaultSyncPassword
	if ps != nil && ps.SyncPassword != "" {
		stored = ps.SyncPassword
	}

	if strings.HasPrefix(stored, "$2") {
		if err := VerifyPassword(password, stored); err != nil {
			return ErrInvalidPassword
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(password)) != 1 {
		return ErrInvalidPassword
	}
	return nil
}
