package users

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher turns passwords into stored digests and verifies candidates.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// NewHasher returns the Hasher for a configured algorithm name.
func NewHasher(algorithm string) (Hasher, error) {
	switch algorithm {
	case "sha256":
		return SHA256Hasher{}, nil
	case "bcrypt":
		return BcryptHasher{Cost: bcrypt.DefaultCost}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

// SHA256Hasher stores unsalted hex SHA-256 digests. The digest is
// deterministic, which is what the lab's seeded accounts rely on.
type SHA256Hasher struct{}

// Hash returns the lowercase hex SHA-256 digest of password.
func (SHA256Hasher) Hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

// Verify compares digests in constant time.
func (h SHA256Hasher) Verify(hash, password string) bool {
	candidate, _ := h.Hash(password)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(hash)) == 1
}

// BcryptHasher stores salted bcrypt hashes.
type BcryptHasher struct {
	Cost int
}

// Hash returns a bcrypt hash of password.
func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// Verify reports whether password matches the bcrypt hash.
func (BcryptHasher) Verify(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Seed describes a user before its password is hashed.
type Seed struct {
	Username     string
	Password     string
	PasswordHash string
	Role         string
}

// ErrInvalidSeed is returned by BuildRecords for malformed seeds.
var ErrInvalidSeed = errors.New("invalid user seed")

// BuildRecords hashes plain passwords with h and converts seeds into records.
// Seeds that already carry a PasswordHash are used as-is.
func BuildRecords(h Hasher, seeds []Seed) ([]Record, error) {
	records := make([]Record, 0, len(seeds))
	for _, s := range seeds {
		role, err := ParseRole(s.Role)
		if err != nil {
			return nil, fmt.Errorf("%w: user %q: %v", ErrInvalidSeed, s.Username, err)
		}

		hash := s.PasswordHash
		if hash == "" {
			if s.Password == "" {
				return nil, fmt.Errorf("%w: user %q has no password", ErrInvalidSeed, s.Username)
			}
			hash, err = h.Hash(s.Password)
			if err != nil {
				return nil, fmt.Errorf("user %q: %w", s.Username, err)
			}
		}

		records = append(records, Record{
			Username:     s.Username,
			PasswordHash: hash,
			Role:         role,
		})
	}
	return records, nil
}
