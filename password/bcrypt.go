// Package password hashes and verifies credentials. The hasher sits
// behind an interface because verification may run out-of-process in some
// deployments.
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Hasher is the credential hashing capability consumed by the credential
// manager.
type Hasher interface {
	Hash(plain string) (string, error)
	// Verify reports whether plain matches hash. A mismatch is a normal
	// false result; errors are reserved for malformed hashes or backend
	// failures.
	Verify(plain, hash string) (bool, error)
}

// Bcrypt is the default Hasher. Cost must be at least 10.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a bcrypt hasher with the given cost factor.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost < 10 || cost > bcrypt.MaxCost {
		return nil, errors.New("password: bcrypt cost out of range")
	}
	return &Bcrypt{cost: cost}, nil
}

// Hash hashes plain at the configured cost.
func (b *Bcrypt) Hash(plain string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(plain), b.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether plain matches hash.
func (b *Bcrypt) Verify(plain, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}
