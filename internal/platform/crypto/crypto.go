package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const saltLen = 16

// Argon2id parameters for server-side hashing.
const (
	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
)

type PasswordHasher interface {
	Hash(password string) (hash, salt []byte, err error)
	Verify(password string, hash, salt []byte) bool
}

type Argon2idHasher struct{}

var _ PasswordHasher = Argon2idHasher{}

func (Argon2idHasher) Hash(password string) ([]byte, []byte, error) {
	salt, err := RandBytes(saltLen)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return derive(password, salt), salt, nil
}

// Verify compares in constant time. An empty salt or hash never matches.
func (Argon2idHasher) Verify(password string, hash, salt []byte) bool {
	if len(hash) == 0 || len(salt) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(derive(password, salt), hash) == 1
}

func derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}
