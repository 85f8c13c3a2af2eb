package cryptotest

import "crypto/subtle"

// PlainHasher stores passwords unhashed behind a fixed salt. Test use only.
type PlainHasher struct{}

func (PlainHasher) Hash(password string) ([]byte, []byte, error) {
	return []byte(password), []byte("salt"), nil
}

func (PlainHasher) Verify(password string, hash, salt []byte) bool {
	if len(salt) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), hash) == 1
}
