// Package crypto hashes and verifies account passwords.
//
// Argon2idHasher is the production implementation; cryptotest.PlainHasher is a
// cheap stand-in for tests that exercise login flows.
package crypto
