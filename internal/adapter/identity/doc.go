// Package identity is the email/password identity provider.
//
// Accounts live in Postgres, session records in Redis. Every sign-in, sign-out
// and registration publishes the session's new auth state so open pages on any
// instance can react.
package identity
