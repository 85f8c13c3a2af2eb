// Package postgres stores identity-provider accounts in PostgreSQL.
//
// Schema migrations are embedded and applied with tern under an advisory lock.
package postgres
