// Package app provides the application service layer.
//
// Orchestrates use cases: listing CRUD with ownership checks, the vote toggle, admin moderation,
// the sorted/searchable listing view with per-card status checks, and the session header and gate.
// Sits between HTTP handlers and domain repositories. Depends on domain interfaces, not concrete implementations.
package app
